// Package media provides a headless media resource: it checks that a preview
// file is reachable and then plays it against the wall clock.
package media

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/crate/internal/app/playback"
)

const (
	DefaultProbeTimeout  = 5 * time.Second
	DefaultPreviewLength = 30 * time.Second
	DefaultTickInterval  = 250 * time.Millisecond
)

// DurationHeader carries the length of the audio file in seconds, when known.
const DurationHeader = "X-Content-Duration"

var ErrReleased = errors.New("media resource released")

// Config represents media factory configuration.
type Config struct {
	ProbeTimeout  time.Duration
	PreviewLength time.Duration // used when the file does not report its length
	TickInterval  time.Duration // progress reporting period
	HTTPClient    *http.Client
}

// Factory opens headless media resources.
type Factory struct {
	config Config
	client *http.Client
}

// NewFactory creates a new factory.
func NewFactory(cfg Config) *Factory {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = DefaultPreviewLength
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Factory{config: cfg, client: client}
}

// Open validates locator and starts the resource goroutine. The probe runs
// asynchronously and reports through cb.
func (f *Factory) Open(locator string, cb playback.Callbacks) (playback.Resource, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid audio locator %q", locator)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf("unsupported audio locator scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &resource{
		locator: u.String(),
		factory: f,
		cb:      cb,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.run()
	return r, nil
}

// resource plays one locator. Commands only flip state under mu and wake the
// goroutine, which is the sole caller of the callbacks.
type resource struct {
	locator string
	factory *Factory
	cb      playback.Callbacks

	mu       sync.Mutex
	playing  bool
	position time.Duration
	rewound  bool
	released bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func (r *resource) Play() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return ErrReleased
	}
	r.playing = true
	r.mu.Unlock()
	r.signal()
	return nil
}

func (r *resource) Pause() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return ErrReleased
	}
	r.playing = false
	r.mu.Unlock()
	r.signal()
	return nil
}

func (r *resource) Rewind() {
	r.mu.Lock()
	r.position = 0
	r.rewound = true
	r.mu.Unlock()
	r.signal()
}

func (r *resource) Release() {
	r.mu.Lock()
	r.released = true
	r.playing = false
	r.mu.Unlock()
	r.cancel()
}

func (r *resource) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *resource) run() {
	length, err := r.probe()
	if err != nil {
		if r.ctx.Err() == nil {
			zlog.Warn().Msgf("media: probe failed: locator=%s error=%v", r.locator, err)
			r.cb.OnError(err)
		}
		return
	}
	if r.ctx.Err() != nil {
		return
	}
	r.cb.OnDuration(length)
	r.cb.OnReady()

	ticker := time.NewTicker(r.factory.config.TickInterval)
	defer ticker.Stop()

	reported := false // playing state last reported through callbacks
	last := time.Now()
	for {
		now := time.Now()
		r.mu.Lock()
		playing := r.playing
		if playing {
			r.position += now.Sub(last)
		}
		position := r.position
		rewound := r.rewound
		r.rewound = false
		r.mu.Unlock()
		last = now

		if playing != reported {
			reported = playing
			if playing {
				r.cb.OnPlay()
			} else {
				r.cb.OnPause()
			}
		}
		if playing || rewound {
			if position > length {
				position = length
			}
			r.cb.OnProgress(position)
		}
		if playing && position >= length {
			r.cb.OnEnded()
			return
		}

		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// probe checks that the locator is reachable and returns its length.
func (r *resource) probe() (time.Duration, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.factory.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.locator, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create probe request")
	}
	resp, err := r.factory.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to probe audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errors.Newf("audio not available: status=%d", resp.StatusCode)
	}

	if v := resp.Header.Get(DurationHeader); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second)), nil
		}
	}
	return r.factory.config.PreviewLength, nil
}
