package playback

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/crate/internal/app/bus"
	"github.com/osa030/crate/internal/domain/product"
	"github.com/osa030/crate/internal/domain/track"
)

// Errors
var (
	ErrNoAudio        = errors.New("track has no audio locator")
	ErrEmptyTracklist = errors.New("tracklist is empty")
	ErrInvalidIndex   = errors.New("start index out of range")
	ErrClosed         = errors.New("controller is closed")
)

// DefaultGracePeriod is how long the last stopped track is remembered.
const DefaultGracePeriod = 5 * time.Second

// Config holds controller configuration.
type Config struct {
	GracePeriod  time.Duration // How long lastTrack survives a stop
	PollInterval time.Duration // Tick for surfaces sampling continuous state
}

// Controller owns the playback session. It is the only writer of the
// session state; every mutation is followed by a NotifyAll on its bus,
// issued after the controller lock is released.
type Controller struct {
	mu sync.RWMutex

	factory ResourceFactory
	bus     *bus.Bus
	config  Config

	// Current track state
	current     *track.Track
	state       State
	currentTime time.Duration
	duration    time.Duration
	stopReason  StopReason
	lastError   string

	// History and album context
	history    []*track.Track // append-only until ClearPlayHistory
	index      int            // into history, -1 when empty
	album      []*track.Track
	albumStart int

	// Grace-period memory of the last stopped track
	lastTrack   *track.Track
	graceCancel func()
	graceToken  uint64

	// Media resource
	resource   Resource
	generation uint64 // bumped on every teardown, stale callbacks are dropped

	closed bool
}

// NewController creates a new playback controller.
func NewController(factory ResourceFactory, b *bus.Bus, config Config) *Controller {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.PollInterval <= 0 {
		config.PollInterval = bus.DefaultPollInterval
	}
	if b == nil {
		b = bus.New()
	}
	return &Controller{
		factory: factory,
		bus:     b,
		config:  config,
		state:   StateIdle,
		index:   -1,
	}
}

// Subscribe registers a listener for state changes.
func (c *Controller) Subscribe(l bus.Listener) {
	c.bus.Subscribe(l)
}

// Unsubscribe removes a listener.
func (c *Controller) Unsubscribe(l bus.Listener) {
	c.bus.Unsubscribe(l)
}

// PollInterval returns the tick for surfaces that sample continuous state.
func (c *Controller) PollInterval() time.Duration {
	return c.config.PollInterval
}

// PlayTrack plays a single track without touching the play history.
// Returns ErrNoAudio, with no state change, if the track has no locator.
func (c *Controller) PlayTrack(t track.Track) error {
	if !t.HasAudio() {
		return ErrNoAudio
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.playTrackLocked(&t)
	c.mu.Unlock()

	c.notify()
	return nil
}

// PlayTracklist appends tracks to the play history, makes them the current
// album and plays tracks[startIndex].
func (c *Controller) PlayTracklist(tracks []track.Track, startIndex int) error {
	if len(tracks) == 0 {
		return ErrEmptyTracklist
	}
	if startIndex < 0 || startIndex >= len(tracks) {
		return errors.Wrapf(ErrInvalidIndex, "index=%d len=%d", startIndex, len(tracks))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	album := make([]*track.Track, len(tracks))
	for i := range tracks {
		t := tracks[i]
		album[i] = &t
	}
	c.albumStart = len(c.history)
	c.album = album
	c.history = append(c.history, album...)
	c.index = c.albumStart + startIndex

	zlog.Debug().Msgf("playback: tracklist appended: tracks=%d start=%d history=%d",
		len(tracks), startIndex, len(c.history))

	c.playTrackLocked(c.history[c.index])
	c.mu.Unlock()

	c.notify()
	return nil
}

// Next moves one entry forward in the play history and plays it.
// Returns false, with no state change, at the last entry.
func (c *Controller) Next() bool {
	return c.step(1)
}

// Previous moves one entry back in the play history and plays it.
// Returns false, with no state change, at the first entry.
func (c *Controller) Previous() bool {
	return c.step(-1)
}

func (c *Controller) step(delta int) bool {
	c.mu.Lock()
	target := c.index + delta
	if c.closed || len(c.history) == 0 || target < 0 || target >= len(c.history) {
		c.mu.Unlock()
		return false
	}
	c.index = target
	c.playTrackLocked(c.history[target])
	c.mu.Unlock()

	c.notify()
	return true
}

// Pause pauses the resource. Only acts while playing.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	if c.resource == nil || c.state != StatePlaying {
		c.mu.Unlock()
		return false
	}
	if err := c.resource.Pause(); err != nil {
		c.failLocked(err)
	} else {
		c.state = StatePaused
	}
	c.mu.Unlock()

	c.notify()
	return true
}

// Resume resumes the resource. Only acts while paused.
func (c *Controller) Resume() bool {
	c.mu.Lock()
	if c.resource == nil || c.state != StatePaused {
		c.mu.Unlock()
		return false
	}
	if err := c.resource.Play(); err != nil {
		c.failLocked(err)
	} else {
		c.state = StatePlaying
	}
	c.mu.Unlock()

	c.notify()
	return true
}

// Stop halts playback, remembers the current track as the last track for the
// grace period and keeps the play history.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.current == nil && c.resource == nil {
		c.mu.Unlock()
		return
	}
	c.stopLocked(StopReasonStopped)
	c.mu.Unlock()

	c.notify()
}

// ClearPlayHistory discards the play history and album context. It is the
// only operation that does so.
func (c *Controller) ClearPlayHistory() {
	c.mu.Lock()
	c.history = nil
	c.index = -1
	c.album = nil
	c.albumStart = 0
	c.mu.Unlock()

	c.notify()
}

// ApplyTracklistUpdate patches, in place, every loaded track that belongs to
// key with the title, artist and duration of the matching entry in tracks
// (matched by TrackIndex). Returns whether anything changed.
func (c *Controller) ApplyTracklistUpdate(key product.Key, tracks []track.Track) bool {
	c.mu.Lock()
	seen := make(map[*track.Track]bool)
	changed := false
	patch := func(t *track.Track) {
		if t == nil || seen[t] || !key.Matches(t) {
			return
		}
		seen[t] = true
		if t.TrackIndex < 0 || t.TrackIndex >= len(tracks) {
			return
		}
		if patchTrack(t, tracks[t.TrackIndex]) {
			changed = true
		}
	}
	for _, t := range c.history {
		patch(t)
	}
	for _, t := range c.album {
		patch(t)
	}
	patch(c.current)
	patch(c.lastTrack)
	if changed && c.current != nil && c.duration == 0 {
		c.duration = c.current.Duration
	}
	c.mu.Unlock()

	if changed {
		zlog.Debug().Msgf("playback: tracklist update applied: product=%s", key)
		c.notify()
	}
	return changed
}

func patchTrack(dst *track.Track, src track.Track) bool {
	changed := false
	if src.Title != "" && dst.Title != src.Title {
		dst.Title = src.Title
		changed = true
	}
	if src.Artist != "" && dst.Artist != src.Artist {
		dst.Artist = src.Artist
		changed = true
	}
	if src.Duration > 0 && dst.Duration != src.Duration {
		dst.Duration = src.Duration
		changed = true
	}
	return changed
}

// Close releases the resource and cancels timers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.teardownLocked()
	c.cancelGraceLocked()
}

// playTrackLocked replaces the resource with a fresh one bound to t.
// A track without an audio locator leaves the resource and state untouched
// and reports false.
// Must be called with lock held.
func (c *Controller) playTrackLocked(t *track.Track) bool {
	if !t.HasAudio() {
		zlog.Debug().Msgf("playback: track has no audio, skipped: title=%s index=%d", t.Title, c.index)
		return false
	}

	c.teardownLocked()
	c.cancelGraceLocked()

	c.current = t
	c.lastTrack = t
	c.state = StateLoading
	c.currentTime = 0
	c.duration = t.Duration
	c.stopReason = StopReasonNone
	c.lastError = ""

	gen := c.generation
	res, err := c.factory.Open(t.AudioURL, c.callbacks(gen))
	if err != nil {
		c.failLocked(errors.Wrap(err, "failed to open resource"))
		return true
	}
	c.resource = res

	zlog.Info().Msgf("playback: track loading: title=%s artist=%s index=%d", t.Title, t.Artist, c.index)

	if err := res.Play(); err != nil {
		c.failLocked(errors.Wrap(err, "failed to start resource"))
	}
	return true
}

// teardownLocked pauses and releases the active resource.
// Must be called with lock held.
func (c *Controller) teardownLocked() {
	c.generation++
	if c.resource == nil {
		return
	}
	res := c.resource
	c.resource = nil
	if err := res.Pause(); err != nil {
		zlog.Debug().Msgf("playback: pause during teardown failed: error=%v", err)
	}
	res.Release()
}

// stopLocked moves the current track into lastTrack and arms the grace timer.
// Must be called with lock held.
func (c *Controller) stopLocked(reason StopReason) {
	if c.resource != nil {
		if err := c.resource.Pause(); err != nil {
			zlog.Debug().Msgf("playback: pause during stop failed: error=%v", err)
		}
		c.resource.Rewind()
	}
	c.teardownLocked()

	if c.current != nil {
		c.lastTrack = c.current
	}
	c.current = nil
	c.state = StateIdle
	c.currentTime = 0
	c.stopReason = reason
	c.armGraceLocked()
}

// failLocked stops playback after a resource failure.
// Must be called with lock held.
func (c *Controller) failLocked(err error) {
	title := ""
	if c.current != nil {
		title = c.current.Title
	}
	zlog.Warn().Msgf("playback: resource failed: title=%s error=%v", title, err)
	c.stopLocked(StopReasonError)
	c.lastError = err.Error()
}

// completeLocked resolves the transient Ended state: advance through history,
// else grow history from the current album, else stop.
// Must be called with lock held.
func (c *Controller) completeLocked() {
	c.state = StateEnded

	if c.index >= 0 && c.index < len(c.history)-1 {
		c.index++
		if !c.playTrackLocked(c.history[c.index]) {
			c.stopLocked(StopReasonEnded)
		}
		return
	}

	albumPos := c.index - c.albumStart
	if c.index >= 0 && albumPos >= 0 && albumPos < len(c.album)-1 {
		next := c.album[albumPos+1]
		c.history = append(c.history, next)
		c.index = len(c.history) - 1
		zlog.Debug().Msgf("playback: history grown from album: album_pos=%d history=%d", albumPos+1, len(c.history))
		if !c.playTrackLocked(next) {
			c.stopLocked(StopReasonEnded)
		}
		return
	}

	c.stopLocked(StopReasonEnded)
}

// callbacks binds resource signals to the controller for generation gen.
func (c *Controller) callbacks(gen uint64) Callbacks {
	return Callbacks{
		OnReady: func() {
			c.onResource(gen, func() bool {
				if c.state != StateLoading {
					return false
				}
				c.state = StatePlaying
				return true
			})
		},
		OnPlay: func() {
			c.onResource(gen, func() bool {
				if c.state == StatePlaying {
					return false
				}
				c.state = StatePlaying
				return true
			})
		},
		OnPause: func() {
			c.onResource(gen, func() bool {
				if c.state != StatePlaying {
					return false
				}
				c.state = StatePaused
				return true
			})
		},
		OnProgress: func(position time.Duration) {
			// Progress is sampled through Poll, not broadcast.
			c.onResource(gen, func() bool {
				c.currentTime = position
				return false
			})
		},
		OnDuration: func(duration time.Duration) {
			c.onResource(gen, func() bool {
				if c.duration == duration {
					return false
				}
				c.duration = duration
				return true
			})
		},
		OnEnded: func() {
			c.onResource(gen, func() bool {
				c.completeLocked()
				return true
			})
		},
		OnError: func(err error) {
			c.onResource(gen, func() bool {
				c.failLocked(err)
				return true
			})
		},
	}
}

// onResource applies fn if gen still owns the session and notifies when fn
// reports a change.
func (c *Controller) onResource(gen uint64, fn func() bool) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	changed := fn()
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// armGraceLocked schedules clearing of lastTrack, cancelling any pending one.
// Must be called with lock held.
func (c *Controller) armGraceLocked() {
	c.cancelGraceLocked()
	token := c.graceToken
	c.graceCancel = startTimer(c.config.GracePeriod, func() {
		c.mu.Lock()
		if c.graceToken != token || c.closed {
			c.mu.Unlock()
			return
		}
		c.graceCancel = nil
		c.lastTrack = nil
		c.mu.Unlock()

		zlog.Debug().Msg("playback: grace period elapsed, last track cleared")
		c.notify()
	})
}

// cancelGraceLocked stops the grace timer and invalidates one already firing.
// Must be called with lock held.
func (c *Controller) cancelGraceLocked() {
	c.graceToken++
	if c.graceCancel != nil {
		c.graceCancel()
		c.graceCancel = nil
	}
}

func (c *Controller) notify() {
	c.bus.NotifyAll()
}

// startTimer runs callback after duration. Returns a cancel function.
func startTimer(duration time.Duration, callback func()) func() {
	t := time.AfterFunc(duration, callback)
	return func() {
		t.Stop()
	}
}
