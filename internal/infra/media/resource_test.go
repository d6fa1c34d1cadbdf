package media

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/crate/internal/app/playback"
)

type recorder struct {
	mu       sync.Mutex
	events   []string
	duration time.Duration
	progress time.Duration
	err      error
	done     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) callbacks() playback.Callbacks {
	return playback.Callbacks{
		OnReady: func() { r.add("ready") },
		OnPlay:  func() { r.add("play") },
		OnPause: func() { r.add("pause") },
		OnProgress: func(d time.Duration) {
			r.mu.Lock()
			r.progress = d
			r.mu.Unlock()
		},
		OnDuration: func(d time.Duration) {
			r.mu.Lock()
			r.duration = d
			r.mu.Unlock()
		},
		OnEnded: func() {
			r.add("ended")
			close(r.done)
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			r.add("error")
			close(r.done)
		},
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func waitDone(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(3 * time.Second):
		t.Fatalf("resource did not finish, events=%v", r.snapshot())
	}
}

func TestResource_PlaysToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodHead, req.Method)
		w.Header().Set(DurationHeader, "0.08")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	factory := NewFactory(Config{TickInterval: 10 * time.Millisecond, HTTPClient: server.Client()})
	rec := newRecorder()

	res, err := factory.Open(server.URL+"/preview.mp3", rec.callbacks())
	require.NoError(t, err)
	require.NoError(t, res.Play())

	waitDone(t, rec)
	res.Release()

	assert.Equal(t, []string{"ready", "play", "ended"}, rec.snapshot())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 80*time.Millisecond, rec.duration)
	assert.Equal(t, 80*time.Millisecond, rec.progress)
}

func TestResource_DefaultPreviewLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	factory := NewFactory(Config{PreviewLength: 50 * time.Millisecond, TickInterval: 10 * time.Millisecond})
	rec := newRecorder()

	res, err := factory.Open(server.URL, rec.callbacks())
	require.NoError(t, err)
	require.NoError(t, res.Play())

	waitDone(t, rec)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 50*time.Millisecond, rec.duration)
}

func TestResource_ProbeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	factory := NewFactory(Config{})
	rec := newRecorder()

	_, err := factory.Open(server.URL+"/missing.mp3", rec.callbacks())
	require.NoError(t, err, "probe failures are reported asynchronously")

	waitDone(t, rec)
	assert.Equal(t, []string{"error"}, rec.snapshot())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Contains(t, rec.err.Error(), "404")
}

func TestResource_PauseAndRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	factory := NewFactory(Config{PreviewLength: time.Minute, TickInterval: 5 * time.Millisecond})
	rec := newRecorder()

	res, err := factory.Open(server.URL, rec.callbacks())
	require.NoError(t, err)
	require.NoError(t, res.Play())

	require.Eventually(t, func() bool {
		events := rec.snapshot()
		return len(events) >= 2 && events[1] == "play"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, res.Pause())
	require.Eventually(t, func() bool {
		events := rec.snapshot()
		return events[len(events)-1] == "pause"
	}, 2*time.Second, 5*time.Millisecond)

	res.Release()
	assert.ErrorIs(t, res.Play(), ErrReleased)
	assert.ErrorIs(t, res.Pause(), ErrReleased)
}

func TestFactory_OpenRejectsLocators(t *testing.T) {
	factory := NewFactory(Config{})

	_, err := factory.Open("ftp://example.com/a.mp3", playback.Callbacks{})
	assert.Error(t, err)

	_, err = factory.Open("://bad", playback.Callbacks{})
	assert.Error(t, err)
}
