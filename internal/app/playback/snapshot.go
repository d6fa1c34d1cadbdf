package playback

import (
	"time"

	"github.com/osa030/crate/internal/domain/track"
)

// Snapshot is a deep copy of the playback session.
type Snapshot struct {
	State                  State
	IsPlaying              bool
	CurrentTrack           *track.Track
	CurrentTime            time.Duration
	Duration               time.Duration
	PlayHistory            []track.Track
	CurrentTrackIndex      int
	CurrentAlbumTracks     []track.Track
	CurrentAlbumStartIndex int
	LastTrack              *track.Track
	StopReason             StopReason
	LastError              string
	HasResource            bool
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		State:                  c.state,
		IsPlaying:              c.state == StatePlaying,
		CurrentTrack:           copyTrack(c.current),
		CurrentTime:            c.currentTime,
		Duration:               c.duration,
		PlayHistory:            copyTracks(c.history),
		CurrentTrackIndex:      c.index,
		CurrentAlbumTracks:     copyTracks(c.album),
		CurrentAlbumStartIndex: c.albumStart,
		LastTrack:              copyTrack(c.lastTrack),
		StopReason:             c.stopReason,
		LastError:              c.lastError,
		HasResource:            c.resource != nil,
	}
}

func copyTrack(t *track.Track) *track.Track {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func copyTracks(ts []*track.Track) []track.Track {
	out := make([]track.Track, len(ts))
	for i, t := range ts {
		out[i] = *t
	}
	return out
}
