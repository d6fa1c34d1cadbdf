package bus

import (
	"context"
	"time"
)

// DefaultPollInterval is the tick used by Poll when interval is not positive.
const DefaultPollInterval = 250 * time.Millisecond

// Poll calls fn every interval until ctx is done. Elapsed playback time is
// sampled this way; it is not broadcast through NotifyAll.
func Poll(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
