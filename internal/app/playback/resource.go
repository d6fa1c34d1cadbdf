package playback

import "time"

// Callbacks are the resource-level signals the controller listens to.
//
// Implementations must invoke callbacks from their own goroutines, never from
// inside Open, Play, Pause, Rewind or Release.
type Callbacks struct {
	OnReady    func()
	OnPlay     func()
	OnPause    func()
	OnProgress func(position time.Duration)
	OnDuration func(duration time.Duration)
	OnEnded    func()
	OnError    func(err error)
}

// Resource is a single live media element bound to one audio locator.
type Resource interface {
	Play() error
	Pause() error
	Rewind()
	Release()
}

// ResourceFactory creates media resources.
type ResourceFactory interface {
	Open(locator string, cb Callbacks) (Resource, error)
}
