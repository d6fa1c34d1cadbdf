// Package playback provides the process-wide preview player: a state machine
// over a single media resource with an append-only, cross-album play history.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No track loaded (initial, stopped or failed)
	StateLoading              // Resource created, waiting for readiness
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
	StateEnded                // Track completed, resolved immediately to Playing or Idle
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// StopReason records why playback last returned to Idle.
type StopReason string

const (
	StopReasonNone    StopReason = ""
	StopReasonStopped StopReason = "stopped" // explicit Stop
	StopReasonEnded   StopReason = "ended"   // last track completed
	StopReasonError   StopReason = "error"   // resource failed
)
