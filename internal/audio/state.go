package audio

// State is the observable state of the pipeline.
type State int

const (
	// StateIdle means nothing is decoding, queued or playing.
	StateIdle State = iota
	// StateDecoding means a chunk is being decoded and nothing is queued or playing.
	StateDecoding
	// StateQueued means buffers are waiting but no playback has started yet.
	StateQueued
	// StatePlaying means a buffer is playing and more are queued.
	StatePlaying
	// StateDraining means the last queued buffer is playing.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDecoding:
		return "decoding"
	case StateQueued:
		return "queued"
	case StatePlaying:
		return "playing"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}
