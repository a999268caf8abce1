package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrPipelineClosed is returned when audio is handed to a closed pipeline.
	ErrPipelineClosed = errors.New("audio pipeline is closed")

	// ErrPreempted is returned when a buffer was decoded for a session that
	// has been stopped in the meantime.
	ErrPreempted = errors.New("playback was stopped")

	// ErrUnsupportedEncoding is wrapped by DecodeError for encodings that
	// cannot be decoded locally.
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")

	// ErrNoSamples is wrapped by DecodeError when decoding produced no audio.
	ErrNoSamples = errors.New("audio contains no samples")
)

// DecodeError reports encoded audio that could not be turned into PCM.
type DecodeError struct {
	Encoding string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s audio: %v", e.Encoding, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PlaybackStartError reports a buffer whose playback could not be started.
type PlaybackStartError struct {
	Seq int
	Err error
}

func (e *PlaybackStartError) Error() string {
	return fmt.Sprintf("failed to start playback of buffer %d: %v", e.Seq, e.Err)
}

func (e *PlaybackStartError) Unwrap() error {
	return e.Err
}
