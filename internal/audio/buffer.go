package audio

import (
	"fmt"
	"time"
)

// Encoded is encoded audio as returned by the synthesis API.
type Encoded struct {
	Data []byte
	// Encoding is the API encoding name: MP3, LINEAR16, PCM...
	Encoding string
	// SampleRate is the requested rate; only needed for headerless PCM.
	SampleRate int
}

// Buffer is decoded, ready-to-play audio: interleaved signed 16-bit
// little-endian PCM.
type Buffer struct {
	Seq        int
	PCM        []byte
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.PCM) / (2 * b.Channels)
}

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer#%d(%s, %dHz, %dch)", b.Seq, b.Duration.Round(time.Millisecond), b.SampleRate, b.Channels)
}

// durationOf returns the playing time of frames at sampleRate.
func durationOf(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
