package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// resampleQuality is the beep resampler quality (1-64).
const resampleQuality = 4

// Decoder turns encoded audio into a playable Buffer.
type Decoder interface {
	Decode(enc Encoded) (*Buffer, error)
}

// BeepDecoder decodes MP3, WAV-wrapped LINEAR16 and raw 16-bit PCM with beep
// and resamples the result to the output format.
type BeepDecoder struct {
	sampleRate beep.SampleRate
	channels   int
}

// NewBeepDecoder creates a decoder producing PCM at sampleRate with the given
// channel count (1 or 2).
func NewBeepDecoder(sampleRate, channels int) *BeepDecoder {
	if channels != 1 {
		channels = 2
	}
	return &BeepDecoder{
		sampleRate: beep.SampleRate(sampleRate),
		channels:   channels,
	}
}

// Decode implements Decoder.
func (d *BeepDecoder) Decode(enc Encoded) (*Buffer, error) {
	encoding := strings.ToUpper(strings.TrimSpace(enc.Encoding))
	if len(enc.Data) == 0 {
		return nil, &DecodeError{Encoding: encoding, Err: ErrNoSamples}
	}

	streamer, format, closer, err := d.open(encoding, enc)
	if err != nil {
		return nil, &DecodeError{Encoding: encoding, Err: err}
	}
	if closer != nil {
		defer closer.Close() //nolint:errcheck
	}

	if format.SampleRate != d.sampleRate {
		streamer = beep.Resample(resampleQuality, format.SampleRate, d.sampleRate, streamer)
	}

	pcm, frames := render(streamer, d.channels)
	if err := streamer.Err(); err != nil {
		return nil, &DecodeError{Encoding: encoding, Err: err}
	}
	if frames == 0 {
		return nil, &DecodeError{Encoding: encoding, Err: ErrNoSamples}
	}

	return &Buffer{
		PCM:        pcm,
		SampleRate: int(d.sampleRate),
		Channels:   d.channels,
		Duration:   durationOf(frames, int(d.sampleRate)),
	}, nil
}

func (d *BeepDecoder) open(encoding string, enc Encoded) (beep.Streamer, beep.Format, io.Closer, error) {
	switch encoding {
	case "MP3":
		s, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(enc.Data)))
		if err != nil {
			return nil, beep.Format{}, nil, err
		}
		return s, format, s, nil

	case "LINEAR16", "WAV", "PCM":
		// LINEAR16 responses carry a WAV header; PCM responses do not.
		if isWAV(enc.Data) {
			s, format, err := wav.Decode(bytes.NewReader(enc.Data))
			if err != nil {
				return nil, beep.Format{}, nil, err
			}
			return s, format, s, nil
		}
		if enc.SampleRate <= 0 {
			return nil, beep.Format{}, nil, fmt.Errorf("headerless PCM needs a sample rate")
		}
		format := beep.Format{SampleRate: beep.SampleRate(enc.SampleRate), NumChannels: 1, Precision: 2}
		return &pcmStreamer{data: enc.Data}, format, nil, nil

	default:
		return nil, beep.Format{}, nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// render drains a streamer into interleaved 16-bit little-endian PCM.
func render(s beep.Streamer, channels int) ([]byte, int) {
	var (
		out    []byte
		frames int
	)
	samples := make([][2]float64, 1024)
	for {
		n, ok := s.Stream(samples)
		for _, sample := range samples[:n] {
			if channels == 1 {
				out = binary.LittleEndian.AppendUint16(out, uint16(toInt16((sample[0]+sample[1])/2)))
			} else {
				out = binary.LittleEndian.AppendUint16(out, uint16(toInt16(sample[0])))
				out = binary.LittleEndian.AppendUint16(out, uint16(toInt16(sample[1])))
			}
		}
		frames += n
		if !ok {
			return out, frames
		}
	}
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(v * math.MaxInt16)
}

// pcmStreamer streams headerless mono signed 16-bit little-endian PCM.
type pcmStreamer struct {
	data []byte
	pos  int
}

func (p *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) && p.pos+1 < len(p.data) {
		v := float64(int16(binary.LittleEndian.Uint16(p.data[p.pos:]))) / 32768
		samples[n] = [2]float64{v, v}
		p.pos += 2
		n++
	}
	return n, n > 0
}

func (p *pcmStreamer) Err() error {
	return nil
}
