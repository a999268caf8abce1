package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Output is the process-wide audio device. Implementations create the
// underlying device lazily on first use.
type Output interface {
	// Start begins playing buf and returns immediately.
	Start(buf *Buffer) (Source, error)
	// Suspended reports whether the device is currently suspended.
	Suspended() bool
	Resume() error
	Suspend() error
	Close() error
}

// Source is one buffer bound to the output.
type Source interface {
	// Done is closed when playback finishes on its own.
	Done() <-chan struct{}
	// Stop halts playback. It is safe to call more than once.
	Stop()
}

// OutputKind selects an Output implementation.
type OutputKind string

const (
	OutputAuto OutputKind = "auto"
	OutputOto  OutputKind = "oto"
	OutputMock OutputKind = "mock"
)

// OutputConfig describes the PCM format the output is opened with.
type OutputConfig struct {
	SampleRate int           // 44100 or 48000 Hz
	Channels   int           // 1 = mono, 2 = stereo
	BufferSize time.Duration // device buffer, 0 picks a platform default
}

// DefaultOutputConfig returns the default output format.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		SampleRate: 48000,
		Channels:   2,
	}
}

// Validate checks the output format.
func (c OutputConfig) Validate() error {
	// OTO only supports specific sample rates reliably
	if c.SampleRate != 44100 && c.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", c.Channels)
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative, got %v", c.BufferSize)
	}
	return nil
}

// IsCI detects if we're running in a CI environment
func IsCI() bool {
	ciVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
		"DRONE",
		"TEAMCITY_VERSION",
	}

	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar, "value", val)
			return true
		}
	}
	return false
}

// NewOutput creates the output for kind. OutputAuto uses the real device
// unless running in CI.
func NewOutput(kind OutputKind, config OutputConfig) (Output, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid output config: %w", err)
	}

	switch kind {
	case OutputOto:
		log.Debug("Creating oto audio output")
		return NewOtoOutput(config), nil

	case OutputMock:
		log.Debug("Creating mock audio output")
		return NewMockOutput(), nil

	case OutputAuto, "":
		if IsCI() {
			log.Info("Using mock audio output in CI environment")
			return NewMockOutput(), nil
		}
		return NewOtoOutput(config), nil

	default:
		return nil, fmt.Errorf("unknown audio output %q", kind)
	}
}
