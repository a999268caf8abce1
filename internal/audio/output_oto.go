package audio

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// readyTimeout bounds how long device initialization may take.
const readyTimeout = 5 * time.Second

// pollInterval is how often a playing source checks for completion.
const pollInterval = 10 * time.Millisecond

// OtoOutput plays buffers through an oto context. The context is created on
// the first Start and then kept for the life of the process; oto allows only
// one context per process, so a failed initialization is not retried.
type OtoOutput struct {
	config OutputConfig

	mu        sync.Mutex
	context   *oto.Context
	initErr   error
	suspended bool
}

// NewOtoOutput creates an output without touching the audio device.
func NewOtoOutput(config OutputConfig) *OtoOutput {
	return &OtoOutput{config: config}
}

func (o *OtoOutput) ensureContext() (*oto.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.context != nil || o.initErr != nil {
		return o.context, o.initErr
	}

	options := &oto.NewContextOptions{
		SampleRate:   o.config.SampleRate,
		ChannelCount: o.config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   o.config.BufferSize,
	}

	// Platform-specific buffer size adjustments
	if options.BufferSize == 0 {
		switch runtime.GOOS {
		case "darwin":
			options.BufferSize = 100 * time.Millisecond
		case "windows":
			options.BufferSize = 80 * time.Millisecond
		default:
			options.BufferSize = 50 * time.Millisecond
		}
	}

	log.Debug("Initializing audio output",
		"sample_rate", options.SampleRate,
		"channels", options.ChannelCount,
		"buffer_size", options.BufferSize)

	ctx, ready, err := oto.NewContext(options)
	if err != nil {
		o.initErr = fmt.Errorf("failed to create audio context: %w", err)
		return nil, o.initErr
	}

	select {
	case <-ready:
	case <-time.After(readyTimeout):
		o.initErr = fmt.Errorf("audio context initialization timeout after %v", readyTimeout)
		return nil, o.initErr
	}

	o.context = ctx
	log.Debug("Audio output ready")
	return ctx, nil
}

// Start implements Output.
func (o *OtoOutput) Start(buf *Buffer) (Source, error) {
	if buf.SampleRate != o.config.SampleRate || buf.Channels != o.config.Channels {
		return nil, fmt.Errorf("buffer format %dHz/%dch does not match output %dHz/%dch",
			buf.SampleRate, buf.Channels, o.config.SampleRate, o.config.Channels)
	}

	ctx, err := o.ensureContext()
	if err != nil {
		return nil, err
	}

	// The reader keeps buf.PCM referenced until the player is closed.
	player := ctx.NewPlayer(bytes.NewReader(buf.PCM))
	player.Play()
	if err := player.Err(); err != nil {
		_ = player.Close()
		return nil, err
	}

	src := &otoSource{
		player: player,
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	go src.monitor()
	return src, nil
}

// Suspended implements Output.
func (o *OtoOutput) Suspended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.suspended
}

// Suspend implements Output. Suspending an output that was never used is a
// no-op.
func (o *OtoOutput) Suspend() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.context == nil || o.suspended {
		return nil
	}
	if err := o.context.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend audio context: %w", err)
	}
	o.suspended = true
	return nil
}

// Resume implements Output.
func (o *OtoOutput) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.context == nil || !o.suspended {
		return nil
	}
	if err := o.context.Resume(); err != nil {
		return fmt.Errorf("failed to resume audio context: %w", err)
	}
	o.suspended = false
	return nil
}

// Close suspends the device. oto contexts cannot be destroyed.
func (o *OtoOutput) Close() error {
	return o.Suspend()
}

type otoSource struct {
	player   *oto.Player
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *otoSource) Done() <-chan struct{} {
	return s.done
}

func (s *otoSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// monitor closes done once the player has drained its reader, or releases
// the player when stopped first.
func (s *otoSource) monitor() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	defer func() {
		if err := s.player.Close(); err != nil {
			log.Debug("Failed to close player", "error", err)
		}
	}()

	for {
		select {
		case <-s.stop:
			s.player.Pause()
			return
		case <-ticker.C:
			if !s.player.IsPlaying() {
				close(s.done)
				return
			}
		}
	}
}
