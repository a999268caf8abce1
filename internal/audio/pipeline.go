package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dustin/go-humanize"
)

// DefaultWatchdogSlack is added to a buffer's duration to get its watchdog
// timeout.
const DefaultWatchdogSlack = time.Second

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// QueueSize bounds the number of decoded buffers held at once
	QueueSize int

	// WatchdogSlack is added to each buffer's duration - defaults to 1s
	WatchdogSlack time.Duration

	// SuspendWhenIdle suspends the output whenever the queue runs dry
	SuspendWhenIdle bool
}

// Hooks are optional callbacks for observing playback. They are called from
// the driver goroutine and must not block.
type Hooks struct {
	OnStart       func(buf *Buffer)
	OnFinish      func(buf *Buffer, forced bool)
	OnStartError  func(err *PlaybackStartError)
	OnDecodeError func(err *DecodeError)
	OnIdle        func()
}

// Pipeline decodes encoded chunks, queues them and plays them back to back.
// There is one pipeline per process; at most one driver goroutine plays from
// its queue at any time.
type Pipeline struct {
	output  Output
	decoder Decoder
	queue   *queue.Queue[*Buffer]
	config  PipelineConfig
	hooks   Hooks

	mu         sync.Mutex
	generation uint64
	driving    bool
	decoding   int
	current    *Buffer
	source     Source
	seq        int
	stop       chan struct{}
	idle       chan struct{}
	closed     bool
}

// NewPipeline creates a pipeline playing through output.
func NewPipeline(output Output, decoder Decoder, config PipelineConfig, hooks Hooks) *Pipeline {
	if config.WatchdogSlack <= 0 {
		config.WatchdogSlack = DefaultWatchdogSlack
	}

	idle := make(chan struct{})
	close(idle)

	return &Pipeline{
		output:  output,
		decoder: decoder,
		queue:   queue.New[*Buffer](config.QueueSize),
		config:  config,
		hooks:   hooks,
		stop:    make(chan struct{}),
		idle:    idle,
	}
}

// DecodeAndEnqueue decodes enc and appends it to the playback queue, starting
// the driver if none is active. A *DecodeError leaves already queued audio
// untouched. If Stop is called while the chunk is being decoded, the chunk
// is dropped and ErrPreempted returned.
func (p *Pipeline) DecodeAndEnqueue(ctx context.Context, enc Encoded) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPipelineClosed
	}
	gen := p.generation
	p.decoding++
	p.mu.Unlock()

	buf, err := p.decoder.Decode(enc)

	p.mu.Lock()
	p.decoding--
	p.mu.Unlock()

	if err != nil {
		log.Warn("Skipping chunk that failed to decode", "encoding", enc.Encoding, "error", err)
		var de *DecodeError
		if errors.As(err, &de) && p.hooks.OnDecodeError != nil {
			p.hooks.OnDecodeError(de)
		}
		return err
	}

	// Block for space without holding the lock; the driver needs it to
	// dequeue.
	if err := p.queue.WaitForSpace(ctx); err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			return ErrPipelineClosed
		}
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	if p.generation != gen {
		return ErrPreempted
	}

	p.seq++
	buf.Seq = p.seq
	if err := p.queue.TryEnqueue(buf); err != nil {
		return err
	}

	log.Debug("Queued audio",
		"seq", buf.Seq,
		"duration", buf.Duration.Round(time.Millisecond),
		"size", humanize.Bytes(uint64(len(buf.PCM))),
		"queued", p.queue.Size())

	p.ensureDriverLocked()
	return nil
}

// ensureDriverLocked starts the driver unless one is already active.
// p.mu must be held.
func (p *Pipeline) ensureDriverLocked() {
	if p.driving || p.closed {
		return
	}
	p.driving = true
	p.idle = make(chan struct{})
	go p.drive(p.generation, p.stop)
}

// drive plays queued buffers until the queue is empty or the pipeline is
// stopped.
func (p *Pipeline) drive(gen uint64, stop <-chan struct{}) {
	for {
		buf, ok := p.next(gen)
		if !ok {
			return
		}
		p.play(gen, buf, stop)
	}
}

// next pops the head buffer. When the queue is empty the driver retires and
// the pipeline becomes idle; OnIdle runs after p.mu is released.
func (p *Pipeline) next(gen uint64) (*Buffer, bool) {
	p.mu.Lock()

	// Stop already retired this driver.
	if p.generation != gen {
		p.mu.Unlock()
		return nil, false
	}

	p.current = nil
	if buf, ok := p.queue.TryDequeue(); ok {
		p.current = buf
		p.mu.Unlock()
		return buf, true
	}

	p.driving = false
	// Suspending stays under the lock so a driver started by the next
	// enqueue always sees the suspended state and resumes the output.
	if p.config.SuspendWhenIdle {
		if err := p.output.Suspend(); err != nil {
			log.Debug("Failed to suspend idle output", "error", err)
		}
	}
	close(p.idle)
	onIdle := p.hooks.OnIdle
	p.mu.Unlock()

	log.Debug("Playback queue drained")
	if onIdle != nil {
		onIdle()
	}
	return nil, false
}

// play plays one buffer. It returns when the buffer completes, when its
// watchdog fires, or when the pipeline is stopped; whichever happens first
// wins and the others are ignored.
func (p *Pipeline) play(gen uint64, buf *Buffer, stop <-chan struct{}) {
	if p.output.Suspended() {
		if err := p.output.Resume(); err != nil {
			log.Warn("Failed to resume audio output", "error", err)
		}
	}

	src, err := p.output.Start(buf)
	if err != nil {
		startErr := &PlaybackStartError{Seq: buf.Seq, Err: err}
		log.Error("Skipping buffer that failed to start", "seq", buf.Seq, "error", err)
		if p.hooks.OnStartError != nil {
			p.hooks.OnStartError(startErr)
		}
		return
	}

	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		src.Stop()
		return
	}
	p.source = src
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.source == src {
			p.source = nil
		}
		p.mu.Unlock()
	}()

	log.Debug("Playing audio", "seq", buf.Seq, "duration", buf.Duration.Round(time.Millisecond))
	if p.hooks.OnStart != nil {
		p.hooks.OnStart(buf)
	}

	watchdog := time.NewTimer(buf.Duration + p.config.WatchdogSlack)
	defer watchdog.Stop()

	select {
	case <-src.Done():
		if p.hooks.OnFinish != nil {
			p.hooks.OnFinish(buf, false)
		}

	case <-watchdog.C:
		log.Warn("Playback did not complete in time, advancing",
			"seq", buf.Seq,
			"timeout", buf.Duration+p.config.WatchdogSlack)
		src.Stop()
		if p.hooks.OnFinish != nil {
			p.hooks.OnFinish(buf, true)
		}

	case <-stop:
		log.Debug("Playback stopped", "seq", buf.Seq, "generation", gen)
	}
}

// Stop stops the current buffer and drops everything queued. Chunks still
// being decoded for the stopped session are discarded.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Pipeline) stopLocked() {
	p.generation++
	dropped := p.queue.Clear()

	if p.source != nil {
		p.source.Stop()
		p.source = nil
	}
	close(p.stop)
	p.stop = make(chan struct{})

	if p.driving {
		p.driving = false
		close(p.idle)
	}
	p.current = nil

	if dropped > 0 {
		log.Debug("Dropped queued audio", "buffers", dropped)
	}
}

// Wait blocks until the pipeline is idle or ctx ends.
func (p *Pipeline) Wait(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports what the pipeline is doing.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	queued := p.queue.Size()
	switch {
	case p.current != nil && queued > 0:
		return StatePlaying
	case p.current != nil:
		return StateDraining
	case p.decoding > 0:
		return StateDecoding
	case queued > 0:
		return StateQueued
	default:
		return StateIdle
	}
}

// Stats returns the playback queue statistics.
func (p *Pipeline) Stats() queue.Stats {
	return p.queue.GetStats()
}

// Close stops playback and releases the output.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.stopLocked()
	p.closed = true
	p.mu.Unlock()

	_ = p.queue.Close()
	return p.output.Close()
}
