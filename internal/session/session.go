// Package session turns read requests into queued audio: text is chunked,
// each chunk is synthesized in order and handed to the playback pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/chunk"
	"github.com/dgnsrekt/readaloud/internal/credential"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/dustin/go-humanize"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNothingToRead is returned when the text yields no chunks.
	ErrNothingToRead = errors.New("nothing to read")

	// ErrPreempted is returned by a session cancelled by a newer one or by
	// Stop.
	ErrPreempted = audio.ErrPreempted
)

// Pipeline is the part of the audio pipeline a session drives.
type Pipeline interface {
	DecodeAndEnqueue(ctx context.Context, enc audio.Encoded) error
	Stop()
}

// Observer is notified about session progress. Implementations must be safe
// for concurrent use.
type Observer interface {
	SessionStarted(engine synth.Engine, chunks int)
	ChunkSynthesized(engine synth.Engine, size int, elapsed time.Duration)
	SynthesisFailed(engine synth.Engine, err error)
	ChunkSkipped(engine synth.Engine)
	SessionPreempted()
}

// Result describes a session whose chunks were all handed to the pipeline.
type Result struct {
	Success bool
	// Chunks is the number of chunks queued for playback.
	Chunks int
	// Skipped lists the indexes of chunks whose audio could not be decoded.
	Skipped []int
}

// Orchestrator runs read sessions. At most one session is active; starting
// a new one cancels the previous one and stops its playback.
type Orchestrator struct {
	chunker     *chunk.Chunker
	synthesizer synth.Synthesizer
	credentials credential.Store
	pipeline    Pipeline
	engines     synth.EngineConfig
	observer    Observer

	mu     sync.Mutex
	cancel context.CancelFunc
	id     uint64
	issued Ticket
}

// Ticket orders read requests by arrival. Only the most recently issued
// ticket may start a session.
type Ticket uint64

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver installs an observer.
func WithObserver(o Observer) Option {
	return func(orc *Orchestrator) {
		if o != nil {
			orc.observer = o
		}
	}
}

// New creates an orchestrator. credentials should be the store returned by
// credential.Resolve.
func New(engines synth.EngineConfig, chunker *chunk.Chunker, synthesizer synth.Synthesizer,
	credentials credential.Store, pipeline Pipeline, opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		chunker:     chunker,
		synthesizer: synthesizer,
		credentials: credentials,
		pipeline:    pipeline,
		engines:     engines,
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ticket reserves the next session. Callers that receive requests
// concurrently take a ticket in arrival order and pass it to HandleTicket,
// so an older request can never preempt a newer one.
func (o *Orchestrator) Ticket() Ticket {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.issued++
	return o.issued
}

// Handle reads req aloud. It returns once every chunk has been handed to the
// pipeline and does not wait for playback. A synthesis error ends the
// session, leaving already queued audio playing; chunks that fail to decode
// are skipped and reported in Result.Skipped.
func (o *Orchestrator) Handle(ctx context.Context, req synth.ReadRequest) (Result, error) {
	return o.HandleTicket(ctx, o.Ticket(), req)
}

// HandleTicket is Handle for a reserved ticket. It returns ErrPreempted
// without touching playback when a newer ticket was issued or Stop was
// called after t.
func (o *Orchestrator) HandleTicket(ctx context.Context, t Ticket, req synth.ReadRequest) (Result, error) {
	engine, err := synth.ParseEngine(string(req.Engine), o.engines.Default)
	if err != nil {
		return Result{}, err
	}
	req.Engine = engine

	chunks := o.chunker.Split(norm.NFC.String(req.Text))
	if len(chunks) == 0 {
		return Result{}, ErrNothingToRead
	}

	sctx, done, err := o.begin(ctx, t)
	if err != nil {
		return Result{}, err
	}
	defer done()

	log.Debug("Starting session", "engine", engine, "chunks", len(chunks))
	o.observer.SessionStarted(engine, len(chunks))

	key, err := o.credentials.Get(sctx, credential.APIKey)
	if err != nil {
		if cerr := o.cancelled(ctx, sctx); cerr != nil {
			return Result{}, cerr
		}
		if errors.Is(err, credential.ErrNotFound) {
			err = synth.ErrCredentialMissing
		}
		return Result{}, fmt.Errorf("unable to load API key: %w", err)
	}

	result := Result{}
	for i, text := range chunks {
		if cerr := o.cancelled(ctx, sctx); cerr != nil {
			return result, cerr
		}

		payload, err := synth.Build(text, req, o.engines)
		if err != nil {
			return result, err
		}

		start := time.Now()
		encoded, err := o.synthesizer.Synthesize(sctx, payload, key)
		if err != nil {
			if cerr := o.cancelled(ctx, sctx); cerr != nil {
				return result, cerr
			}
			o.observer.SynthesisFailed(engine, err)
			return result, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		o.observer.ChunkSynthesized(engine, len(encoded.Data), time.Since(start))

		log.Debug("Synthesized chunk",
			"chunk", i+1,
			"of", len(chunks),
			"size", humanize.Bytes(uint64(len(encoded.Data))),
			"elapsed", time.Since(start).Round(time.Millisecond))

		err = o.pipeline.DecodeAndEnqueue(sctx, audio.Encoded{
			Data:       encoded.Data,
			Encoding:   encoded.Encoding,
			SampleRate: encoded.SampleRate,
		})
		var decodeErr *audio.DecodeError
		switch {
		case err == nil:
			result.Chunks++
		case errors.As(err, &decodeErr):
			o.observer.ChunkSkipped(engine)
			result.Skipped = append(result.Skipped, i)
		default:
			if cerr := o.cancelled(ctx, sctx); cerr != nil {
				return result, cerr
			}
			if errors.Is(err, audio.ErrPreempted) {
				return result, ErrPreempted
			}
			return result, err
		}
	}

	result.Success = true
	return result, nil
}

// Stop cancels the active session, if any, and silences playback.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	// Requests reserved before the stop must not start afterwards.
	o.issued++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
		o.observer.SessionPreempted()
	}
	o.pipeline.Stop()
}

// begin preempts the active session and registers a new one for t. A stale
// ticket gets ErrPreempted and leaves the active session alone.
func (o *Orchestrator) begin(ctx context.Context, t Ticket) (context.Context, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t != o.issued {
		log.Debug("Dropping stale request", "ticket", t, "latest", o.issued)
		return nil, nil, ErrPreempted
	}

	if o.cancel != nil {
		log.Debug("Preempting active session")
		o.cancel()
		o.observer.SessionPreempted()
	}
	o.pipeline.Stop()

	sctx, cancel := context.WithCancel(ctx)
	o.id++
	id := o.id
	o.cancel = cancel

	return sctx, func() {
		o.mu.Lock()
		if o.id == id {
			o.cancel = nil
		}
		o.mu.Unlock()
		cancel()
	}, nil
}

// cancelled reports why a session context ended: the caller's own context
// error, or ErrPreempted when a newer session or Stop cancelled it.
func (o *Orchestrator) cancelled(parent, sctx context.Context) error {
	if sctx.Err() == nil {
		return nil
	}
	if err := parent.Err(); err != nil {
		return err
	}
	return ErrPreempted
}

type nopObserver struct{}

func (nopObserver) SessionStarted(synth.Engine, int) {}
func (nopObserver) ChunkSynthesized(synth.Engine, int, time.Duration) {}
func (nopObserver) SynthesisFailed(synth.Engine, error) {}
func (nopObserver) ChunkSkipped(synth.Engine) {}
func (nopObserver) SessionPreempted() {}
