package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/chunk"
	"github.com/dgnsrekt/readaloud/internal/credential"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/spf13/viper"
)

type fakeStore struct {
	key   string
	calls int
	mu    sync.Mutex
}

func (s *fakeStore) Get(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.key == "" {
		return "", credential.ErrNotFound
	}
	return s.key, nil
}

// fakeSynth returns the chunk text as audio data. failAt makes the given
// call fail; block makes every call wait for release or cancellation.
type fakeSynth struct {
	mu       sync.Mutex
	payloads []synth.Payload
	failAt   int
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeSynth) Synthesize(ctx context.Context, p synth.Payload, credential string) (*synth.Audio, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	n := len(f.payloads)
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if credential == "" {
		return nil, synth.ErrCredentialMissing
	}
	if f.failAt == n {
		return nil, &synth.UpstreamError{Status: 500, Message: "backend error"}
	}
	return &synth.Audio{
		Data:       []byte(p.Input.Text),
		Encoding:   p.AudioConfig.AudioEncoding,
		SampleRate: p.AudioConfig.SampleRateHertz,
	}, nil
}

func (f *fakeSynth) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.payloads {
		out = append(out, p.Input.Text)
	}
	return out
}

// fakePipeline records queued audio. Chunks whose data equals badChunk fail
// to decode.
type fakePipeline struct {
	mu       sync.Mutex
	queued   []audio.Encoded
	badChunk string
	stops    int
}

func (p *fakePipeline) DecodeAndEnqueue(_ context.Context, enc audio.Encoded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if string(enc.Data) == p.badChunk {
		return &audio.DecodeError{Encoding: enc.Encoding, Err: audio.ErrNoSamples}
	}
	p.queued = append(p.queued, enc)
	return nil
}

func (p *fakePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePipeline) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type countingObserver struct {
	mu        sync.Mutex
	started   int
	chunks    int
	failures  int
	skipped   int
	preempted int
}

func (c *countingObserver) SessionStarted(synth.Engine, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *countingObserver) ChunkSynthesized(synth.Engine, int, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks++
}

func (c *countingObserver) SynthesisFailed(synth.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

func (c *countingObserver) ChunkSkipped(synth.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped++
}

func (c *countingObserver) SessionPreempted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preempted++
}

func newTestOrchestrator(s synth.Synthesizer, store credential.Store, p Pipeline, opts ...Option) *Orchestrator {
	return New(synth.DefaultEngineConfig(), chunk.New(chunk.MaxChunkSize), s, store, p, opts...)
}

func TestHandleQueuesChunksInOrder(t *testing.T) {
	s := &fakeSynth{}
	p := &fakePipeline{}
	obs := &countingObserver{}
	o := newTestOrchestrator(s, &fakeStore{key: "k"}, p, WithObserver(obs))

	res, err := o.Handle(context.Background(), synth.ReadRequest{Text: "Hello world. This is a test!"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Chunks != 2 || len(res.Skipped) != 0 {
		t.Errorf("result = %+v", res)
	}

	want := []string{"Hello world.", "This is a test!"}
	for i, enc := range p.queued {
		if string(enc.Data) != want[i] {
			t.Errorf("queued[%d] = %q, want %q", i, enc.Data, want[i])
		}
		if enc.Encoding != "MP3" {
			t.Errorf("chirp3 default encoding = %q, want MP3", enc.Encoding)
		}
	}
	if obs.started != 1 || obs.chunks != 2 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestHandleEngineSelection(t *testing.T) {
	s := &fakeSynth{}
	p := &fakePipeline{}
	o := newTestOrchestrator(s, &fakeStore{key: "k"}, p)

	_, err := o.Handle(context.Background(), synth.ReadRequest{
		Text:   "Read this.",
		Engine: "gemini",
		Voice:  "Puck",
		Prompt: "  whisper  ",
	})
	if err != nil {
		t.Fatal(err)
	}

	got := s.payloads[0]
	if got.Voice.ModelName == "" || got.Voice.Name != "Puck" || got.Input.Prompt != "whisper" {
		t.Errorf("gemini payload = %+v", got)
	}
	if p.queued[0].SampleRate != synth.GeminiSampleRateHertz {
		t.Errorf("sample rate = %d", p.queued[0].SampleRate)
	}

	if _, err := o.Handle(context.Background(), synth.ReadRequest{Text: "x.", Engine: "polly"}); !errors.Is(err, synth.ErrUnknownEngine) {
		t.Errorf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestHandleNothingToRead(t *testing.T) {
	s := &fakeSynth{}
	store := &fakeStore{key: "k"}
	p := &fakePipeline{}
	o := newTestOrchestrator(s, store, p)

	for _, text := range []string{"", "   \n\t "} {
		if _, err := o.Handle(context.Background(), synth.ReadRequest{Text: text}); !errors.Is(err, ErrNothingToRead) {
			t.Errorf("Handle(%q): expected ErrNothingToRead, got %v", text, err)
		}
	}
	if store.calls != 0 || len(s.payloads) != 0 {
		t.Error("no credential lookup or synthesis expected for empty text")
	}
	if p.stopCount() != 0 {
		t.Error("empty requests should not stop playback")
	}
}

func TestHandleMissingCredential(t *testing.T) {
	s := &fakeSynth{}
	o := newTestOrchestrator(s, &fakeStore{}, &fakePipeline{})

	_, err := o.Handle(context.Background(), synth.ReadRequest{Text: "One. Two. Three."})
	if !errors.Is(err, synth.ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialMissing, got %v", err)
	}
	if len(s.payloads) != 0 {
		t.Errorf("no synthesis call expected, got %d", len(s.payloads))
	}
}

func TestHandleResolvesCredentialOnce(t *testing.T) {
	store := &fakeStore{key: "k"}
	o := newTestOrchestrator(&fakeSynth{}, store, &fakePipeline{})

	if _, err := o.Handle(context.Background(), synth.ReadRequest{Text: "One. Two. Three."}); err != nil {
		t.Fatal(err)
	}
	if store.calls != 1 {
		t.Errorf("credential looked up %d times, want 1", store.calls)
	}
}

func TestHandleSynthesisErrorAborts(t *testing.T) {
	s := &fakeSynth{failAt: 2}
	p := &fakePipeline{}
	obs := &countingObserver{}
	o := newTestOrchestrator(s, &fakeStore{key: "k"}, p, WithObserver(obs))

	res, err := o.Handle(context.Background(), synth.ReadRequest{Text: "One. Two. Three."})
	var upstream *synth.UpstreamError
	if !errors.As(err, &upstream) || upstream.Status != 500 {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if res.Success {
		t.Error("result should not be successful")
	}
	if len(p.queued) != 1 || string(p.queued[0].Data) != "One." {
		t.Errorf("first chunk should stay queued, got %d", len(p.queued))
	}
	if len(s.payloads) != 2 {
		t.Errorf("synthesis should stop after the failure, got %d calls", len(s.payloads))
	}
	if p.stopCount() != 1 {
		t.Errorf("only the session start should stop playback, got %d", p.stopCount())
	}
	if obs.failures != 1 {
		t.Errorf("observer failures = %d", obs.failures)
	}
}

func TestHandleDecodeErrorSkips(t *testing.T) {
	p := &fakePipeline{badChunk: "Two."}
	obs := &countingObserver{}
	o := newTestOrchestrator(&fakeSynth{}, &fakeStore{key: "k"}, p, WithObserver(obs))

	res, err := o.Handle(context.Background(), synth.ReadRequest{Text: "One. Two. Three."})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Chunks != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != 1 {
		t.Errorf("skipped = %v, want [1]", res.Skipped)
	}
	if obs.skipped != 1 {
		t.Errorf("observer skipped = %d", obs.skipped)
	}
}

func TestHandlePreemption(t *testing.T) {
	first := &fakeSynth{block: make(chan struct{}), started: make(chan struct{}, 1)}
	p := &fakePipeline{}
	obs := &countingObserver{}
	o := newTestOrchestrator(first, &fakeStore{key: "k"}, p, WithObserver(obs))

	errc := make(chan error, 1)
	go func() {
		_, err := o.Handle(context.Background(), synth.ReadRequest{Text: "A long article. With sentences."})
		errc <- err
	}()

	select {
	case <-first.started:
	case <-time.After(time.Second):
		t.Fatal("first session never started synthesizing")
	}

	// The second session uses a synthesizer that does not block.
	o.synthesizer = &fakeSynth{}
	res, err := o.Handle(context.Background(), synth.ReadRequest{Text: "Breaking news."})
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks != 1 {
		t.Errorf("second session result = %+v", res)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrPreempted) {
			t.Errorf("first session: expected ErrPreempted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first session was not cancelled")
	}

	if p.stopCount() != 2 {
		t.Errorf("each session start should stop playback, got %d stops", p.stopCount())
	}
	if obs.preempted != 1 {
		t.Errorf("observer preempted = %d", obs.preempted)
	}
}

func TestStop(t *testing.T) {
	s := &fakeSynth{block: make(chan struct{}), started: make(chan struct{}, 1)}
	p := &fakePipeline{}
	o := newTestOrchestrator(s, &fakeStore{key: "k"}, p)

	errc := make(chan error, 1)
	go func() {
		_, err := o.Handle(context.Background(), synth.ReadRequest{Text: "Stop me. If you can."})
		errc <- err
	}()
	<-s.started

	o.Stop()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrPreempted) {
			t.Errorf("expected ErrPreempted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("session was not stopped")
	}
	if len(p.queued) != 0 {
		t.Errorf("nothing should be queued, got %d", len(p.queued))
	}

	// Stop with nothing running only silences playback.
	o.Stop()
	if p.stopCount() != 3 {
		t.Errorf("stop count = %d, want 3", p.stopCount())
	}
}

func TestHandleCallerCancel(t *testing.T) {
	s := &fakeSynth{block: make(chan struct{}), started: make(chan struct{}, 1)}
	o := newTestOrchestrator(s, &fakeStore{key: "k"}, &fakePipeline{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := o.Handle(ctx, synth.ReadRequest{Text: "Cancel me."})
		errc <- err
	}()
	<-s.started
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestHandleNormalizesText(t *testing.T) {
	s := &fakeSynth{}
	o := newTestOrchestrator(s, &fakeStore{key: "k"}, &fakePipeline{})

	// "e" followed by a combining acute accent.
	if _, err := o.Handle(context.Background(), synth.ReadRequest{Text: "Cafe\u0301."}); err != nil {
		t.Fatal(err)
	}
	if got := s.texts()[0]; got != "Caf\u00e9." {
		t.Errorf("text = %q, want NFC form", got)
	}
}

func TestHandleMissingCredentialInConfig(t *testing.T) {
	store := credential.NewConfigStore(viper.New())
	s := &fakeSynth{}
	o := newTestOrchestrator(s, store, &fakePipeline{})

	_, err := o.Handle(context.Background(), synth.ReadRequest{Text: "Hello."})
	if !errors.Is(err, synth.ErrCredentialMissing) {
		t.Fatalf("expected ErrCredentialMissing, got %v", err)
	}
	if len(s.texts()) != 0 {
		t.Error("no synthesis call expected without a key")
	}
}

func TestHandleTicketOrder(t *testing.T) {
	s := &fakeSynth{}
	p := &fakePipeline{}
	o := newTestOrchestrator(s, &fakeStore{key: "k"}, p)

	older := o.Ticket()
	newer := o.Ticket()

	// The newer request runs first; the older one arrives late.
	if _, err := o.HandleTicket(context.Background(), newer, synth.ReadRequest{Text: "Second."}); err != nil {
		t.Fatal(err)
	}
	stops := p.stopCount()

	_, err := o.HandleTicket(context.Background(), older, synth.ReadRequest{Text: "First."})
	if !errors.Is(err, ErrPreempted) {
		t.Fatalf("expected ErrPreempted for the older ticket, got %v", err)
	}
	if got := s.texts(); len(got) != 1 || got[0] != "Second." {
		t.Errorf("synthesized %q, want only the newer text", got)
	}
	if p.stopCount() != stops {
		t.Error("a stale ticket must not stop playback")
	}
}

func TestStopInvalidatesTickets(t *testing.T) {
	s := &fakeSynth{}
	o := newTestOrchestrator(s, &fakeStore{key: "k"}, &fakePipeline{})

	ticket := o.Ticket()
	o.Stop()

	if _, err := o.HandleTicket(context.Background(), ticket, synth.ReadRequest{Text: "Too late."}); !errors.Is(err, ErrPreempted) {
		t.Fatalf("expected ErrPreempted, got %v", err)
	}
	if len(s.texts()) != 0 {
		t.Error("a request reserved before Stop must not be read")
	}

	// New requests still work.
	if _, err := o.Handle(context.Background(), synth.ReadRequest{Text: "Fresh."}); err != nil {
		t.Fatal(err)
	}
}
