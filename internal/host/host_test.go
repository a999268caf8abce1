package host

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/internal/session"
	"github.com/dgnsrekt/readaloud/internal/synth"
)

func frame(t *testing.T, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteMessage(&buf, v); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func rawFrame(body string) []byte {
	b := make([]byte, 4+len(body))
	binary.NativeEndian.PutUint32(b, uint32(len(body)))
	copy(b[4:], body)
	return b
}

func readReplies(t *testing.T, data []byte) []Response {
	t.Helper()
	r := bytes.NewReader(data)
	var out []Response
	for {
		msg, err := ReadMessage(r)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		var resp Response
		if err := json.Unmarshal(msg, &resp); err != nil {
			t.Fatal(err)
		}
		out = append(out, resp)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

// fakeHandler records requests. Like the orchestrator it refuses a ticket
// older than the latest one issued.
type fakeHandler struct {
	mu       sync.Mutex
	requests []synth.ReadRequest
	stops    int
	err      error
	block    bool
	started  chan struct{}
	stopped  chan struct{}
	issued   session.Ticket
	stale    []string
}

func (f *fakeHandler) Ticket() session.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	return f.issued
}

func (f *fakeHandler) HandleTicket(ctx context.Context, t session.Ticket, req synth.ReadRequest) (session.Result, error) {
	f.mu.Lock()
	if t != f.issued {
		f.stale = append(f.stale, req.Text)
		f.mu.Unlock()
		return session.Result{}, session.ErrPreempted
	}
	f.requests = append(f.requests, req)
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block {
		select {
		case <-ctx.Done():
			return session.Result{}, ctx.Err()
		case <-f.stopped:
			return session.Result{}, session.ErrPreempted
		}
	}
	if f.err != nil {
		return session.Result{}, f.err
	}
	return session.Result{Success: true, Chunks: 1}, nil
}

func (f *fakeHandler) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	f.stops++
	if f.stopped != nil && f.stops == 1 {
		close(f.stopped)
	}
}

func TestProtocolRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, Response{Success: true}); err != nil {
		t.Fatal(err)
	}

	raw := buf.Bytes()
	if n := binary.NativeEndian.Uint32(raw); int(n) != len(raw)-4 {
		t.Errorf("length prefix %d, body %d", n, len(raw)-4)
	}

	msg, err := ReadMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != `{"success":true}` {
		t.Errorf("got %s", msg)
	}
}

func TestReadMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"empty stream", nil, io.EOF},
		{"short header", []byte{1, 0}, io.ErrUnexpectedEOF},
		{"short body", rawFrame("{}")[:5], io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMessage(bytes.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReadMessageTooLarge(t *testing.T) {
	body := strings.Repeat("a", MaxMessageSize+1)
	stream := append(rawFrame(body), rawFrame(`{"action":"stop"}`)...)
	r := bytes.NewReader(stream)

	if _, err := ReadMessage(r); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	msg, err := ReadMessage(r)
	if err != nil {
		t.Fatalf("stream should stay readable: %v", err)
	}
	if string(msg) != `{"action":"stop"}` {
		t.Errorf("got %s", msg)
	}
}

func TestServe(t *testing.T) {
	tests := []struct {
		name     string
		input    [][]byte
		handler  *fakeHandler
		want     []Response
		requests int
		stops    int
	}{
		{
			name: "read text",
			input: [][]byte{frame(t, map[string]any{
				"action": "readText", "text": "Hello.", "engine": "gemini", "voice": "Kore", "speakingRate": 1.2,
			})},
			handler:  &fakeHandler{},
			want:     []Response{{Success: true}},
			requests: 1,
		},
		{
			name:    "stop",
			input:   [][]byte{frame(t, map[string]string{"action": "stop"})},
			handler: &fakeHandler{},
			want:    []Response{{Success: true}},
			stops:   1,
		},
		{
			name:    "unknown action",
			input:   [][]byte{frame(t, map[string]string{"action": "dance"})},
			handler: &fakeHandler{},
			want:    []Response{{Error: "Unknown action: dance"}},
		},
		{
			name:    "invalid json",
			input:   [][]byte{rawFrame("{not json")},
			handler: &fakeHandler{},
		},
		{
			name:     "handler error",
			input:    [][]byte{frame(t, map[string]string{"action": "readText", "text": "x"})},
			handler:  &fakeHandler{err: synth.ErrCredentialMissing},
			want:     []Response{{Error: synth.ErrCredentialMissing.Error()}},
			requests: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bytes.NewReader(bytes.Join(tt.input, nil))
			out := &syncBuffer{}

			if err := New(in, out, tt.handler).Serve(context.Background()); err != nil {
				t.Fatal(err)
			}

			replies := readReplies(t, out.Bytes())
			if tt.want == nil {
				if len(replies) != 1 || replies[0].Error == "" || replies[0].Success {
					t.Errorf("expected one error reply, got %+v", replies)
				}
			} else if len(replies) != len(tt.want) {
				t.Fatalf("replies = %+v, want %+v", replies, tt.want)
			} else {
				for i := range replies {
					if replies[i] != tt.want[i] {
						t.Errorf("reply %d = %+v, want %+v", i, replies[i], tt.want[i])
					}
				}
			}

			if len(tt.handler.requests) != tt.requests {
				t.Errorf("handled %d requests, want %d", len(tt.handler.requests), tt.requests)
			}
			if tt.handler.stops != tt.stops {
				t.Errorf("stops = %d, want %d", tt.handler.stops, tt.stops)
			}
		})
	}
}

func TestServeDecodesRequestFields(t *testing.T) {
	h := &fakeHandler{}
	in := bytes.NewReader(frame(t, map[string]any{
		"action":          "readText",
		"text":            "Hi.",
		"engine":          "gemini",
		"voice":           "Puck",
		"languageCode":    "en-us",
		"model":           "gemini-2.5-pro-preview-tts",
		"prompt":          "Excited",
		"speakingRate":    1.5,
		"sampleRateHertz": 24000,
	}))

	if err := New(in, &syncBuffer{}, h).Serve(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := synth.ReadRequest{
		Text:            "Hi.",
		Engine:          synth.EngineGemini,
		Voice:           "Puck",
		LanguageCode:    "en-us",
		Model:           "gemini-2.5-pro-preview-tts",
		Prompt:          "Excited",
		SpeakingRate:    1.5,
		SampleRateHertz: 24000,
	}
	if len(h.requests) != 1 || h.requests[0] != want {
		t.Errorf("requests = %+v, want %+v", h.requests, want)
	}
}

func TestServeStopInterruptsRead(t *testing.T) {
	h := &fakeHandler{block: true, started: make(chan struct{}, 1), stopped: make(chan struct{})}
	pr, pw := io.Pipe()
	out := &syncBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- New(pr, out, h).Serve(context.Background())
	}()

	if _, err := pw.Write(frame(t, map[string]string{"action": "readText", "text": "Long text."})); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.started:
	case <-time.After(time.Second):
		t.Fatal("read request was not dispatched")
	}

	// The stop message is processed while the read is still running.
	if _, err := pw.Write(frame(t, map[string]string{"action": "stop"})); err != nil {
		t.Fatal(err)
	}
	_ = pw.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}

	replies := readReplies(t, out.Bytes())
	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %+v", replies)
	}
	var successes, preempted int
	for _, r := range replies {
		if r.Success {
			successes++
		}
		if r.Error == session.ErrPreempted.Error() {
			preempted++
		}
	}
	if successes != 1 || preempted != 1 {
		t.Errorf("expected one stop reply and one preempted read, got %+v", replies)
	}
}

func TestServeWaitsForReadsAfterEOF(t *testing.T) {
	h := &fakeHandler{}
	in := bytes.NewReader(frame(t, map[string]string{"action": "readText", "text": "Quick."}))
	out := &syncBuffer{}

	if err := New(in, out, h).Serve(context.Background()); err != nil {
		t.Fatal(err)
	}
	if replies := readReplies(t, out.Bytes()); len(replies) != 1 || !replies[0].Success {
		t.Errorf("read reply should be written before Serve returns, got %+v", replies)
	}
}

func TestServeNewestReadWins(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := &fakeHandler{}
		in := bytes.NewReader(bytes.Join([][]byte{
			frame(t, map[string]string{"action": "readText", "text": "first"}),
			frame(t, map[string]string{"action": "readText", "text": "second"}),
		}, nil))
		out := &syncBuffer{}

		if err := New(in, out, h).Serve(context.Background()); err != nil {
			t.Fatal(err)
		}

		// Whichever goroutine runs first, only the second request may read.
		for _, req := range h.requests {
			if req.Text != "second" {
				t.Fatalf("run %d: %q was read after a newer request arrived", i, req.Text)
			}
		}
		if len(h.requests) != 1 {
			t.Fatalf("run %d: expected the second request to be read, got %+v (stale %q)", i, h.requests, h.stale)
		}

		var successes, preempted int
		for _, r := range readReplies(t, out.Bytes()) {
			switch {
			case r.Success:
				successes++
			case r.Error == session.ErrPreempted.Error():
				preempted++
			}
		}
		if successes != 1 || preempted != 1 {
			t.Fatalf("run %d: expected one success and one preempted reply, got %d and %d", i, successes, preempted)
		}
	}
}
