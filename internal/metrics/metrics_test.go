package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserver(t *testing.T) {
	m := New()

	m.SessionStarted(synth.EngineGemini, 3)
	m.ChunkSynthesized(synth.EngineGemini, 1024, 300*time.Millisecond)
	m.ChunkSynthesized(synth.EngineGemini, 1024, 200*time.Millisecond)
	m.ChunkSkipped(synth.EngineGemini)
	m.SynthesisFailed(synth.EngineGemini, &synth.UpstreamError{Status: 429, Message: "slow down"})
	m.SessionPreempted()

	if got := testutil.ToFloat64(m.sessions.WithLabelValues("gemini")); got != 1 {
		t.Errorf("sessions = %v", got)
	}
	if got := testutil.ToFloat64(m.chunks.WithLabelValues("gemini")); got != 2 {
		t.Errorf("chunks = %v", got)
	}
	if got := testutil.ToFloat64(m.audioBytes.WithLabelValues("gemini")); got != 2048 {
		t.Errorf("audio bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.synthFailures.WithLabelValues("gemini", "429")); got != 1 {
		t.Errorf("failures = %v", got)
	}
	if got := testutil.ToFloat64(m.skipped.WithLabelValues("gemini")); got != 1 {
		t.Errorf("skipped = %v", got)
	}
	if got := testutil.ToFloat64(m.preemptions); got != 1 {
		t.Errorf("preemptions = %v", got)
	}
}

func TestHooks(t *testing.T) {
	m := New()

	var finished int
	hooks := m.Hooks(audio.Hooks{OnFinish: func(*audio.Buffer, bool) { finished++ }})

	buf := &audio.Buffer{Seq: 1, Duration: 2 * time.Second}
	hooks.OnStart(buf)
	hooks.OnFinish(buf, false)
	hooks.OnFinish(buf, true)
	hooks.OnStartError(&audio.PlaybackStartError{Seq: 2, Err: errors.New("device gone")})
	hooks.OnDecodeError(&audio.DecodeError{Encoding: "MP3", Err: audio.ErrNoSamples})

	if finished != 2 {
		t.Errorf("wrapped OnFinish called %d times, want 2", finished)
	}
	if got := testutil.ToFloat64(m.playbacks); got != 1 {
		t.Errorf("playbacks = %v", got)
	}
	if got := testutil.ToFloat64(m.playedSeconds); got != 2 {
		t.Errorf("played seconds = %v", got)
	}
	if got := testutil.ToFloat64(m.watchdogFires); got != 1 {
		t.Errorf("watchdog fires = %v", got)
	}
	if got := testutil.ToFloat64(m.startFailures); got != 1 {
		t.Errorf("start failures = %v", got)
	}
	if got := testutil.ToFloat64(m.decodeFailures); got != 1 {
		t.Errorf("decode failures = %v", got)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&synth.UpstreamError{Status: 503}, "503"},
		{synth.ErrCredentialMissing, "credential"},
		{synth.ErrEmptyResponse, "empty"},
		{errors.New("dns"), "other"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.err); got != tt.want {
			t.Errorf("statusLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestServerHandler(t *testing.T) {
	m := New()
	m.SessionStarted(synth.EngineChirp3, 1)

	srv := httptest.NewServer(NewServer(":0", m).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `readaloud_sessions_total{engine="chirp3"} 1`) {
		t.Errorf("metrics output missing session counter:\n%s", body)
	}

	health, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer health.Body.Close() //nolint:errcheck
	if health.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", health.StatusCode)
	}
}
