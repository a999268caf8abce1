// Package metrics exposes read-aloud activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "readaloud"

// Metrics holds the collectors. It implements session.Observer and provides
// hooks for the audio pipeline.
type Metrics struct {
	registry *prometheus.Registry

	sessions       *prometheus.CounterVec
	preemptions    prometheus.Counter
	chunks         *prometheus.CounterVec
	synthFailures  *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	synthLatency   *prometheus.HistogramVec
	audioBytes     *prometheus.CounterVec
	playbacks      prometheus.Counter
	watchdogFires  prometheus.Counter
	startFailures  prometheus.Counter
	decodeFailures prometheus.Counter
	playedSeconds  prometheus.Counter
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Read sessions started, by engine.",
		}, []string{"engine"}),
		preemptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_preempted_total",
			Help:      "Sessions cancelled by a newer request or a stop.",
		}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synth",
			Name:      "chunks_total",
			Help:      "Chunks synthesized, by engine.",
		}, []string{"engine"}),
		synthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synth",
			Name:      "failures_total",
			Help:      "Synthesis calls that failed, by engine and HTTP status.",
		}, []string{"engine", "status"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synth",
			Name:      "chunks_skipped_total",
			Help:      "Chunks skipped because their audio could not be decoded.",
		}, []string{"engine"}),
		synthLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "synth",
			Name:      "duration_seconds",
			Help:      "Time spent synthesizing one chunk.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 8),
		}, []string{"engine"}),
		audioBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synth",
			Name:      "audio_bytes_total",
			Help:      "Encoded audio bytes received.",
		}, []string{"engine"}),
		playbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "buffers_played_total",
			Help:      "Audio buffers started.",
		}),
		watchdogFires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "watchdog_fired_total",
			Help:      "Buffers advanced by the playback watchdog.",
		}),
		startFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "start_failures_total",
			Help:      "Buffers whose playback could not be started.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "decode_failures_total",
			Help:      "Encoded chunks that could not be decoded.",
		}),
		playedSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "played_seconds_total",
			Help:      "Seconds of audio played to completion.",
		}),
	}

	m.registry.MustRegister(
		m.sessions, m.preemptions, m.chunks, m.synthFailures, m.skipped,
		m.synthLatency, m.audioBytes, m.playbacks, m.watchdogFires,
		m.startFailures, m.decodeFailures, m.playedSeconds,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionStarted(engine synth.Engine, _ int) {
	m.sessions.WithLabelValues(string(engine)).Inc()
}

func (m *Metrics) ChunkSynthesized(engine synth.Engine, size int, elapsed time.Duration) {
	m.chunks.WithLabelValues(string(engine)).Inc()
	m.audioBytes.WithLabelValues(string(engine)).Add(float64(size))
	m.synthLatency.WithLabelValues(string(engine)).Observe(elapsed.Seconds())
}

func (m *Metrics) SynthesisFailed(engine synth.Engine, err error) {
	m.synthFailures.WithLabelValues(string(engine), statusLabel(err)).Inc()
}

func (m *Metrics) ChunkSkipped(engine synth.Engine) {
	m.skipped.WithLabelValues(string(engine)).Inc()
}

func (m *Metrics) SessionPreempted() {
	m.preemptions.Inc()
}

// Hooks returns pipeline hooks recording playback metrics. next, if any of
// its fields are set, is called after the metric is recorded.
func (m *Metrics) Hooks(next audio.Hooks) audio.Hooks {
	return audio.Hooks{
		OnStart: func(buf *audio.Buffer) {
			m.playbacks.Inc()
			if next.OnStart != nil {
				next.OnStart(buf)
			}
		},
		OnFinish: func(buf *audio.Buffer, forced bool) {
			if forced {
				m.watchdogFires.Inc()
			} else {
				m.playedSeconds.Add(buf.Duration.Seconds())
			}
			if next.OnFinish != nil {
				next.OnFinish(buf, forced)
			}
		},
		OnStartError: func(err *audio.PlaybackStartError) {
			m.startFailures.Inc()
			if next.OnStartError != nil {
				next.OnStartError(err)
			}
		},
		OnDecodeError: func(err *audio.DecodeError) {
			m.decodeFailures.Inc()
			if next.OnDecodeError != nil {
				next.OnDecodeError(err)
			}
		},
		OnIdle: next.OnIdle,
	}
}
