package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/chunk"
	"github.com/dgnsrekt/readaloud/internal/config"
	"github.com/dgnsrekt/readaloud/internal/credential"
	"github.com/dgnsrekt/readaloud/internal/metrics"
	"github.com/dgnsrekt/readaloud/internal/notify"
	"github.com/dgnsrekt/readaloud/internal/session"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/dgnsrekt/readaloud/internal/synth/sdk"
	"github.com/spf13/viper"
)

// app is the wired runtime shared by the say, watch and host commands.
type app struct {
	cfg      config.Config
	pipeline *audio.Pipeline
	session  *session.Orchestrator
	metrics  *metrics.Metrics
	notifier *notify.Notifier

	closers []func() error
}

type appOptions struct {
	// metrics enables collection for a metrics endpoint
	metrics  bool
	notifier *notify.Notifier
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return cfg, err
	}
	if environment.AudioOutput != "" {
		cfg.Audio.Output = audio.OutputKind(environment.AudioOutput)
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, notifier: opts.notifier}

	hooks := audio.Hooks{}
	if a.notifier != nil {
		n := a.notifier
		hooks.OnDecodeError = func(err *audio.DecodeError) {
			n.Warning("Skipped a chunk: %v", err)
		}
		hooks.OnStartError = func(err *audio.PlaybackStartError) {
			n.Warning("Could not play a chunk: %v", err.Err)
		}
	}

	var sessionOpts []session.Option
	if opts.metrics {
		a.metrics = metrics.New()
		hooks = a.metrics.Hooks(hooks)
		sessionOpts = append(sessionOpts, session.WithObserver(a.metrics))
	}

	output, err := audio.NewOutput(cfg.Audio.Output, cfg.OutputConfig())
	if err != nil {
		return nil, err
	}
	decoder := audio.NewBeepDecoder(cfg.Audio.SampleRate, cfg.Audio.Channels)
	a.pipeline = audio.NewPipeline(output, decoder, cfg.PipelineConfig(), hooks)
	a.closers = append(a.closers, a.pipeline.Close)

	synthesizer := newSynthesizer(cfg)
	if c, ok := synthesizer.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	store, err := credentialStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	chunker := chunk.New(cfg.Chunk.MaxSize, chunk.WithSentencePacking(cfg.Chunk.SentencePacking))
	a.session = session.New(cfg.Engines, chunker, synthesizer, store, a.pipeline, sessionOpts...)

	log.Debug("Initialized",
		"engine", cfg.Engines.Default,
		"transport", cfg.API.Transport,
		"output", cfg.Audio.Output,
		"sample_rate", cfg.Audio.SampleRate)
	return a, nil
}

func newSynthesizer(cfg config.Config) synth.Synthesizer {
	if cfg.API.Transport == config.TransportGRPC {
		return sdk.New(cfg.API.Timeout, cfg.API.RequestsPerMinute)
	}
	return synth.NewClient(cfg.ClientConfig())
}

func credentialFileStore(cfg config.Config) (*credential.FileStore, error) {
	path := cfg.CredentialsFile
	if path == "" {
		var err error
		if path, err = credential.DefaultFilePath(); err != nil {
			return nil, err
		}
	}
	return credential.NewFileStore(path), nil
}

func credentialStore(ctx context.Context, cfg config.Config) (credential.Store, error) {
	file, err := credentialFileStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to locate credentials: %w", err)
	}
	return credential.Resolve(ctx, credential.NewConfigStore(viper.GetViper()), file, credential.APIKey), nil
}

// Close stops playback and releases the audio device and API connections.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
