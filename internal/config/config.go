// Package config loads readaloud's configuration from viper and the process
// environment. Configuration is loaded once at startup and is read-only
// afterwards.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/chunk"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Transport selects how synthesis calls reach the API.
type Transport string

const (
	TransportREST Transport = "rest"
	TransportGRPC Transport = "grpc"
)

// Config contains all readaloud configuration options.
type Config struct {
	Engines synth.EngineConfig `yaml:",inline" mapstructure:",squash"`

	API   APIConfig   `yaml:"api" mapstructure:"api"`
	Chunk ChunkConfig `yaml:"chunk" mapstructure:"chunk"`
	Audio AudioConfig `yaml:"audio" mapstructure:"audio"`

	// CredentialsFile overrides the fallback credentials file location.
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// APIConfig contains synthesis API settings.
type APIConfig struct {
	Transport         Transport     `yaml:"transport" mapstructure:"transport"`
	Endpoint          string        `yaml:"endpoint" mapstructure:"endpoint"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	RetryAttempts     int           `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ChunkConfig contains text chunking settings.
type ChunkConfig struct {
	MaxSize         int  `yaml:"max_size" mapstructure:"max_size"`
	SentencePacking bool `yaml:"sentence_packing" mapstructure:"sentence_packing"`
}

// AudioConfig contains playback settings.
type AudioConfig struct {
	Output          audio.OutputKind `yaml:"output" mapstructure:"output"`
	SampleRate      int              `yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels        int              `yaml:"channels" mapstructure:"channels"`
	BufferSize      time.Duration    `yaml:"buffer_size" mapstructure:"buffer_size"`
	QueueSize       int              `yaml:"queue_size" mapstructure:"queue_size"`
	WatchdogSlack   time.Duration    `yaml:"watchdog_slack" mapstructure:"watchdog_slack"`
	SuspendWhenIdle bool             `yaml:"suspend_when_idle" mapstructure:"suspend_when_idle"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	out := audio.DefaultOutputConfig()
	return Config{
		Engines: synth.DefaultEngineConfig(),
		API: APIConfig{
			Transport:         TransportREST,
			Endpoint:          synth.DefaultEndpoint,
			Timeout:           30 * time.Second,
			RequestsPerMinute: 300,
			RetryAttempts:     1,
		},
		Chunk: ChunkConfig{
			MaxSize: chunk.MaxChunkSize,
		},
		Audio: AudioConfig{
			Output:          audio.OutputAuto,
			SampleRate:      out.SampleRate,
			Channels:        out.Channels,
			QueueSize:       32,
			WatchdogSlack:   audio.DefaultWatchdogSlack,
			SuspendWhenIdle: true,
		},
	}
}

// OutputConfig returns the audio output format.
func (c Config) OutputConfig() audio.OutputConfig {
	return audio.OutputConfig{
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		BufferSize: c.Audio.BufferSize,
	}
}

// PipelineConfig returns the playback pipeline settings.
func (c Config) PipelineConfig() audio.PipelineConfig {
	return audio.PipelineConfig{
		QueueSize:       c.Audio.QueueSize,
		WatchdogSlack:   c.Audio.WatchdogSlack,
		SuspendWhenIdle: c.Audio.SuspendWhenIdle,
	}
}

// ClientConfig returns the synthesis client settings.
func (c Config) ClientConfig() synth.ClientConfig {
	return synth.ClientConfig{
		Endpoint:          c.API.Endpoint,
		Timeout:           c.API.Timeout,
		RequestsPerMinute: c.API.RequestsPerMinute,
		RetryAttempts:     c.API.RetryAttempts,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	engine, err := synth.ParseEngine(string(c.Engines.Default), synth.EngineChirp3)
	if err != nil {
		return err
	}
	c.Engines.Default = engine

	switch Transport(strings.ToLower(string(c.API.Transport))) {
	case TransportREST, "":
		c.API.Transport = TransportREST
	case TransportGRPC:
		c.API.Transport = TransportGRPC
	default:
		return fmt.Errorf("invalid transport '%s': must be one of [rest grpc]", c.API.Transport)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive, got %v", c.API.Timeout)
	}
	if c.API.RequestsPerMinute < 0 {
		return fmt.Errorf("requests per minute must not be negative, got %d", c.API.RequestsPerMinute)
	}

	if c.Chunk.MaxSize < 1 || c.Chunk.MaxSize > chunk.MaxChunkSize {
		return fmt.Errorf("chunk max size must be between 1 and %d, got %d", chunk.MaxChunkSize, c.Chunk.MaxSize)
	}

	if rate := c.Engines.Chirp3.SpeakingRate; rate < 0.25 || rate > 2.0 {
		return fmt.Errorf("chirp3 speaking rate must be between 0.25 and 2.0, got %.2f", rate)
	}

	if err := c.OutputConfig().Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	switch c.Audio.Output {
	case audio.OutputAuto, audio.OutputOto, audio.OutputMock:
	default:
		return fmt.Errorf("invalid audio output '%s': must be one of [auto oto mock]", c.Audio.Output)
	}
	if c.Audio.QueueSize < 1 || c.Audio.QueueSize > 1000 {
		return fmt.Errorf("audio queue size must be between 1 and 1000, got %d", c.Audio.QueueSize)
	}

	// Unknown voices are allowed; the catalogue is not exhaustive.
	if !synth.KnownVoice(synth.EngineChirp3, c.Engines.Chirp3.Voice) {
		log.Warn("Unknown chirp3 voice", "voice", c.Engines.Chirp3.Voice)
	}
	if !synth.KnownVoice(synth.EngineGemini, c.Engines.Gemini.Voice) {
		log.Warn("Unknown gemini voice", "voice", c.Engines.Gemini.Voice)
	}

	return nil
}

// Load loads the configuration from v, falling back to the defaults for
// anything unset.
func Load(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("engine") {
		cfg.Engines.Default = synth.Engine(v.GetString("engine"))
	}

	// Chirp 3 HD
	if v.IsSet("chirp3.language_code") {
		cfg.Engines.Chirp3.LanguageCode = v.GetString("chirp3.language_code")
	}
	if v.IsSet("chirp3.voice") {
		cfg.Engines.Chirp3.Voice = v.GetString("chirp3.voice")
	}
	if v.IsSet("chirp3.speaking_rate") {
		cfg.Engines.Chirp3.SpeakingRate = v.GetFloat64("chirp3.speaking_rate")
	}
	if v.IsSet("chirp3.sample_rate_hertz") {
		cfg.Engines.Chirp3.SampleRateHertz = v.GetInt("chirp3.sample_rate_hertz")
	}
	if v.IsSet("chirp3.audio_encoding") {
		cfg.Engines.Chirp3.AudioEncoding = strings.ToUpper(v.GetString("chirp3.audio_encoding"))
	}

	// Gemini-TTS
	if v.IsSet("gemini.model") {
		cfg.Engines.Gemini.Model = v.GetString("gemini.model")
	}
	if v.IsSet("gemini.language_code") {
		cfg.Engines.Gemini.LanguageCode = v.GetString("gemini.language_code")
	}
	if v.IsSet("gemini.voice") {
		cfg.Engines.Gemini.Voice = v.GetString("gemini.voice")
	}
	if v.IsSet("gemini.prompt") {
		cfg.Engines.Gemini.Prompt = v.GetString("gemini.prompt")
	}
	if v.IsSet("gemini.audio_encoding") {
		cfg.Engines.Gemini.AudioEncoding = strings.ToUpper(v.GetString("gemini.audio_encoding"))
	}

	cfg.API = loadAPIConfig(v, cfg.API)
	cfg.Chunk = loadChunkConfig(v, cfg.Chunk)
	cfg.Audio = loadAudioConfig(v, cfg.Audio)

	if v.IsSet("credentials_file") {
		cfg.CredentialsFile = ExpandPath(v.GetString("credentials_file"))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadAPIConfig(v *viper.Viper, cfg APIConfig) APIConfig {
	if v.IsSet("api.transport") {
		cfg.Transport = Transport(v.GetString("api.transport"))
	}
	if v.IsSet("api.endpoint") {
		cfg.Endpoint = v.GetString("api.endpoint")
	}
	if v.IsSet("api.timeout") {
		if d, err := time.ParseDuration(v.GetString("api.timeout")); err == nil {
			cfg.Timeout = d
		}
	}
	if v.IsSet("api.requests_per_minute") {
		cfg.RequestsPerMinute = v.GetInt("api.requests_per_minute")
	}
	if v.IsSet("api.retry_attempts") {
		cfg.RetryAttempts = v.GetInt("api.retry_attempts")
	}
	return cfg
}

func loadChunkConfig(v *viper.Viper, cfg ChunkConfig) ChunkConfig {
	if v.IsSet("chunk.max_size") {
		cfg.MaxSize = v.GetInt("chunk.max_size")
	}
	if v.IsSet("chunk.sentence_packing") {
		cfg.SentencePacking = v.GetBool("chunk.sentence_packing")
	}
	return cfg
}

func loadAudioConfig(v *viper.Viper, cfg AudioConfig) AudioConfig {
	if v.IsSet("audio.output") {
		cfg.Output = audio.OutputKind(strings.ToLower(v.GetString("audio.output")))
	}
	if v.IsSet("audio.sample_rate") {
		cfg.SampleRate = v.GetInt("audio.sample_rate")
	}
	if v.IsSet("audio.channels") {
		cfg.Channels = v.GetInt("audio.channels")
	}
	if v.IsSet("audio.buffer_size") {
		if d, err := time.ParseDuration(v.GetString("audio.buffer_size")); err == nil {
			cfg.BufferSize = d
		}
	}
	if v.IsSet("audio.queue_size") {
		cfg.QueueSize = v.GetInt("audio.queue_size")
	}
	if v.IsSet("audio.watchdog_slack") {
		if d, err := time.ParseDuration(v.GetString("audio.watchdog_slack")); err == nil {
			cfg.WatchdogSlack = d
		}
	}
	if v.IsSet("audio.suspend_when_idle") {
		cfg.SuspendWhenIdle = v.GetBool("audio.suspend_when_idle")
	}
	return cfg
}

// SetDefaults sets default values in v for every configuration key.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("engine", string(defaults.Engines.Default))

	v.SetDefault("chirp3.language_code", defaults.Engines.Chirp3.LanguageCode)
	v.SetDefault("chirp3.voice", defaults.Engines.Chirp3.Voice)
	v.SetDefault("chirp3.speaking_rate", defaults.Engines.Chirp3.SpeakingRate)
	v.SetDefault("chirp3.sample_rate_hertz", defaults.Engines.Chirp3.SampleRateHertz)
	v.SetDefault("chirp3.audio_encoding", defaults.Engines.Chirp3.AudioEncoding)

	v.SetDefault("gemini.model", defaults.Engines.Gemini.Model)
	v.SetDefault("gemini.language_code", defaults.Engines.Gemini.LanguageCode)
	v.SetDefault("gemini.voice", defaults.Engines.Gemini.Voice)
	v.SetDefault("gemini.prompt", defaults.Engines.Gemini.Prompt)
	v.SetDefault("gemini.audio_encoding", defaults.Engines.Gemini.AudioEncoding)

	v.SetDefault("api.transport", string(defaults.API.Transport))
	v.SetDefault("api.endpoint", defaults.API.Endpoint)
	v.SetDefault("api.timeout", defaults.API.Timeout.String())
	v.SetDefault("api.requests_per_minute", defaults.API.RequestsPerMinute)
	v.SetDefault("api.retry_attempts", defaults.API.RetryAttempts)

	v.SetDefault("chunk.max_size", defaults.Chunk.MaxSize)
	v.SetDefault("chunk.sentence_packing", defaults.Chunk.SentencePacking)

	v.SetDefault("audio.output", string(defaults.Audio.Output))
	v.SetDefault("audio.sample_rate", defaults.Audio.SampleRate)
	v.SetDefault("audio.channels", defaults.Audio.Channels)
	v.SetDefault("audio.queue_size", defaults.Audio.QueueSize)
	v.SetDefault("audio.watchdog_slack", defaults.Audio.WatchdogSlack.String())
	v.SetDefault("audio.suspend_when_idle", defaults.Audio.SuspendWhenIdle)
}

// ExpandPath expands a leading ~ and environment variables in path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return os.ExpandEnv(expanded)
}
