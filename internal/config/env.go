package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// Env is the part of the configuration read straight from the process
// environment.
type Env struct {
	Debug       bool   `env:"READALOUD_DEBUG"`
	LogFile     string `env:"READALOUD_LOG_FILE"`
	LogMaxSize  int64  `env:"READALOUD_LOG_MAX_SIZE" envDefault:"10485760"`
	AudioOutput string `env:"READALOUD_AUDIO_OUTPUT"`
	MetricsAddr string `env:"READALOUD_METRICS_ADDR"`
}

// LoadEnv loads the dotenv file, when present, and parses the environment.
// Variables already set in the process take precedence over the file.
func LoadEnv(dotenv string) (Env, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Could not load env file", "path", dotenv, "error", err)
		}
	}

	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("error parsing environment: %w", err)
	}
	e.LogFile = ExpandPath(e.LogFile)
	return e, nil
}
