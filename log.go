package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/config"
	"github.com/dgnsrekt/readaloud/internal/logfile"
	gap "github.com/muesli/go-app-paths"
)

// environment is parsed once in setupLog and read-only afterwards.
var environment config.Env

func defaultLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "readaloud").CacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(dir, "readaloud.log"), nil
}

func setupLog() (func() error, error) {
	env, err := config.LoadEnv(".env")
	if err != nil {
		return nil, err
	}
	environment = env

	if env.LogFile == "" {
		useLogger(os.Stderr, false)
		return func() error { return nil }, nil
	}
	return logToFile(env.LogFile)
}

// logToFile sends all log output to a rotated file at path.
func logToFile(path string) (func() error, error) {
	w, err := logfile.Open(path, logfile.Options{MaxSize: environment.LogMaxSize})
	if err != nil {
		return nil, err
	}
	useLogger(w, true)
	log.Debug("Logging to file", "path", path)
	return w.Close, nil
}

func useLogger(w io.Writer, timestamps bool) {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: timestamps,
		TimeFormat:      time.RFC3339,
		Prefix:          "readaloud",
	})
	logger.SetLevel(log.WarnLevel)
	if environment.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	log.SetDefault(logger)
}
