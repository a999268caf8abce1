package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# default engine: chirp3 or gemini
engine: "chirp3"

# Chirp 3 HD voices
chirp3:
  language_code: "en-GB"
  voice: "en-GB-Chirp3-HD-Charon"
  # 0.25 to 2.0
  speaking_rate: 1.0
  sample_rate_hertz: 24000
  # MP3 or LINEAR16
  audio_encoding: "MP3"

# Gemini-TTS voices
gemini:
  model: "gemini-2.5-flash-preview-tts"
  language_code: "en-us"
  voice: "Kore"
  # natural language style instruction, e.g. "Read this calmly"
  prompt: ""
  audio_encoding: "LINEAR16"

# text-to-speech API
api:
  # rest or grpc
  transport: "rest"
  endpoint: "https://texttospeech.googleapis.com"
  timeout: "30s"
  # client-side rate limit, 0 disables it
  requests_per_minute: 300
  retry_attempts: 1

# the API key can also be stored with "readaloud auth set"
# api_key: ""
# credentials_file: "~/.local/share/readaloud/credentials.yml"

chunk:
  # characters per synthesis request (max 4500)
  max_size: 4500
  # pack consecutive sentences into one request
  sentence_packing: false

audio:
  # auto, oto or mock
  output: "auto"
  sample_rate: 48000
  channels: 2
  # device buffer, 0s picks a platform default
  buffer_size: "0s"
  # decoded chunks waiting to play
  queue_size: 32
  # extra time past a chunk's duration before playback is forced on
  watchdog_slack: "1s"
  # release the audio device between sessions
  suspend_when_idle: true
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the readaloud config file",
	Long:    paragraph(fmt.Sprintf("\n%s the readaloud config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("readaloud config\nreadaloud config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Readaloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
