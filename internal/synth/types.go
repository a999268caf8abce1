// Package synth builds synthesis payloads for the supported engines and sends
// them to the text-to-speech API.
package synth

import (
	"fmt"
	"strings"
)

// Engine identifies an upstream synthesis backend.
type Engine string

const (
	// EngineChirp3 is the production voice engine (Chirp 3 HD voices).
	EngineChirp3 Engine = "chirp3"
	// EngineGemini is the prompt-steerable engine (Gemini-TTS).
	EngineGemini Engine = "gemini"
)

// GeminiSampleRateHertz is the only sample rate Gemini-TTS accepts.
const GeminiSampleRateHertz = 24000

// ParseEngine maps a user or wire supplied engine name to an Engine.
// An empty name returns def.
func ParseEngine(name string, def Engine) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return def, nil
	case "chirp3", "chirp", "chirp3-hd":
		return EngineChirp3, nil
	case "gemini", "gemini-tts":
		return EngineGemini, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}

// ReadRequest is one read-aloud request. Zero values mean "not set" and fall
// back to the engine defaults.
type ReadRequest struct {
	Text            string  `json:"text"`
	Engine          Engine  `json:"engine,omitempty"`
	Voice           string  `json:"voice,omitempty"`
	LanguageCode    string  `json:"languageCode,omitempty"`
	Model           string  `json:"model,omitempty"`
	Prompt          string  `json:"prompt,omitempty"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
	SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
}

// Chirp3Config holds the static defaults for the Chirp 3 HD engine.
type Chirp3Config struct {
	LanguageCode    string  `yaml:"language_code" mapstructure:"language_code"`
	Voice           string  `yaml:"voice" mapstructure:"voice"`
	SpeakingRate    float64 `yaml:"speaking_rate" mapstructure:"speaking_rate"`
	SampleRateHertz int     `yaml:"sample_rate_hertz" mapstructure:"sample_rate_hertz"`
	AudioEncoding   string  `yaml:"audio_encoding" mapstructure:"audio_encoding"`
}

// GeminiConfig holds the static defaults for the Gemini-TTS engine.
type GeminiConfig struct {
	Model         string `yaml:"model" mapstructure:"model"`
	LanguageCode  string `yaml:"language_code" mapstructure:"language_code"`
	Voice         string `yaml:"voice" mapstructure:"voice"`
	Prompt        string `yaml:"prompt" mapstructure:"prompt"`
	AudioEncoding string `yaml:"audio_encoding" mapstructure:"audio_encoding"`
}

// EngineConfig is loaded once at startup and read-only afterwards.
type EngineConfig struct {
	Default Engine       `yaml:"engine" mapstructure:"engine"`
	Chirp3  Chirp3Config `yaml:"chirp3" mapstructure:"chirp3"`
	Gemini  GeminiConfig `yaml:"gemini" mapstructure:"gemini"`
}

// DefaultEngineConfig returns the built-in engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Default: EngineChirp3,
		Chirp3: Chirp3Config{
			LanguageCode:    "en-GB",
			Voice:           "en-GB-Chirp3-HD-Charon",
			SpeakingRate:    1.0,
			SampleRateHertz: 24000,
			AudioEncoding:   "MP3",
		},
		Gemini: GeminiConfig{
			Model:         "gemini-2.5-flash-preview-tts",
			LanguageCode:  "en-us",
			Voice:         "Kore",
			AudioEncoding: "LINEAR16",
		},
	}
}

// Payload is the JSON body of a text:synthesize call.
type Payload struct {
	Input       Input       `json:"input"`
	Voice       Voice       `json:"voice"`
	AudioConfig AudioConfig `json:"audioConfig"`
}

// Input carries the text and, for Gemini-TTS, the optional style prompt.
type Input struct {
	Text   string `json:"text"`
	Prompt string `json:"prompt,omitempty"`
}

// Voice selects the voice; ModelName is only sent to Gemini-TTS.
type Voice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
	ModelName    string `json:"modelName,omitempty"`
}

// AudioConfig describes the requested output audio.
type AudioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
	SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
}

// Audio is the encoded audio returned for one chunk.
type Audio struct {
	Data       []byte
	Encoding   string
	SampleRate int
}
