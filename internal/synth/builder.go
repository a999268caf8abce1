package synth

import (
	"fmt"
	"strings"
)

// Build maps one chunk of a request onto the wire payload of the request's
// engine. Every field falls back from the per-request override to the
// engine default.
func Build(chunk string, req ReadRequest, cfg EngineConfig) (Payload, error) {
	engine := req.Engine
	if engine == "" {
		engine = cfg.Default
	}

	switch engine {
	case EngineChirp3:
		return buildChirp3(chunk, req, cfg.Chirp3), nil
	case EngineGemini:
		return buildGemini(chunk, req, cfg.Gemini), nil
	default:
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

func buildChirp3(chunk string, req ReadRequest, cfg Chirp3Config) Payload {
	voice := cfg.Voice
	language := cfg.LanguageCode
	if req.LanguageCode != "" {
		language = req.LanguageCode
	}
	if req.Voice != "" {
		voice = req.Voice
		if derived := LanguageFromVoice(voice); derived != "" {
			language = derived
		}
	}

	return Payload{
		Input: Input{Text: chunk},
		Voice: Voice{
			LanguageCode: language,
			Name:         voice,
		},
		AudioConfig: AudioConfig{
			AudioEncoding:   cfg.AudioEncoding,
			SpeakingRate:    firstFloat(req.SpeakingRate, cfg.SpeakingRate),
			SampleRateHertz: firstInt(req.SampleRateHertz, cfg.SampleRateHertz),
		},
	}
}

func buildGemini(chunk string, req ReadRequest, cfg GeminiConfig) Payload {
	input := Input{Text: chunk}
	if prompt := strings.TrimSpace(firstString(req.Prompt, cfg.Prompt)); prompt != "" {
		input.Prompt = prompt
	}

	return Payload{
		Input: input,
		Voice: Voice{
			LanguageCode: firstString(req.LanguageCode, cfg.LanguageCode),
			Name:         firstString(req.Voice, cfg.Voice),
			ModelName:    firstString(req.Model, cfg.Model),
		},
		AudioConfig: AudioConfig{
			AudioEncoding:   cfg.AudioEncoding,
			SampleRateHertz: GeminiSampleRateHertz,
		},
	}
}

// LanguageFromVoice derives the language code from a voice name of the form
// <lang>-<region>-<variant>-<speaker>, e.g. "en-GB-Chirp3-HD-Kore" -> "en-GB".
// It returns "" for names without a language prefix.
func LanguageFromVoice(voice string) string {
	parts := strings.Split(voice, "-")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return parts[0] + "-" + parts[1]
}

func firstString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstFloat(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
