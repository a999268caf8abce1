package synth

import (
	"slices"
	"strings"
)

// VoiceInfo describes a selectable voice.
type VoiceInfo struct {
	Name   string
	Label  string
	Gender string
}

var geminiMale = []string{
	"Achird", "Algenib", "Algieba", "Alnilam", "Charon", "Enceladus",
	"Fenrir", "Iapetus", "Orus", "Puck", "Rasalgethi", "Sadachbia",
	"Sadaltager", "Schedar", "Umbriel", "Zubenelgenubi",
}

var geminiFemale = []string{
	"Achernar", "Aoede", "Autonoe", "Callirrhoe", "Despina", "Erinome",
	"Gacrux", "Kore", "Laomedeia", "Leda", "Pulcherrima", "Sulafat",
	"Vindemiatrix", "Zephyr",
}

var chirp3Voices = map[string][]VoiceInfo{
	"en-GB": {
		{Name: "en-GB-Chirp3-HD-Charon", Label: "Charon (Male)", Gender: "male"},
		{Name: "en-GB-Chirp3-HD-Kore", Label: "Kore (Female)", Gender: "female"},
		{Name: "en-GB-Chirp3-HD-Leda", Label: "Leda (Female)", Gender: "female"},
		{Name: "en-GB-Chirp3-HD-Puck", Label: "Puck (Male)", Gender: "male"},
	},
}

// GeminiModels lists the Gemini-TTS models that can be selected.
var GeminiModels = []string{
	"gemini-2.5-flash-preview-tts",
	"gemini-2.5-pro-preview-tts",
}

// Voices returns the known voices of an engine, sorted by name.
func Voices(engine Engine) []VoiceInfo {
	var voices []VoiceInfo
	switch engine {
	case EngineGemini:
		for _, name := range geminiFemale {
			voices = append(voices, VoiceInfo{Name: name, Label: name, Gender: "female"})
		}
		for _, name := range geminiMale {
			voices = append(voices, VoiceInfo{Name: name, Label: name, Gender: "male"})
		}
	case EngineChirp3:
		for _, list := range chirp3Voices {
			voices = append(voices, list...)
		}
	}
	slices.SortFunc(voices, func(a, b VoiceInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return voices
}

// KnownVoice reports whether name is in the catalogue of engine. Chirp 3 HD
// voices follow a naming scheme, so any <lang>-<region>-Chirp3-HD-<speaker>
// name with a known speaker is accepted.
func KnownVoice(engine Engine, name string) bool {
	switch engine {
	case EngineGemini:
		return slices.Contains(geminiFemale, name) || slices.Contains(geminiMale, name)
	case EngineChirp3:
		parts := strings.Split(name, "-")
		if len(parts) != 5 || parts[2] != "Chirp3" || parts[3] != "HD" {
			return false
		}
		return slices.Contains(geminiFemale, parts[4]) || slices.Contains(geminiMale, parts[4])
	}
	return false
}
