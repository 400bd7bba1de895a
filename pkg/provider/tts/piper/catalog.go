package piper

import "fmt"

// DefaultVoice is the voice used when none is selected.
const DefaultVoice = "en_US-lessac-medium"

// catalogEntry maps a voice id to its HuggingFace model location.
// URL pattern: https://huggingface.co/rhasspy/piper-voices/resolve/main/{lang}/{locale}/{voice_name}/{quality}/{id}.onnx
type catalogEntry struct {
	ID          string
	DisplayName string
	Lang        string
	Locale      string
	VoiceName   string
	Quality     string
}

var voiceCatalog = []catalogEntry{
	{"en_US-lessac-medium", "Lessac (US)", "en", "en_US", "lessac", "medium"},
	{"en_US-hfc_female-medium", "HFC Female (US)", "en", "en_US", "hfc_female", "medium"},
	{"en_US-hfc_male-medium", "HFC Male (US)", "en", "en_US", "hfc_male", "medium"},
	{"en_US-libritts_r-medium", "LibriTTS (US)", "en", "en_US", "libritts_r", "medium"},
	{"en_GB-alba-medium", "Alba (UK)", "en", "en_GB", "alba", "medium"},
	{"en_GB-aru-medium", "Aru (UK)", "en", "en_GB", "aru", "medium"},
	{"de_DE-thorsten-medium", "Thorsten (German)", "de", "de_DE", "thorsten", "medium"},
	{"fr_FR-siwis-medium", "Siwis (French)", "fr", "fr_FR", "siwis", "medium"},
	{"es_ES-davefx-medium", "DaveFX (Spanish)", "es", "es_ES", "davefx", "medium"},
}

var catalogByID = func() map[string]catalogEntry {
	m := make(map[string]catalogEntry, len(voiceCatalog))
	for _, e := range voiceCatalog {
		m[e.ID] = e
	}
	return m
}()

// modelURLs returns the HuggingFace download URLs for a voice's .onnx model
// and .onnx.json config.
func modelURLs(e catalogEntry) (onnxURL, configURL string) {
	base := fmt.Sprintf("https://huggingface.co/rhasspy/piper-voices/resolve/main/%s/%s/%s/%s/%s",
		e.Lang, e.Locale, e.VoiceName, e.Quality, e.ID)
	return base + ".onnx", base + ".onnx.json"
}
