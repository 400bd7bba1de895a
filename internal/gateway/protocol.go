package gateway

import (
	"github.com/echohall/voicegate/pkg/provider/llm/ollama"
	"github.com/echohall/voicegate/pkg/provider/tts"
	"github.com/echohall/voicegate/pkg/rtc"
)

// clientMessage is the union of all inbound control messages. Type is the
// discriminant; the remaining fields are populated per type.
type clientMessage struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	SDP      string `json:"sdp,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`
	Text     string `json:"text,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// modelCatalog is the ollama catalog plus the cloud providers reachable with
// the configured keys, flattened into one JSON object.
type modelCatalog struct {
	ollama.Catalog
	CloudProviders []string `json:"cloud_providers"`
}

// helloAck is the greeting response carrying the full server inventory.
// TTSVoices and LLMDefault duplicate Voices and LLMDefaultProvider for
// clients written against the older field names.
type helloAck struct {
	Type               string          `json:"type"`
	Voices             []tts.Voice     `json:"voices"`
	TTSVoices          []tts.Voice     `json:"tts_voices"`
	ICEServers         []rtc.ICEServer `json:"ice_servers"`
	LLMProviders       []string        `json:"llm_providers"`
	ModelCatalog       modelCatalog    `json:"model_catalog"`
	LLMDefaultProvider string          `json:"llm_default_provider"`
	LLMDefault         string          `json:"llm_default"`
	LLMDefaultModel    string          `json:"llm_default_model"`
	TTSDefaultVoice    string          `json:"tts_default_voice"`
}

type webrtcAnswer struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type serverError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// transcriptionMsg carries STT output. Partial is true for rolling interim
// results and false for the final pass after mic_stop.
type transcriptionMsg struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Partial bool   `json:"partial"`
}

type agentReply struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// simpleEvent covers messages that are a bare type, optionally tagged with
// the subject they acknowledge (provider, model, or voice).
type simpleEvent struct {
	Type     string `json:"type"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`
}

// pullProgressMsg is one forwarded frame of a streaming model download.
type pullProgressMsg struct {
	Type      string  `json:"type"`
	Model     string  `json:"model"`
	Status    string  `json:"status"`
	Percent   float64 `json:"percent"`
	Total     int64   `json:"total"`
	Completed int64   `json:"completed"`
}

type pullErrorMsg struct {
	Type    string `json:"type"`
	Model   string `json:"model"`
	Message string `json:"message"`
}

type catalogUpdate struct {
	Type         string       `json:"type"`
	ModelCatalog modelCatalog `json:"model_catalog"`
}
