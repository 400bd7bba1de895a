// Package config provides the configuration schema and loader for the
// Voicegate server.
package config

// LogLevel controls log verbosity for the Voicegate server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Voicegate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// [ApplyEnv] layers environment overrides on top.
type Config struct {
	Server ServerConfig `yaml:"server"`
	ICE    ICEConfig    `yaml:"ice"`
	STT    STTConfig    `yaml:"stt"`
	TTS    TTSConfig    `yaml:"tts"`
	LLM    LLMConfig    `yaml:"llm"`
	Search SearchConfig `yaml:"search"`
}

// ServerConfig holds network, auth, and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// AuthToken is the shared token clients must present in their hello
	// message. Empty disables the check.
	AuthToken string `yaml:"auth_token"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir, when set, is served at / for the browser client.
	StaticDir string `yaml:"static_dir"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ICEConfig controls how STUN/TURN servers are handed to browsers.
type ICEConfig struct {
	// TURNAPIURL is an external credential endpoint returning a JSON array
	// of ICE server entries. Queried per hello; failures fall back to
	// ServersJSON.
	TURNAPIURL string `yaml:"turn_api_url"`

	// ServersJSON is a JSON array of ICE server entries used when no TURN
	// API is configured or the fetch fails. Empty means STUN-less default.
	ServersJSON string `yaml:"servers_json"`
}

// STTConfig selects the speech-to-text backend.
type STTConfig struct {
	// ServerURL is the whisper.cpp server address (e.g., "http://localhost:8178").
	ServerURL string `yaml:"server_url"`

	// Model names the loaded model, forwarded with each request.
	Model string `yaml:"model"`

	// Language is the transcription language hint. Defaults to "en".
	Language string `yaml:"language"`
}

// TTSConfig selects the text-to-speech backend.
type TTSConfig struct {
	// ServerURL is the Piper HTTP server address.
	ServerURL string `yaml:"server_url"`

	// ModelDir is where voice model blobs are cached on disk.
	ModelDir string `yaml:"model_dir"`

	// DefaultVoice is the voice used when a client has not picked one.
	DefaultVoice string `yaml:"default_voice"`
}

// LLMConfig configures the language-model providers. Which cloud providers
// are offered to clients follows from which API keys are present.
type LLMConfig struct {
	// DefaultProvider forces the initial provider ("claude", "openai",
	// "ollama"). Empty selects automatically: claude when an Anthropic key
	// is set, else openai when an OpenAI key is set, else ollama.
	DefaultProvider string `yaml:"default_provider"`

	// AnthropicAPIKey enables the Claude provider.
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// OpenAIAPIKey enables the OpenAI provider.
	OpenAIAPIKey string `yaml:"openai_api_key"`

	// OllamaURL is the local model host address. Defaults to
	// http://localhost:11434.
	OllamaURL string `yaml:"ollama_url"`

	// OllamaModel is the preferred local model.
	OllamaModel string `yaml:"ollama_model"`

	// OllamaFallbackModel is used when the preferred model is not installed.
	OllamaFallbackModel string `yaml:"ollama_fallback_model"`
}

// SearchConfig holds web-search provider keys. Both are optional; without
// keys the search tool falls back to its keyless provider.
type SearchConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key"`
	BraveAPIKey  string `yaml:"brave_api_key"`
}

// DefaultProviderName resolves the initial LLM provider: the configured one
// if set, otherwise by API-key presence with ollama as the terminal default.
func (c *LLMConfig) DefaultProviderName() string {
	if c.DefaultProvider != "" {
		return c.DefaultProvider
	}
	if c.AnthropicAPIKey != "" {
		return "claude"
	}
	if c.OpenAIAPIKey != "" {
		return "openai"
	}
	return "ollama"
}

// AvailableProviders lists the providers usable with the present keys.
// Ollama is always included; it needs no key.
func (c *LLMConfig) AvailableProviders() []string {
	var out []string
	if c.AnthropicAPIKey != "" {
		out = append(out, "claude")
	}
	if c.OpenAIAPIKey != "" {
		out = append(out, "openai")
	}
	return append(out, "ollama")
}
