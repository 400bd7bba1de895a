package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied after decoding and env overrides.
const (
	DefaultListenAddr          = ":8080"
	DefaultSTTServerURL        = "http://localhost:8178"
	DefaultTTSServerURL        = "http://localhost:5000"
	DefaultTTSModelDir         = "models"
	DefaultVoice               = "en_US-lessac-medium"
	DefaultOllamaURL           = "http://localhost:11434"
	DefaultOllamaModel         = "qwen3:8b"
	DefaultOllamaFallbackModel = "qwen2.5:14b"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config]. A missing file
// is not an error; the result is defaults plus environment.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			ApplyEnv(cfg)
			applyDefaults(cfg)
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv layers environment variables over cfg. Environment wins over
// file values so deployments can keep secrets out of the YAML.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.ListenAddr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("HTTPS"); v == "1" || strings.EqualFold(v, "true") {
		ensureTLS(cfg)
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		ensureTLS(cfg).CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		ensureTLS(cfg).KeyFile = v
	}
	if v := os.Getenv("ICE_SERVERS_JSON"); v != "" {
		cfg.ICE.ServersJSON = v
	}
	if v := os.Getenv("TURN_API_URL"); v != "" {
		cfg.ICE.TURNAPIURL = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.LLM.OllamaURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.LLM.OllamaModel = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		cfg.Search.TavilyAPIKey = v
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
}

// ensureTLS materialises the TLS block so env vars can populate it
// piecewise. Validate still demands both cert paths once the block exists.
func ensureTLS(cfg *Config) *TLSConfig {
	if cfg.Server.TLS == nil {
		cfg.Server.TLS = &TLSConfig{}
	}
	return cfg.Server.TLS
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.STT.ServerURL == "" {
		cfg.STT.ServerURL = DefaultSTTServerURL
	}
	if cfg.STT.Language == "" {
		cfg.STT.Language = "en"
	}
	if cfg.TTS.ServerURL == "" {
		cfg.TTS.ServerURL = DefaultTTSServerURL
	}
	if cfg.TTS.ModelDir == "" {
		cfg.TTS.ModelDir = DefaultTTSModelDir
	}
	if cfg.TTS.DefaultVoice == "" {
		cfg.TTS.DefaultVoice = DefaultVoice
	}
	if cfg.LLM.OllamaURL == "" {
		cfg.LLM.OllamaURL = DefaultOllamaURL
	}
	if cfg.LLM.OllamaModel == "" {
		cfg.LLM.OllamaModel = DefaultOllamaModel
	}
	if cfg.LLM.OllamaFallbackModel == "" {
		cfg.LLM.OllamaFallbackModel = DefaultOllamaFallbackModel
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}
	switch cfg.LLM.DefaultProvider {
	case "", "claude", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.default_provider %q is invalid; valid values: claude, openai, ollama", cfg.LLM.DefaultProvider))
	}
	if cfg.LLM.DefaultProvider == "claude" && cfg.LLM.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("llm.default_provider is claude but llm.anthropic_api_key is not set"))
	}
	if cfg.LLM.DefaultProvider == "openai" && cfg.LLM.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("llm.default_provider is openai but llm.openai_api_key is not set"))
	}

	return errors.Join(errs...)
}
