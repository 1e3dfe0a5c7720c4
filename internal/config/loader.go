package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// validProviderNames lists known implementations per provider kind.
var validProviderNames = map[string][]string{
	"chat":       {"gemini", "openai"},
	"tts":        {"gemini"},
	"live":       {"gemini"},
	"media":      {"gemini"},
	"embeddings": {"gemini", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, resolves
// api_key_env references and validates the result. Unknown YAML fields are
// rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	applyDefaults(cfg)
	resolveKeys(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.Chat.Name == "" {
		cfg.Providers.Chat.Name = "gemini"
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = "gemini"
	}
	if cfg.Providers.Live.Name == "" {
		cfg.Providers.Live.Name = "gemini"
	}
	if cfg.Providers.Media.Name == "" {
		cfg.Providers.Media.Name = "gemini"
	}
	if cfg.Providers.Embeddings.Name == "" {
		cfg.Providers.Embeddings.Name = "gemini"
	}
}

func resolveKeys(cfg *Config) {
	for _, entry := range []*ProviderEntry{
		&cfg.Providers.Chat,
		&cfg.Providers.TTS,
		&cfg.Providers.Live,
		&cfg.Providers.Media,
		&cfg.Providers.Embeddings,
	} {
		if entry.APIKeyEnv != "" {
			if v := os.Getenv(entry.APIKeyEnv); v != "" {
				entry.APIKey = v
			}
		}
	}
}

// Validate checks that cfg is coherent, returning a joined error listing
// every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	checks := []struct {
		kind string
		name string
	}{
		{"chat", cfg.Providers.Chat.Name},
		{"tts", cfg.Providers.TTS.Name},
		{"live", cfg.Providers.Live.Name},
		{"media", cfg.Providers.Media.Name},
		{"embeddings", cfg.Providers.Embeddings.Name},
	}
	for _, c := range checks {
		if !slices.Contains(validProviderNames[c.kind], c.name) {
			errs = append(errs, fmt.Errorf("providers.%s.name %q is unknown; valid values: %v", c.kind, c.name, validProviderNames[c.kind]))
		}
	}

	if cfg.Live.CaptureQueueLimit < 0 {
		errs = append(errs, fmt.Errorf("live.capture_queue_limit must not be negative, got %d", cfg.Live.CaptureQueueLimit))
	}

	return errors.Join(errs...)
}
