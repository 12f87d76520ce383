package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper"},
	"tts": {"deepgram", "elevenlabs"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Environment overlays are applied after parsing: a `.env.local`
// file is read if present, and DATABASE_URL / DATABASE_NAME fill in empty
// storage fields.
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

	// Missing .env.local is fine; explicit files are optional overlays.
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env.local", "error", err)
	}
	ApplyEnv(cfg)

	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
// No environment overlay is applied.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// ApplyEnv fills empty storage fields from the process environment.
func ApplyEnv(cfg *Config) {
	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.Storage.DatabaseName == DefaultDatabaseName {
		if name := os.Getenv("DATABASE_NAME"); name != "" {
			cfg.Storage.DatabaseName = name
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Gateway.Identity == "" {
		cfg.Gateway.Identity = "proctor"
	}
	if cfg.Storage.DatabaseName == "" {
		cfg.Storage.DatabaseName = DefaultDatabaseName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Gateway.URL == "" {
		errs = append(errs, errors.New("gateway.url is required"))
	} else if u, err := url.Parse(cfg.Gateway.URL); err != nil {
		errs = append(errs, fmt.Errorf("gateway.url %q is not a valid URL: %w", cfg.Gateway.URL, err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("gateway.url scheme %q is invalid; must be ws or wss", u.Scheme))
	}

	validateProviderEntry("llm", cfg.Providers.LLM)
	validateProviderEntry("stt", cfg.Providers.STT)
	validateProviderEntry("tts", cfg.Providers.TTS)
	validateProviderEntry("vad", cfg.Providers.VAD)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required; the proctor cannot hear answers without it"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required; the proctor cannot speak without it"))
	}
	if cfg.Session.Acknowledgements && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("session.acknowledgements requires providers.llm to be configured"))
	}

	if cfg.Storage.DatabaseURL == "" {
		slog.Warn("storage.database_url is empty; relying on the DATABASE_URL environment variable")
	}

	return errors.Join(errs...)
}

// validateProviderEntry warns about unrecognised names on the entry and its
// fallbacks.
func validateProviderEntry(kind string, entry ProviderEntry) {
	validateProviderName(kind, entry.Name)
	for _, fb := range entry.Fallbacks {
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
