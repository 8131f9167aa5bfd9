// Package config loads and manages tandem configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, TANDEM_*, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/tandem/config.yaml
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/tandem/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".config", "tandem", "providers.yaml")
		if data, err := os.ReadFile(userPath); err == nil {
			userDefs := make(map[string]ProviderDefaults)
			if yaml.Unmarshal(data, &userDefs) == nil {
				for name, ud := range userDefs {
					d := defs[name]
					if ud.BaseURL != "" {
						d.BaseURL = ud.BaseURL
					}
					if ud.DefaultModel != "" {
						d.DefaultModel = ud.DefaultModel
					}
					defs[name] = d
				}
			}
		}
	}
	return defs
}

// ProviderConfig holds configuration for a single remote provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// WeightsConfig carries the complexity feature weights.
type WeightsConfig struct {
	Intent         float64 `yaml:"intent"`
	ArgDifficulty  float64 `yaml:"arg_difficulty"`
	ToolPressure   float64 `yaml:"tool_pressure"`
	Reliability    float64 `yaml:"reliability"`
	ExplicitRelief float64 `yaml:"explicit_relief"`
}

// GateConfig holds the confidence-gate settings.
type GateConfig struct {
	// Strategy: "threshold" (default) | "margin"
	Strategy string `yaml:"strategy"`

	// Artifact is the path to a trained margin-classifier file.
	// Empty uses the artifact embedded in the binary.
	Artifact string `yaml:"artifact"`

	// FailFast skips the local tier at or above this complexity score.
	FailFast float64 `yaml:"fail_fast"`

	// Base, Scale and Cap shape the dynamic acceptance bar
	// base + score*scale, clamped to cap.
	Base  float64 `yaml:"base"`
	Scale float64 `yaml:"scale"`
	Cap   float64 `yaml:"cap"`
}

// RoutingConfig holds orchestrator settings.
type RoutingConfig struct {
	// MaxParallel bounds concurrent sub-request workers. 0 = sub-request count.
	MaxParallel int `yaml:"max_parallel"`

	// AttemptTimeoutMS bounds a single inference attempt on either tier.
	AttemptTimeoutMS int `yaml:"attempt_timeout_ms"`

	// LocalAttempts is the number of local tries before escalation.
	LocalAttempts int `yaml:"local_attempts"`

	// NarrowCatalog exposes only the hinted tool to the local tier
	// when a keyword hint exists.
	NarrowCatalog bool `yaml:"narrow_catalog"`
}

// LocalConfig holds on-device tier settings.
type LocalConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// RetryConfig bounds transient-failure retries on the remote tier.
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

// EvalConfig holds evaluation settings.
type EvalConfig struct {
	// ServerURL is the scored-session endpoint.
	ServerURL string `yaml:"server_url"`
	// Team identifies the submitter to the scoring server.
	Team string `yaml:"team"`
}

// Config is the complete configuration structure for tandem.
type Config struct {
	// Provider is the active remote provider name ("openai", "anthropic",
	// or any OpenAI-compatible entry in Providers).
	Provider string `yaml:"provider"`

	// Model overrides the remote provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	Weights WeightsConfig `yaml:"weights"`
	Gate    GateConfig    `yaml:"gate"`
	Routing RoutingConfig `yaml:"routing"`
	Local   LocalConfig   `yaml:"local"`
	Retry   RetryConfig   `yaml:"retry"`
	Eval    EvalConfig    `yaml:"eval"`
}

// DefaultConfig returns the default configuration with the tuned routing
// constants.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Providers: make(map[string]*ProviderConfig),
		Weights: WeightsConfig{
			Intent:         0.45,
			ArgDifficulty:  0.25,
			ToolPressure:   0.10,
			Reliability:    0.25,
			ExplicitRelief: 0.10,
		},
		Gate: GateConfig{
			Strategy: "threshold",
			FailFast: 0.38,
			Base:     0.85,
			Scale:    0.25,
			Cap:      0.95,
		},
		Routing: RoutingConfig{
			MaxParallel:      4,
			AttemptTimeoutMS: 8000,
			LocalAttempts:    2,
			NarrowCatalog:    true,
		},
		Local: LocalConfig{
			BaseURL:     "http://127.0.0.1:11434",
			Model:       "functiongemma",
			MaxTokens:   256,
			Temperature: 0,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMS: 500,
		},
	}
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "tandem", "config.yaml")
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, merged over
// the embedded defaults for that provider name.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	pc := &ProviderConfig{}
	if got, ok := c.Providers[name]; ok && got != nil {
		*pc = *got
	}
	if d, ok := providerDefaults[name]; ok {
		if pc.BaseURL == "" {
			pc.BaseURL = d.BaseURL
		}
		if pc.Model == "" {
			pc.Model = d.DefaultModel
		}
	}
	if c.Model != "" {
		pc.Model = c.Model
	}
	return pc
}

var providerDefaults map[string]ProviderDefaults

func init() {
	providerDefaults = LoadProviderDefaults()
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	setProvider := func(name, key, value string) {
		if cfg.Providers[name] == nil {
			cfg.Providers[name] = &ProviderConfig{}
		}
		switch key {
		case "api_key":
			cfg.Providers[name].APIKey = value
		case "base_url":
			cfg.Providers[name].BaseURL = value
		}
	}

	// Generic overrides apply to the active provider
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		setProvider(cfg.Provider, "api_key", v)
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		setProvider(cfg.Provider, "base_url", v)
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		setProvider("openai", "api_key", v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		setProvider("anthropic", "api_key", v)
	}

	if v := os.Getenv("TANDEM_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("TANDEM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("TANDEM_LOCAL_URL"); v != "" {
		cfg.Local.BaseURL = v
	}
	if v := os.Getenv("TANDEM_LOCAL_MODEL"); v != "" {
		cfg.Local.Model = v
	}
	if v := os.Getenv("TANDEM_GATE_STRATEGY"); v != "" {
		cfg.Gate.Strategy = v
	}
	if v := os.Getenv("TANDEM_GATE_ARTIFACT"); v != "" {
		cfg.Gate.Artifact = v
	}
	if v := os.Getenv("TANDEM_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Routing.MaxParallel = n
		}
	}
	if v := os.Getenv("TANDEM_EVAL_URL"); v != "" {
		cfg.Eval.ServerURL = v
	}
	if v := os.Getenv("TANDEM_EVAL_TEAM"); v != "" {
		cfg.Eval.Team = v
	}
}
