package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/complexity"
	"github.com/tandem-ai/tandem/internal/config"
	"github.com/tandem-ai/tandem/internal/gate"
	"github.com/tandem-ai/tandem/internal/inference"
	"github.com/tandem-ai/tandem/internal/route"
)

var (
	cfgFile      string
	modelFlag    string
	providerFlag string
	localOnly    bool
	cloudOnly    bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:           "tandem",
		Short:         "Hybrid on-device/cloud function-call router",
		Long:          "tandem routes natural-language requests to tool calls, attempting a small on-device model first and escalating to a cloud model only when needed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/tandem/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override remote model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override remote provider")
	rootCmd.PersistentFlags().BoolVar(&localOnly, "local-only", false, "disable the cloud tier")
	rootCmd.PersistentFlags().BoolVar(&cloudOnly, "cloud-only", false, "disable the on-device tier")

	// Subcommands
	rootCmd.AddCommand(newRouteCmd())
	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tandem v%s (%s, built %s)\n", version, commit, date)
		},
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}

	return cfg
}

// buildRemote creates the cloud-tier adapter from configuration.
func buildRemote(cfg *config.Config) (inference.Adapter, error) {
	if localOnly {
		return nil, nil
	}
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	if pc.APIKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY",
			name, name,
		)
	}

	switch name {
	case "anthropic":
		return inference.NewAnthropic(pc.APIKey, pc.Model), nil
	default:
		// All other providers use the OpenAI-compatible API.
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
		}
		return inference.NewOpenAI(pc.APIKey, pc.BaseURL, pc.Model), nil
	}
}

// buildLocal creates the on-device adapter from configuration.
func buildLocal(cfg *config.Config) (inference.Adapter, error) {
	if cloudOnly {
		return nil, nil
	}
	return inference.NewOllama(cfg.Local.BaseURL, cfg.Local.Model)
}

// buildGate constructs the configured gating strategy.
func buildGate(cfg *config.Config) (gate.Gate, error) {
	strategy, err := gate.NormalizeStrategy(cfg.Gate.Strategy)
	if err != nil {
		return nil, err
	}
	thresholds := gate.Thresholds{
		FailFast: cfg.Gate.FailFast,
		Base:     cfg.Gate.Base,
		Scale:    cfg.Gate.Scale,
		Cap:      cfg.Gate.Cap,
	}

	switch strategy {
	case gate.StrategyMargin:
		artifact, err := loadGateArtifact(cfg.Gate.Artifact)
		if err != nil {
			return nil, err
		}
		return gate.NewMargin(artifact, thresholds.Base), nil
	default:
		return gate.NewThreshold(thresholds), nil
	}
}

func loadGateArtifact(path string) (*gate.Artifact, error) {
	if path == "" {
		return gate.DefaultArtifact()
	}
	return gate.LoadArtifact(path)
}

// buildOrchestrator wires config, adapters and gate into a router over cat.
func buildOrchestrator(cfg *config.Config, cat *catalog.Catalog) (*route.Orchestrator, error) {
	local, err := buildLocal(cfg)
	if err != nil {
		return nil, fmt.Errorf("local adapter: %w", err)
	}
	remote, err := buildRemote(cfg)
	if err != nil {
		if local == nil {
			return nil, err
		}
		// Degrade to device-only routing when only the cloud tier is broken.
		fmt.Fprintf(os.Stderr, "Warning: cloud tier disabled: %v\n", err)
	}

	g, err := buildGate(cfg)
	if err != nil {
		return nil, err
	}

	o := route.New(cat, local, remote, g, complexity.New(complexity.Weights{
		Intent:         cfg.Weights.Intent,
		ArgDifficulty:  cfg.Weights.ArgDifficulty,
		ToolPressure:   cfg.Weights.ToolPressure,
		Reliability:    cfg.Weights.Reliability,
		ExplicitRelief: cfg.Weights.ExplicitRelief,
	}), route.Options{
		MaxParallel:    cfg.Routing.MaxParallel,
		AttemptTimeout: time.Duration(cfg.Routing.AttemptTimeoutMS) * time.Millisecond,
		LocalAttempts:  cfg.Routing.LocalAttempts,
		NarrowCatalog:  cfg.Routing.NarrowCatalog,
		Knobs: inference.Knobs{
			MaxTokens:   cfg.Local.MaxTokens,
			Temperature: cfg.Local.Temperature,
		},
	})
	o.SetRetryer(inference.Retryer{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:   8 * time.Second,
	})
	return o, nil
}
