package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/config"
	"github.com/tandem-ai/tandem/internal/eval"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate routing quality",
	}
	cmd.AddCommand(newEvalRunCmd())
	cmd.AddCommand(newEvalSubmitCmd())
	return cmd
}

// evalFactory builds a fresh router per evaluation case, since each case
// carries its own tool catalog.
func evalFactory(cfg *config.Config) (eval.RouterFactory, func(), error) {
	// Probe adapter construction once so misconfiguration fails up front
	// instead of on case one.
	probe, err := buildOrchestrator(cfg, catalog.Builtin())
	if err != nil {
		return nil, nil, err
	}

	factory := func(cat *catalog.Catalog) eval.Router {
		o, err := buildOrchestrator(cfg, cat)
		if err != nil {
			// Construction succeeded during the probe; a failure here
			// means the environment changed mid-run.
			fmt.Fprintf(os.Stderr, "Error rebuilding router: %v\n", err)
			os.Exit(1)
		}
		return o
	}
	return factory, func() { probe.Close() }, nil
}

func newEvalRunCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run <dataset.json>",
		Short: "Score the router against a local dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := eval.LoadDataset(args[0])
			if err != nil {
				return err
			}

			cfg := initConfig()
			factory, cleanup, err := evalFactory(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, results := eval.EvaluateDataset(ctx, ds, factory)
			for _, r := range results {
				if !verbose && r.F1 == 1 && r.Err == "" {
					continue
				}
				status := "ok "
				if r.F1 < 1 {
					status = "MISS"
				}
				if r.Err != "" {
					status = "ERR "
				}
				fmt.Printf("%s %-30s f1=%.2f %6.0fms %s %s\n",
					status, r.ID, r.F1, r.TimeMS, r.Source, r.Err)
			}

			fmt.Printf("\n%d cases | %d perfect | avg F1 %.4f | avg %.0fms | %.0f%% on-device\n",
				summary.Total, summary.Perfect, summary.AvgF1, summary.AvgTimeMS, summary.OnDevicePct)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every case, not just failures")
	return cmd
}

func newEvalSubmitCmd() *cobra.Command {
	var (
		serverURL string
		team      string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Run a scored session against the evaluation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			if serverURL == "" {
				serverURL = cfg.Eval.ServerURL
			}
			if team == "" {
				team = cfg.Eval.Team
			}
			if serverURL == "" {
				return fmt.Errorf("no evaluation server configured; pass --server or set eval.server_url")
			}
			if team == "" {
				return fmt.Errorf("no team name configured; pass --team or set eval.team")
			}

			factory, cleanup, err := evalFactory(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := eval.NewClient(serverURL, team)
			final, err := client.Run(ctx, factory, func(cs eval.CaseScore) {
				fmt.Printf("[%d] %-30s F1=%.2f | %6.0fms | %s\n",
					cs.Case.CaseNumber, cs.Case.ID, cs.F1, cs.Result.TotalTimeMS, cs.Result.Source)
			})
			if err != nil {
				return err
			}

			fmt.Printf("\nResults for team %q\n", final.Team)
			fmt.Printf("  Total score : %.1f%%\n", final.Score)
			fmt.Printf("  Avg F1      : %.4f\n", final.F1)
			fmt.Printf("  Avg time    : %.0fms\n", final.AvgTimeMS)
			fmt.Printf("  On-device   : %.0f%%\n", final.OnDevicePct)
			if final.LeaderboardUpdated {
				fmt.Println("  Leaderboard : updated")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "evaluation server base URL")
	cmd.Flags().StringVar(&team, "team", "", "team name for the leaderboard")
	return cmd
}
