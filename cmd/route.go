package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/route"
)

func newRouteCmd() *cobra.Command {
	var (
		catalogPath string
		eventsOn    bool
	)

	cmd := &cobra.Command{
		Use:   "route [request text]",
		Short: "Route one request to function calls",
		Long: "Route a natural-language request to tool calls and print the result as JSON.\n" +
			"Without --catalog the built-in assistant catalog is used.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			cat, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}

			cfg := initConfig()
			o, err := buildOrchestrator(cfg, cat)
			if err != nil {
				return err
			}
			defer o.Close()

			if eventsOn {
				el, err := route.NewEventLogger(sessionID())
				if err != nil {
					fmt.Fprintf(os.Stderr, "Warning: event log disabled: %v\n", err)
				} else {
					defer el.Close()
					o.SetEventLogger(el)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := o.Route(ctx, text)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "tool catalog JSON file (default: built-in assistant tools)")
	cmd.Flags().BoolVar(&eventsOn, "events", false, "write a JSONL event trail for this request")
	return cmd
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Builtin(), nil
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

func sessionID() string {
	return time.Now().UTC().Format("20060102-150405")
}
