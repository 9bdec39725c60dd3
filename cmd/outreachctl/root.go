package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/outreach/internal/app"
	"github.com/edvin/outreach/internal/config"
	"github.com/edvin/outreach/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "outreachctl",
		Short: "Operate the outreach campaign scheduler",
		Long: `outreachctl runs dispatch ticks, applies campaign definitions and
inspects scheduler health. Connection settings are read from the same
environment variables as the API server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newDispatchCmd(),
		newMigrateCmd(),
		newApplyCmd(),
		newHealthCmd(),
		newCancelCmd(),
	)
	return root
}

// loadConfig loads and validates configuration for role.
func loadConfig(role string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(role); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logging.NewLogger(cfg), nil
}

// withApp builds the application for role and hands it to fn.
func withApp(ctx context.Context, role string, fn func(a *app.App, logger zerolog.Logger) error) error {
	cfg, logger, err := loadConfig(role)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
