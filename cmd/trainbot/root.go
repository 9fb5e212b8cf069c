package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/trainbot/internal/config"
	"github.com/ashureev/trainbot/internal/logging"
	"github.com/ashureev/trainbot/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "trainbot",
		Short:         "Look up and edit the training plan through chat.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if err := godotenv.Load(); err != nil {
				slog.Debug("No .env file found, using environment variables")
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	addServe(cmd)
	addShow(cmd)
	addSet(cmd)
	return cmd
}

// openStore loads the store settings and opens the record backend for the
// one-shot commands.
func openStore(ctx context.Context) (*config.Config, store.RecordStore, func(), error) {
	cfg, err := config.LoadForCLI()
	if err != nil {
		return nil, nil, nil, err
	}
	logCloser := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, nil, fmt.Errorf("open record store: %w", err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			slog.Error("Failed to close record store", "error", err)
		}
		_ = logCloser.Close()
	}
	return cfg, st, cleanup, nil
}
