package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/ashureev/trainbot/internal/store"
	"github.com/spf13/cobra"
)

func addSet(topLevel *cobra.Command) {
	var appendMode bool

	cmd := &cobra.Command{
		Use:   "set DATE FIELD VALUE",
		Short: "Replace or append one field of a training record.",
		Long:  "Replace or append one field of a training record.\n\nFIELD is one of workout, volume_content or goal.",
		Example: `
trainbot set 18.10.2026 workout "10km run"
trainbot set today goal "and tempo" --append
`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := domain.ParseField(args[1])
			if err != nil {
				return err
			}
			mode := store.Replace
			if appendMode {
				mode = store.Append
			}

			cfg, st, cleanup, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			date, err := resolveDate(args[0], cfg.Location)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.StoreTimeout)
			defer cancel()

			ref, _, err := st.FindByDate(ctx, date)
			if err != nil {
				return err
			}
			if err := st.UpdateField(ctx, ref, field, args[2], mode); err != nil {
				return err
			}
			slog.Info("Training record updated", "date", date, "field", string(field), "mode", mode.String())

			_, rec, err := st.FindByDate(ctx, date)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.Summary())
			return nil
		},
	}
	cmd.Flags().BoolVar(&appendMode, "append", false, "append to the current value instead of replacing it")

	topLevel.AddCommand(cmd)
}
