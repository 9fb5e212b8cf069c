package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/spf13/cobra"
)

func addShow(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "show DATE",
		Short: "Print the training record for a date (DD.MM.YYYY or today).",
		Example: `
trainbot show 18.10.2026
trainbot show today
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			_, rec, err := st.FindByDate(ctx, date)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.Summary())
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

// resolveDate validates a DD.MM.YYYY argument and expands "today".
func resolveDate(arg string, loc *time.Location) (string, error) {
	arg = strings.TrimSpace(arg)
	if strings.EqualFold(arg, "today") {
		return domain.FormatDate(time.Now().In(loc)), nil
	}
	if _, err := domain.ParseDate(arg); err != nil {
		return "", err
	}
	return arg, nil
}
