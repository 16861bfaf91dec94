package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lcr-engine/internal/app"
)

var (
	computeDate   string
	computeDryRun bool
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Run one calculation for a valuation date",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := time.Now().UTC().Truncate(24 * time.Hour)
		if computeDate != "" {
			parsed, err := time.Parse("2006-01-02", computeDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			date = parsed
		}

		opts := app.ComputeOptions{
			Date:   date,
			DryRun: computeDryRun,
		}

		return getApp().Compute(cmd.Context(), opts)
	},
}

func init() {
	computeCmd.Flags().StringVar(&computeDate, "date", "", "Valuation date (YYYY-MM-DD, defaults to today)")
	computeCmd.Flags().BoolVar(&computeDryRun, "dry-run", false, "Compute without persisting the snapshot")
}
