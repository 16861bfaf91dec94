package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"lcr-engine/internal/lcr"
	"lcr-engine/internal/storage"
)

// Compute executes one on-demand run for a valuation date and prints the
// outcome. With DryRun set, nothing is persisted.
func (a *App) Compute(ctx context.Context, opts ComputeOptions) error {
	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("compute dry-run: snapshot will not be persisted")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			a.Logger.Warn().Msg("database.dsn not configured; snapshot persistence disabled")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	svc, err := a.newService(nil, store)
	if err != nil {
		return err
	}

	result, err := svc.ComputeDate(ctx, opts.Date.UTC())
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

func printResult(result *lcr.Result) {
	s := result.Snapshot
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(writer, "As of\t%s\n", s.AsOfDate.Format("2006-01-02"))
	fmt.Fprintf(writer, "Status\t%s\n", s.Status)
	if !s.Complete() {
		fmt.Fprintf(writer, "Reason\t%s\n", s.FailureReason)
	}
	fmt.Fprintf(writer, "Level 1\t%s %s\n", s.Level1Total.StringFixed(2), s.Currency)
	fmt.Fprintf(writer, "Level 2A (adj)\t%s %s\n", s.Level2AAdjusted.StringFixed(2), s.Currency)
	fmt.Fprintf(writer, "Level 2B (adj)\t%s %s\n", s.Level2BAdjusted.StringFixed(2), s.Currency)
	if s.CapTriggered {
		fmt.Fprintf(writer, "Cap discards\t2B %s / 2A %s\n", s.Discarded2B.StringFixed(2), s.Discarded2A.StringFixed(2))
	}
	fmt.Fprintf(writer, "Capped HQLA\t%s %s\n", s.CappedHQLA.StringFixed(2), s.Currency)
	fmt.Fprintf(writer, "Total outflow\t%s %s\n", s.TotalOutflow.StringFixed(2), s.Currency)
	if s.Complete() {
		fmt.Fprintf(writer, "LCR ratio\t%s%%\n", s.RatioRounded.StringFixed(1))
		fmt.Fprintf(writer, "Classification\t%s\n", s.Classification)
		fmt.Fprintf(writer, "Buffer\t%s %s (%s pts)\n", s.BufferAmount.StringFixed(2), s.Currency, s.BufferPct.StringFixed(1))
	}
	fmt.Fprintf(writer, "Excluded positions\t%d\n", len(result.Excluded))
	writer.Flush()

	if len(result.Alerts) > 0 {
		fmt.Fprintln(os.Stdout)
		alertWriter := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(alertWriter, "Alert\tSeverity\tReason")
		for _, alert := range result.Alerts {
			fmt.Fprintf(alertWriter, "%s\t%s\t%s\n", alert.Type, alert.Severity, alert.Reason)
		}
		alertWriter.Flush()
	}
}
