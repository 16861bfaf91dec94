package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"lcr-engine/internal/storage"
)

// Show prints recent snapshots with their day-over-day change, optionally
// followed by recent alert events.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show snapshots")
	}
	if closeStore != nil {
		defer closeStore()
	}

	snapshots, err := store.ListRecentSnapshots(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tVer\tHQLA\tOutflow\tRatio%\tΔ Ratio\tClass\tCap\tStatus\tError")

	for i, snap := range snapshots {
		errMsg := ""
		if snap.FailureReason != nil {
			errMsg = sanitizeInline(*snap.FailureReason)
		}
		ratio := ""
		class := ""
		if snap.Ratio != nil {
			ratio = snap.Ratio.Round(1).StringFixed(1)
		}
		if snap.Classification != nil {
			class = *snap.Classification
		}
		capFlag := ""
		if snap.CapTriggered {
			capFlag = "yes"
		}
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			snap.AsOfDate.Format("2006-01-02"),
			snap.Version,
			snap.CappedHQLA.StringFixed(0),
			snap.TotalOutflow.StringFixed(0),
			ratio,
			dayOverDay(snapshots, i),
			class,
			capFlag,
			snap.Status,
			errMsg,
		)
	}
	writer.Flush()

	if summary := trendSummary(snapshots); summary != "" {
		fmt.Fprintln(os.Stdout, summary)
	}

	if !opts.Alerts {
		return nil
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}

	fmt.Fprintln(os.Stdout)
	alertWriter := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(alertWriter, "Date\tAlert\tSeverity\tReason")
	for _, alert := range alerts {
		fmt.Fprintf(alertWriter, "%s\t%s\t%s\t%s\n",
			alert.AsOfDate.Format("2006-01-02"),
			alert.AlertType,
			alert.Severity,
			sanitizeInline(alert.Reason),
		)
	}
	return alertWriter.Flush()
}

// dayOverDay derives the ratio change versus the next older snapshot in the
// newest-first listing.
func dayOverDay(snapshots []storage.SnapshotRecord, i int) string {
	if i+1 >= len(snapshots) {
		return ""
	}
	current, prior := snapshots[i], snapshots[i+1]
	if current.Ratio == nil || prior.Ratio == nil {
		return ""
	}
	delta := current.Ratio.Sub(*prior.Ratio)
	if delta.GreaterThanOrEqual(decimal.Zero) {
		return "+" + delta.StringFixed(1)
	}
	return delta.StringFixed(1)
}

// trendSummary aggregates the displayed window: min, max, and average ratio
// across the complete snapshots in it.
func trendSummary(snapshots []storage.SnapshotRecord) string {
	var (
		count    int
		minRatio decimal.Decimal
		maxRatio decimal.Decimal
		sum      decimal.Decimal
	)
	for _, snap := range snapshots {
		if snap.Ratio == nil {
			continue
		}
		r := *snap.Ratio
		if count == 0 {
			minRatio, maxRatio = r, r
		} else {
			minRatio = decimal.Min(minRatio, r)
			maxRatio = decimal.Max(maxRatio, r)
		}
		sum = sum.Add(r)
		count++
	}
	if count == 0 {
		return ""
	}
	avg := sum.Div(decimal.NewFromInt(int64(count)))
	return fmt.Sprintf("\nWindow: min %s%%  max %s%%  avg %s%% over %d complete snapshots",
		minRatio.Round(1).StringFixed(1), maxRatio.Round(1).StringFixed(1), avg.Round(1).StringFixed(1), count)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
