package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"lcr-engine/internal/storage"
)

// Export renders snapshot history as CSV and/or a ratio trend PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -opts.MaxPoints)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	snapshots, err := store.ListSnapshotsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		a.Logger.Info().Msg("no snapshots found for export window")
		return nil
	}
	if len(snapshots) > opts.MaxPoints {
		snapshots = snapshots[len(snapshots)-opts.MaxPoints:]
	}

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, snapshots); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("rows", len(snapshots)).Msg("CSV export written")
	}

	if opts.PNGPath != "" {
		if err := writeTrendPNG(opts.PNGPath, snapshots); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Msg("trend chart written")
	}

	return nil
}

func writeSnapshotsCSV(path string, snapshots []storage.SnapshotRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"as_of_date", "version", "status", "currency",
		"level1_total", "level2a_adjusted", "level2b_adjusted",
		"discarded_2a", "discarded_2b", "cap_triggered",
		"capped_hqla", "total_outflow", "ratio", "classification",
		"buffer_amount", "buffer_pct", "failure_reason",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snap := range snapshots {
		ratio := ""
		if snap.Ratio != nil {
			ratio = snap.Ratio.String()
		}
		class := ""
		if snap.Classification != nil {
			class = *snap.Classification
		}
		errMsg := ""
		if snap.FailureReason != nil {
			errMsg = sanitizeInline(*snap.FailureReason)
		}
		record := []string{
			snap.AsOfDate.Format("2006-01-02"),
			fmt.Sprintf("%d", snap.Version),
			snap.Status,
			snap.Currency,
			snap.Level1Total.String(),
			snap.Level2AAdjusted.String(),
			snap.Level2BAdjusted.String(),
			snap.Discarded2A.String(),
			snap.Discarded2B.String(),
			fmt.Sprintf("%t", snap.CapTriggered),
			snap.CappedHQLA.String(),
			snap.TotalOutflow.String(),
			ratio,
			class,
			snap.BufferAmount.String(),
			snap.BufferPct.String(),
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeTrendPNG(path string, snapshots []storage.SnapshotRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var x []time.Time
	var ratios []float64
	for _, snap := range snapshots {
		if snap.Ratio == nil {
			continue
		}
		x = append(x, snap.AsOfDate)
		ratios = append(ratios, snap.Ratio.InexactFloat64())
	}
	if len(x) < 2 {
		return errors.New("need at least two complete snapshots to chart a trend")
	}

	minimum := constantSeries(x, 100.0)
	warning := constantSeries(x, 95.0)

	ratioFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "LCR (%)",
			ValueFormatter: ratioFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "LCR ratio",
				XValues: x,
				YValues: ratios,
			},
			chart.TimeSeries{
				Name:    "Regulatory minimum (100%)",
				XValues: x,
				YValues: minimum,
				Style: chart.Style{
					StrokeColor:     drawing.ColorRed,
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
			chart.TimeSeries{
				Name:    "Fail threshold (95%)",
				XValues: x,
				YValues: warning,
				Style: chart.Style{
					StrokeColor:     drawing.ColorFromHex("e67e22"),
					StrokeDashArray: []float64{2.0, 4.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func constantSeries(x []time.Time, value float64) []float64 {
	values := make([]float64, len(x))
	for i := range values {
		values[i] = value
	}
	return values
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
