package lcr

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Inputs is the complete typed input set for one valuation date.
type Inputs struct {
	AsOfDate  time.Time
	Positions []AssetPosition
	Deposits  []DepositPosition
	FX        FXTable
}

// Result is the outcome of one calculation run: the snapshot, the audit
// trail of exclusions, and every alert the run raised.
type Result struct {
	Snapshot Snapshot
	Excluded []ExcludedPosition
	Flags    []DataQualityFlag
	Alerts   []Alert
}

// Options tune an Engine.
type Options struct {
	ReportingCurrency string
	Workers           int
	MaterialityPct    decimal.Decimal
}

// Engine runs the four-stage pipeline for one date: classify, cap, outflow,
// ratio/alerts. Per-row stages are sharded across workers; the stages
// themselves are strictly sequential because each consumes the prior stage's
// aggregate.
type Engine struct {
	table          RateTable
	currency       string
	workers        int
	materialityPct decimal.Decimal
	logger         zerolog.Logger
}

// NewEngine builds an engine bound to one versioned rate table.
func NewEngine(table RateTable, opts Options, logger zerolog.Logger) (*Engine, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	currency := opts.ReportingCurrency
	if currency == "" {
		currency = "CHF"
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	materiality := opts.MaterialityPct
	if materiality.IsZero() {
		materiality = decimal.NewFromInt(1)
	}
	return &Engine{
		table:          table,
		currency:       currency,
		workers:        workers,
		materialityPct: materiality,
		logger:         logger.With().Str("component", "engine").Logger(),
	}, nil
}

// Compute executes one run. Recomputing from identical inputs reproduces an
// identical snapshot. Per-row defects are recovered locally and flagged; a
// run left without a valid total (zero outflow, unconvertible deposit) comes
// back with an incomplete snapshot and a critical alert instead of a ratio.
// Prior is the previous complete snapshot, if any, for volatility checks.
func (e *Engine) Compute(ctx context.Context, inputs Inputs, prior *Snapshot) (*Result, error) {
	classified, err := e.classifyParallel(ctx, inputs)
	if err != nil {
		return nil, err
	}

	capped := EnforceLevel2Cap(
		classified.Level1Total,
		classified.Level2AAdjusted,
		classified.Level2BAdjusted,
		e.table,
	)

	outflows, err := e.outflowParallel(ctx, inputs)
	if err != nil {
		if errors.Is(err, ErrMissingFXRate) {
			return e.incompleteRun(inputs, classified, capped, OutflowResult{}, prior, err), nil
		}
		return nil, err
	}

	flags := make([]DataQualityFlag, 0, len(classified.Flags)+len(outflows.Flags))
	flags = append(flags, classified.Flags...)
	flags = append(flags, outflows.Flags...)

	ratio, err := ComputeRatio(capped.CappedHQLA, outflows.Total)
	if err != nil {
		return e.incompleteRun(inputs, classified, capped, outflows, prior, err), nil
	}

	rounded := ratio.Round(1)
	snapshot := Snapshot{
		AsOfDate:         inputs.AsOfDate,
		Currency:         e.currency,
		Status:           StatusComplete,
		Level1Total:      classified.Level1Total,
		Level2AAdjusted:  classified.Level2AAdjusted,
		Level2BAdjusted:  classified.Level2BAdjusted,
		Discarded2A:      capped.Discarded2A,
		Discarded2B:      capped.Discarded2B,
		CapTriggered:     capped.Triggered,
		CappedHQLA:       capped.CappedHQLA,
		TotalOutflow:     outflows.Total,
		OutflowBySegment: outflows.BySegment,
		Ratio:            ratio,
		RatioRounded:     rounded,
		Classification:   ClassifyRatio(ratio, e.table),
		BufferAmount:     capped.CappedHQLA.Sub(outflows.Total),
		BufferPct:        rounded.Sub(hundred),
	}

	alerts := EvaluateAlerts(AlertContext{
		Current:        snapshot,
		Prior:          prior,
		Flags:          flags,
		GrossValue:     classified.GrossValue,
		MaterialityPct: e.materialityPct,
	}, e.table)

	e.logger.Info().
		Time("as_of_date", inputs.AsOfDate).
		Str("ratio", rounded.StringFixed(1)).
		Str("classification", string(snapshot.Classification)).
		Bool("cap_triggered", snapshot.CapTriggered).
		Int("alerts", len(alerts)).
		Int("excluded", len(classified.Excluded)).
		Msg("run complete")

	return &Result{
		Snapshot: snapshot,
		Excluded: classified.Excluded,
		Flags:    flags,
		Alerts:   alerts,
	}, nil
}

// incompleteRun builds the explicit incomplete marker for an aborted date:
// no ratio, no classification, a critical alert carrying the failure.
func (e *Engine) incompleteRun(inputs Inputs, classified ClassificationResult, capped CapResult, outflows OutflowResult, prior *Snapshot, cause error) *Result {
	snapshot := Snapshot{
		AsOfDate:         inputs.AsOfDate,
		Currency:         e.currency,
		Status:           StatusIncomplete,
		FailureReason:    cause.Error(),
		Level1Total:      classified.Level1Total,
		Level2AAdjusted:  classified.Level2AAdjusted,
		Level2BAdjusted:  classified.Level2BAdjusted,
		Discarded2A:      capped.Discarded2A,
		Discarded2B:      capped.Discarded2B,
		CapTriggered:     capped.Triggered,
		CappedHQLA:       capped.CappedHQLA,
		TotalOutflow:     outflows.Total,
		OutflowBySegment: outflows.BySegment,
	}

	flags := make([]DataQualityFlag, 0, len(classified.Flags)+len(outflows.Flags)+1)
	flags = append(flags, classified.Flags...)
	flags = append(flags, outflows.Flags...)
	flags = append(flags, DataQualityFlag{
		Stage:    "aggregate",
		RefID:    inputs.AsOfDate.Format("2006-01-02"),
		Reason:   cause.Error(),
		Severity: SeverityCritical,
		Amount:   decimal.Zero,
	})

	alerts := EvaluateAlerts(AlertContext{
		Current:        snapshot,
		Prior:          prior,
		Flags:          flags,
		GrossValue:     classified.GrossValue,
		MaterialityPct: e.materialityPct,
	}, e.table)

	e.logger.Error().
		Time("as_of_date", inputs.AsOfDate).
		Err(cause).
		Msg("run incomplete; no ratio published")

	return &Result{
		Snapshot: snapshot,
		Excluded: classified.Excluded,
		Flags:    flags,
		Alerts:   alerts,
	}
}

// classifyParallel shards positions across workers and reduces the shard
// results in index order, so the outcome is independent of scheduling.
func (e *Engine) classifyParallel(ctx context.Context, inputs Inputs) (ClassificationResult, error) {
	shards := shardCount(len(inputs.Positions), e.workers)
	if shards <= 1 {
		return ClassifyPositions(inputs.Positions, inputs.FX, e.table), nil
	}

	partials := make([]ClassificationResult, shards)
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < shards; i++ {
		i := i
		lo, hi := shardBounds(len(inputs.Positions), shards, i)
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			partials[i] = ClassifyPositions(inputs.Positions[lo:hi], inputs.FX, e.table)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return ClassificationResult{}, err
	}

	merged := ClassificationResult{
		Level1Total:     decimal.Zero,
		Level2AAdjusted: decimal.Zero,
		Level2BAdjusted: decimal.Zero,
		GrossValue:      decimal.Zero,
	}
	for i := range partials {
		merged.merge(partials[i])
	}
	return merged, nil
}

func (e *Engine) outflowParallel(ctx context.Context, inputs Inputs) (OutflowResult, error) {
	shards := shardCount(len(inputs.Deposits), e.workers)
	if shards <= 1 {
		return ComputeOutflows(inputs.Deposits, inputs.FX, e.table)
	}

	partials := make([]OutflowResult, shards)
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < shards; i++ {
		i := i
		lo, hi := shardBounds(len(inputs.Deposits), shards, i)
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			partial, err := ComputeOutflows(inputs.Deposits[lo:hi], inputs.FX, e.table)
			if err != nil {
				return err
			}
			partials[i] = partial
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return OutflowResult{}, err
	}

	merged := OutflowResult{
		Total:     decimal.Zero,
		BySegment: make(map[Segment]decimal.Decimal),
	}
	for i := range partials {
		merged.merge(partials[i])
	}
	return merged, nil
}

func shardCount(rows, workers int) int {
	if workers < 1 {
		return 1
	}
	if rows < workers {
		if rows == 0 {
			return 1
		}
		return rows
	}
	return workers
}

func shardBounds(rows, shards, index int) (int, int) {
	size := rows / shards
	rem := rows % shards
	lo := index*size + min(index, rem)
	hi := lo + size
	if index < rem {
		hi++
	}
	return lo, hi
}
