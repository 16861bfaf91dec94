package lcr

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrZeroOutflow marks the arithmetic impossibility of a zero denominator.
// The run for that date is incomplete; no ratio may be published.
var ErrZeroOutflow = errors.New("lcr: total outflow is zero")

var hundred = decimal.NewFromInt(100)

// ComputeRatio derives the coverage ratio in percent at full precision.
func ComputeRatio(cappedHQLA, totalOutflow decimal.Decimal) (decimal.Decimal, error) {
	if totalOutflow.IsZero() {
		return decimal.Zero, ErrZeroOutflow
	}
	return cappedHQLA.Div(totalOutflow).Mul(hundred), nil
}

// ClassifyRatio maps a ratio to its compliance verdict. Classification works
// on the one-decimal rounded value; bands are evaluated in order and are
// mutually exclusive.
func ClassifyRatio(ratio decimal.Decimal, table RateTable) Classification {
	rounded := ratio.Round(1)
	switch {
	case rounded.GreaterThanOrEqual(table.PassThreshold):
		return ClassificationPass
	case rounded.GreaterThanOrEqual(table.FailThreshold):
		return ClassificationWarning
	default:
		return ClassificationFail
	}
}
