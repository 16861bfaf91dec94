package lcr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMissingFXRate aborts a run when a deposit's currency cannot be
// converted. There is no conservative local recovery for deposits: excluding
// the balance would understate outflow, so the run fails fast instead.
var ErrMissingFXRate = errors.New("lcr: missing fx rate")

// OutflowResult aggregates the stressed 30-day outflow for one date.
type OutflowResult struct {
	Total     decimal.Decimal
	BySegment map[Segment]decimal.Decimal
	Flags     []DataQualityFlag
}

// EffectiveRunOff derives the run-off rate for a deposit: the segment base
// rate plus every applicable relationship adjustment, clamped to [0,1].
// An unrecognized segment fails closed at 100% and is reported via the
// returned flag, never silently dropped or rated at zero.
func EffectiveRunOff(d DepositPosition, table RateTable) (decimal.Decimal, *DataQualityFlag) {
	base, known := table.BaseRunOff(d.Segment)
	if !known {
		flag := &DataQualityFlag{
			Stage:    "outflow",
			RefID:    d.PositionID,
			Reason:   fmt.Sprintf("unknown deposit segment %q, applied 100%% run-off", d.Segment),
			Severity: SeverityHigh,
			Amount:   d.Balance,
		}
		return decimal.NewFromInt(1), flag
	}

	rate := base
	if d.ActiveProducts >= table.MultiProductMinCount {
		rate = rate.Sub(table.MultiProductDiscount)
	}
	if d.HasDirectDebit {
		rate = rate.Sub(table.DirectDebitDiscount)
	}
	if d.TenureMonths < table.TenureFloorMonths {
		rate = rate.Add(table.NewRelationshipPremium)
	}

	if rate.IsNegative() {
		rate = decimal.Zero
	}
	one := decimal.NewFromInt(1)
	if rate.GreaterThan(one) {
		rate = one
	}
	return rate, nil
}

// ComputeOutflows converts every deposit to the reporting currency, applies
// its effective run-off rate, and totals the stressed outflow per segment.
func ComputeOutflows(deposits []DepositPosition, fx FXTable, table RateTable) (OutflowResult, error) {
	result := OutflowResult{
		Total:     decimal.Zero,
		BySegment: make(map[Segment]decimal.Decimal),
	}

	for _, d := range deposits {
		converted, ok := fx.Convert(d.Balance, d.Currency)
		if !ok {
			return OutflowResult{}, fmt.Errorf("%w: deposit %s in %s on %s",
				ErrMissingFXRate, d.PositionID, d.Currency, fx.Date.Format("2006-01-02"))
		}

		rate, flag := EffectiveRunOff(d, table)
		if flag != nil {
			result.Flags = append(result.Flags, *flag)
		}

		outflow := converted.Mul(rate)
		result.Total = result.Total.Add(outflow)
		result.BySegment[d.Segment] = result.BySegment[d.Segment].Add(outflow)
	}

	return result, nil
}

func (r *OutflowResult) merge(other OutflowResult) {
	r.Total = r.Total.Add(other.Total)
	for segment, amount := range other.BySegment {
		r.BySegment[segment] = r.BySegment[segment].Add(amount)
	}
	r.Flags = append(r.Flags, other.Flags...)
}
