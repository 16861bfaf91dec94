package lcr

import "github.com/shopspring/decimal"

// CapResult carries the outcome of enforcing the Level-2 concentration cap.
type CapResult struct {
	CappedHQLA   decimal.Decimal
	CappedLevel2 decimal.Decimal
	MaxLevel2    decimal.Decimal
	Discarded2A  decimal.Decimal
	Discarded2B  decimal.Decimal
	Triggered    bool
}

// EnforceLevel2Cap limits combined Level-2 assets to the capped fraction of
// the Level-1 total (2/3 under FINMA 2015/2, equivalently Level-2 at most 40%
// of capped HQLA). Excess is discarded from Level-2B before Level-2A: 2B is
// the lower-quality tier and is always sacrificed first. The triggered flag
// comes from the comparison itself, not from a nonzero discard.
func EnforceLevel2Cap(level1, level2A, level2B decimal.Decimal, table RateTable) CapResult {
	maxLevel2 := table.MaxLevel2(level1)
	level2 := level2A.Add(level2B)

	result := CapResult{
		MaxLevel2:   maxLevel2,
		Discarded2A: decimal.Zero,
		Discarded2B: decimal.Zero,
	}

	if level2.LessThanOrEqual(maxLevel2) {
		result.CappedLevel2 = level2
		result.CappedHQLA = level1.Add(level2)
		return result
	}

	result.Triggered = true
	excess := level2.Sub(maxLevel2)

	result.Discarded2B = decimal.Min(excess, level2B)
	excess = excess.Sub(result.Discarded2B)
	if excess.IsPositive() {
		result.Discarded2A = decimal.Min(excess, level2A)
	}

	result.CappedLevel2 = level2B.Sub(result.Discarded2B).Add(level2A.Sub(result.Discarded2A))
	result.CappedHQLA = level1.Add(result.CappedLevel2)
	return result
}
