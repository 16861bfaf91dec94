package lcr

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RateTable is the versioned set of regulatory parameters a run is computed
// against. Tables are explicit data, not globals, so historical snapshots can
// be reproduced against the table in force on their date.
type RateTable struct {
	Version       string
	EffectiveFrom time.Time

	// Haircuts per eligible tier, as fractions of market value.
	Haircuts map[Tier]decimal.Decimal

	// RunOff holds the base 30-day stressed run-off rate per segment.
	RunOff map[Segment]decimal.Decimal

	// Relationship adjustments, applied additively before clamping.
	MultiProductDiscount   decimal.Decimal
	MultiProductMinCount   int
	DirectDebitDiscount    decimal.Decimal
	NewRelationshipPremium decimal.Decimal
	TenureFloorMonths      int

	// Level-2 cap as an exact fraction of the Level-1 total.
	Level2CapNumerator   int64
	Level2CapDenominator int64

	// Classification and alerting thresholds, in ratio percentage points.
	PassThreshold         decimal.Decimal
	FailThreshold         decimal.Decimal
	EarlyWarningThreshold decimal.Decimal
	VolatilityThreshold   decimal.Decimal
}

// MaxLevel2 returns the largest combined Level-2 value the cap permits.
func (t RateTable) MaxLevel2(level1 decimal.Decimal) decimal.Decimal {
	return level1.
		Mul(decimal.NewFromInt(t.Level2CapNumerator)).
		Div(decimal.NewFromInt(t.Level2CapDenominator))
}

// Haircut returns the fraction discounted from a tier's market value.
func (t RateTable) Haircut(tier Tier) (decimal.Decimal, bool) {
	h, ok := t.Haircuts[tier]
	return h, ok
}

// BaseRunOff returns the base run-off rate for a segment.
func (t RateTable) BaseRunOff(segment Segment) (decimal.Decimal, bool) {
	r, ok := t.RunOff[segment]
	return r, ok
}

// Validate rejects tables that cannot drive a run.
func (t RateTable) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("rate table: version is required")
	}
	if t.Level2CapDenominator == 0 {
		return fmt.Errorf("rate table %s: level2 cap denominator is zero", t.Version)
	}
	for _, tier := range []Tier{TierLevel1, TierLevel2A, TierLevel2B} {
		h, ok := t.Haircuts[tier]
		if !ok {
			return fmt.Errorf("rate table %s: missing haircut for tier %s", t.Version, tier)
		}
		if h.IsNegative() || h.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("rate table %s: haircut for tier %s out of [0,1]", t.Version, tier)
		}
	}
	for _, segment := range AllSegments() {
		r, ok := t.RunOff[segment]
		if !ok {
			return fmt.Errorf("rate table %s: missing run-off rate for segment %s", t.Version, segment)
		}
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("rate table %s: run-off rate for segment %s out of [0,1]", t.Version, segment)
		}
	}
	if t.FailThreshold.GreaterThan(t.PassThreshold) {
		return fmt.Errorf("rate table %s: fail threshold above pass threshold", t.Version)
	}
	if !t.VolatilityThreshold.IsPositive() {
		return fmt.Errorf("rate table %s: volatility threshold must be positive", t.Version)
	}
	return nil
}

// AllSegments lists every defined deposit segment.
func AllSegments() []Segment {
	return []Segment{
		SegmentRetailStable,
		SegmentRetailInsured,
		SegmentRetailLessStable,
		SegmentCorporateOps,
		SegmentCorporateNonOps,
		SegmentFinancialInst,
		SegmentWholesaleFunding,
	}
}

// DefaultRateTable returns the FINMA Circular 2015/2 parameters.
func DefaultRateTable() RateTable {
	return RateTable{
		Version:       "finma-2015-02",
		EffectiveFrom: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		Haircuts: map[Tier]decimal.Decimal{
			TierLevel1:  decimal.Zero,
			TierLevel2A: decimal.RequireFromString("0.15"),
			TierLevel2B: decimal.RequireFromString("0.50"),
		},
		RunOff: map[Segment]decimal.Decimal{
			SegmentRetailStable:     decimal.RequireFromString("0.05"),
			SegmentRetailInsured:    decimal.RequireFromString("0.03"),
			SegmentRetailLessStable: decimal.RequireFromString("0.10"),
			SegmentCorporateOps:     decimal.RequireFromString("0.25"),
			SegmentCorporateNonOps:  decimal.RequireFromString("0.40"),
			SegmentFinancialInst:    decimal.NewFromInt(1),
			SegmentWholesaleFunding: decimal.NewFromInt(1),
		},
		MultiProductDiscount:   decimal.RequireFromString("0.02"),
		MultiProductMinCount:   3,
		DirectDebitDiscount:    decimal.RequireFromString("0.01"),
		NewRelationshipPremium: decimal.RequireFromString("0.05"),
		TenureFloorMonths:      18,
		Level2CapNumerator:     2,
		Level2CapDenominator:   3,
		PassThreshold:          decimal.NewFromInt(100),
		FailThreshold:          decimal.NewFromInt(95),
		EarlyWarningThreshold:  decimal.NewFromInt(105),
		VolatilityThreshold:    decimal.NewFromInt(10),
	}
}
