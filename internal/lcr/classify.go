package lcr

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RejectionReason explains why a position was excluded from HQLA.
type RejectionReason string

const (
	RejectMaturityUnder30D  RejectionReason = "MATURITY_UNDER_30D"
	RejectAssetClass        RejectionReason = "INELIGIBLE_ASSET_CLASS"
	RejectNotIndexMember    RejectionReason = "NOT_INDEX_CONSTITUENT"
	RejectRatingBelowAA     RejectionReason = "RATING_BELOW_AA_MINUS"
	RejectMissingFXRate     RejectionReason = "MISSING_FX_RATE"
)

// ExcludedPosition records one rejected holding for audit reporting.
type ExcludedPosition struct {
	AssetID     string
	Reason      RejectionReason
	MarketValue decimal.Decimal
	Currency    string
}

// ClassificationResult aggregates one date's eligible holdings by tier.
// Adjusted totals are post-haircut values in the reporting currency.
type ClassificationResult struct {
	Level1Total     decimal.Decimal
	Level2AAdjusted decimal.Decimal
	Level2BAdjusted decimal.Decimal
	Excluded        []ExcludedPosition
	Flags           []DataQualityFlag
	GrossValue      decimal.Decimal
}

// tierByClass maps eligible asset classes to their regulatory tier. Classes
// outside the map are never HQLA regardless of other attributes.
var tierByClass = map[AssetClass]Tier{
	AssetCashSNB:         TierLevel1,
	AssetCashVault:       TierLevel1,
	AssetGovtBondCHF:     TierLevel1,
	AssetGovtBondForeign: TierLevel1,
	AssetCantonBond:      TierLevel2A,
	AssetCoveredBond:     TierLevel2A,
	AssetEquitySMI:       TierLevel2B,
	AssetCorporateBondAA: TierLevel2B,
}

var bondClasses = map[AssetClass]bool{
	AssetGovtBondCHF:     true,
	AssetGovtBondForeign: true,
	AssetCantonBond:      true,
	AssetCoveredBond:     true,
	AssetCorporateBondAA: true,
}

// ratingRank orders issuer ratings best-first. Bonds ranked worse than AA-
// (or carrying an unknown rating) are ineligible.
var ratingRank = map[string]int{
	"AAA":  1,
	"AA+":  2,
	"AA":   3,
	"AA-":  4,
	"A+":   5,
	"A":    6,
	"A-":   7,
	"BBB+": 8,
	"BBB":  9,
	"BBB-": 10,
}

const minBondRatingRank = 4 // AA-

// DeriveTier assigns the regulatory tier of a position purely from its asset
// class, rating, index membership, and days to maturity. An ineligible result
// carries the rejection reason.
func DeriveTier(p AssetPosition) (Tier, RejectionReason) {
	if p.DaysToMaturity != nil && *p.DaysToMaturity < 30 {
		return TierIneligible, RejectMaturityUnder30D
	}
	tier, ok := tierByClass[p.Class]
	if !ok {
		return TierIneligible, RejectAssetClass
	}
	if p.Class == AssetEquitySMI && !p.IndexMember {
		return TierIneligible, RejectNotIndexMember
	}
	if bondClasses[p.Class] {
		rank, known := ratingRank[p.Rating]
		if !known || rank > minBondRatingRank {
			return TierIneligible, RejectRatingBelowAA
		}
	}
	return tier, ""
}

// ClassifyPositions filters ineligible holdings, converts market values to
// the reporting currency, applies tier haircuts, and returns per-tier
// subtotals. Positions with an unresolvable FX rate are excluded and flagged
// as data-quality defects, never priced at zero.
func ClassifyPositions(positions []AssetPosition, fx FXTable, table RateTable) ClassificationResult {
	result := ClassificationResult{
		Level1Total:     decimal.Zero,
		Level2AAdjusted: decimal.Zero,
		Level2BAdjusted: decimal.Zero,
		GrossValue:      decimal.Zero,
	}
	one := decimal.NewFromInt(1)

	for _, p := range positions {
		converted, ok := fx.Convert(p.MarketValue, p.Currency)
		if !ok {
			// Face value stands in for the unconvertible amount so the
			// materiality check still sees the position's size.
			result.GrossValue = result.GrossValue.Add(p.MarketValue)
			result.Excluded = append(result.Excluded, ExcludedPosition{
				AssetID:     p.AssetID,
				Reason:      RejectMissingFXRate,
				MarketValue: p.MarketValue,
				Currency:    p.Currency,
			})
			result.Flags = append(result.Flags, DataQualityFlag{
				Stage:    "classify",
				RefID:    p.AssetID,
				Reason:   fmt.Sprintf("no FX rate for %s on %s", p.Currency, fx.Date.Format("2006-01-02")),
				Severity: SeverityHigh,
				Amount:   p.MarketValue,
			})
			continue
		}
		result.GrossValue = result.GrossValue.Add(converted)

		tier, reason := DeriveTier(p)
		if tier == TierIneligible {
			result.Excluded = append(result.Excluded, ExcludedPosition{
				AssetID:     p.AssetID,
				Reason:      reason,
				MarketValue: converted,
				Currency:    p.Currency,
			})
			continue
		}

		haircut, ok := table.Haircut(tier)
		if !ok {
			// Validated tables always carry the three tiers; fail closed.
			result.Excluded = append(result.Excluded, ExcludedPosition{
				AssetID:     p.AssetID,
				Reason:      RejectAssetClass,
				MarketValue: converted,
				Currency:    p.Currency,
			})
			continue
		}
		adjusted := converted.Mul(one.Sub(haircut))

		switch tier {
		case TierLevel1:
			result.Level1Total = result.Level1Total.Add(adjusted)
		case TierLevel2A:
			result.Level2AAdjusted = result.Level2AAdjusted.Add(adjusted)
		case TierLevel2B:
			result.Level2BAdjusted = result.Level2BAdjusted.Add(adjusted)
		}
	}

	return result
}

// merge folds another shard's subtotals into the receiver, preserving the
// caller's shard order so reductions stay deterministic.
func (r *ClassificationResult) merge(other ClassificationResult) {
	r.Level1Total = r.Level1Total.Add(other.Level1Total)
	r.Level2AAdjusted = r.Level2AAdjusted.Add(other.Level2AAdjusted)
	r.Level2BAdjusted = r.Level2BAdjusted.Add(other.Level2BAdjusted)
	r.GrossValue = r.GrossValue.Add(other.GrossValue)
	r.Excluded = append(r.Excluded, other.Excluded...)
	r.Flags = append(r.Flags, other.Flags...)
}
