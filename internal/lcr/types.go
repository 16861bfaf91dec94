package lcr

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the regulatory liquidity-quality tier of an asset position.
type Tier string

const (
	TierLevel1     Tier = "LEVEL_1"
	TierLevel2A    Tier = "LEVEL_2A"
	TierLevel2B    Tier = "LEVEL_2B"
	TierIneligible Tier = "INELIGIBLE"
)

// AssetClass identifies the instrument category of a holding.
type AssetClass string

const (
	AssetCashSNB         AssetClass = "CASH_SNB"
	AssetCashVault       AssetClass = "CASH_VAULT"
	AssetGovtBondCHF     AssetClass = "GOVT_BOND_CHF"
	AssetGovtBondForeign AssetClass = "GOVT_BOND_FOREIGN"
	AssetCantonBond      AssetClass = "CANTON_BOND"
	AssetCoveredBond     AssetClass = "COVERED_BOND"
	AssetEquitySMI       AssetClass = "EQUITY_SMI"
	AssetCorporateBondAA AssetClass = "CORPORATE_BOND_AA"
	AssetStructuredNote  AssetClass = "STRUCTURED_NOTE"
	AssetDerivative      AssetClass = "DERIVATIVE"
	AssetSecuritized     AssetClass = "SECURITIZED"
)

// Segment is a deposit customer segment with a fixed base run-off rate.
type Segment string

const (
	SegmentRetailStable      Segment = "RETAIL_STABLE"
	SegmentRetailInsured     Segment = "RETAIL_STABLE_INSURED"
	SegmentRetailLessStable  Segment = "RETAIL_LESS_STABLE"
	SegmentCorporateOps      Segment = "CORPORATE_OPERATIONAL"
	SegmentCorporateNonOps   Segment = "CORPORATE_NON_OPERATIONAL"
	SegmentFinancialInst     Segment = "FINANCIAL_INSTITUTION"
	SegmentWholesaleFunding  Segment = "WHOLESALE_FUNDING"
)

// AssetPosition is one liquid-asset holding as of a valuation date.
// Positions are immutable once ingested; the next day's feed supersedes them.
type AssetPosition struct {
	AssetID        string
	Class          AssetClass
	Rating         string
	DaysToMaturity *int // nil for instruments without a stated maturity
	IndexMember    bool
	MarketValue    decimal.Decimal
	Currency       string
}

// DepositPosition is one deposit or funding balance as of a valuation date.
type DepositPosition struct {
	PositionID     string
	Segment        Segment
	Balance        decimal.Decimal
	Currency       string
	ActiveProducts int
	HasDirectDebit bool
	TenureMonths   int
}

// FXTable holds same-date conversion rates into the reporting currency.
// A currency absent from the table is a data-quality failure, never 1.0.
type FXTable struct {
	Date  time.Time
	rates map[string]decimal.Decimal
}

// NewFXTable builds an FX table for one valuation date.
func NewFXTable(date time.Time, rates map[string]decimal.Decimal) FXTable {
	copied := make(map[string]decimal.Decimal, len(rates))
	for ccy, rate := range rates {
		copied[ccy] = rate
	}
	return FXTable{Date: date, rates: copied}
}

// Rate returns the conversion rate to the reporting currency.
func (t FXTable) Rate(currency string) (decimal.Decimal, bool) {
	rate, ok := t.rates[currency]
	return rate, ok
}

// Convert translates an amount into the reporting currency.
func (t FXTable) Convert(amount decimal.Decimal, currency string) (decimal.Decimal, bool) {
	rate, ok := t.rates[currency]
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(rate), true
}

// Classification is the compliance verdict derived from the ratio.
type Classification string

const (
	ClassificationPass    Classification = "PASS"
	ClassificationWarning Classification = "WARNING"
	ClassificationFail    Classification = "FAIL"
)

// Status marks whether a run published a valid ratio.
type Status string

const (
	StatusComplete   Status = "complete"
	StatusIncomplete Status = "incomplete"
)

// Severity grades alerts and data-quality flags.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityInfo     Severity = "INFO"
)

// AlertType enumerates the conditions the evaluator can raise.
type AlertType string

const (
	AlertBreach       AlertType = "BREACH"
	AlertEarlyWarning AlertType = "EARLY_WARNING"
	AlertVolatility   AlertType = "VOLATILITY"
	AlertCapTriggered AlertType = "CAP_RULE_TRIGGERED"
	AlertDataQuality  AlertType = "DATA_QUALITY_ISSUE"
)

// Alert is one triggered condition referencing the snapshot that produced it.
type Alert struct {
	AsOfDate  time.Time
	Type      AlertType
	Severity  Severity
	Reason    string
	Value     decimal.Decimal
	Threshold decimal.Decimal
}

// DataQualityFlag records a per-row defect recovered during a run.
type DataQualityFlag struct {
	Stage    string
	RefID    string
	Reason   string
	Severity Severity
	Amount   decimal.Decimal
}

// Snapshot is the computed LCR result for one valuation date. Every field is
// a deterministic function of that date's positions, deposits, and FX rates;
// identical inputs must reproduce an identical snapshot.
type Snapshot struct {
	AsOfDate         time.Time
	Currency         string
	Status           Status
	FailureReason    string
	Level1Total      decimal.Decimal
	Level2AAdjusted  decimal.Decimal
	Level2BAdjusted  decimal.Decimal
	Discarded2A      decimal.Decimal
	Discarded2B      decimal.Decimal
	CapTriggered     bool
	CappedHQLA       decimal.Decimal
	TotalOutflow     decimal.Decimal
	OutflowBySegment map[Segment]decimal.Decimal
	Ratio            decimal.Decimal // full precision, kept for trend deltas
	RatioRounded     decimal.Decimal // one decimal place, drives classification
	Classification   Classification
	BufferAmount     decimal.Decimal // capped HQLA minus total outflow
	BufferPct        decimal.Decimal // rounded ratio minus 100
}

// Complete reports whether the run published a valid ratio.
func (s Snapshot) Complete() bool {
	return s.Status == StatusComplete
}
