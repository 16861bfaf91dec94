package lcr

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AlertContext carries everything the evaluator needs for one run.
type AlertContext struct {
	Current Snapshot
	Prior   *Snapshot // nil on the first run
	Flags   []DataQualityFlag

	// GrossValue and MaterialityPct decide whether a missing FX rate is
	// critical: it is when the affected value exceeds the given percentage
	// of the date's gross market value.
	GrossValue     decimal.Decimal
	MaterialityPct decimal.Decimal
}

// EvaluateAlerts derives every triggered condition for a snapshot. Rules are
// independent: any subset may fire and none suppresses another.
func EvaluateAlerts(ctx AlertContext, table RateTable) []Alert {
	var alerts []Alert
	current := ctx.Current

	if current.Complete() {
		rounded := current.RatioRounded
		if rounded.LessThan(table.PassThreshold) {
			alerts = append(alerts, Alert{
				AsOfDate: current.AsOfDate,
				Type:     AlertBreach,
				Severity: SeverityCritical,
				Reason: fmt.Sprintf("LCR %s%% below the %s%% regulatory minimum",
					rounded.StringFixed(1), table.PassThreshold.StringFixed(1)),
				Value:     rounded,
				Threshold: table.PassThreshold,
			})
		} else if rounded.LessThan(table.EarlyWarningThreshold) {
			alerts = append(alerts, Alert{
				AsOfDate: current.AsOfDate,
				Type:     AlertEarlyWarning,
				Severity: SeverityMedium,
				Reason: fmt.Sprintf("LCR %s%% below the %s%% early-warning threshold",
					rounded.StringFixed(1), table.EarlyWarningThreshold.StringFixed(1)),
				Value:     rounded,
				Threshold: table.EarlyWarningThreshold,
			})
		}

		// Volatility compares full-precision ratios; only the displayed
		// ratio is rounded.
		if ctx.Prior != nil && ctx.Prior.Complete() {
			delta := current.Ratio.Sub(ctx.Prior.Ratio).Abs()
			if delta.GreaterThan(table.VolatilityThreshold) {
				alerts = append(alerts, Alert{
					AsOfDate: current.AsOfDate,
					Type:     AlertVolatility,
					Severity: SeverityHigh,
					Reason: fmt.Sprintf("day-over-day LCR swing of %s points exceeds %s",
						delta.StringFixed(2), table.VolatilityThreshold.StringFixed(1)),
					Value:     delta,
					Threshold: table.VolatilityThreshold,
				})
			}
		}
	}

	if current.CapTriggered {
		alerts = append(alerts, Alert{
			AsOfDate: current.AsOfDate,
			Type:     AlertCapTriggered,
			Severity: SeverityInfo,
			Reason: fmt.Sprintf("Level-2 cap applied: discarded %s from 2B and %s from 2A",
				current.Discarded2B.StringFixed(2), current.Discarded2A.StringFixed(2)),
			Value:     current.Discarded2A.Add(current.Discarded2B),
			Threshold: decimal.Zero,
		})
	}

	for _, flag := range ctx.Flags {
		alerts = append(alerts, Alert{
			AsOfDate:  current.AsOfDate,
			Type:      AlertDataQuality,
			Severity:  flagSeverity(flag, ctx),
			Reason:    fmt.Sprintf("%s: %s (%s)", flag.Stage, flag.Reason, flag.RefID),
			Value:     flag.Amount,
			Threshold: decimal.Zero,
		})
	}

	return alerts
}

// flagSeverity upgrades a reference-data failure to critical when the
// affected amount is material relative to the date's gross market value.
// Informational flags (expected exclusions) are never escalated.
func flagSeverity(flag DataQualityFlag, ctx AlertContext) Severity {
	if flag.Severity == SeverityInfo {
		return flag.Severity
	}
	if ctx.GrossValue.IsPositive() && ctx.MaterialityPct.IsPositive() {
		share := flag.Amount.Div(ctx.GrossValue).Mul(hundred)
		if share.GreaterThanOrEqual(ctx.MaterialityPct) {
			return SeverityCritical
		}
	}
	return flag.Severity
}
