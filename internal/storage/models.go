package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"lcr-engine/internal/lcr"
)

// SnapshotRecord is one persisted LCR snapshot version. History is
// append-only: a recomputation for the same date inserts the next version,
// never an update.
type SnapshotRecord struct {
	AsOfDate         time.Time
	Version          int
	RunID            string
	Status           string
	FailureReason    *string
	Currency         string
	Level1Total      decimal.Decimal
	Level2AAdjusted  decimal.Decimal
	Level2BAdjusted  decimal.Decimal
	Discarded2A      decimal.Decimal
	Discarded2B      decimal.Decimal
	CapTriggered     bool
	CappedHQLA       decimal.Decimal
	TotalOutflow     decimal.Decimal
	OutflowBySegment map[string]decimal.Decimal
	Ratio            *decimal.Decimal // nil for incomplete runs
	Classification   *string
	BufferAmount     decimal.Decimal
	BufferPct        decimal.Decimal
	CreatedAt        time.Time
}

// Snapshot converts the record back into the engine's domain type.
func (r SnapshotRecord) Snapshot() lcr.Snapshot {
	s := lcr.Snapshot{
		AsOfDate:        r.AsOfDate,
		Currency:        r.Currency,
		Status:          lcr.Status(r.Status),
		Level1Total:     r.Level1Total,
		Level2AAdjusted: r.Level2AAdjusted,
		Level2BAdjusted: r.Level2BAdjusted,
		Discarded2A:     r.Discarded2A,
		Discarded2B:     r.Discarded2B,
		CapTriggered:    r.CapTriggered,
		CappedHQLA:      r.CappedHQLA,
		TotalOutflow:    r.TotalOutflow,
		BufferAmount:    r.BufferAmount,
		BufferPct:       r.BufferPct,
	}
	if r.FailureReason != nil {
		s.FailureReason = *r.FailureReason
	}
	if r.Ratio != nil {
		s.Ratio = *r.Ratio
		s.RatioRounded = r.Ratio.Round(1)
	}
	if r.Classification != nil {
		s.Classification = lcr.Classification(*r.Classification)
	}
	if len(r.OutflowBySegment) > 0 {
		s.OutflowBySegment = make(map[lcr.Segment]decimal.Decimal, len(r.OutflowBySegment))
		for segment, amount := range r.OutflowBySegment {
			s.OutflowBySegment[lcr.Segment(segment)] = amount
		}
	}
	return s
}

// NewSnapshotRecord maps an engine snapshot to its storage form.
func NewSnapshotRecord(s lcr.Snapshot, runID string) SnapshotRecord {
	rec := SnapshotRecord{
		AsOfDate:        s.AsOfDate,
		RunID:           runID,
		Status:          string(s.Status),
		Currency:        s.Currency,
		Level1Total:     s.Level1Total,
		Level2AAdjusted: s.Level2AAdjusted,
		Level2BAdjusted: s.Level2BAdjusted,
		Discarded2A:     s.Discarded2A,
		Discarded2B:     s.Discarded2B,
		CapTriggered:    s.CapTriggered,
		CappedHQLA:      s.CappedHQLA,
		TotalOutflow:    s.TotalOutflow,
		BufferAmount:    s.BufferAmount,
		BufferPct:       s.BufferPct,
	}
	if s.FailureReason != "" {
		reason := s.FailureReason
		rec.FailureReason = &reason
	}
	if s.Complete() {
		ratio := s.Ratio
		classification := string(s.Classification)
		rec.Ratio = &ratio
		rec.Classification = &classification
	}
	if len(s.OutflowBySegment) > 0 {
		rec.OutflowBySegment = make(map[string]decimal.Decimal, len(s.OutflowBySegment))
		for segment, amount := range s.OutflowBySegment {
			rec.OutflowBySegment[string(segment)] = amount
		}
	}
	return rec
}

// AlertRecord captures one emitted alert event for auditing. Alerts are
// immutable once written.
type AlertRecord struct {
	ID              int64
	AsOfDate        time.Time
	SnapshotVersion int
	AlertType       string
	Severity        string
	Reason          string
	Value           decimal.Decimal
	Threshold       decimal.Decimal
	CreatedAt       time.Time
}

// NewAlertRecord maps an engine alert to its storage form.
func NewAlertRecord(a lcr.Alert, snapshotVersion int) AlertRecord {
	return AlertRecord{
		AsOfDate:        a.AsOfDate,
		SnapshotVersion: snapshotVersion,
		AlertType:       string(a.Type),
		Severity:        string(a.Severity),
		Reason:          a.Reason,
		Value:           a.Value,
		Threshold:       a.Threshold,
	}
}
