package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNoSnapshot indicates no snapshot exists for the requested date.
	ErrNoSnapshot = errors.New("storage: no snapshot for date")
)

const (
	insertSnapshotSQL = `INSERT INTO lcr_snapshots (
        as_of_date,
        version,
        run_id,
        status,
        failure_reason,
        currency,
        level1_total,
        level2a_adjusted,
        level2b_adjusted,
        discarded_2a,
        discarded_2b,
        cap_triggered,
        capped_hqla,
        total_outflow,
        outflow_by_segment,
        ratio,
        classification,
        buffer_amount,
        buffer_pct
    ) VALUES (
        $1,
        (SELECT COALESCE(MAX(version), 0) + 1 FROM lcr_snapshots WHERE as_of_date = $1),
        $2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
    )
    RETURNING version, created_at;`

	snapshotColumns = `
        as_of_date,
        version,
        run_id,
        status,
        failure_reason,
        currency,
        level1_total,
        level2a_adjusted,
        level2b_adjusted,
        discarded_2a,
        discarded_2b,
        cap_triggered,
        capped_hqla,
        total_outflow,
        outflow_by_segment,
        ratio,
        classification,
        buffer_amount,
        buffer_pct,
        created_at`

	latestSnapshotSQL = `SELECT` + snapshotColumns + `
    FROM lcr_snapshots
    WHERE as_of_date = $1
    ORDER BY version DESC
    LIMIT 1;`

	latestCompleteBeforeSQL = `SELECT` + snapshotColumns + `
    FROM lcr_snapshots
    WHERE as_of_date < $1
      AND status = 'complete'
    ORDER BY as_of_date DESC, version DESC
    LIMIT 1;`

	listSnapshotsBetweenSQL = `SELECT DISTINCT ON (as_of_date)` + snapshotColumns + `
    FROM lcr_snapshots
    WHERE as_of_date >= $1
      AND as_of_date < $2
    ORDER BY as_of_date, version DESC;`

	listRecentSnapshotsSQL = `SELECT DISTINCT ON (as_of_date)` + snapshotColumns + `
    FROM lcr_snapshots
    ORDER BY as_of_date DESC, version DESC
    LIMIT $1;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM lcr_snapshots;`

	insertAlertSQL = `INSERT INTO lcr_alerts (
        as_of_date,
        snapshot_version,
        alert_type,
        severity,
        reason,
        value,
        threshold
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listAlertsForDateSQL = `SELECT
        id,
        as_of_date,
        snapshot_version,
        alert_type,
        severity,
        reason,
        value,
        threshold,
        created_at
    FROM lcr_alerts
    WHERE as_of_date = $1
    ORDER BY created_at, id;`

	listRecentAlertsSQL = `SELECT
        id,
        as_of_date,
        snapshot_version,
        alert_type,
        severity,
        reason,
        value,
        threshold,
        created_at
    FROM lcr_alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotStore defines operations for snapshot persistence.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, rec SnapshotRecord) (SnapshotRecord, error)
	LatestSnapshot(ctx context.Context, asOfDate time.Time) (SnapshotRecord, error)
	LatestCompleteBefore(ctx context.Context, asOfDate time.Time) (SnapshotRecord, error)
	ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]SnapshotRecord, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]SnapshotRecord, error)
	CountSnapshots(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert-event auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error)
	ListAlertsForDate(ctx context.Context, asOfDate time.Time) ([]AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes per-date advisory lock helpers so concurrent writers
// for the same valuation date are serialised.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to snapshots and alert events.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// DateLockKey derives the advisory lock key for a valuation date.
func DateLockKey(asOfDate time.Time) int64 {
	y, m, d := asOfDate.UTC().Date()
	return int64(y)*10000 + int64(m)*100 + int64(d)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSnapshot appends the next snapshot version for a date.
func (s *Store) InsertSnapshot(ctx context.Context, rec SnapshotRecord) (SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return SnapshotRecord{}, err
	}

	segments, err := marshalSegments(rec.OutflowBySegment)
	if err != nil {
		return SnapshotRecord{}, err
	}

	var ratio, classification interface{}
	if rec.Ratio != nil {
		ratio = rec.Ratio.String()
	}
	if rec.Classification != nil {
		classification = *rec.Classification
	}
	var failureReason interface{}
	if rec.FailureReason != nil {
		failureReason = *rec.FailureReason
	}

	row := pool.QueryRow(ctx, insertSnapshotSQL,
		rec.AsOfDate,
		rec.RunID,
		rec.Status,
		failureReason,
		rec.Currency,
		rec.Level1Total.String(),
		rec.Level2AAdjusted.String(),
		rec.Level2BAdjusted.String(),
		rec.Discarded2A.String(),
		rec.Discarded2B.String(),
		rec.CapTriggered,
		rec.CappedHQLA.String(),
		rec.TotalOutflow.String(),
		segments,
		ratio,
		classification,
		rec.BufferAmount.String(),
		rec.BufferPct.String(),
	)
	if err := row.Scan(&rec.Version, &rec.CreatedAt); err != nil {
		return SnapshotRecord{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return rec, nil
}

// LatestSnapshot returns the highest version stored for a date.
func (s *Store) LatestSnapshot(ctx context.Context, asOfDate time.Time) (SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return SnapshotRecord{}, err
	}
	rows, queryErr := pool.Query(ctx, latestSnapshotSQL, asOfDate)
	if queryErr != nil {
		return SnapshotRecord{}, fmt.Errorf("latest snapshot: %w", queryErr)
	}
	defer rows.Close()
	return scanOneSnapshot(rows)
}

// LatestCompleteBefore returns the most recent complete snapshot preceding a
// date, used for day-over-day volatility comparison.
func (s *Store) LatestCompleteBefore(ctx context.Context, asOfDate time.Time) (SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return SnapshotRecord{}, err
	}
	rows, queryErr := pool.Query(ctx, latestCompleteBeforeSQL, asOfDate)
	if queryErr != nil {
		return SnapshotRecord{}, fmt.Errorf("latest complete before: %w", queryErr)
	}
	defer rows.Close()
	return scanOneSnapshot(rows)
}

// ListSnapshotsBetween lists the latest version per date within a window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// ListRecentSnapshots lists the latest version per date, newest first.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// CountSnapshots counts stored snapshot versions.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert event.
func (s *Store) InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		rec.AsOfDate,
		rec.SnapshotVersion,
		rec.AlertType,
		rec.Severity,
		rec.Reason,
		rec.Value.String(),
		rec.Threshold.String(),
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListAlertsForDate lists every alert recorded for a valuation date.
func (s *Store) ListAlertsForDate(ctx context.Context, asOfDate time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listAlertsForDateSQL, asOfDate)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts for date: %w", queryErr)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ListRecentAlerts lists the most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanOneSnapshot(rows pgx.Rows) (SnapshotRecord, error) {
	if !rows.Next() {
		if rows.Err() != nil {
			return SnapshotRecord{}, rows.Err()
		}
		return SnapshotRecord{}, ErrNoSnapshot
	}
	return scanSnapshot(rows)
}

func scanSnapshots(rows pgx.Rows) ([]SnapshotRecord, error) {
	records := make([]SnapshotRecord, 0)
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanSnapshot(rows pgx.Rows) (SnapshotRecord, error) {
	var (
		rec            SnapshotRecord
		failureReason  sql.NullString
		level1         string
		level2A        string
		level2B        string
		discarded2A    string
		discarded2B    string
		cappedHQLA     string
		totalOutflow   string
		segmentsJSON   []byte
		ratio          sql.NullString
		classification sql.NullString
		bufferAmount   string
		bufferPct      string
	)

	if err := rows.Scan(
		&rec.AsOfDate,
		&rec.Version,
		&rec.RunID,
		&rec.Status,
		&failureReason,
		&rec.Currency,
		&level1,
		&level2A,
		&level2B,
		&discarded2A,
		&discarded2B,
		&rec.CapTriggered,
		&cappedHQLA,
		&totalOutflow,
		&segmentsJSON,
		&ratio,
		&classification,
		&bufferAmount,
		&bufferPct,
		&rec.CreatedAt,
	); err != nil {
		return SnapshotRecord{}, err
	}

	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"level1_total", level1, &rec.Level1Total},
		{"level2a_adjusted", level2A, &rec.Level2AAdjusted},
		{"level2b_adjusted", level2B, &rec.Level2BAdjusted},
		{"discarded_2a", discarded2A, &rec.Discarded2A},
		{"discarded_2b", discarded2B, &rec.Discarded2B},
		{"capped_hqla", cappedHQLA, &rec.CappedHQLA},
		{"total_outflow", totalOutflow, &rec.TotalOutflow},
		{"buffer_amount", bufferAmount, &rec.BufferAmount},
		{"buffer_pct", bufferPct, &rec.BufferPct},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return SnapshotRecord{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = d
	}

	if failureReason.Valid {
		reason := failureReason.String
		rec.FailureReason = &reason
	}
	if ratio.Valid {
		d, err := decimal.NewFromString(ratio.String)
		if err != nil {
			return SnapshotRecord{}, fmt.Errorf("parse ratio: %w", err)
		}
		rec.Ratio = &d
	}
	if classification.Valid {
		c := classification.String
		rec.Classification = &c
	}
	if len(segmentsJSON) > 0 {
		segments, err := unmarshalSegments(segmentsJSON)
		if err != nil {
			return SnapshotRecord{}, err
		}
		rec.OutflowBySegment = segments
	}

	return rec, nil
}

func scanAlerts(rows pgx.Rows) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0)
	for rows.Next() {
		var (
			rec          AlertRecord
			valueStr     string
			thresholdStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.AsOfDate,
			&rec.SnapshotVersion,
			&rec.AlertType,
			&rec.Severity,
			&rec.Reason,
			&valueStr,
			&thresholdStr,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.Value, convErr = decimal.NewFromString(valueStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse alert value: %w", convErr)
		}
		rec.Threshold, convErr = decimal.NewFromString(thresholdStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse alert threshold: %w", convErr)
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func marshalSegments(segments map[string]decimal.Decimal) ([]byte, error) {
	if len(segments) == 0 {
		return []byte("{}"), nil
	}
	flat := make(map[string]string, len(segments))
	for segment, amount := range segments {
		flat[segment] = amount.String()
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("marshal outflow segments: %w", err)
	}
	return raw, nil
}

func unmarshalSegments(raw []byte) (map[string]decimal.Decimal, error) {
	flat := make(map[string]string)
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("unmarshal outflow segments: %w", err)
	}
	segments := make(map[string]decimal.Decimal, len(flat))
	for segment, value := range flat {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parse outflow for %s: %w", segment, err)
		}
		segments[segment] = d
	}
	return segments, nil
}
