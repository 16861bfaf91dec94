package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lcr-engine/internal/alerting"
	"lcr-engine/internal/config"
	"lcr-engine/internal/feed"
	"lcr-engine/internal/lcr"
	"lcr-engine/internal/logging"
	"lcr-engine/internal/ratetable"
	"lcr-engine/internal/scheduler"
	"lcr-engine/internal/storage"
)

// severityRank orders severities for the notification threshold.
var severityRank = map[lcr.Severity]int{
	lcr.SeverityInfo:     0,
	lcr.SeverityMedium:   1,
	lcr.SeverityHigh:     2,
	lcr.SeverityCritical: 3,
}

// Service orchestrates one run per valuation date: load inputs, compute,
// persist the snapshot and its alerts, and notify.
type Service struct {
	scheduler *scheduler.Scheduler
	assets    feed.AssetSource
	deposits  feed.DepositSource
	fxRates   feed.FXSource
	tables    *ratetable.Registry
	snapStore storage.SnapshotStore
	alerts    storage.AlertStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	engineOpts  lcr.Options
	alertsOn    bool
	minSeverity lcr.Severity
	locker      storage.AdvisoryLocker
}

// New constructs the calculation service.
func New(cfg *config.Config, sched *scheduler.Scheduler, assets feed.AssetSource, deposits feed.DepositSource, fxRates feed.FXSource, tables *ratetable.Registry, snapStore storage.SnapshotStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := snapStore.(storage.AdvisoryLocker); ok {
		locker = l
	}

	minSeverity := lcr.Severity(cfg.Alerting.MinSeverity)
	if _, ok := severityRank[minSeverity]; !ok {
		minSeverity = lcr.SeverityHigh
	}

	return &Service{
		scheduler: sched,
		assets:    assets,
		deposits:  deposits,
		fxRates:   fxRates,
		tables:    tables,
		snapStore: snapStore,
		alerts:    alertStore,
		notifier:  notifier,
		logger:    logging.Component(logger, "service"),
		engineOpts: lcr.Options{
			ReportingCurrency: cfg.Engine.ReportingCurrency,
			Workers:           cfg.Engine.Workers,
			MaterialityPct:    decimalFromFloat(cfg.Engine.MaterialityPct),
		},
		alertsOn:    cfg.Alerting.Enabled,
		minSeverity: minSeverity,
		locker:      locker,
	}
}

// Run begins the periodic recomputation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessDate)
}

// ProcessDate executes one calculation run for a valuation date. Writers for
// the same date are serialised through a per-date advisory lock so the
// append-only snapshot history never interleaves.
func (s *Service) ProcessDate(ctx context.Context, asOfDate time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx, asOfDate)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("as_of_date", asOfDate).Msg("skip run, date lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.executeRun(ctx, asOfDate)
	return err
}

// ComputeDate runs one date and returns the engine result, for on-demand
// invocations that want the outcome back.
func (s *Service) ComputeDate(ctx context.Context, asOfDate time.Time) (*lcr.Result, error) {
	unlock, proceed, err := s.acquireLock(ctx, asOfDate)
	if err != nil {
		return nil, err
	}
	if !proceed {
		return nil, fmt.Errorf("run for %s already in progress", asOfDate.Format("2006-01-02"))
	}
	if unlock != nil {
		defer unlock()
	}
	return s.executeRun(ctx, asOfDate)
}

func (s *Service) executeRun(ctx context.Context, asOfDate time.Time) (*lcr.Result, error) {
	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Time("as_of_date", asOfDate).Logger()

	table, err := s.tables.ForDate(asOfDate)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("rate_table", table.Version).Msg("rate table resolved")

	positions, err := s.assets.Positions(ctx, asOfDate)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	deposits, err := s.deposits.Deposits(ctx, asOfDate)
	if err != nil {
		return nil, fmt.Errorf("load deposits: %w", err)
	}
	fx, err := s.fxRates.Rates(ctx, asOfDate)
	if err != nil {
		return nil, fmt.Errorf("load fx rates: %w", err)
	}

	prior := s.loadPrior(ctx, asOfDate)

	engine, err := lcr.NewEngine(table, s.engineOpts, logger)
	if err != nil {
		return nil, err
	}
	result, err := engine.Compute(ctx, lcr.Inputs{
		AsOfDate:  asOfDate,
		Positions: positions,
		Deposits:  deposits,
		FX:        fx,
	}, prior)
	if err != nil {
		return nil, err
	}

	version := s.persist(ctx, logger, runID, result)
	s.dispatch(ctx, logger, result)

	if !result.Snapshot.Complete() {
		logger.Warn().Str("reason", result.Snapshot.FailureReason).Int("version", version).Msg("run stored as incomplete")
	}
	return result, nil
}

// persist appends the snapshot version and its alert events. Storage errors
// are logged, not fatal: the computation already succeeded and the next tick
// retries the date.
func (s *Service) persist(ctx context.Context, logger zerolog.Logger, runID string, result *lcr.Result) int {
	if s.snapStore == nil {
		return 0
	}

	rec, err := s.snapStore.InsertSnapshot(ctx, storage.NewSnapshotRecord(result.Snapshot, runID))
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist snapshot")
		return 0
	}
	logger.Info().Int("version", rec.Version).Msg("snapshot stored")

	if s.alerts == nil {
		return rec.Version
	}
	for _, alert := range result.Alerts {
		if _, err := s.alerts.InsertAlert(ctx, storage.NewAlertRecord(alert, rec.Version)); err != nil {
			logger.Error().Err(err).Str("alert_type", string(alert.Type)).Msg("failed to persist alert")
		}
	}
	return rec.Version
}

// dispatch notifies alerts at or above the configured severity.
func (s *Service) dispatch(ctx context.Context, logger zerolog.Logger, result *lcr.Result) {
	if !s.alertsOn || s.notifier == nil {
		return
	}
	for _, alert := range result.Alerts {
		if severityRank[alert.Severity] < severityRank[s.minSeverity] {
			continue
		}
		note := alerting.Notification{
			Alert:    alert,
			Currency: result.Snapshot.Currency,
			Status:   string(result.Snapshot.Status),
		}
		if result.Snapshot.Complete() {
			note.Ratio = result.Snapshot.RatioRounded.StringFixed(1)
			note.Classification = string(result.Snapshot.Classification)
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			logger.Error().Err(err).Str("alert_type", string(alert.Type)).Msg("failed to dispatch alert")
		}
	}
}

// loadPrior fetches the previous complete snapshot for volatility checks.
// Absence is normal on the first ever run.
func (s *Service) loadPrior(ctx context.Context, asOfDate time.Time) *lcr.Snapshot {
	if s.snapStore == nil {
		return nil
	}
	rec, err := s.snapStore.LatestCompleteBefore(ctx, asOfDate)
	if err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) && !errors.Is(err, storage.ErrNotConfigured) {
			s.logger.Error().Err(err).Msg("failed to load prior snapshot")
		}
		return nil
	}
	prior := rec.Snapshot()
	return &prior
}

func decimalFromFloat(f float64) decimal.Decimal {
	if f <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func (s *Service) acquireLock(ctx context.Context, asOfDate time.Time) (func(), bool, error) {
	if s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, storage.DateLockKey(asOfDate))
	if err != nil {
		return nil, false, fmt.Errorf("acquire date lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
