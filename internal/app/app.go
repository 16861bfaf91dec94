package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lcr-engine/internal/alerting"
	"lcr-engine/internal/config"
	"lcr-engine/internal/feed"
	"lcr-engine/internal/logging"
	"lcr-engine/internal/ratetable"
	"lcr-engine/internal/scheduler"
	"lcr-engine/internal/service"
	"lcr-engine/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newFeed() *feed.CSVFeed {
	return feed.NewCSVFeed(a.Config.Engine.FeedDir, a.Logger)
}

func (a *App) newRateTables() (*ratetable.Registry, error) {
	if a.Config.Engine.RateTablePath == "" {
		a.Logger.Debug().Msg("engine.rate_table_path not set; using built-in FINMA table")
		return ratetable.Default(), nil
	}
	return ratetable.Load(a.Config.Engine.RateTablePath)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Webhook.Enabled {
		cfg := a.Config.Alerting.Webhook
		return alerting.NewWebhookNotifier(cfg.URL, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(sched *scheduler.Scheduler, store *storage.Store) (*service.Service, error) {
	tables, err := a.newRateTables()
	if err != nil {
		return nil, err
	}

	csvFeed := a.newFeed()
	notifier := a.newNotifier()

	var snapStore storage.SnapshotStore
	var alertStore storage.AlertStore
	if store != nil {
		snapStore = store
		alertStore = store
	}

	return service.New(a.Config, sched, csvFeed, csvFeed, csvFeed, tables, snapStore, alertStore, notifier, a.Logger), nil
}

// Run executes the long-running recomputation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; snapshot persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc, err := a.newService(sched, store)
	if err != nil {
		return err
	}

	a.Logger.Info().Msg("starting LCR calculation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("calculation service stopped")
	return nil
}

// ComputeOptions configure an on-demand single-date run.
type ComputeOptions struct {
	Date   time.Time
	DryRun bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// ExportOptions hold parameters for exporting snapshot history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// BackfillOptions configure historical recomputation.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}
