package app

import (
	"context"
	"errors"
	"time"

	"lcr-engine/internal/storage"
)

// Backfill recomputes a historical range of valuation dates, one day at a
// time. Dates are independent, so a failed date is logged and the range
// continues; the per-date lock still guards each write.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	start := opts.From.UTC().Truncate(24 * time.Hour)
	end := opts.To.UTC().Truncate(24 * time.Hour)
	if start.After(end) {
		return errors.New("backfill range is empty, check --from/--to")
	}

	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be persisted")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	svc, err := a.newService(nil, store)
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := svc.ProcessDate(ctx, date); err != nil {
			failed++
			a.Logger.Error().Err(err).Time("as_of_date", date).Msg("backfill date failed")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill finished")
	if failed > 0 {
		return errors.New("some dates failed to backfill, check logs")
	}
	return nil
}
