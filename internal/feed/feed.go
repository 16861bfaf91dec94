package feed

import (
	"context"
	"time"

	"lcr-engine/internal/lcr"
)

// AssetSource supplies the liquid-asset positions for one valuation date.
type AssetSource interface {
	Positions(ctx context.Context, asOfDate time.Time) ([]lcr.AssetPosition, error)
}

// DepositSource supplies the deposit balances for one valuation date.
type DepositSource interface {
	Deposits(ctx context.Context, asOfDate time.Time) ([]lcr.DepositPosition, error)
}

// FXSource supplies the same-date conversion rates into the reporting
// currency. Every currency present in that date's positions must resolve.
type FXSource interface {
	Rates(ctx context.Context, asOfDate time.Time) (lcr.FXTable, error)
}
