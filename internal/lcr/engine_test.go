package lcr

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInputs() Inputs {
	asOf := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	return Inputs{
		AsOfDate: asOf,
		Positions: []AssetPosition{
			{AssetID: "SNB-1", Class: AssetCashSNB, MarketValue: d("150000000"), Currency: "CHF"},
			{AssetID: "KTN-1", Class: AssetCantonBond, Rating: "AA", DaysToMaturity: intPtr(720), MarketValue: d("100000000"), Currency: "CHF"},
			{AssetID: "SMI-1", Class: AssetEquitySMI, IndexMember: true, MarketValue: d("60000000"), Currency: "CHF"},
			{AssetID: "NEAR-1", Class: AssetGovtBondCHF, Rating: "AAA", DaysToMaturity: intPtr(10), MarketValue: d("10000000"), Currency: "CHF"},
		},
		Deposits: []DepositPosition{
			{PositionID: "R-1", Segment: SegmentRetailStable, Balance: d("1000000000"), Currency: "CHF", TenureMonths: 60},
			{PositionID: "C-1", Segment: SegmentCorporateOps, Balance: d("400000000"), Currency: "CHF", TenureMonths: 60},
		},
		FX: testFX(),
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultRateTable(), opts, zerolog.Nop())
	require.NoError(t, err)
	return engine
}

func TestEngineComputeEndToEnd(t *testing.T) {
	engine := newTestEngine(t, Options{})

	result, err := engine.Compute(context.Background(), testInputs(), nil)
	require.NoError(t, err)

	s := result.Snapshot
	assert.Equal(t, StatusComplete, s.Status)
	assert.Equal(t, "CHF", s.Currency)

	// Tiers: 150M level 1, 100M canton bond after 15% haircut, 60M equity
	// after 50% haircut. The near-maturity bond is excluded.
	assert.True(t, s.Level1Total.Equal(d("150000000")))
	assert.True(t, s.Level2AAdjusted.Equal(d("85000000")))
	assert.True(t, s.Level2BAdjusted.Equal(d("30000000")))
	require.Len(t, result.Excluded, 1)
	assert.Equal(t, "NEAR-1", result.Excluded[0].AssetID)

	// Cap: level 2 of 115M against a 100M limit drops 15M of 2B.
	assert.True(t, s.CapTriggered)
	assert.True(t, s.Discarded2B.Equal(d("15000000")))
	assert.True(t, s.Discarded2A.IsZero())
	assert.True(t, s.CappedHQLA.Equal(d("250000000")))

	// Outflow: 5% of 1000M retail plus 25% of 400M operational.
	assert.True(t, s.TotalOutflow.Equal(d("150000000")))
	assert.True(t, s.OutflowBySegment[SegmentRetailStable].Equal(d("50000000")))
	assert.True(t, s.OutflowBySegment[SegmentCorporateOps].Equal(d("100000000")))

	// Ratio: 250/150 = 166.666..., rounds to 166.7, PASS.
	assert.True(t, s.RatioRounded.Equal(d("166.7")), "rounded ratio = %s", s.RatioRounded)
	assert.Equal(t, ClassificationPass, s.Classification)
	assert.True(t, s.BufferAmount.Equal(d("100000000")))
	assert.True(t, s.BufferPct.Equal(d("66.7")))

	assert.Equal(t, []AlertType{AlertCapTriggered}, alertTypes(result.Alerts))
}

func TestEngineComputeIsDeterministic(t *testing.T) {
	inputs := testInputs()
	sequential := newTestEngine(t, Options{Workers: 1})
	sharded := newTestEngine(t, Options{Workers: 4})

	first, err := sequential.Compute(context.Background(), inputs, nil)
	require.NoError(t, err)
	second, err := sequential.Compute(context.Background(), inputs, nil)
	require.NoError(t, err)
	parallel, err := sharded.Compute(context.Background(), inputs, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Snapshot, second.Snapshot, "identical inputs must reproduce the snapshot")

	for _, other := range []*Result{second, parallel} {
		assert.True(t, first.Snapshot.Ratio.Equal(other.Snapshot.Ratio))
		assert.True(t, first.Snapshot.CappedHQLA.Equal(other.Snapshot.CappedHQLA))
		assert.True(t, first.Snapshot.TotalOutflow.Equal(other.Snapshot.TotalOutflow))
		assert.Equal(t, first.Snapshot.Classification, other.Snapshot.Classification)
		assert.Len(t, other.Excluded, len(first.Excluded))
	}
}

func TestEngineComputeZeroOutflowIsIncomplete(t *testing.T) {
	engine := newTestEngine(t, Options{})
	inputs := testInputs()
	inputs.Deposits = nil

	result, err := engine.Compute(context.Background(), inputs, nil)
	require.NoError(t, err, "an incomplete run is a result, not an error")

	s := result.Snapshot
	assert.Equal(t, StatusIncomplete, s.Status)
	assert.Contains(t, s.FailureReason, "outflow is zero")
	assert.True(t, s.Ratio.IsZero())
	assert.Empty(t, s.Classification)
	// HQLA subtotals survive for diagnosis even without a ratio.
	assert.True(t, s.CappedHQLA.Equal(d("250000000")))

	require.NotEmpty(t, result.Alerts)
	last := result.Alerts[len(result.Alerts)-1]
	assert.Equal(t, AlertDataQuality, last.Type)
	assert.Equal(t, SeverityCritical, last.Severity)
}

func TestEngineComputeMissingDepositFXIsIncomplete(t *testing.T) {
	engine := newTestEngine(t, Options{})
	inputs := testInputs()
	inputs.Deposits = append(inputs.Deposits, DepositPosition{
		PositionID: "GBP-1", Segment: SegmentRetailStable, Balance: d("100"), Currency: "GBP", TenureMonths: 60,
	})

	result, err := engine.Compute(context.Background(), inputs, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusIncomplete, result.Snapshot.Status)
	assert.Contains(t, result.Snapshot.FailureReason, "missing fx rate")
	assert.Empty(t, result.Snapshot.Classification)
}

func TestEngineComputeVolatilityAgainstPrior(t *testing.T) {
	engine := newTestEngine(t, Options{})
	prior := completeSnapshot("180")

	result, err := engine.Compute(context.Background(), testInputs(), &prior)
	require.NoError(t, err)

	// 180 -> 166.67 is a 13+ point swing.
	assert.Contains(t, alertTypes(result.Alerts), AlertVolatility)
}

func TestNewEngineRejectsInvalidTable(t *testing.T) {
	table := DefaultRateTable()
	table.Level2CapDenominator = 0

	_, err := NewEngine(table, Options{}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denominator")
}

func TestShardBoundsCoverAllRows(t *testing.T) {
	for _, tc := range []struct{ rows, workers int }{
		{0, 4}, {1, 4}, {7, 3}, {100, 4}, {5, 5}, {3, 8},
	} {
		shards := shardCount(tc.rows, tc.workers)
		covered := 0
		prevHi := 0
		for i := 0; i < shards; i++ {
			lo, hi := shardBounds(tc.rows, shards, i)
			assert.Equal(t, prevHi, lo, "rows=%d workers=%d shard=%d", tc.rows, tc.workers, i)
			covered += hi - lo
			prevHi = hi
		}
		assert.Equal(t, tc.rows, covered, "rows=%d workers=%d", tc.rows, tc.workers)
	}
}
