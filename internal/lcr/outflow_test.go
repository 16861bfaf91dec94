package lcr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveRunOffAdjustments(t *testing.T) {
	table := DefaultRateTable()

	cases := []struct {
		name    string
		deposit DepositPosition
		rate    string
	}{
		{
			name:    "base rate with no adjustments",
			deposit: DepositPosition{Segment: SegmentRetailStable, TenureMonths: 60},
			rate:    "0.05",
		},
		{
			name: "multi-product and direct debit discounts stack",
			deposit: DepositPosition{
				Segment:        SegmentRetailStable,
				ActiveProducts: 3,
				HasDirectDebit: true,
				TenureMonths:   60,
			},
			rate: "0.02",
		},
		{
			name:    "two products do not earn the discount",
			deposit: DepositPosition{Segment: SegmentRetailStable, ActiveProducts: 2, TenureMonths: 60},
			rate:    "0.05",
		},
		{
			name:    "short tenure adds the new-relationship premium",
			deposit: DepositPosition{Segment: SegmentRetailStable, TenureMonths: 6},
			rate:    "0.10",
		},
		{
			name:    "tenure exactly at the floor pays no premium",
			deposit: DepositPosition{Segment: SegmentRetailStable, TenureMonths: 18},
			rate:    "0.05",
		},
		{
			name: "rate clamps at zero",
			deposit: DepositPosition{
				Segment:        SegmentRetailInsured,
				ActiveProducts: 5,
				HasDirectDebit: true,
				TenureMonths:   60,
			},
			rate: "0", // 0.03 - 0.02 - 0.01
		},
		{
			name:    "rate clamps at one",
			deposit: DepositPosition{Segment: SegmentWholesaleFunding, TenureMonths: 6},
			rate:    "1", // 1.00 + 0.05 premium clamped
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate, flag := EffectiveRunOff(tc.deposit, table)
			assert.Nil(t, flag)
			assert.True(t, rate.Equal(d(tc.rate)), "expected %s, got %s", tc.rate, rate)
		})
	}
}

func TestEffectiveRunOffUnknownSegmentFailsClosed(t *testing.T) {
	table := DefaultRateTable()
	deposit := DepositPosition{
		PositionID: "ACC-9",
		Segment:    Segment("PRIVATE_BANKING"),
		Balance:    d("250000"),
	}

	rate, flag := EffectiveRunOff(deposit, table)

	assert.True(t, rate.Equal(d("1")), "unknown segments run off at 100%%, got %s", rate)
	require.NotNil(t, flag)
	assert.Equal(t, SeverityHigh, flag.Severity)
	assert.Equal(t, "ACC-9", flag.RefID)
	assert.True(t, flag.Amount.Equal(d("250000")))
}

func TestComputeOutflowsSegmentSubtotals(t *testing.T) {
	table := DefaultRateTable()
	deposits := []DepositPosition{
		{PositionID: "R1", Segment: SegmentRetailStable, Balance: d("1000000"), Currency: "CHF", TenureMonths: 60},
		{PositionID: "R2", Segment: SegmentRetailStable, Balance: d("2000000"), Currency: "CHF", TenureMonths: 60},
		{PositionID: "C1", Segment: SegmentCorporateNonOps, Balance: d("1000000"), Currency: "CHF", TenureMonths: 60},
		{PositionID: "F1", Segment: SegmentFinancialInst, Balance: d("500000"), Currency: "EUR", TenureMonths: 60},
	}

	result, err := ComputeOutflows(deposits, testFX(), table)
	require.NoError(t, err)

	assert.True(t, result.BySegment[SegmentRetailStable].Equal(d("150000")))
	assert.True(t, result.BySegment[SegmentCorporateNonOps].Equal(d("400000")))
	assert.True(t, result.BySegment[SegmentFinancialInst].Equal(d("475000")), "500k EUR at 0.95 runs off in full")
	assert.True(t, result.Total.Equal(d("1025000")), "total = %s", result.Total)
	assert.Empty(t, result.Flags)
}

func TestComputeOutflowsMissingFXRateFailsFast(t *testing.T) {
	table := DefaultRateTable()
	deposits := []DepositPosition{
		{PositionID: "OK", Segment: SegmentRetailStable, Balance: d("100"), Currency: "CHF", TenureMonths: 60},
		{PositionID: "BAD", Segment: SegmentRetailStable, Balance: d("100"), Currency: "GBP", TenureMonths: 60},
	}

	_, err := ComputeOutflows(deposits, testFX(), table)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingFXRate)
	assert.Contains(t, err.Error(), "BAD")
}
