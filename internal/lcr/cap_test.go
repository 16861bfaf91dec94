package lcr

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEnforceLevel2CapUnderLimit(t *testing.T) {
	table := DefaultRateTable()

	result := EnforceLevel2Cap(d("300000000"), d("100000000"), d("50000000"), table)

	assert.False(t, result.Triggered)
	assert.True(t, result.Discarded2A.IsZero())
	assert.True(t, result.Discarded2B.IsZero())
	assert.True(t, result.CappedLevel2.Equal(d("150000000")))
	assert.True(t, result.CappedHQLA.Equal(d("450000000")))
}

func TestEnforceLevel2CapDiscards2BFirst(t *testing.T) {
	table := DefaultRateTable()

	// L1 150M allows 100M of Level 2; 120M of 2B alone exceeds it by 20M.
	result := EnforceLevel2Cap(d("150000000"), d("0"), d("120000000"), table)

	assert.True(t, result.Triggered)
	assert.True(t, result.MaxLevel2.Equal(d("100000000")), "max level 2 = %s", result.MaxLevel2)
	assert.True(t, result.Discarded2B.Equal(d("20000000")), "discarded 2B = %s", result.Discarded2B)
	assert.True(t, result.Discarded2A.IsZero())
	assert.True(t, result.CappedHQLA.Equal(d("250000000")), "capped HQLA = %s", result.CappedHQLA)
}

func TestEnforceLevel2CapCascadesInto2A(t *testing.T) {
	table := DefaultRateTable()

	// L1 90M allows 60M of Level 2; 50M 2A + 30M 2B exceeds by 20M.
	// All 20M comes out of 2B before any 2A is touched.
	result := EnforceLevel2Cap(d("90000000"), d("50000000"), d("30000000"), table)

	assert.True(t, result.Triggered)
	assert.True(t, result.Discarded2B.Equal(d("20000000")))
	assert.True(t, result.Discarded2A.IsZero())
	assert.True(t, result.CappedLevel2.Equal(d("60000000")))
	assert.True(t, result.CappedHQLA.Equal(d("150000000")))
}

func TestEnforceLevel2CapExcessBeyond2B(t *testing.T) {
	table := DefaultRateTable()

	// L1 30M allows 20M of Level 2; 40M 2A + 15M 2B exceeds by 35M.
	// 2B is wiped (15M) and the remaining 20M comes from 2A.
	result := EnforceLevel2Cap(d("30000000"), d("40000000"), d("15000000"), table)

	assert.True(t, result.Triggered)
	assert.True(t, result.Discarded2B.Equal(d("15000000")))
	assert.True(t, result.Discarded2A.Equal(d("20000000")))
	assert.True(t, result.CappedLevel2.Equal(d("20000000")))
	assert.True(t, result.CappedHQLA.Equal(d("50000000")))
}

func TestEnforceLevel2CapZeroLevel1DiscardsEverything(t *testing.T) {
	table := DefaultRateTable()

	result := EnforceLevel2Cap(decimal.Zero, d("10000000"), d("5000000"), table)

	assert.True(t, result.Triggered)
	assert.True(t, result.Discarded2B.Equal(d("5000000")))
	assert.True(t, result.Discarded2A.Equal(d("10000000")))
	assert.True(t, result.CappedHQLA.IsZero())
}

func TestEnforceLevel2CapExactlyAtLimitDoesNotTrigger(t *testing.T) {
	table := DefaultRateTable()

	result := EnforceLevel2Cap(d("150000000"), d("60000000"), d("40000000"), table)

	assert.False(t, result.Triggered)
	assert.True(t, result.CappedHQLA.Equal(d("250000000")))
}

func TestEnforceLevel2CapConservesValue(t *testing.T) {
	table := DefaultRateTable()
	cases := []struct{ l1, l2a, l2b string }{
		{"0", "0", "0"},
		{"100", "200", "300"},
		{"1000000", "5", "999999999"},
		{"33.33", "66.67", "12.5"},
	}

	for _, tc := range cases {
		result := EnforceLevel2Cap(d(tc.l1), d(tc.l2a), d(tc.l2b), table)

		total := result.CappedLevel2.Add(result.Discarded2A).Add(result.Discarded2B)
		assert.True(t, total.Equal(d(tc.l2a).Add(d(tc.l2b))),
			"level 2 value not conserved for L1=%s 2A=%s 2B=%s", tc.l1, tc.l2a, tc.l2b)
		assert.False(t, result.Discarded2A.IsNegative())
		assert.False(t, result.Discarded2B.IsNegative())
	}
}
