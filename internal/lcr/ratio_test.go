package lcr

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRatio(t *testing.T) {
	ratio, err := ComputeRatio(d("250000000"), d("200000000"))
	require.NoError(t, err)
	assert.True(t, ratio.Equal(d("125")), "got %s", ratio)
}

func TestComputeRatioZeroOutflow(t *testing.T) {
	_, err := ComputeRatio(d("100"), decimal.Zero)
	assert.ErrorIs(t, err, ErrZeroOutflow)
}

func TestClassifyRatioBands(t *testing.T) {
	table := DefaultRateTable()

	cases := []struct {
		ratio string
		want  Classification
	}{
		{"150", ClassificationPass},
		{"100.0", ClassificationPass},
		{"99.95", ClassificationPass}, // rounds to 100.0
		{"99.9", ClassificationWarning},
		{"99.94", ClassificationWarning}, // rounds to 99.9
		{"95.0", ClassificationWarning},
		{"94.94", ClassificationFail}, // rounds to 94.9
		{"94.9", ClassificationFail},
		{"0", ClassificationFail},
	}

	for _, tc := range cases {
		got := ClassifyRatio(d(tc.ratio), table)
		assert.Equal(t, tc.want, got, "ratio %s", tc.ratio)
	}
}
