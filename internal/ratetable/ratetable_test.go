package ratetable

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcr-engine/internal/lcr"
)

const twoTableYAML = `
tables:
  - version: finma-2015-02
    effective_from: "2015-01-01"
    haircuts:
      LEVEL_1: "0"
      LEVEL_2A: "0.15"
      LEVEL_2B: "0.50"
    run_off:
      RETAIL_STABLE: "0.05"
      RETAIL_STABLE_INSURED: "0.03"
      RETAIL_LESS_STABLE: "0.10"
      CORPORATE_OPERATIONAL: "0.25"
      CORPORATE_NON_OPERATIONAL: "0.40"
      FINANCIAL_INSTITUTION: "1.00"
      WHOLESALE_FUNDING: "1.00"
    adjustments:
      multi_product_discount: "0.02"
      multi_product_min_count: 3
      direct_debit_discount: "0.01"
      new_relationship_premium: "0.05"
      tenure_floor_months: 18
    level2_cap:
      numerator: 2
      denominator: 3
    thresholds:
      pass: "100"
      fail: "95"
      early_warning: "105"
      volatility: "10"
  - version: finma-2026-01
    effective_from: "2026-01-01"
    haircuts:
      LEVEL_1: "0"
      LEVEL_2A: "0.20"
      LEVEL_2B: "0.50"
    run_off:
      RETAIL_STABLE: "0.05"
      RETAIL_STABLE_INSURED: "0.03"
      RETAIL_LESS_STABLE: "0.10"
      CORPORATE_OPERATIONAL: "0.25"
      CORPORATE_NON_OPERATIONAL: "0.40"
      FINANCIAL_INSTITUTION: "1.00"
      WHOLESALE_FUNDING: "1.00"
    adjustments:
      multi_product_discount: "0.02"
      multi_product_min_count: 3
      direct_debit_discount: "0.01"
      new_relationship_premium: "0.05"
      tenure_floor_months: 18
    level2_cap:
      numerator: 2
      denominator: 3
    thresholds:
      pass: "100"
      fail: "95"
      early_warning: "105"
      volatility: "10"
`

func TestParseMultipleVersions(t *testing.T) {
	registry, err := Parse([]byte(twoTableYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"finma-2015-02", "finma-2026-01"}, registry.Versions())
}

func TestForDatePicksTableInForce(t *testing.T) {
	registry, err := Parse([]byte(twoTableYAML))
	require.NoError(t, err)

	old, err := registry.ForDate(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "finma-2015-02", old.Version)

	boundary, err := registry.ForDate(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "finma-2026-01", boundary.Version)

	current, err := registry.ForDate(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "finma-2026-01", current.Version)
	assert.True(t, current.Haircuts[lcr.TierLevel2A].Equal(decimal.RequireFromString("0.20")))

	_, err = registry.ForDate(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err, "no table is effective before the first entry")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoTableYAML), 0o644))

	registry, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, registry.Versions(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"not yaml", ":\n  - ["},
		{"empty file", "tables: []"},
		{
			"bad effective date",
			`
tables:
  - version: x
    effective_from: "January 1st"
`,
		},
		{
			"non-numeric rate",
			`
tables:
  - version: x
    effective_from: "2015-01-01"
    haircuts:
      LEVEL_1: "none"
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseValidatesTables(t *testing.T) {
	// A structurally valid file still fails when a segment rate is missing.
	incomplete := `
tables:
  - version: partial
    effective_from: "2015-01-01"
    haircuts:
      LEVEL_1: "0"
      LEVEL_2A: "0.15"
      LEVEL_2B: "0.50"
    run_off:
      RETAIL_STABLE: "0.05"
    adjustments:
      multi_product_discount: "0.02"
      multi_product_min_count: 3
      direct_debit_discount: "0.01"
      new_relationship_premium: "0.05"
      tenure_floor_months: 18
    level2_cap:
      numerator: 2
      denominator: 3
    thresholds:
      pass: "100"
      fail: "95"
      early_warning: "105"
      volatility: "10"
`
	_, err := Parse([]byte(incomplete))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-off")
}

func TestDefaultRegistry(t *testing.T) {
	registry := Default()

	table, err := registry.ForDate(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "finma-2015-02", table.Version)
	require.NoError(t, table.Validate())
}
