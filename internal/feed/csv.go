package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lcr-engine/internal/lcr"
)

// CSVFeed reads the upstream valuation feed's daily extract files:
//
//	hqla_holdings_YYYYMMDD.csv
//	deposit_balances_YYYYMMDD.csv
//	fx_rates.csv
//
// Column names follow the extract schema (HOLDING_ID, ASSET_TYPE, ...).
type CSVFeed struct {
	dir    string
	logger zerolog.Logger
}

// NewCSVFeed builds a feed rooted at the extract directory.
func NewCSVFeed(dir string, logger zerolog.Logger) *CSVFeed {
	return &CSVFeed{dir: dir, logger: logger.With().Str("component", "csv_feed").Logger()}
}

var (
	_ AssetSource   = (*CSVFeed)(nil)
	_ DepositSource = (*CSVFeed)(nil)
	_ FXSource      = (*CSVFeed)(nil)
)

// Positions loads the HQLA holdings extract for one date.
func (f *CSVFeed) Positions(ctx context.Context, asOfDate time.Time) ([]lcr.AssetPosition, error) {
	path := filepath.Join(f.dir, fmt.Sprintf("hqla_holdings_%s.csv", asOfDate.Format("20060102")))
	rows, header, err := readCSV(ctx, path)
	if err != nil {
		return nil, err
	}

	positions := make([]lcr.AssetPosition, 0, len(rows))
	for i, row := range rows {
		p, err := parsePosition(header, row, asOfDate)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", filepath.Base(path), i+2, err)
		}
		positions = append(positions, p)
	}

	f.logger.Debug().Time("as_of_date", asOfDate).Int("positions", len(positions)).Msg("loaded holdings extract")
	return positions, nil
}

// Deposits loads the deposit balances extract for one date.
func (f *CSVFeed) Deposits(ctx context.Context, asOfDate time.Time) ([]lcr.DepositPosition, error) {
	path := filepath.Join(f.dir, fmt.Sprintf("deposit_balances_%s.csv", asOfDate.Format("20060102")))
	rows, header, err := readCSV(ctx, path)
	if err != nil {
		return nil, err
	}

	deposits := make([]lcr.DepositPosition, 0, len(rows))
	for i, row := range rows {
		d, err := parseDeposit(header, row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", filepath.Base(path), i+2, err)
		}
		deposits = append(deposits, d)
	}

	f.logger.Debug().Time("as_of_date", asOfDate).Int("deposits", len(deposits)).Msg("loaded deposit extract")
	return deposits, nil
}

// Rates loads the FX table, filtered to the valuation date.
func (f *CSVFeed) Rates(ctx context.Context, asOfDate time.Time) (lcr.FXTable, error) {
	path := filepath.Join(f.dir, "fx_rates.csv")
	rows, header, err := readCSV(ctx, path)
	if err != nil {
		return lcr.FXTable{}, err
	}

	day := asOfDate.Format("2006-01-02")
	rates := make(map[string]decimal.Decimal)
	for i, row := range rows {
		date, err := field(header, row, "AS_OF_DATE")
		if err != nil {
			return lcr.FXTable{}, fmt.Errorf("fx_rates.csv row %d: %w", i+2, err)
		}
		if date != day {
			continue
		}
		ccy, err := field(header, row, "CURRENCY")
		if err != nil {
			return lcr.FXTable{}, fmt.Errorf("fx_rates.csv row %d: %w", i+2, err)
		}
		rateStr, err := field(header, row, "RATE_TO_CHF")
		if err != nil {
			return lcr.FXTable{}, fmt.Errorf("fx_rates.csv row %d: %w", i+2, err)
		}
		rate, err := decimal.NewFromString(rateStr)
		if err != nil {
			return lcr.FXTable{}, fmt.Errorf("fx_rates.csv row %d: rate: %w", i+2, err)
		}
		rates[ccy] = rate
	}

	return lcr.NewFXTable(asOfDate, rates), nil
}

func parsePosition(header map[string]int, row []string, asOfDate time.Time) (lcr.AssetPosition, error) {
	var p lcr.AssetPosition
	var err error

	if p.AssetID, err = field(header, row, "HOLDING_ID"); err != nil {
		return p, err
	}
	class, err := field(header, row, "ASSET_TYPE")
	if err != nil {
		return p, err
	}
	p.Class = lcr.AssetClass(class)
	if p.Currency, err = field(header, row, "CURRENCY"); err != nil {
		return p, err
	}
	value, err := field(header, row, "MARKET_VALUE_CCY")
	if err != nil {
		return p, err
	}
	if p.MarketValue, err = decimal.NewFromString(value); err != nil {
		return p, fmt.Errorf("MARKET_VALUE_CCY: %w", err)
	}

	p.Rating = optionalField(header, row, "CREDIT_RATING")
	p.IndexMember = parseBool(optionalField(header, row, "SMI_CONSTITUENT"))

	if maturity := optionalField(header, row, "MATURITY_DATE"); maturity != "" {
		matDate, err := time.Parse("2006-01-02", maturity)
		if err != nil {
			return p, fmt.Errorf("MATURITY_DATE: %w", err)
		}
		days := int(matDate.Sub(asOfDate).Hours() / 24)
		p.DaysToMaturity = &days
	}

	return p, nil
}

func parseDeposit(header map[string]int, row []string) (lcr.DepositPosition, error) {
	var d lcr.DepositPosition
	var err error

	if d.PositionID, err = field(header, row, "ACCOUNT_ID"); err != nil {
		return d, err
	}
	segment, err := field(header, row, "DEPOSIT_TYPE")
	if err != nil {
		return d, err
	}
	d.Segment = lcr.Segment(segment)
	if d.Currency, err = field(header, row, "CURRENCY"); err != nil {
		return d, err
	}
	balance, err := field(header, row, "BALANCE_CCY")
	if err != nil {
		return d, err
	}
	if d.Balance, err = decimal.NewFromString(balance); err != nil {
		return d, fmt.Errorf("BALANCE_CCY: %w", err)
	}

	if products := optionalField(header, row, "PRODUCT_COUNT"); products != "" {
		if d.ActiveProducts, err = strconv.Atoi(products); err != nil {
			return d, fmt.Errorf("PRODUCT_COUNT: %w", err)
		}
	}
	d.HasDirectDebit = parseBool(optionalField(header, row, "HAS_DIRECT_DEBIT"))
	if tenure := optionalField(header, row, "ACCOUNT_TENURE_DAYS"); tenure != "" {
		days, err := strconv.Atoi(tenure)
		if err != nil {
			return d, fmt.Errorf("ACCOUNT_TENURE_DAYS: %w", err)
		}
		d.TenureMonths = days / 30
	}

	return d, nil
}

func readCSV(ctx context.Context, path string) ([][]string, map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open feed file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	headerRow, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header of %s: %w", filepath.Base(path), err)
	}
	header := make(map[string]int, len(headerRow))
	for i, name := range headerRow {
		header[strings.TrimSpace(strings.ToUpper(name))] = i
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func field(header map[string]int, row []string, name string) (string, error) {
	idx, ok := header[name]
	if !ok || idx >= len(row) {
		return "", fmt.Errorf("missing column %s", name)
	}
	value := strings.TrimSpace(row[idx])
	if value == "" {
		return "", fmt.Errorf("empty column %s", name)
	}
	return value, nil
}

func optionalField(header map[string]int, row []string, name string) string {
	idx, ok := header[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "t", "1", "yes", "y":
		return true
	}
	return false
}
