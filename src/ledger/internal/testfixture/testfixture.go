// Package testfixture provides an in-memory ports.StorageAdapter and
// ports.FxAdapter for exercising the ledger engines without a database,
// mirroring the teacher's preference for table-driven tests over a real
// SQLite instance in unit scope.
package testfixture

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/errs"
	"github.com/austriantax/ledger/src/ledger/types"
)

// Storage is a fully in-memory ports.StorageAdapter.
type Storage struct {
	Interest    []types.InterestPayment
	Trades      []types.Trade
	Dividends   []types.Dividend
	Fx          []types.FxConversion
	FundReports []types.FundReport
	Splits      []types.StockSplit
	Listing     []types.ListingChange
	Earliest    int
}

func (s *Storage) QueryInterest(ctx context.Context, start, end time.Time) ([]types.InterestPayment, error) {
	var out []types.InterestPayment
	for _, r := range s.Interest {
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Storage) QueryTrades(ctx context.Context, start, end time.Time) ([]types.Trade, error) {
	var out []types.Trade
	for _, r := range s.Trades {
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Storage) QueryDividends(ctx context.Context, start, end time.Time) ([]types.Dividend, error) {
	var out []types.Dividend
	for _, r := range s.Dividends {
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Storage) QueryFx(ctx context.Context, start, end time.Time) ([]types.FxConversion, error) {
	var out []types.FxConversion
	for _, r := range s.Fx {
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Storage) QueryFundReports(ctx context.Context, start, end time.Time) ([]types.FundReport, error) {
	var out []types.FundReport
	for _, r := range s.FundReports {
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Storage) ListStockSplits(ctx context.Context) ([]types.StockSplit, error) {
	return s.Splits, nil
}

func (s *Storage) ListListingChanges(ctx context.Context) ([]types.ListingChange, error) {
	return s.Listing, nil
}

func (s *Storage) GetFundReport(ctx context.Context, id string) (types.FundReport, error) {
	for _, r := range s.FundReports {
		if r.ID == id {
			return r, nil
		}
	}
	return types.FundReport{}, errs.NewNotFound("fund_report", id)
}

func (s *Storage) EarliestEventYear(ctx context.Context) (int, error) {
	if s.Earliest != 0 {
		return s.Earliest, nil
	}
	earliest := time.Now().Year()
	consider := func(d time.Time) {
		if d.Year() < earliest {
			earliest = d.Year()
		}
	}
	for _, r := range s.Interest {
		consider(r.Date)
	}
	for _, r := range s.Trades {
		consider(r.Date)
	}
	for _, r := range s.Dividends {
		consider(r.Date)
	}
	for _, r := range s.Fx {
		consider(r.Date)
	}
	for _, r := range s.FundReports {
		consider(r.Date)
	}
	return earliest, nil
}

// FlatFx is an FxAdapter returning a single fixed ccy-per-EUR rate per
// currency, regardless of date, for deterministic tests.
type FlatFx struct {
	Rates map[string]decimal.Decimal
}

func (f *FlatFx) Rate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	if from == "EUR" {
		if r, ok := f.Rates[to]; ok {
			return r, nil
		}
		return decimal.Zero, errs.NewNotFound("fx_rate", to)
	}
	if to == "EUR" {
		if r, ok := f.Rates[from]; ok {
			return decimal.NewFromInt(1).Div(r), nil
		}
		return decimal.Zero, errs.NewNotFound("fx_rate", from)
	}
	return decimal.Zero, errs.NewConfiguration("fx pair without an EUR leg")
}

// FlatIndex is an IndexAdapter returning a single fixed value regardless of
// date.
type FlatIndex struct {
	Value decimal.Decimal
}

func (f *FlatIndex) Observation(ctx context.Context, series string, date time.Time) (decimal.Decimal, error) {
	return f.Value, nil
}

func D(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
