// Package ports declares the thin contracts the event accounting engine
// consumes from the outside world. Every implementation (SQLite-backed
// storage, historical-rate files, FRED observations, ...) lives outside this
// package; the engine itself only ever depends on these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/types"
)

// StorageAdapter is the single-writer durable store behind the raw record
// tables. The engine only ever reads through it; importers are the only
// writers, and they run exclusively of report runs.
type StorageAdapter interface {
	QueryInterest(ctx context.Context, start, end time.Time) ([]types.InterestPayment, error)
	QueryTrades(ctx context.Context, start, end time.Time) ([]types.Trade, error)
	QueryDividends(ctx context.Context, start, end time.Time) ([]types.Dividend, error)
	QueryFx(ctx context.Context, start, end time.Time) ([]types.FxConversion, error)
	QueryFundReports(ctx context.Context, start, end time.Time) ([]types.FundReport, error)

	ListStockSplits(ctx context.Context) ([]types.StockSplit, error)
	ListListingChanges(ctx context.Context) ([]types.ListingChange, error)

	GetFundReport(ctx context.Context, id string) (types.FundReport, error)

	EarliestEventYear(ctx context.Context) (int, error)
}

// FxAdapter resolves the EUR exchange rate for a currency on a date. At least
// one leg of (from, to) must be EUR. GBX (pence) is treated as GBP scaled by
// 100 by the adapter implementation, never by callers.
type FxAdapter interface {
	Rate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error)
}

// IndexAdapter resolves a benchmark index's value on a date, using
// most-recent-prior-observation semantics (today's date uses the latest
// observation).
type IndexAdapter interface {
	Observation(ctx context.Context, series string, date time.Time) (decimal.Decimal, error)
}

// PriceAdapter resolves the current market price of a held instrument, in
// its native currency, for PortfolioOverview's total_value.
type PriceAdapter interface {
	CurrentPrice(ctx context.Context, isin string) (price decimal.Decimal, currency string, err error)
}
