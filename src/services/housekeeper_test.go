package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/types"
)

type stubStorage struct {
	trades []types.Trade
}

func (s *stubStorage) QueryInterest(ctx context.Context, start, end time.Time) ([]types.InterestPayment, error) {
	return nil, nil
}
func (s *stubStorage) QueryTrades(ctx context.Context, start, end time.Time) ([]types.Trade, error) {
	return s.trades, nil
}
func (s *stubStorage) QueryDividends(ctx context.Context, start, end time.Time) ([]types.Dividend, error) {
	return nil, nil
}
func (s *stubStorage) QueryFx(ctx context.Context, start, end time.Time) ([]types.FxConversion, error) {
	return nil, nil
}
func (s *stubStorage) QueryFundReports(ctx context.Context, start, end time.Time) ([]types.FundReport, error) {
	return nil, nil
}
func (s *stubStorage) ListStockSplits(ctx context.Context) ([]types.StockSplit, error) {
	return nil, nil
}
func (s *stubStorage) ListListingChanges(ctx context.Context) ([]types.ListingChange, error) {
	return nil, nil
}
func (s *stubStorage) GetFundReport(ctx context.Context, id string) (types.FundReport, error) {
	return types.FundReport{}, nil
}
func (s *stubStorage) EarliestEventYear(ctx context.Context) (int, error) { return 2020, nil }

func TestHousekeeperUsedISINsDeduplicates(t *testing.T) {
	storage := &stubStorage{
		trades: []types.Trade{
			{ISIN: "IE1", Units: decimal.NewFromInt(1)},
			{ISIN: "IE2", Units: decimal.NewFromInt(1)},
			{ISIN: "IE1", Units: decimal.NewFromInt(1)},
		},
	}
	h := &Housekeeper{storage: storage}

	isins, err := h.usedISINs(context.Background())
	if err != nil {
		t.Fatalf("usedISINs: %v", err)
	}
	if len(isins) != 2 {
		t.Fatalf("got %d isins, want 2 (deduplicated): %v", len(isins), isins)
	}
}
