package tax

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/internal/testfixture"
	"github.com/austriantax/ledger/src/ledger/types"
)

func newEngine(storage *testfixture.Storage) *Engine {
	return New(storage, &testfixture.FlatFx{Rates: map[string]decimal.Decimal{}}, AustrianRates())
}

func TestCalculateEURDividendGrossesUpWithholding(t *testing.T) {
	storage := &testfixture.Storage{
		Dividends: []types.Dividend{
			{Broker: "b", Date: testfixture.Date(2022, 5, 1), ISIN: "X1", Amount: testfixture.D("80"),
				Currency: "EUR", AmountEUR: testfixture.D("80"),
				WithholdingTax: testfixture.D("20"), WithholdingTaxCcy: "EUR"},
		},
	}
	report, err := newEngine(storage).Calculate(context.Background(), testfixture.Date(2022, 12, 31))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	bucket := report.TaxableAmounts[2022]
	if !bucket.Dividends.Equal(testfixture.D("100")) {
		t.Fatalf("got Dividends %s, want 100 (80 net + 20 withheld)", bucket.Dividends)
	}
	if !bucket.WithheldTaxDividends.Equal(testfixture.D("20")) {
		t.Fatalf("got WithheldTaxDividends %s, want 20", bucket.WithheldTaxDividends)
	}
}

func TestCalculateCapsWithholdingAboveDomesticRate(t *testing.T) {
	// withholding percent 0.4 exceeds the Austrian dividend rate of 0.275,
	// so the excess is clawed back out of the EUR withheld-tax credit.
	storage := &testfixture.Storage{
		Dividends: []types.Dividend{
			{Broker: "b", Date: testfixture.Date(2022, 5, 1), ISIN: "X1", Amount: testfixture.D("60"),
				Currency: "EUR", AmountEUR: testfixture.D("60"),
				WithholdingTax: testfixture.D("24"), WithholdingTaxCcy: "EUR"},
		},
	}
	report, err := newEngine(storage).Calculate(context.Background(), testfixture.Date(2022, 12, 31))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	bucket := report.TaxableAmounts[2022]
	if !bucket.WithheldTaxDividends.Equal(testfixture.D("13.5")) {
		t.Fatalf("got WithheldTaxDividends %s, want 13.5", bucket.WithheldTaxDividends)
	}
	if !bucket.Dividends.Equal(testfixture.D("73.5")) {
		t.Fatalf("got Dividends %s, want 73.5", bucket.Dividends)
	}
}

func TestCalculateEURTradeRealizesGainAndLoss(t *testing.T) {
	storage := &testfixture.Storage{
		Trades: []types.Trade{
			{Broker: "b", Date: testfixture.Date(2021, 1, 1), ISIN: "X1", Direction: types.Buy,
				Units: testfixture.D("10"), PricePerUnit: testfixture.D("10"), PricePerUnitEUR: testfixture.D("10"), Currency: "EUR"},
			{Broker: "b", Date: testfixture.Date(2022, 1, 1), ISIN: "X1", Direction: types.Sell,
				Units: testfixture.D("4"), PricePerUnit: testfixture.D("15"), PricePerUnitEUR: testfixture.D("15"), Currency: "EUR"},
			{Broker: "b", Date: testfixture.Date(2022, 2, 1), ISIN: "X1", Direction: types.Sell,
				Units: testfixture.D("3"), PricePerUnit: testfixture.D("5"), PricePerUnitEUR: testfixture.D("5"), Currency: "EUR"},
		},
	}
	report, err := newEngine(storage).Calculate(context.Background(), testfixture.Date(2022, 12, 31))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	bucket := report.TaxableAmounts[2022]
	if !bucket.CapitalGains.Equal(testfixture.D("20")) {
		t.Fatalf("got CapitalGains %s, want 20 ((15-10)*4)", bucket.CapitalGains)
	}
	if !bucket.CapitalLosses.Equal(testfixture.D("15")) {
		t.Fatalf("got CapitalLosses %s, want 15 ((10-5)*3)", bucket.CapitalLosses)
	}
	wac := report.SecurityWacs["X1"]
	if !wac.Units.Equal(testfixture.D("3")) {
		t.Fatalf("got remaining units %s, want 3", wac.Units)
	}
}

func TestCalculateSellWithoutPositionIsDataIntegrityError(t *testing.T) {
	storage := &testfixture.Storage{
		Trades: []types.Trade{
			{Broker: "b", Date: testfixture.Date(2022, 1, 1), ISIN: "X1", Direction: types.Sell,
				Units: testfixture.D("1"), PricePerUnit: testfixture.D("10"), PricePerUnitEUR: testfixture.D("10"), Currency: "EUR"},
		},
	}
	_, err := newEngine(storage).Calculate(context.Background(), testfixture.Date(2022, 12, 31))
	if err == nil {
		t.Fatal("expected a data-integrity error selling a position with no prior buy")
	}
}
