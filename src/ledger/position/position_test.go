package position

import (
	"context"
	"testing"

	"github.com/austriantax/ledger/src/ledger/internal/testfixture"
	"github.com/austriantax/ledger/src/ledger/types"
)

func TestPositionsAccumulatesBuysAndSells(t *testing.T) {
	storage := &testfixture.Storage{
		Trades: []types.Trade{
			{Broker: "b", Date: testfixture.Date(2020, 1, 1), ISIN: "X1", Direction: types.Buy,
				Units: testfixture.D("10"), PricePerUnit: testfixture.D("5"), PricePerUnitEUR: testfixture.D("5"), Currency: "EUR"},
			{Broker: "b", Date: testfixture.Date(2020, 6, 1), ISIN: "X1", Direction: types.Sell,
				Units: testfixture.D("4"), PricePerUnit: testfixture.D("6"), PricePerUnitEUR: testfixture.D("6"), Currency: "EUR"},
		},
	}
	holdings, err := New(storage).Positions(context.Background(), testfixture.Date(2021, 1, 1), "")
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(holdings) != 1 || !holdings[0].Units.Equal(testfixture.D("6")) {
		t.Fatalf("got %+v, want a single X1 holding of 6 units", holdings)
	}
}

func TestPositionsDropsDustToZero(t *testing.T) {
	storage := &testfixture.Storage{
		Trades: []types.Trade{
			{Broker: "b", Date: testfixture.Date(2020, 1, 1), ISIN: "X1", Direction: types.Buy,
				Units: testfixture.D("5"), PricePerUnit: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1"), Currency: "EUR"},
			{Broker: "b", Date: testfixture.Date(2020, 6, 1), ISIN: "X1", Direction: types.Sell,
				Units: testfixture.D("5"), PricePerUnit: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1"), Currency: "EUR"},
		},
	}
	holdings, err := New(storage).Positions(context.Background(), testfixture.Date(2021, 1, 1), "")
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(holdings) != 0 {
		t.Fatalf("got %+v, want a fully closed position to be dropped", holdings)
	}
}

func TestPositionsAppliesSplitBetweenTradeAndAsof(t *testing.T) {
	storage := &testfixture.Storage{
		Trades: []types.Trade{
			{Broker: "b", Date: testfixture.Date(2020, 1, 1), ISIN: "X1", Direction: types.Buy,
				Units: testfixture.D("10"), PricePerUnit: testfixture.D("5"), PricePerUnitEUR: testfixture.D("5"), Currency: "EUR"},
		},
		Splits: []types.StockSplit{
			{ISIN: "X1", ExDate: testfixture.Date(2020, 6, 1), FromFactor: testfixture.D("1"), ToFactor: testfixture.D("2")},
		},
	}
	holdings, err := New(storage).Positions(context.Background(), testfixture.Date(2021, 1, 1), "")
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(holdings) != 1 || !holdings[0].Units.Equal(testfixture.D("20")) {
		t.Fatalf("got %+v, want 20 units after a 2-for-1 split", holdings)
	}
}

func TestPositionsFiltersByISIN(t *testing.T) {
	storage := &testfixture.Storage{
		Trades: []types.Trade{
			{Broker: "b", Date: testfixture.Date(2020, 1, 1), ISIN: "X1", Direction: types.Buy, Units: testfixture.D("1"), PricePerUnit: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1"), Currency: "EUR"},
			{Broker: "b", Date: testfixture.Date(2020, 1, 1), ISIN: "X2", Direction: types.Buy, Units: testfixture.D("1"), PricePerUnit: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1"), Currency: "EUR"},
		},
	}
	holdings, err := New(storage).Positions(context.Background(), testfixture.Date(2021, 1, 1), "X2")
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(holdings) != 1 || holdings[0].ISIN != "X2" {
		t.Fatalf("got %+v, want only X2", holdings)
	}
}
