package performance

import (
	"context"
	"testing"

	"github.com/austriantax/ledger/src/ledger/internal/testfixture"
	"github.com/austriantax/ledger/src/ledger/types"
)

func TestReplayFullSellRealizesGainAgainstAverageCost(t *testing.T) {
	group := TradeGroup{
		ISIN:   "X1",
		Broker: "b",
		Trades: []types.Trade{
			{Date: testfixture.Date(2020, 1, 1), Direction: types.Buy, Units: testfixture.D("10"), PricePerUnitEUR: testfixture.D("10")},
			{Date: testfixture.Date(2020, 2, 1), Direction: types.Buy, Units: testfixture.D("10"), PricePerUnitEUR: testfixture.D("20")},
			{Date: testfixture.Date(2020, 3, 1), Direction: types.Sell, Units: testfixture.D("20"), PricePerUnitEUR: testfixture.D("25")},
		},
	}
	got, err := replay(group, testfixture.Date(2020, 12, 31))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	// average cost of 20 units bought at 10 and 20 => 15; sell 20 at 25 => (25-15)*20 = 200
	if !got.Realized.Equal(testfixture.D("200")) {
		t.Fatalf("got realized %s, want 200", got.Realized)
	}
	if !got.UnitsLeft.IsZero() {
		t.Fatalf("got units left %s, want 0 after a full close", got.UnitsLeft)
	}
}

func TestReplayPartialSellLeavesRemainingAverageCost(t *testing.T) {
	group := TradeGroup{
		ISIN:   "X1",
		Broker: "b",
		Trades: []types.Trade{
			{Date: testfixture.Date(2020, 1, 1), Direction: types.Buy, Units: testfixture.D("10"), PricePerUnitEUR: testfixture.D("10")},
			{Date: testfixture.Date(2020, 2, 1), Direction: types.Sell, Units: testfixture.D("4"), PricePerUnitEUR: testfixture.D("15")},
		},
	}
	got, err := replay(group, testfixture.Date(2020, 12, 31))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !got.UnitsLeft.Equal(testfixture.D("6")) {
		t.Fatalf("got units left %s, want 6", got.UnitsLeft)
	}
	if !got.AverageUnitCost.Equal(testfixture.D("10")) {
		t.Fatalf("got average cost %s, want 10 (unweighted by sell)", got.AverageUnitCost)
	}
	if !got.Realized.Equal(testfixture.D("20")) {
		t.Fatalf("got realized %s, want 20 ((15-10)*4)", got.Realized)
	}
}

func TestReplaySellWithNothingHeldIsDataIntegrityError(t *testing.T) {
	group := TradeGroup{
		ISIN:   "X1",
		Broker: "b",
		Trades: []types.Trade{
			{Date: testfixture.Date(2020, 1, 1), Direction: types.Sell, Units: testfixture.D("5"), PricePerUnitEUR: testfixture.D("10")},
		},
	}
	_, err := replay(group, testfixture.Date(2020, 12, 31))
	if err == nil {
		t.Fatal("expected a data-integrity error selling a position with no prior buy")
	}
}

func TestSimulateAlternatePurchaseScalesToIndexUnits(t *testing.T) {
	group := TradeGroup{
		ISIN:   "X1",
		Broker: "b",
		Trades: []types.Trade{
			{Date: testfixture.Date(2020, 1, 1), Direction: types.Buy, Units: testfixture.D("10"), PricePerUnitEUR: testfixture.D("10")},
		},
	}
	e := New(&testfixture.Storage{}, &testfixture.FlatIndex{Value: testfixture.D("50")})
	got, err := e.SimulateAlternatePurchase(context.Background(), group, testfixture.Date(2020, 12, 31), "SPX")
	if err != nil {
		t.Fatalf("SimulateAlternatePurchase: %v", err)
	}
	// 100 EUR notional / index price 50 = 2 synthetic units.
	if !got.UnitsLeft.Equal(testfixture.D("2")) {
		t.Fatalf("got units %s, want 2", got.UnitsLeft)
	}
	if !got.AverageUnitCost.Equal(testfixture.D("50")) {
		t.Fatalf("got avg cost %s, want 50", got.AverageUnitCost)
	}
}

func TestSimulateAlternatePurchaseSellWithNothingHeldIsDataIntegrityError(t *testing.T) {
	group := TradeGroup{
		ISIN:   "X1",
		Broker: "b",
		Trades: []types.Trade{
			{Date: testfixture.Date(2020, 1, 1), Direction: types.Sell, Units: testfixture.D("5"), PricePerUnitEUR: testfixture.D("10")},
		},
	}
	e := New(&testfixture.Storage{}, &testfixture.FlatIndex{Value: testfixture.D("50")})
	_, err := e.SimulateAlternatePurchase(context.Background(), group, testfixture.Date(2020, 12, 31), "SPX")
	if err == nil {
		t.Fatal("expected a data-integrity error selling a position with no prior buy")
	}
}

func TestGroupTradesPartitionsByBrokerAndIsin(t *testing.T) {
	trades := []types.Trade{
		{Broker: "A", ISIN: "X1", Direction: types.Buy, Units: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1")},
		{Broker: "A", ISIN: "X2", Direction: types.Buy, Units: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1")},
		{Broker: "B", ISIN: "X1", Direction: types.Buy, Units: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1")},
	}
	groups := groupTrades(trades)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
}
