package adjust

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestResolveIdentifierFollowsSingleHop(t *testing.T) {
	changes := []types.ListingChange{
		{FromIdentifier: "OLD1", ToIdentifier: "NEW1", ExDate: date(2020, 1, 1)},
	}
	if got := ResolveIdentifier("OLD1", changes); got != "NEW1" {
		t.Fatalf("got %q, want NEW1", got)
	}
	if got := ResolveIdentifier("UNRELATED", changes); got != "UNRELATED" {
		t.Fatalf("got %q, want UNRELATED unchanged", got)
	}
}

func TestAdjustUnitsAppliesOnlySplitsAfterDate(t *testing.T) {
	splits := []types.StockSplit{
		{ISIN: "X1", ExDate: date(2021, 6, 1), FromFactor: d("1"), ToFactor: d("2")},
	}
	// A purchase before the ex-date must be scaled up.
	before := AdjustUnits("X1", d("10"), date(2021, 1, 1), splits)
	if !before.Equal(d("20")) {
		t.Fatalf("before split: got %s, want 20", before)
	}
	// A purchase after the ex-date is already post-split; no further scaling.
	after := AdjustUnits("X1", d("10"), date(2021, 12, 1), splits)
	if !after.Equal(d("10")) {
		t.Fatalf("after split: got %s, want 10", after)
	}
}

func TestAdjustUnitsComposesMultipleSplits(t *testing.T) {
	splits := []types.StockSplit{
		{ISIN: "X1", ExDate: date(2020, 1, 1), FromFactor: d("1"), ToFactor: d("2")},
		{ISIN: "X1", ExDate: date(2021, 1, 1), FromFactor: d("1"), ToFactor: d("3")},
	}
	got := AdjustUnits("X1", d("1"), date(2019, 1, 1), splits)
	if !got.Equal(d("6")) {
		t.Fatalf("got %s, want 6 (2x then 3x)", got)
	}
}

func TestAdjustPricePreservesNotional(t *testing.T) {
	splits := []types.StockSplit{
		{ISIN: "X1", ExDate: date(2021, 6, 1), FromFactor: d("1"), ToFactor: d("4")},
	}
	units := d("10")
	price := d("100")
	notionalBefore := units.Mul(price)

	adjUnits := AdjustUnits("X1", units, date(2021, 1, 1), splits)
	adjPrice := AdjustPrice("X1", price, date(2021, 1, 1), splits)

	if !adjUnits.Mul(adjPrice).Equal(notionalBefore) {
		t.Fatalf("notional not preserved: %s*%s != %s", adjUnits, adjPrice, notionalBefore)
	}
}

func TestAdjustUnitsIgnoresOtherIsins(t *testing.T) {
	splits := []types.StockSplit{
		{ISIN: "OTHER", ExDate: date(2020, 1, 1), FromFactor: d("1"), ToFactor: d("2")},
	}
	got := AdjustUnits("X1", d("5"), date(2019, 1, 1), splits)
	if !got.Equal(d("5")) {
		t.Fatalf("got %s, want unchanged 5", got)
	}
}
