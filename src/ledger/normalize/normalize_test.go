package normalize

import (
	"context"
	"testing"

	"github.com/austriantax/ledger/src/ledger/internal/testfixture"
	"github.com/austriantax/ledger/src/ledger/types"
)

func TestEventsOrdersChronologically(t *testing.T) {
	storage := &testfixture.Storage{
		Trades: []types.Trade{
			{Broker: "b", Date: testfixture.Date(2022, 3, 1), ISIN: "X1", Direction: types.Buy,
				Units: testfixture.D("10"), PricePerUnit: testfixture.D("5"), PricePerUnitEUR: testfixture.D("5"),
				Currency: "EUR", SecurityType: "Share"},
		},
		Dividends: []types.Dividend{
			{Broker: "b", Date: testfixture.Date(2022, 1, 1), ISIN: "X1", Amount: testfixture.D("3"),
				Currency: "EUR", AmountEUR: testfixture.D("3")},
		},
		Interest: []types.InterestPayment{
			{Broker: "b", Date: testfixture.Date(2022, 2, 1), Amount: testfixture.D("1"), Currency: "EUR",
				AmountEUR: testfixture.D("1"), Principal: types.PrincipalCash},
		},
	}

	events, err := New(storage).Events(context.Background(), testfixture.Date(2022, 1, 1), testfixture.Date(2023, 1, 1))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Date.Before(events[i-1].Date) {
			t.Fatalf("events not chronologically ordered at index %d", i)
		}
	}
	if events[0].Kind != types.KindDividend || events[1].Kind != types.KindCashInterest || events[2].Kind != types.KindTrade {
		t.Fatalf("unexpected kind ordering: %v %v %v", events[0].Kind, events[1].Kind, events[2].Kind)
	}
}

func TestEventsResolvesListingChangeAlias(t *testing.T) {
	storage := &testfixture.Storage{
		Trades: []types.Trade{
			{Broker: "b", Date: testfixture.Date(2022, 1, 1), ISIN: "OLD", Direction: types.Buy,
				Units: testfixture.D("1"), PricePerUnit: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1"),
				Currency: "EUR", SecurityType: "Share"},
		},
		Listing: []types.ListingChange{
			{FromIdentifier: "OLD", ToIdentifier: "NEW", ExDate: testfixture.Date(2021, 1, 1),
				FromFactor: testfixture.D("1"), ToFactor: testfixture.D("1")},
		},
	}

	events, err := New(storage).Events(context.Background(), testfixture.Date(2022, 1, 1), testfixture.Date(2023, 1, 1))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Identifier != "NEW" {
		t.Fatalf("identifier not resolved: got %q, want NEW", events[0].Identifier)
	}
}

func TestEventsRejectsWithholdingCurrencyMismatch(t *testing.T) {
	storage := &testfixture.Storage{
		Dividends: []types.Dividend{
			{Broker: "b", Date: testfixture.Date(2022, 1, 1), ISIN: "X1", Amount: testfixture.D("10"),
				Currency: "USD", AmountEUR: testfixture.D("9"),
				WithholdingTax: testfixture.D("1"), WithholdingTaxCcy: "EUR"},
		},
	}
	_, err := New(storage).Events(context.Background(), testfixture.Date(2022, 1, 1), testfixture.Date(2023, 1, 1))
	if err == nil {
		t.Fatal("expected an error for withholding tax in a different currency than the dividend")
	}
}

func TestEventsWindowIsHalfOpen(t *testing.T) {
	storage := &testfixture.Storage{
		Trades: []types.Trade{
			{Broker: "b", Date: testfixture.Date(2022, 1, 1), ISIN: "X1", Direction: types.Buy,
				Units: testfixture.D("1"), PricePerUnit: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1"),
				Currency: "EUR", SecurityType: "Share"},
			{Broker: "b", Date: testfixture.Date(2023, 1, 1), ISIN: "X1", Direction: types.Buy,
				Units: testfixture.D("1"), PricePerUnit: testfixture.D("1"), PricePerUnitEUR: testfixture.D("1"),
				Currency: "EUR", SecurityType: "Share"},
		},
	}
	events, err := New(storage).Events(context.Background(), testfixture.Date(2022, 1, 1), testfixture.Date(2023, 1, 1))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (end boundary excluded)", len(events))
	}
	if events[0].Date.Year() != 2022 {
		t.Fatalf("got year %d, want 2022", events[0].Date.Year())
	}
}
