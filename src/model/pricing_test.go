package model

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
		CREATE TABLE isin_ticker_map (
			isin TEXT PRIMARY KEY,
			ticker_symbol TEXT NOT NULL,
			exchange TEXT,
			currency TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_checked_at DATETIME
		);
		CREATE TABLE daily_prices (
			ticker_symbol TEXT NOT NULL,
			date DATE NOT NULL,
			price TEXT NOT NULL,
			currency TEXT NOT NULL,
			PRIMARY KEY (ticker_symbol, date)
		);`)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func TestUpsertMappingOverwritesExistingRow(t *testing.T) {
	db := openTestDB(t)

	if err := InsertMapping(db, ISINTickerMap{ISIN: "IE1", TickerSymbol: "OLD", Currency: "USD"}); err != nil {
		t.Fatalf("InsertMapping: %v", err)
	}
	if err := UpsertMapping(db, ISINTickerMap{ISIN: "IE1", TickerSymbol: "NEW", Currency: "EUR"}); err != nil {
		t.Fatalf("UpsertMapping: %v", err)
	}

	mappings, err := GetMappingsByISINs(db, []string{"IE1"})
	if err != nil {
		t.Fatalf("GetMappingsByISINs: %v", err)
	}
	got, ok := mappings["IE1"]
	if !ok {
		t.Fatal("expected a mapping for IE1")
	}
	if got.TickerSymbol != "NEW" || got.Currency != "EUR" {
		t.Fatalf("got %+v, want ticker NEW / currency EUR", got)
	}
}

func TestPurgeStaleDailyPricesRemovesOnlyOlderRows(t *testing.T) {
	db := openTestDB(t)

	if err := UpsertDailyPrice(db, DailyPrice{TickerSymbol: "AAPL", Date: "2020-01-01", Price: decimal.NewFromInt(100), Currency: "USD"}); err != nil {
		t.Fatalf("UpsertDailyPrice old: %v", err)
	}
	if err := UpsertDailyPrice(db, DailyPrice{TickerSymbol: "AAPL", Date: "2030-01-01", Price: decimal.NewFromInt(200), Currency: "USD"}); err != nil {
		t.Fatalf("UpsertDailyPrice recent: %v", err)
	}

	purged, err := PurgeStaleDailyPrices(db, "2025-01-01")
	if err != nil {
		t.Fatalf("PurgeStaleDailyPrices: %v", err)
	}
	if purged != 1 {
		t.Fatalf("got %d purged rows, want 1", purged)
	}

	if _, ok, err := GetDailyPrice(db, "AAPL", "2020-01-01"); err != nil || ok {
		t.Fatalf("expected the 2020 row to be purged, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := GetDailyPrice(db, "AAPL", "2030-01-01"); err != nil || !ok {
		t.Fatalf("expected the 2030 row to survive, got ok=%v err=%v", ok, err)
	}
}
