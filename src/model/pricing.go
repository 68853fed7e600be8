package model

import (
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ISINTickerMap represents a row in the isin_ticker_map table.
// It caches the mapping from an ISIN to a specific stock ticker.
type ISINTickerMap struct {
	ISIN          string
	TickerSymbol  string
	Exchange      sql.NullString // Use sql.NullString for nullable TEXT fields
	Currency      string
	CreatedAt     time.Time
	LastCheckedAt sql.NullTime // Use sql.NullTime for nullable TIMESTAMP fields
}

// GetMappingsByISINs retrieves multiple ISIN-to-ticker mappings from the database in a single query.
// It returns a map for easy lookup, where the key is the ISIN.
func GetMappingsByISINs(db *sql.DB, isins []string) (map[string]ISINTickerMap, error) {
	mappings := make(map[string]ISINTickerMap)
	if len(isins) == 0 {
		return mappings, nil
	}

	// Using `IN` clause is efficient for batch lookups.
	// We construct the query with the correct number of placeholders.
	query := `SELECT isin, ticker_symbol, exchange, currency, created_at, last_checked_at FROM isin_ticker_map WHERE isin IN (?` + strings.Repeat(",?", len(isins)-1) + `)`

	// Convert the slice of strings to a slice of interfaces for the query arguments.
	args := make([]interface{}, len(isins))
	for i, isin := range isins {
		args[i] = isin
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var mapping ISINTickerMap
		if err := rows.Scan(
			&mapping.ISIN,
			&mapping.TickerSymbol,
			&mapping.Exchange,
			&mapping.Currency,
			&mapping.CreatedAt,
			&mapping.LastCheckedAt,
		); err != nil {
			return nil, err
		}
		mappings[mapping.ISIN] = mapping
	}

	return mappings, rows.Err()
}

// InsertMapping inserts a single new ISIN-to-ticker mapping into the database.
func InsertMapping(db *sql.DB, mapping ISINTickerMap) error {
	query := `
		INSERT INTO isin_ticker_map (isin, ticker_symbol, exchange, currency, last_checked_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := db.Exec(query, mapping.ISIN, mapping.TickerSymbol, mapping.Exchange, mapping.Currency, time.Now())
	return err
}

// UpsertMapping replaces an existing ISIN-to-ticker mapping, for callers that
// need to correct a stale resolution rather than only cache a missing one.
func UpsertMapping(db *sql.DB, mapping ISINTickerMap) error {
	_, err := db.Exec(`
		INSERT INTO isin_ticker_map (isin, ticker_symbol, exchange, currency, last_checked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(isin) DO UPDATE SET
			ticker_symbol = excluded.ticker_symbol,
			exchange = excluded.exchange,
			currency = excluded.currency,
			last_checked_at = excluded.last_checked_at`,
		mapping.ISIN, mapping.TickerSymbol, mapping.Exchange, mapping.Currency, time.Now())
	return err
}

// DailyPrice is a single ticker's closing quote for one calendar day, cached
// so a report run never calls the upstream quote API more than once per
// instrument per day.
type DailyPrice struct {
	TickerSymbol string
	Date         string
	Price        decimal.Decimal
	Currency     string
}

// GetDailyPrice returns a cached quote for ticker on date, if present.
func GetDailyPrice(db *sql.DB, ticker, date string) (DailyPrice, bool, error) {
	row := db.QueryRow(`SELECT ticker_symbol, date, price, currency FROM daily_prices WHERE ticker_symbol = ? AND date = ?`, ticker, date)
	var (
		dp       DailyPrice
		priceStr string
	)
	if err := row.Scan(&dp.TickerSymbol, &dp.Date, &priceStr, &dp.Currency); err != nil {
		if err == sql.ErrNoRows {
			return DailyPrice{}, false, nil
		}
		return DailyPrice{}, false, err
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return DailyPrice{}, false, err
	}
	dp.Price = price
	return dp, true, nil
}

// UpsertDailyPrice stores or replaces the cached quote for (ticker, date).
func UpsertDailyPrice(db *sql.DB, dp DailyPrice) error {
	_, err := db.Exec(`
		INSERT INTO daily_prices (ticker_symbol, date, price, currency)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker_symbol, date) DO UPDATE SET price = excluded.price, currency = excluded.currency`,
		dp.TickerSymbol, dp.Date, dp.Price.String(), dp.Currency)
	return err
}

// PurgeStaleDailyPrices deletes cached quotes older than cutoff (exclusive),
// returning the number of rows removed.
func PurgeStaleDailyPrices(db *sql.DB, cutoff string) (int64, error) {
	result, err := db.Exec(`DELETE FROM daily_prices WHERE date < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
