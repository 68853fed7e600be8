package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/austriantax/ledger/src/logger"
	"github.com/austriantax/ledger/src/model"
	"github.com/austriantax/ledger/src/ports"
)

// Housekeeper refreshes reference data the report engines depend on but
// don't maintain themselves: it re-resolves the ISIN->ticker mapping for
// every instrument ever traded (correcting a stale or wrong mapping cached
// by PriceService), and purges daily_price rows older than a retention
// window so the cache doesn't grow unbounded across report runs. Adapted
// from PriceService's own DB-cache pattern; run out-of-band from report
// requests, e.g. on a schedule or before a batch import.
type Housekeeper struct {
	db      *sql.DB
	storage ports.StorageAdapter
	price   *PriceService
}

func NewHousekeeper(db *sql.DB, storage ports.StorageAdapter, price *PriceService) *Housekeeper {
	return &Housekeeper{db: db, storage: storage, price: price}
}

// Run refreshes every traded ISIN's ticker mapping and purges daily_price
// rows older than retain. A failure to refresh one ISIN is logged and
// skipped rather than aborting the whole pass, since a stale mapping for one
// instrument shouldn't block the others; a failure purging stale prices is
// returned, since it signals a broken daily_prices table.
func (h *Housekeeper) Run(ctx context.Context, retain time.Duration) error {
	isins, err := h.usedISINs(ctx)
	if err != nil {
		return err
	}
	for _, isin := range isins {
		if err := h.price.RefreshTickerMapping(ctx, isin); err != nil {
			logger.L.Warn("housekeeping: failed to refresh ticker mapping", "isin", isin, "error", err)
			continue
		}
	}

	cutoff := time.Now().Add(-retain).Format("2006-01-02")
	purged, err := model.PurgeStaleDailyPrices(h.db, cutoff)
	if err != nil {
		return err
	}
	logger.L.Info("housekeeping: purged stale daily prices", "cutoff", cutoff, "rows", purged)
	return nil
}

// usedISINs returns every distinct ISIN that appears in a recorded trade.
func (h *Housekeeper) usedISINs(ctx context.Context) ([]string, error) {
	trades, err := h.storage.QueryTrades(ctx, time.Time{}, time.Now())
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var isins []string
	for _, t := range trades {
		if seen[t.ISIN] {
			continue
		}
		seen[t.ISIN] = true
		isins = append(isins, t.ISIN)
	}
	return isins, nil
}
