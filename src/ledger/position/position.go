// Package position implements the Position Engine (C2): holdings as of a
// date from the raw trade record stream, under split and identifier
// rewriting.
//
// Grounded on the double split-adjustment algorithm used by the original
// position query: units are adjusted at the trade date while accumulating,
// then the accumulated total is adjusted a second time at the as-of date so
// positions reflect any split that happened between the trade and the
// report date.
package position

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/adjust"
	"github.com/austriantax/ledger/src/ledger/types"
	"github.com/austriantax/ledger/src/ports"
)

// Holding is a single instrument's unit count as of a reporting date.
type Holding struct {
	ISIN  string
	Units decimal.Decimal
}

// Engine computes positions from the storage adapter's raw trade rows.
type Engine struct {
	Storage ports.StorageAdapter
}

func New(storage ports.StorageAdapter) *Engine {
	return &Engine{Storage: storage}
}

// Positions returns non-dust holdings as of asof, optionally filtered to a
// single ISIN (resolved through listing changes before filtering).
func (e *Engine) Positions(ctx context.Context, asof time.Time, isin string) ([]Holding, error) {
	trades, err := e.Storage.QueryTrades(ctx, time.Time{}, asof)
	if err != nil {
		return nil, err
	}
	splits, err := e.Storage.ListStockSplits(ctx)
	if err != nil {
		return nil, err
	}
	changes, err := e.Storage.ListListingChanges(ctx)
	if err != nil {
		return nil, err
	}

	accum := map[string]decimal.Decimal{}
	for _, t := range trades {
		if t.Date.After(asof) {
			continue
		}
		resolved := adjust.ResolveIdentifier(t.ISIN, changes)
		if isin != "" && resolved != isin {
			continue
		}
		units := adjust.AdjustUnits(t.ISIN, t.Units, t.Date, splits)
		switch t.Direction {
		case types.Buy:
			accum[resolved] = accum[resolved].Add(units)
		case types.Sell:
			accum[resolved] = accum[resolved].Sub(units)
		}
	}

	holdings := make([]Holding, 0, len(accum))
	for id, units := range accum {
		// Second adjustment: roll forward any split between the trade
		// date and asof that wasn't already captured per-trade because
		// the per-trade adjustment only looks forward from that trade's
		// own date, not from asof.
		rolled := adjust.AdjustUnits(id, units, asof, splits)
		if types.IsDust(rolled) {
			continue
		}
		holdings = append(holdings, Holding{ISIN: id, Units: rolled})
	}

	sort.Slice(holdings, func(i, j int) bool { return holdings[i].ISIN < holdings[j].ISIN })
	return holdings, nil
}
