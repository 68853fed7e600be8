// Package performance implements the Performance Engine (C3): a sequential
// replay per (broker, isin) trade group producing realised/unrealised P&L,
// plus an alternate-purchase (benchmark) simulation against an index series.
//
// Grounded on get_title_performance and simulate_alternate_purchase from the
// original performance helper module, translated to decimal.Decimal and
// restated over Trade rows already resolved/split-adjusted by the caller.
package performance

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/errs"
	"github.com/austriantax/ledger/src/ledger/types"
	"github.com/austriantax/ledger/src/ports"
)

// TradeGroupPerformance is the result of replaying one (broker, isin) group.
type TradeGroupPerformance struct {
	ISIN            string
	Broker          string
	UnitsLeft       decimal.Decimal
	AverageUnitCost decimal.Decimal
	Realized        decimal.Decimal
	InvestedAmount  decimal.Decimal
}

// Engine replays trade groups for realised performance and benchmark simulation.
type Engine struct {
	Storage ports.StorageAdapter
	Index   ports.IndexAdapter
}

func New(storage ports.StorageAdapter, index ports.IndexAdapter) *Engine {
	return &Engine{Storage: storage, Index: index}
}

// TradeGroup is the set of trades for one (broker, isin) pair.
type TradeGroup struct {
	ISIN   string
	Broker string
	Trades []types.Trade
}

func groupTrades(trades []types.Trade) []TradeGroup {
	index := map[string]int{}
	var groups []TradeGroup
	for _, t := range trades {
		key := t.Broker + "|" + t.ISIN
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, TradeGroup{ISIN: t.ISIN, Broker: t.Broker})
		}
		groups[i].Trades = append(groups[i].Trades, t)
	}
	return groups
}

func sortedBeforeDate(trades []types.Trade, until time.Time) []types.Trade {
	filtered := make([]types.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Date.Before(until) {
			filtered = append(filtered, t)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].Date.Equal(filtered[j].Date) {
			return filtered[i].Date.Before(filtered[j].Date)
		}
		return filtered[i].Direction < filtered[j].Direction
	})
	return filtered
}

// positionSizeOverThreshold reports whether units exceeds the dust threshold.
func positionSizeOverThreshold(units decimal.Decimal) bool {
	return units.GreaterThan(types.DustThreshold)
}

func overridePositionsBelowThreshold(units decimal.Decimal) decimal.Decimal {
	if positionSizeOverThreshold(units) {
		return units
	}
	return decimal.Zero
}

// TradeGroups returns every (broker, isin) trade group, for callers that
// need to pass them into SimulateAlternatePurchase.
func (e *Engine) TradeGroups(ctx context.Context, until time.Time) ([]TradeGroup, error) {
	trades, err := e.Storage.QueryTrades(ctx, time.Time{}, until)
	if err != nil {
		return nil, err
	}
	return groupTrades(trades), nil
}

// Groups returns the realised-performance replay for every (broker, isin)
// group with at least one trade before until.
func (e *Engine) Groups(ctx context.Context, until time.Time) ([]TradeGroupPerformance, error) {
	groups, err := e.TradeGroups(ctx, until)
	if err != nil {
		return nil, err
	}
	var out []TradeGroupPerformance
	for _, g := range groups {
		perf, err := replay(g, until)
		if err != nil {
			return nil, err
		}
		out = append(out, perf)
	}
	return out, nil
}

// Replay exposes the realised-performance replay for a single trade group,
// for callers (e.g. reports.Builder) that already hold a TradeGroup from
// TradeGroups and need the actual-performance counterpart to a benchmark
// simulation.
func (e *Engine) Replay(group TradeGroup, until time.Time) (TradeGroupPerformance, error) {
	return replay(group, until)
}

func replay(group TradeGroup, until time.Time) (TradeGroupPerformance, error) {
	queue := sortedBeforeDate(group.Trades, until)
	queueLen := len(queue)

	held := decimal.Zero
	purchaseValue := decimal.Zero
	pnl := decimal.Zero
	invested := decimal.Zero

	for i, t := range queue {
		units := t.Units
		switch t.Direction {
		case types.Buy:
			held = held.Add(units)
			purchaseValue = purchaseValue.Add(t.PricePerUnitEUR.Mul(units))
			invested = invested.Add(t.PricePerUnitEUR.Mul(units))
		case types.Sell:
			if held.IsZero() {
				return TradeGroupPerformance{}, errs.NewDataIntegrity("sell with no prior position held", t)
			}
			avgPurchasePrice := purchaseValue.Div(held)
			actualSellPrice := t.PricePerUnitEUR
			realizedForTrade := actualSellPrice.Sub(avgPurchasePrice).Mul(units)
			pnl = pnl.Add(realizedForTrade)
			held = held.Sub(units)
			purchaseValue = purchaseValue.Sub(avgPurchasePrice.Mul(units))

			isLast := queueLen == i+1
			switch {
			case !positionSizeOverThreshold(held) && !isLast:
				invested = invested.Sub(realizedForTrade.Add(avgPurchasePrice.Mul(units)))
			case positionSizeOverThreshold(held) && isLast:
				invested = invested.Sub(realizedForTrade)
			}
		}
	}

	held = overridePositionsBelowThreshold(held)

	avgUnitCost := decimal.Zero
	if held.GreaterThan(decimal.Zero) {
		avgUnitCost = purchaseValue.Div(held)
	}

	return TradeGroupPerformance{
		ISIN:            group.ISIN,
		Broker:          group.Broker,
		UnitsLeft:       held,
		AverageUnitCost: avgUnitCost,
		Realized:        pnl,
		InvestedAmount:  invested,
	}, nil
}

// SimulateAlternatePurchase replays group as if every EUR amount had instead
// bought units of the given index series at the index price on the trade
// date, preserving the timing and magnitude of capital movement.
func (e *Engine) SimulateAlternatePurchase(ctx context.Context, group TradeGroup, until time.Time, series string) (*TradeGroupPerformance, error) {
	queueWithoutOverrides := sortedBeforeDate(group.Trades, until)
	if len(queueWithoutOverrides) == 0 {
		return nil, nil
	}

	type overriddenTrade struct {
		direction    types.Direction
		syntheticQty decimal.Decimal
		indexPrice   decimal.Decimal
	}
	overrides := make([]overriddenTrade, 0, len(queueWithoutOverrides))
	for _, t := range queueWithoutOverrides {
		indexPrice, err := e.Index.Observation(ctx, series, t.Date)
		if err != nil {
			return nil, err
		}
		syntheticQty := t.PricePerUnitEUR.Mul(t.Units).Div(indexPrice)
		overrides = append(overrides, overriddenTrade{
			direction:    t.Direction,
			syntheticQty: syntheticQty,
			indexPrice:   indexPrice,
		})
	}

	realHeld := decimal.Zero
	held := decimal.Zero
	purchaseValue := decimal.Zero
	pnl := decimal.Zero
	invested := decimal.Zero
	queueLen := len(overrides)

	for i, ov := range overrides {
		switch ov.direction {
		case types.Buy:
			held = held.Add(ov.syntheticQty)
			realHeld = realHeld.Add(queueWithoutOverrides[i].Units)
			purchaseValue = purchaseValue.Add(ov.indexPrice.Mul(ov.syntheticQty))
			invested = invested.Add(ov.indexPrice.Mul(ov.syntheticQty))
		case types.Sell:
			if realHeld.IsZero() {
				return nil, errs.NewDataIntegrity("sell with no prior position held", queueWithoutOverrides[i])
			}
			shareOfAccrued := queueWithoutOverrides[i].Units.Div(realHeld)
			normalizedUnits := shareOfAccrued.Mul(held)

			avgPurchasePrice := purchaseValue.Div(held)
			actualSellPrice := ov.indexPrice
			realizedForTrade := actualSellPrice.Sub(avgPurchasePrice).Mul(normalizedUnits)
			pnl = pnl.Add(realizedForTrade)
			held = held.Sub(normalizedUnits)
			realHeld = realHeld.Sub(queueWithoutOverrides[i].Units)
			purchaseValue = purchaseValue.Sub(avgPurchasePrice.Mul(normalizedUnits))

			isLast := queueLen == i+1
			switch {
			case !positionSizeOverThreshold(held) && !isLast:
				invested = invested.Sub(realizedForTrade.Add(avgPurchasePrice.Mul(normalizedUnits)))
			case positionSizeOverThreshold(held) && isLast:
				invested = invested.Sub(realizedForTrade)
			}
		}
	}

	held = overridePositionsBelowThreshold(held)
	avgUnitCost := decimal.Zero
	if held.GreaterThan(decimal.Zero) {
		avgUnitCost = purchaseValue.Div(held)
	}

	return &TradeGroupPerformance{
		ISIN:            group.ISIN,
		Broker:          group.Broker,
		UnitsLeft:       held,
		AverageUnitCost: avgUnitCost,
		Realized:        pnl,
		InvestedAmount:  invested,
	}, nil
}
