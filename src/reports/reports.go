// Package reports assembles the three read-facing views the core produces,
// each built by driving the position, performance and tax engines from a
// single as-of date.
package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/performance"
	"github.com/austriantax/ledger/src/ledger/position"
	"github.com/austriantax/ledger/src/ledger/tax"
	"github.com/austriantax/ledger/src/ports"
)

// OverviewPosition is one held instrument's contribution to PortfolioOverview.
type OverviewPosition struct {
	ISIN          string
	Broker        string
	Units         decimal.Decimal
	AverageCost   decimal.Decimal
	CurrentPrice  decimal.Decimal
	Currency      string
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// PortfolioOverview is the current-state snapshot: holdings, cost basis,
// mark-to-market value, and realised+unrealised return to date.
type PortfolioOverview struct {
	GeneratedAt    time.Time
	TotalValue     decimal.Decimal
	Realized       decimal.Decimal
	TotalReturnAbs decimal.Decimal
	TotalReturnRel decimal.Decimal
	Positions      []OverviewPosition
}

// PerformancePosition is one trade group's actual-vs-benchmark comparison.
type PerformancePosition struct {
	ISIN      string
	Broker    string
	Actual    decimal.Decimal
	Simulated decimal.Decimal
	Alpha     decimal.Decimal
}

// PortfolioPerformance compares realised-plus-unrealised return against a
// benchmark index simulation, per group and in aggregate.
type PortfolioPerformance struct {
	GeneratedAt time.Time
	Actual      decimal.Decimal
	Simulated   decimal.Decimal
	Alpha       decimal.Decimal
	Positions   []PerformancePosition
}

// TaxationReport is the finalised tax engine output, named to match the
// external interface; its shape is produced in full by ledger/tax.
type TaxationReport = tax.Report

// Builder assembles reports by driving the three downstream engines.
type Builder struct {
	Storage     ports.StorageAdapter
	Fx          ports.FxAdapter
	Index       ports.IndexAdapter
	Price       ports.PriceAdapter
	TaxRates    tax.Rates
	IndexSeries string
}

func NewBuilder(storage ports.StorageAdapter, fx ports.FxAdapter, index ports.IndexAdapter, price ports.PriceAdapter, rates tax.Rates, indexSeries string) *Builder {
	return &Builder{Storage: storage, Fx: fx, Index: index, Price: price, TaxRates: rates, IndexSeries: indexSeries}
}

// Overview builds PortfolioOverview as of asof.
func (b *Builder) Overview(ctx context.Context, asof time.Time) (*PortfolioOverview, error) {
	posEngine := position.New(b.Storage)
	holdings, err := posEngine.Positions(ctx, asof, "")
	if err != nil {
		return nil, err
	}

	perfEngine := performance.New(b.Storage, b.Index)
	groups, err := perfEngine.Groups(ctx, asof)
	if err != nil {
		return nil, err
	}
	perfByISIN := map[string]performance.TradeGroupPerformance{}
	for _, g := range groups {
		perfByISIN[g.ISIN] = g
	}

	overview := &PortfolioOverview{GeneratedAt: asof}
	totalCost := decimal.Zero

	for _, h := range holdings {
		price, currency, err := b.Price.CurrentPrice(ctx, h.ISIN)
		if err != nil {
			return nil, err
		}
		perf := perfByISIN[h.ISIN]
		marketValue := price.Mul(h.Units)
		costBasis := perf.AverageUnitCost.Mul(h.Units)

		overview.Positions = append(overview.Positions, OverviewPosition{
			ISIN:          h.ISIN,
			Broker:        perf.Broker,
			Units:         h.Units,
			AverageCost:   perf.AverageUnitCost,
			CurrentPrice:  price,
			Currency:      currency,
			MarketValue:   marketValue,
			UnrealizedPnL: marketValue.Sub(costBasis),
		})

		overview.TotalValue = overview.TotalValue.Add(marketValue)
		totalCost = totalCost.Add(costBasis)
		overview.Realized = overview.Realized.Add(perf.Realized)
	}

	overview.TotalReturnAbs = overview.TotalValue.Sub(totalCost).Add(overview.Realized)
	if totalCost.GreaterThan(decimal.Zero) {
		overview.TotalReturnRel = overview.TotalReturnAbs.Div(totalCost)
	}
	return overview, nil
}

// Performance builds PortfolioPerformance (actual vs. benchmark) as of asof.
func (b *Builder) Performance(ctx context.Context, asof time.Time) (*PortfolioPerformance, error) {
	perfEngine := performance.New(b.Storage, b.Index)
	groups, err := perfEngine.TradeGroups(ctx, asof)
	if err != nil {
		return nil, err
	}

	report := &PortfolioPerformance{GeneratedAt: asof}
	for _, g := range groups {
		actual, err := perfEngine.Replay(g, asof)
		if err != nil {
			return nil, err
		}
		simulated, err := perfEngine.SimulateAlternatePurchase(ctx, g, asof, b.IndexSeries)
		if err != nil {
			return nil, err
		}
		if simulated == nil {
			continue
		}

		actualReturn := actual.Realized.Add(actual.UnitsLeft.Mul(actual.AverageUnitCost)).Sub(actual.InvestedAmount)
		simulatedReturn := simulated.Realized.Add(simulated.UnitsLeft.Mul(simulated.AverageUnitCost)).Sub(simulated.InvestedAmount)
		alpha := actualReturn.Sub(simulatedReturn)

		report.Positions = append(report.Positions, PerformancePosition{
			ISIN:      g.ISIN,
			Broker:    g.Broker,
			Actual:    actualReturn,
			Simulated: simulatedReturn,
			Alpha:     alpha,
		})
		report.Actual = report.Actual.Add(actualReturn)
		report.Simulated = report.Simulated.Add(simulatedReturn)
	}
	report.Alpha = report.Actual.Sub(report.Simulated)
	return report, nil
}

// Taxation builds the finalised TaxationReport through asof's year.
func (b *Builder) Taxation(ctx context.Context, asof time.Time) (*TaxationReport, error) {
	engine := tax.New(b.Storage, b.Fx, b.TaxRates)
	return engine.Calculate(ctx, asof)
}
