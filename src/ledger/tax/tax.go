// Package tax implements the Tax Engine (C4): the system's heart. For every
// active year it produces nine taxable-amount buckets while maintaining two
// WAC pools (per currency, per instrument) that persist across year
// boundaries, exactly replicating the per-event formulas of the calculation
// this module is grounded on (see comments on each case below, each pinned
// against the corresponding match arm).
package tax

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/errs"
	"github.com/austriantax/ledger/src/ledger/normalize"
	"github.com/austriantax/ledger/src/ledger/types"
	"github.com/austriantax/ledger/src/ports"
)

// Rates holds the jurisdiction's domestic withholding rates. Defaults model
// Austrian KESt as of the reference date.
type Rates struct {
	Interest     decimal.Decimal
	CapitalGains decimal.Decimal
	Dividends    decimal.Decimal
}

// AustrianRates returns the Austrian KESt defaults: 25% interest, 27.5%
// capital gains and dividends.
func AustrianRates() Rates {
	return Rates{
		Interest:     decimal.NewFromFloat(0.25),
		CapitalGains: decimal.NewFromFloat(0.275),
		Dividends:    decimal.NewFromFloat(0.275),
	}
}

// AnnualTaxableAmounts is the per-year output bucket set.
type AnnualTaxableAmounts struct {
	CashInterest         decimal.Decimal
	ShareLendingInterest decimal.Decimal
	CapitalGains         decimal.Decimal
	CapitalLosses        decimal.Decimal
	Dividends            decimal.Decimal
	FxAppreciation       decimal.Decimal
	WithheldTaxDividends decimal.Decimal
	WithheldTaxInterest  decimal.Decimal
	DividendEquivalents  decimal.Decimal
}

// roundAll rounds every bucket to dp decimal places, half-away-from-zero.
func (a *AnnualTaxableAmounts) roundAll(dp int32) {
	a.CashInterest = a.CashInterest.Round(dp)
	a.ShareLendingInterest = a.ShareLendingInterest.Round(dp)
	a.CapitalGains = a.CapitalGains.Round(dp)
	a.CapitalLosses = a.CapitalLosses.Round(dp)
	a.Dividends = a.Dividends.Round(dp)
	a.FxAppreciation = a.FxAppreciation.Round(dp)
	a.WithheldTaxDividends = a.WithheldTaxDividends.Round(dp)
	a.WithheldTaxInterest = a.WithheldTaxInterest.Round(dp)
	a.DividendEquivalents = a.DividendEquivalents.Round(dp)
}

func roundWac(w types.Wac) types.Wac {
	return types.Wac{Units: w.Units.Round(4), AverageCost: w.AverageCost.Round(2)}
}

func roundSecWac(w types.SecWac) types.SecWac {
	return types.SecWac{
		Units:             w.Units.Round(4),
		AverageCost:       w.AverageCost.Round(2),
		WeightedAvgFxRate: w.WeightedAvgFxRate.Round(2),
	}
}

// Report is the finalised output of a tax engine run.
type Report struct {
	CreatedAt      time.Time
	TaxableAmounts map[int]AnnualTaxableAmounts
	CurrencyWacs   map[string]types.Wac
	SecurityWacs   map[string]types.SecWac
}

// Engine folds the canonical event stream into Report.
type Engine struct {
	Storage ports.StorageAdapter
	Fx      ports.FxAdapter
	Rates   Rates
}

func New(storage ports.StorageAdapter, fx ports.FxAdapter, rates Rates) *Engine {
	return &Engine{Storage: storage, Fx: fx, Rates: rates}
}

// Calculate runs the tax engine from the earliest recorded event's year
// through upTo (inclusive), returning the finalised report.
func (e *Engine) Calculate(ctx context.Context, upTo time.Time) (*Report, error) {
	earliestYear, err := e.Storage.EarliestEventYear(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Date(earliestYear, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(upTo.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)

	norm := normalize.New(e.Storage)
	events, err := norm.Events(ctx, start, end)
	if err != nil {
		return nil, err
	}

	taxable := map[int]AnnualTaxableAmounts{}
	currencyWacs := map[string]types.Wac{}
	securityWacs := map[string]types.SecWac{}

	for _, ev := range events {
		year := ev.Date.Year()
		bucket := taxable[year]

		var err error
		switch ev.Kind {
		case types.KindCashInterest:
			err = e.applyInterestOrDividend(&bucket, currencyWacs, ev, e.Rates.Interest)
		case types.KindShareInterest:
			err = e.applyInterestOrDividend(&bucket, currencyWacs, ev, e.Rates.CapitalGains)
		case types.KindDividend:
			err = e.applyInterestOrDividend(&bucket, currencyWacs, ev, e.Rates.Dividends)
		case types.KindTrade:
			err = e.applyTrade(ctx, &bucket, currencyWacs, securityWacs, ev)
		case types.KindFxConversion:
			err = e.applyFxConversion(ctx, &bucket, currencyWacs, ev)
		case types.KindDividendEquivalent:
			err = e.applyDividendEquivalent(ctx, &bucket, securityWacs, ev)
		default:
			err = errs.NewDataIntegrity("unrecognised event kind", ev)
		}
		if err != nil {
			return nil, err
		}
		taxable[year] = bucket
	}

	for year, amounts := range taxable {
		amounts.roundAll(2)
		taxable[year] = amounts
	}
	for ccy, w := range currencyWacs {
		if w.Units.IsZero() {
			delete(currencyWacs, ccy)
			continue
		}
		currencyWacs[ccy] = roundWac(w)
	}
	for isin, w := range securityWacs {
		if w.Units.IsZero() {
			delete(securityWacs, isin)
			continue
		}
		securityWacs[isin] = roundSecWac(w)
	}

	return &Report{
		CreatedAt:      upTo,
		TaxableAmounts: taxable,
		CurrencyWacs:   currencyWacs,
		SecurityWacs:   securityWacs,
	}, nil
}

// foldCurrencyWac applies the WAC-neutral injection shared by CashInterest,
// ShareInterest, Dividend and FxConversion-Buy: incoming foreign units enter
// the pool priced at the event's applied FX rate.
func foldCurrencyWac(wacs map[string]types.Wac, currency string, units, rate decimal.Decimal) {
	w, ok := wacs[currency]
	if !ok {
		wacs[currency] = types.Wac{Units: units, AverageCost: rate}
		return
	}
	newCost := w.Units.Mul(w.AverageCost).Add(rate.Mul(units)).Div(units.Add(w.Units))
	wacs[currency] = types.Wac{Units: w.Units.Add(units), AverageCost: newCost}
}

// applyInterestOrDividend implements the CashInterest / ShareInterest /
// Dividend match arms. Grounded on taxation.rs's three near-identical
// blocks: CashInterest credits cash_interest/withheld_tax_interest at the
// Interest rate; ShareInterest and Dividend both credit
// dividends/withheld_tax_dividends buckets (ShareInterest at the
// CapitalGains rate, Dividend at the Dividends rate), replicated literally
// even though ShareInterest crediting the dividends withheld-tax tracker
// looks surprising — it is what the source does and the spec does not flag
// it as an open question.
func (e *Engine) applyInterestOrDividend(bucket *AnnualTaxableAmounts, wacs map[string]types.Wac, ev types.PortfolioEvent, domesticRate decimal.Decimal) error {
	if ev.Currency != "EUR" {
		foldCurrencyWac(wacs, ev.Currency, ev.Units, ev.AppliedFxRate)
	}

	taxableRemainder := ev.Units.Mul(ev.PriceUnit)
	taxedAmountEUR := taxableRemainder
	if ev.Currency != "EUR" {
		taxedAmountEUR = taxableRemainder.Div(ev.AppliedFxRate)
	}

	withheldTax := ev.WithholdingTaxPercent.Mul(ev.PriceUnit).Mul(ev.Units)
	withheldTaxEUR := withheldTax
	if ev.Currency != "EUR" {
		withheldTaxEUR = withheldTax.Div(ev.AppliedFxRate)
	}

	taxRateLeft := domesticRate.Sub(ev.WithholdingTaxPercent)
	if taxRateLeft.IsNegative() {
		withheldTaxEUR = withheldTaxEUR.Sub(taxedAmountEUR.Add(withheldTaxEUR).Mul(taxRateLeft.Neg()))
	}

	switch ev.Kind {
	case types.KindCashInterest:
		bucket.CashInterest = bucket.CashInterest.Add(taxedAmountEUR).Add(withheldTaxEUR)
		bucket.WithheldTaxInterest = bucket.WithheldTaxInterest.Add(withheldTaxEUR)
	case types.KindShareInterest:
		bucket.ShareLendingInterest = bucket.ShareLendingInterest.Add(taxedAmountEUR).Add(withheldTaxEUR)
		bucket.WithheldTaxDividends = bucket.WithheldTaxDividends.Add(withheldTaxEUR)
	case types.KindDividend:
		bucket.Dividends = bucket.Dividends.Add(taxedAmountEUR).Add(withheldTaxEUR)
		bucket.WithheldTaxDividends = bucket.WithheldTaxDividends.Add(withheldTaxEUR)
	}
	return nil
}

// applyTrade implements the Trade Buy/Sell match arm.
func (e *Engine) applyTrade(ctx context.Context, bucket *AnnualTaxableAmounts, currencyWacs map[string]types.Wac, securityWacs map[string]types.SecWac, ev types.PortfolioEvent) error {
	switch ev.Direction {
	case types.Buy:
		return e.applyTradeBuy(ctx, bucket, currencyWacs, securityWacs, ev)
	case types.Sell:
		return e.applyTradeSell(ctx, bucket, currencyWacs, securityWacs, ev)
	default:
		return errs.NewDataIntegrity("trade event missing direction", ev)
	}
}

func (e *Engine) applyTradeBuy(ctx context.Context, bucket *AnnualTaxableAmounts, currencyWacs map[string]types.Wac, securityWacs map[string]types.SecWac, ev types.PortfolioEvent) error {
	sw, exists := securityWacs[ev.Identifier]
	if !exists {
		securityWacs[ev.Identifier] = types.SecWac{
			Units:             ev.Units,
			AverageCost:       ev.PriceUnit,
			WeightedAvgFxRate: ev.AppliedFxRate,
		}
	} else {
		newRate := sw.WeightedAvgFxRate.Mul(sw.Units).Mul(sw.AverageCost).
			Add(ev.Units.Mul(ev.PriceUnit).Mul(ev.AppliedFxRate)).
			Div(sw.Units.Mul(sw.AverageCost).Add(ev.Units.Mul(ev.PriceUnit)))
		newCost := sw.AverageCost.Mul(sw.Units).Add(ev.Units.Mul(ev.PriceUnit)).Div(sw.Units.Add(ev.Units))
		securityWacs[ev.Identifier] = types.SecWac{
			Units:             sw.Units.Add(ev.Units),
			AverageCost:       newCost,
			WeightedAvgFxRate: newRate,
		}
	}

	if ev.Currency == "EUR" {
		return nil
	}

	fw, ok := currencyWacs[ev.Currency]
	if !ok {
		currencyWacs[ev.Currency] = types.Wac{}
		return nil
	}
	if fw.Units.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	eurExchangeRate, err := e.Fx.Rate(ctx, "EUR", ev.Currency, ev.Date)
	if err != nil {
		return errs.NewAdapter("fx", err)
	}
	fxDelta := fw.AverageCost.Sub(eurExchangeRate)
	taxedAmountEUR := fxDelta.Div(eurExchangeRate).Mul(ev.Units).Mul(ev.PriceUnit).Div(eurExchangeRate)
	bucket.FxAppreciation = bucket.FxAppreciation.Add(taxedAmountEUR)

	newUnits := fw.Units.Sub(ev.Units)
	if newUnits.IsNegative() {
		newUnits = decimal.Zero
	}
	currencyWacs[ev.Currency] = types.Wac{Units: newUnits, AverageCost: fw.AverageCost}
	return nil
}

func (e *Engine) applyTradeSell(ctx context.Context, bucket *AnnualTaxableAmounts, currencyWacs map[string]types.Wac, securityWacs map[string]types.SecWac, ev types.PortfolioEvent) error {
	sw, ok := securityWacs[ev.Identifier]
	if !ok {
		sw = types.SecWac{}
	}
	newUnits := sw.Units.Sub(ev.Units)
	if newUnits.IsNegative() {
		return errs.NewDataIntegrity("sell would drive security WAC pool negative", ev)
	}
	sw.Units = newUnits
	securityWacs[ev.Identifier] = sw

	if ev.Currency == "EUR" {
		taxableAmount := ev.PriceUnit.Sub(sw.AverageCost).Mul(ev.Units)
		if taxableAmount.GreaterThan(decimal.Zero) {
			bucket.CapitalGains = bucket.CapitalGains.Add(taxableAmount)
		} else {
			bucket.CapitalLosses = bucket.CapitalLosses.Sub(taxableAmount)
		}
		return nil
	}

	gainForeign := ev.PriceUnit.Sub(sw.AverageCost).Mul(ev.Units)

	eurExchangeRate, err := e.Fx.Rate(ctx, "EUR", ev.Currency, ev.Date)
	if err != nil {
		return errs.NewAdapter("fx", err)
	}
	gainEUR := gainForeign.Div(eurExchangeRate)

	fw := currencyWacs[ev.Currency]

	var fxRateForBuy decimal.Decimal
	if fw.Units.GreaterThan(ev.Units.Mul(ev.PriceUnit)) {
		fxRateForBuy = fw.AverageCost
	} else {
		fxRateForBuy = sw.WeightedAvgFxRate
	}
	if fxRateForBuy.IsZero() {
		fxRateForBuy = decimal.NewFromInt(1)
	}

	originalEurCost := sw.AverageCost.Div(fxRateForBuy).Mul(ev.Units)
	eurSell := ev.PriceUnit.Div(eurExchangeRate).Mul(ev.Units)
	totalTaxable := eurSell.Sub(originalEurCost)
	fxPortion := totalTaxable.Sub(gainEUR)

	if gainEUR.GreaterThan(decimal.Zero) {
		bucket.CapitalGains = bucket.CapitalGains.Add(gainEUR)
	} else {
		bucket.CapitalLosses = bucket.CapitalLosses.Sub(gainEUR)
	}
	bucket.FxAppreciation = bucket.FxAppreciation.Add(fxPortion)
	return nil
}

// applyFxConversion implements the FxConversion Buy/Sell match arm.
func (e *Engine) applyFxConversion(ctx context.Context, bucket *AnnualTaxableAmounts, currencyWacs map[string]types.Wac, ev types.PortfolioEvent) error {
	switch ev.Direction {
	case types.Buy:
		if ev.Identifier == "EUREUR" {
			return nil
		}
		destination := ev.Identifier[len(ev.Identifier)-3:]
		foldCurrencyWac(currencyWacs, destination, ev.Units.Mul(ev.AppliedFxRate), ev.AppliedFxRate)
		return nil
	case types.Sell:
		destination := ev.Identifier[len(ev.Identifier)-3:]
		origin := ev.Identifier[:3]
		appliedReversed := decimal.NewFromInt(1).Div(ev.AppliedFxRate)

		originWac := currencyWacs[origin]
		fxDelta := originWac.AverageCost.Sub(appliedReversed)

		if destination == "EUR" {
			taxedAmountEUR := fxDelta.Div(appliedReversed).Mul(ev.Units).Div(appliedReversed)
			bucket.FxAppreciation = bucket.FxAppreciation.Add(taxedAmountEUR)

			newUnits := originWac.Units.Sub(ev.Units)
			if newUnits.IsNegative() {
				newUnits = decimal.Zero
			}
			currencyWacs[origin] = types.Wac{Units: newUnits, AverageCost: originWac.AverageCost}
			return nil
		}

		eurExchangeRate, err := e.Fx.Rate(ctx, "EUR", origin, ev.Date)
		if err != nil {
			return errs.NewAdapter("fx", err)
		}
		fxDeltaEUR := originWac.AverageCost.Sub(eurExchangeRate)
		taxedAmountEUR := fxDeltaEUR.Div(eurExchangeRate).Mul(ev.Units).Div(eurExchangeRate)
		bucket.FxAppreciation = bucket.FxAppreciation.Add(taxedAmountEUR)
		currencyWacs[origin] = types.Wac{Units: originWac.Units.Sub(ev.Units), AverageCost: originWac.AverageCost}

		eurToDestinationRate, err := e.Fx.Rate(ctx, "EUR", destination, ev.Date)
		if err != nil {
			return errs.NewAdapter("fx", err)
		}
		foldCurrencyWac(currencyWacs, destination, ev.Units.Mul(ev.AppliedFxRate), eurToDestinationRate)
		return nil
	default:
		return errs.NewDataIntegrity("fx conversion event missing direction", ev)
	}
}

// applyDividendEquivalent implements the DividendEquivalent match arm: an
// Austrian OeKB accumulating-fund annual report folded into the security's
// WAC basis and the dividend_equivalents/withheld_tax_dividends buckets.
func (e *Engine) applyDividendEquivalent(ctx context.Context, bucket *AnnualTaxableAmounts, securityWacs map[string]types.SecWac, ev types.PortfolioEvent) error {
	report, err := e.Storage.GetFundReport(ctx, ev.FundReportID)
	if err != nil {
		return err
	}

	wacs, ok := securityWacs[report.ISIN]
	if !ok {
		wacs = types.SecWac{WeightedAvgFxRate: decimal.NewFromInt(1)}
	}

	taxedAmount := report.DividendEquivalent.Add(report.IntermittentDividends).Mul(wacs.Units)
	taxedAmountEUR, err := e.convert(ctx, taxedAmount, report.Currency, "EUR", report.Date)
	if err != nil {
		return err
	}

	withheldTax := report.WithheldDividend.Mul(wacs.Units)
	withheldTaxEUR, err := e.convert(ctx, withheldTax, report.Currency, "EUR", report.Date)
	if err != nil {
		return err
	}

	bucket.DividendEquivalents = bucket.DividendEquivalents.Add(taxedAmountEUR)
	bucket.WithheldTaxDividends = bucket.WithheldTaxDividends.Add(withheldTaxEUR)

	costAdjustmentEUR, err := e.convert(ctx, report.WacAdjustment, report.Currency, "EUR", report.Date)
	if err != nil {
		return err
	}
	wacs.AverageCost = wacs.AverageCost.Add(costAdjustmentEUR)
	securityWacs[report.ISIN] = wacs
	return nil
}

// convert turns a foreign-currency amount into EUR using the FxAdapter's
// foreign-per-EUR rate; EUR is the identity to avoid a pointless adapter
// round trip. Only foreign->EUR conversions are needed in this package.
func (e *Engine) convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	rate, err := e.Fx.Rate(ctx, to, from, date)
	if err != nil {
		return decimal.Zero, errs.NewAdapter("fx", err)
	}
	return amount.Div(rate), nil
}
