// Package normalize implements the Event Normaliser (C1): it projects the
// five raw record tables into a single, chronologically ordered
// PortfolioEvent stream, applying the Adjustment Resolver (C5) to every
// identifier, unit count and price along the way.
//
// Grounded on the concurrent get_events() pipeline and its per-kind
// process_*_rows helpers in the original event-materialisation service: five
// independent storage queries are fanned out concurrently and their errors
// collected rather than short-circuited on the first failure, matching that
// service's use of a join-all over independent futures.
package normalize

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/adjust"
	"github.com/austriantax/ledger/src/ledger/errs"
	"github.com/austriantax/ledger/src/ledger/types"
	"github.com/austriantax/ledger/src/ports"
)

// Normaliser projects raw storage records into the canonical event stream.
type Normaliser struct {
	Storage ports.StorageAdapter
}

func New(storage ports.StorageAdapter) *Normaliser {
	return &Normaliser{Storage: storage}
}

type rawRecords struct {
	interest    []types.InterestPayment
	trades      []types.Trade
	dividends   []types.Dividend
	fx          []types.FxConversion
	fundReports []types.FundReport
	splits      []types.StockSplit
	listingChg  []types.ListingChange
}

// Events returns the finite, date-ascending PortfolioEvent sequence for the
// half-open window [start, end). Ties are broken by a total order on
// (date, kind, identifier) so the output is stable under re-query.
func (n *Normaliser) Events(ctx context.Context, start, end time.Time) ([]types.PortfolioEvent, error) {
	raw, err := n.fetchAll(ctx, start, end)
	if err != nil {
		return nil, err
	}

	var events []types.PortfolioEvent

	for _, ip := range raw.interest {
		ev, err := processInterest(ip)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	for _, d := range raw.dividends {
		ev, err := processDividend(d, raw.listingChg)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	for _, t := range raw.trades {
		ev, err := processTrade(t, raw.splits, raw.listingChg)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	for _, fx := range raw.fx {
		ev, err := processFx(fx)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	for _, fr := range raw.fundReports {
		events = append(events, processFundReport(fr))
	}

	sortEvents(events)
	return events, nil
}

func (n *Normaliser) fetchAll(ctx context.Context, start, end time.Time) (rawRecords, error) {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		merr  *multierror.Error
		out   rawRecords
	)

	fetch := func(f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
			}
		}()
	}

	fetch(func() (err error) {
		out.interest, err = n.Storage.QueryInterest(ctx, start, end)
		return
	})
	fetch(func() (err error) {
		out.trades, err = n.Storage.QueryTrades(ctx, start, end)
		return
	})
	fetch(func() (err error) {
		out.dividends, err = n.Storage.QueryDividends(ctx, start, end)
		return
	})
	fetch(func() (err error) {
		out.fx, err = n.Storage.QueryFx(ctx, start, end)
		return
	})
	fetch(func() (err error) {
		out.fundReports, err = n.Storage.QueryFundReports(ctx, start, end)
		return
	})
	fetch(func() (err error) {
		out.splits, err = n.Storage.ListStockSplits(ctx)
		return
	})
	fetch(func() (err error) {
		out.listingChg, err = n.Storage.ListListingChanges(ctx)
		return
	})

	wg.Wait()
	if merr.ErrorOrNil() != nil {
		return rawRecords{}, errs.NewAdapter("storage", merr.ErrorOrNil())
	}
	return out, nil
}

func processInterest(ip types.InterestPayment) (types.PortfolioEvent, error) {
	if err := checkWithholdingCurrency(ip.WithholdingTax, ip.Currency, ip.WithholdingTaxCcy, ip); err != nil {
		return types.PortfolioEvent{}, err
	}
	kind := types.KindCashInterest
	if ip.Principal == types.PrincipalShares {
		kind = types.KindShareInterest
	}
	return types.PortfolioEvent{
		Date:                  ip.Date,
		Kind:                  kind,
		Currency:              ip.Currency,
		Units:                 ip.Amount,
		PriceUnit:             decimal.NewFromInt(1),
		Broker:                ip.Broker,
		AppliedFxRate:         eurRate(ip.Amount, ip.AmountEUR),
		WithholdingTax:        ip.WithholdingTax,
		WithholdingTaxPercent: ratioOf(ip.WithholdingTax, ip.Amount),
		Total:                 ip.AmountEUR,
	}, nil
}

func processDividend(d types.Dividend, changes []types.ListingChange) (types.PortfolioEvent, error) {
	if err := checkWithholdingCurrency(d.WithholdingTax, d.Currency, d.WithholdingTaxCcy, d); err != nil {
		return types.PortfolioEvent{}, err
	}
	identifier := adjust.ResolveIdentifier(d.ISIN, changes)
	return types.PortfolioEvent{
		Date:                  d.Date,
		Kind:                  types.KindDividend,
		Currency:              d.Currency,
		Units:                 d.Amount,
		PriceUnit:             decimal.NewFromInt(1),
		Identifier:            identifier,
		Broker:                d.Broker,
		AppliedFxRate:         eurRate(d.Amount, d.AmountEUR),
		WithholdingTax:        d.WithholdingTax,
		WithholdingTaxPercent: ratioOf(d.WithholdingTax, d.Amount),
		Total:                 d.AmountEUR,
	}, nil
}

// eurRate is the foreign-per-EUR rate implied by a (foreign, EUR) amount
// pair, i.e. the convention the tax engine expects on applied_fx_rate: a
// foreign amount divided by this rate yields its EUR equivalent.
func eurRate(foreign, eur decimal.Decimal) decimal.Decimal {
	if eur.IsZero() {
		return decimal.NewFromInt(1)
	}
	return foreign.Div(eur)
}

func processTrade(t types.Trade, splits []types.StockSplit, changes []types.ListingChange) (types.PortfolioEvent, error) {
	if err := checkWithholdingCurrency(t.WithholdingTax, t.Currency, t.WithholdingTaxCcy, t); err != nil {
		return types.PortfolioEvent{}, err
	}
	identifier := adjust.ResolveIdentifier(t.ISIN, changes)
	units := adjust.AdjustUnits(t.ISIN, t.Units, t.Date, splits)
	price := adjust.AdjustPrice(t.ISIN, t.PricePerUnit, t.Date, splits)

	rawPrice := t.PricePerUnit
	if rawPrice.IsZero() {
		rawPrice = decimal.NewFromInt(1)
	}
	rawPriceEUR := t.PricePerUnitEUR
	if rawPriceEUR.IsZero() {
		rawPriceEUR = decimal.NewFromInt(1)
	}
	rate := rawPrice.Div(rawPriceEUR)

	return types.PortfolioEvent{
		Date:                  t.Date,
		Kind:                  types.KindTrade,
		Currency:              t.Currency,
		Units:                 units,
		PriceUnit:             price,
		Identifier:            identifier,
		Direction:             t.Direction,
		AppliedFxRate:         rate,
		Broker:                t.Broker,
		WithholdingTax:        t.WithholdingTax,
		WithholdingTaxPercent: ratioOf(t.WithholdingTax, t.PricePerUnit.Mul(t.Units)),
		Total:                 price.Mul(units),
	}, nil
}

func processFx(fx types.FxConversion) (types.PortfolioEvent, error) {
	identifier := fx.FromCurrency + fx.ToCurrency
	direction := types.Sell
	if fx.FromCurrency == "EUR" {
		direction = types.Buy
	}
	rate := decimal.NewFromInt(1)
	if !fx.FromAmount.IsZero() {
		rate = fx.ToAmount.Div(fx.FromAmount)
	}
	return types.PortfolioEvent{
		Date:          fx.Date,
		Kind:          types.KindFxConversion,
		Currency:      fx.ToCurrency,
		Units:         fx.FromAmount,
		PriceUnit:     rate,
		Identifier:    identifier,
		Direction:     direction,
		AppliedFxRate: rate,
		Broker:        fx.Broker,
		Total:         fx.ToAmount,
	}, nil
}

func processFundReport(fr types.FundReport) types.PortfolioEvent {
	return types.PortfolioEvent{
		Date:         fr.Date,
		Kind:         types.KindDividendEquivalent,
		Currency:     fr.Currency,
		Identifier:   fr.ISIN,
		FundReportID: fr.ID,
		Total:        fr.DividendEquivalent,
	}
}

// checkWithholdingCurrency enforces the invariant that any event with
// non-zero withholding tax must report it in the event's own currency.
func checkWithholdingCurrency(withheld decimal.Decimal, eventCcy, withheldCcy string, event any) error {
	if withheld.IsZero() {
		return nil
	}
	if withheldCcy != eventCcy {
		return errs.NewDataIntegrity("withholding_tax_currency does not match event currency", event)
	}
	return nil
}

func ratioOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole)
}

// sortEvents orders events by (date, kind, identifier) ascending.
func sortEvents(events []types.PortfolioEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Identifier < b.Identifier
	})
}
