// Package types holds the value-typed entities shared by every component of
// the event accounting engine. Monetary and unit quantities are
// decimal.Decimal throughout; float64 never appears on this boundary.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the buy/sell side of a Trade or FxConversion.
type Direction string

const (
	Buy  Direction = "Buy"
	Sell Direction = "Sell"
)

// InterestPrincipal distinguishes cash interest from share-lending interest.
type InterestPrincipal string

const (
	PrincipalCash   InterestPrincipal = "Cash"
	PrincipalShares InterestPrincipal = "Shares"
)

// Trade is a single buy or sell fill. Immutable once recorded.
type Trade struct {
	Broker            string
	Date              time.Time
	ISIN              string
	Direction         Direction
	Units             decimal.Decimal
	PricePerUnit      decimal.Decimal
	PricePerUnitEUR   decimal.Decimal
	Currency          string
	SecurityType      string
	Fees              decimal.Decimal
	WithholdingTax    decimal.Decimal
	WithholdingTaxCcy string
}

// Dividend is a cash distribution on a held security.
type Dividend struct {
	Broker            string
	Date              time.Time
	ISIN              string
	Amount            decimal.Decimal
	Currency          string
	AmountEUR         decimal.Decimal
	WithholdingTax    decimal.Decimal
	WithholdingTaxCcy string
}

// InterestPayment is cash or share-lending interest credited by a broker.
type InterestPayment struct {
	Broker            string
	Date              time.Time
	Amount            decimal.Decimal
	Currency          string
	AmountEUR         decimal.Decimal
	Principal         InterestPrincipal
	WithholdingTax    decimal.Decimal
	WithholdingTaxCcy string
}

// FxConversion is a currency exchange executed by the broker.
type FxConversion struct {
	Broker       string
	Date         time.Time
	FromCurrency string
	ToCurrency   string
	FromAmount   decimal.Decimal
	ToAmount     decimal.Decimal
	Fees         decimal.Decimal
}

// FundReport is an Austrian OeKB-style accumulating fund annual report.
type FundReport struct {
	ID                    string
	Date                  time.Time
	ISIN                  string
	Currency              string
	Dividend              decimal.Decimal
	DividendEquivalent    decimal.Decimal
	IntermittentDividends decimal.Decimal
	WithheldDividend      decimal.Decimal
	WacAdjustment         decimal.Decimal
}

// StockSplit: one pre-ex unit becomes (ToFactor/FromFactor) post-ex units.
type StockSplit struct {
	ISIN       string
	ExDate     time.Time
	FromFactor decimal.Decimal
	ToFactor   decimal.Decimal
}

// ListingChange is a rename/migration between identifiers, treated as an alias.
type ListingChange struct {
	ExDate         time.Time
	FromIdentifier string
	ToIdentifier   string
	FromFactor     decimal.Decimal
	ToFactor       decimal.Decimal
}

// EventKind is the tag of the PortfolioEvent sum type.
type EventKind string

const (
	KindCashInterest       EventKind = "CashInterest"
	KindShareInterest      EventKind = "ShareInterest"
	KindDividend           EventKind = "Dividend"
	KindTrade              EventKind = "Trade"
	KindFxConversion       EventKind = "FxConversion"
	KindDividendEquivalent EventKind = "DividendEquivalent"
)

// PortfolioEvent is the canonical, chronologically ordered record produced by
// the event normaliser and consumed by the position, performance and tax
// engines. Every field not relevant to a given Kind is the zero value.
type PortfolioEvent struct {
	Date                  time.Time
	Kind                  EventKind
	Currency              string
	Units                 decimal.Decimal
	PriceUnit             decimal.Decimal
	Identifier            string
	Direction             Direction
	AppliedFxRate         decimal.Decimal
	WithholdingTaxPercent decimal.Decimal
	WithholdingTax        decimal.Decimal
	Total                 decimal.Decimal
	Broker                string

	// FundReportID carries the raw FundReport primary key for
	// DividendEquivalent events so the tax engine can re-fetch report
	// fields (wac_adjustment, intermittent_dividends) not otherwise
	// representable on the flat event shape.
	FundReportID string
}

// Wac is a currency-denominated weighted-average-cost pool.
type Wac struct {
	Units       decimal.Decimal
	AverageCost decimal.Decimal
}

// SecWac is an instrument-denominated weighted-average-cost pool, additionally
// tracking the cost-weighted FX rate at which the lot was acquired.
type SecWac struct {
	Units             decimal.Decimal
	AverageCost       decimal.Decimal
	WeightedAvgFxRate decimal.Decimal
}

// DustThreshold is the minimum magnitude below which a position or pool is
// treated as closed.
var DustThreshold = decimal.New(1, -14)

// IsDust reports whether d's absolute value is at or below DustThreshold.
func IsDust(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(DustThreshold)
}
