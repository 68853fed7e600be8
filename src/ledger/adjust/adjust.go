// Package adjust implements the Adjustment Resolver (C5): pure, stateless
// transformations keyed by (isin, date) that every other engine component
// applies when reading an identifier, a unit count, or a price off storage.
//
// Grounded on the split-adjustment logic in the original
// get_split_adjusted_units/get_split_adjusted_price_per_unit helpers, with
// one deliberate correction: factors for multiple qualifying splits compose
// multiplicatively rather than stopping at the first match, which is the
// only behaviour consistent with conservation across a split.
package adjust

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/types"
)

// ResolveIdentifier follows ListingChange aliases: if a ListingChange exists
// whose FromIdentifier matches id, the ToIdentifier is returned; otherwise id
// is returned unchanged. Only a single hop is resolved per call, matching the
// spec's description of identifier resolution as applied "whenever an
// instrument identifier is read from storage" (callers chain hops if a
// listing changes more than once by calling this repeatedly against a fresh
// id, which in practice never occurs for a single ISIN in this dataset).
func ResolveIdentifier(id string, changes []types.ListingChange) string {
	for _, c := range changes {
		if c.FromIdentifier == id {
			return c.ToIdentifier
		}
	}
	return id
}

// factorProduct returns the product of ToFactor/FromFactor for every split on
// isin whose ExDate is strictly after asof. Splits on the same ex-date
// compose in either order since the ratios commute.
func factorProduct(isin string, asof time.Time, splits []types.StockSplit) decimal.Decimal {
	product := decimal.NewFromInt(1)
	for _, s := range splits {
		if s.ISIN != isin {
			continue
		}
		if !s.ExDate.After(asof) {
			continue
		}
		product = product.Mul(s.ToFactor).Div(s.FromFactor)
	}
	return product
}

// AdjustUnits multiplies units by the product of to/from factors for every
// stock split on isin with an ex-date after date. Rounding is deferred: the
// result carries full decimal precision.
func AdjustUnits(isin string, units decimal.Decimal, date time.Time, splits []types.StockSplit) decimal.Decimal {
	return units.Mul(factorProduct(isin, date, splits))
}

// AdjustPrice divides price by the same factor product used by AdjustUnits,
// so that units x price (the notional) is preserved across a split.
func AdjustPrice(isin string, price decimal.Decimal, date time.Time, splits []types.StockSplit) decimal.Decimal {
	factor := factorProduct(isin, date, splits)
	if factor.IsZero() {
		return price
	}
	return price.Div(factor)
}
