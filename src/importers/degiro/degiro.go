// Package degiro adapts DeGiro's Portuguese-language account-statement CSV
// export into the canonical raw record shapes the ledger engines consume.
//
// Grounded on the teacher's src/parsers/degiro/parser.go: the same
// regex-based transaction-description classification (compra/venda,
// dividendo, comissões de transação, ...) and per-OrderID commission
// matching, re-targeted to emit decimal.Decimal types.Trade/types.Dividend
// instead of float64 models.CanonicalTransaction.
package degiro

import (
	"encoding/csv"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/errs"
	"github.com/austriantax/ledger/src/ledger/types"
	"github.com/austriantax/ledger/src/logger"
)

// Result is the set of raw records extracted from one statement file.
type Result struct {
	Trades    []types.Trade
	Dividends []types.Dividend
}

// rawRow holds the direct string values from a single CSV row.
type rawRow struct {
	orderDate, name, isin, description, exchangeRate, currency, amount, orderID string
}

// Importer parses DeGiro CSV exports for a single broker account.
type Importer struct {
	Broker string
}

func New(broker string) *Importer {
	return &Importer{Broker: broker}
}

// Parse reads a full DeGiro CSV export and returns its trades and dividends.
// Rows this broker never emits explicit structured events for (deposits,
// product changes, unrecognised descriptions) are skipped, matching the
// teacher parser's own UNKNOWN handling.
func (im *Importer) Parse(file io.Reader) (Result, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return Result{}, errs.NewDataIntegrity("degiro CSV missing header row", err)
	}
	records, err := reader.ReadAll()
	if err != nil {
		return Result{}, errs.NewDataIntegrity("degiro CSV malformed", err)
	}

	var rows []rawRow
	for _, record := range records {
		if len(record) < 12 {
			continue
		}
		rows = append(rows, rawRow{
			orderDate: record[0], name: record[3], isin: record[4],
			description: record[5], exchangeRate: record[6],
			currency: record[7], amount: record[8], orderID: record[11],
		})
	}

	var result Result
	dividends := map[string]*types.Dividend{}
	var dividendOrder []string

	for _, row := range rows {
		date, err := time.Parse("02-01-2006", row.orderDate)
		if err != nil {
			logger.L.Warn("degiro importer: skipping row with unparseable date", "raw_date", row.orderDate)
			continue
		}

		kind, sub, direction, product, quantity, price := classify(row)
		switch kind {
		case "STOCK":
			units := decimal.NewFromFloat(quantity)
			rate := decimal.NewFromInt(1)
			if row.currency != "EUR" {
				if r, ok := parseRate(row.exchangeRate); ok {
					rate = r
				}
			}
			// rate is DeGiro's reported foreign-per-EUR conversion rate;
			// dividing the native price by it yields the EUR price, the
			// same convention applied_fx_rate uses throughout the ledger.
			priceEURDec := decimal.NewFromFloat(price).Div(rate)

			fees, _ := commissionForOrder(row.orderID, rows)

			result.Trades = append(result.Trades, types.Trade{
				Broker:          im.Broker,
				Date:            date,
				ISIN:            strings.TrimSpace(row.isin),
				Direction:       directionOf(direction),
				Units:           units,
				PricePerUnit:    decimal.NewFromFloat(price),
				PricePerUnitEUR: priceEURDec,
				Currency:        row.currency,
				SecurityType:    "Share",
				Fees:            decimal.NewFromFloat(fees),
			})
		case "DIVIDEND":
			key := strings.TrimSpace(row.isin) + "|" + date.Format("2006-01-02")
			d, ok := dividends[key]
			if !ok {
				d = &types.Dividend{
					Broker:   im.Broker,
					Date:     date,
					ISIN:     strings.TrimSpace(row.isin),
					Currency: row.currency,
				}
				dividends[key] = d
				dividendOrder = append(dividendOrder, key)
			}
			amt, _ := decimal.NewFromString(row.amount)
			if sub == "TAX" {
				d.WithholdingTax = d.WithholdingTax.Add(amt.Abs())
				d.WithholdingTaxCcy = row.currency
			} else {
				d.Amount = d.Amount.Add(amt)
			}
		default:
			// FEE/CASH/PRODUCT_CHANGE/UNKNOWN rows carry no independent
			// canonical event of their own in this broker's export: fees
			// are folded into the trade they belong to via orderID, and
			// this broker's statement does not carry ISIN migrations.
		}
	}

	sort.Strings(dividendOrder)
	for _, key := range dividendOrder {
		d := dividends[key]
		rate := decimal.NewFromInt(1)
		if d.Currency != "EUR" {
			// DeGiro dividend rows don't carry a per-row exchange rate
			// column; without one, the gross amount is assumed to
			// already be EUR-equivalent for EUR-reporting accounts.
			rate = decimal.NewFromInt(1)
		}
		d.AmountEUR = d.Amount.Mul(rate)
		result.Dividends = append(result.Dividends, *d)
	}

	return result, nil
}

func directionOf(buySell string) types.Direction {
	if buySell == "SELL" {
		return types.Sell
	}
	return types.Buy
}

func parseRate(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	r, err := decimal.NewFromString(s)
	if err != nil || r.IsZero() {
		return decimal.Decimal{}, false
	}
	return r, true
}

// classify mirrors the teacher's classifyDeGiroTransaction: Portuguese
// transaction-description regexes identifying dividends, fees, deposits,
// product changes and buy/sell stock fills.
func classify(row rawRow) (kind, sub, buySell, productName string, quantity, price float64) {
	desc := strings.TrimSpace(strings.ReplaceAll(row.description, " ", " "))
	lowerDesc := strings.ToLower(desc)

	if strings.Contains(lowerDesc, "dividendo") {
		productName = strings.TrimSpace(row.name)
		if strings.Contains(lowerDesc, "imposto sobre dividendo") {
			return "DIVIDEND", "TAX", "", productName, 0, 0
		}
		return "DIVIDEND", "", "", productName, 0, 0
	}
	if strings.EqualFold(lowerDesc, "depósito") || strings.Contains(lowerDesc, "flatex deposit") {
		return "CASH", "DEPOSIT", "", "Cash Deposit", 0, 0
	}
	if strings.Contains(lowerDesc, "comissões de transação") || strings.Contains(lowerDesc, "custo de conectividade") {
		return "FEE", "", "", "Brokerage Fee", 0, 0
	}
	if strings.Contains(lowerDesc, "mudança de produto") {
		return "PRODUCT_CHANGE", "", "", "Product Change", 0, 0
	}

	stockRe := regexp.MustCompile(`(?i)\s*(compra|venda)\s+([\d\s.,]+)\s+(.+?)\s*@([\d,.]+)`)
	matches := stockRe.FindStringSubmatch(desc)
	if matches == nil {
		return "UNKNOWN", "", "", "", 0, 0
	}

	buySellRaw := strings.ToLower(matches[1])
	if buySellRaw == "compra" {
		buySell = "BUY"
	} else {
		buySell = "SELL"
	}
	productName = strings.TrimSpace(matches[3])

	quantityStr := strings.ReplaceAll(strings.ReplaceAll(matches[2], " ", ""), ".", "")
	quantityStr = strings.ReplaceAll(quantityStr, ",", ".")
	quantity = parseFloatOrZero(quantityStr)

	priceStr := strings.ReplaceAll(matches[4], ",", ".")
	price = parseFloatOrZero(priceStr)

	// Options are out of scope for this canonical model; only share fills
	// produce a Trade.
	optionRe := regexp.MustCompile(`\s+[CP]\d+(\.\d+)?\s+\d{2}[A-Z]{3}\d{2}$`)
	if optionRe.MatchString(productName) {
		return "UNKNOWN", "", "", "", 0, 0
	}
	return "STOCK", "", buySell, productName, quantity, price
}

func commissionForOrder(orderID string, rows []rawRow) (float64, error) {
	if orderID == "" {
		return 0, nil
	}
	var total float64
	for _, row := range rows {
		if row.orderID == orderID && strings.Contains(row.description, "Comissões de transação") {
			amt := parseFloatOrZero(row.amount)
			total += math.Abs(amt)
		}
	}
	return total, nil
}

func parseFloatOrZero(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
