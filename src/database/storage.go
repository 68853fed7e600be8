package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/errs"
	"github.com/austriantax/ledger/src/ledger/types"
)

// SQLStorageAdapter implements ports.StorageAdapter against the sqlite
// schema in db/migrations, scoped to a single user's portfolio. Every
// monetary/unit column is stored as decimal text and round-tripped through
// decimal.Decimal, never float64.
type SQLStorageAdapter struct {
	DB     *sql.DB
	UserID int64
}

func NewSQLStorageAdapter(db *sql.DB, userID int64) *SQLStorageAdapter {
	return &SQLStorageAdapter{DB: db, UserID: userID}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (s *SQLStorageAdapter) QueryInterest(ctx context.Context, start, end time.Time) ([]types.InterestPayment, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT broker, pay_date, amount, currency, amount_eur, principal, withholding_tax, withholding_tax_ccy
		FROM interest_payments
		WHERE user_id = ? AND pay_date >= ? AND pay_date < ?
		ORDER BY pay_date`,
		s.UserID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, errs.NewAdapter("sqlite", err)
	}
	defer rows.Close()

	var out []types.InterestPayment
	for rows.Next() {
		var (
			ip                                     types.InterestPayment
			dateStr, amt, amtEUR, wh                string
			principal, withholdingCcy               string
		)
		if err := rows.Scan(&ip.Broker, &dateStr, &amt, &ip.Currency, &amtEUR, &principal, &wh, &withholdingCcy); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if ip.Date, err = time.Parse("2006-01-02", dateStr); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if ip.Amount, err = parseDecimal(amt); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if ip.AmountEUR, err = parseDecimal(amtEUR); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if ip.WithholdingTax, err = parseDecimal(wh); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		ip.WithholdingTaxCcy = withholdingCcy
		ip.Principal = types.InterestPrincipal(principal)
		out = append(out, ip)
	}
	return out, rows.Err()
}

func (s *SQLStorageAdapter) QueryTrades(ctx context.Context, start, end time.Time) ([]types.Trade, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT broker, trade_date, isin, direction, units, price_per_unit, price_per_unit_eur,
		       currency, security_type, fees, withholding_tax, withholding_tax_ccy
		FROM trades
		WHERE user_id = ? AND trade_date >= ? AND trade_date < ?
		ORDER BY trade_date`,
		s.UserID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, errs.NewAdapter("sqlite", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var (
			t                                         types.Trade
			dateStr, direction                        string
			units, price, priceEUR, fees, wh          string
		)
		if err := rows.Scan(&t.Broker, &dateStr, &t.ISIN, &direction, &units, &price, &priceEUR,
			&t.Currency, &t.SecurityType, &fees, &wh, &t.WithholdingTaxCcy); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if t.Date, err = time.Parse("2006-01-02", dateStr); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		t.Direction = types.Direction(direction)
		if t.Units, err = parseDecimal(units); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if t.PricePerUnit, err = parseDecimal(price); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if t.PricePerUnitEUR, err = parseDecimal(priceEUR); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if t.Fees, err = parseDecimal(fees); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if t.WithholdingTax, err = parseDecimal(wh); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStorageAdapter) QueryDividends(ctx context.Context, start, end time.Time) ([]types.Dividend, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT broker, pay_date, isin, amount, currency, amount_eur, withholding_tax, withholding_tax_ccy
		FROM dividends
		WHERE user_id = ? AND pay_date >= ? AND pay_date < ?
		ORDER BY pay_date`,
		s.UserID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, errs.NewAdapter("sqlite", err)
	}
	defer rows.Close()

	var out []types.Dividend
	for rows.Next() {
		var (
			d                            types.Dividend
			dateStr, amt, amtEUR, wh     string
		)
		if err := rows.Scan(&d.Broker, &dateStr, &d.ISIN, &amt, &d.Currency, &amtEUR, &wh, &d.WithholdingTaxCcy); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if d.Date, err = time.Parse("2006-01-02", dateStr); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if d.Amount, err = parseDecimal(amt); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if d.AmountEUR, err = parseDecimal(amtEUR); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if d.WithholdingTax, err = parseDecimal(wh); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStorageAdapter) QueryFx(ctx context.Context, start, end time.Time) ([]types.FxConversion, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT broker, conversion_date, from_currency, to_currency, from_amount, to_amount, fees
		FROM fx_conversions
		WHERE user_id = ? AND conversion_date >= ? AND conversion_date < ?
		ORDER BY conversion_date`,
		s.UserID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, errs.NewAdapter("sqlite", err)
	}
	defer rows.Close()

	var out []types.FxConversion
	for rows.Next() {
		var (
			fx                                  types.FxConversion
			dateStr, fromAmt, toAmt, fees        string
		)
		if err := rows.Scan(&fx.Broker, &dateStr, &fx.FromCurrency, &fx.ToCurrency, &fromAmt, &toAmt, &fees); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if fx.Date, err = time.Parse("2006-01-02", dateStr); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if fx.FromAmount, err = parseDecimal(fromAmt); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if fx.ToAmount, err = parseDecimal(toAmt); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if fx.Fees, err = parseDecimal(fees); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		out = append(out, fx)
	}
	return out, rows.Err()
}

func scanFundReport(row interface {
	Scan(dest ...any) error
}) (types.FundReport, error) {
	var (
		fr                                                                 types.FundReport
		dateStr, dividend, dividendEq, intermittent, withheld, wacAdj      string
	)
	if err := row.Scan(&fr.ID, &dateStr, &fr.ISIN, &fr.Currency, &dividend, &dividendEq, &intermittent, &withheld, &wacAdj); err != nil {
		return types.FundReport{}, err
	}
	var err error
	if fr.Date, err = time.Parse("2006-01-02", dateStr); err != nil {
		return types.FundReport{}, err
	}
	if fr.Dividend, err = parseDecimal(dividend); err != nil {
		return types.FundReport{}, err
	}
	if fr.DividendEquivalent, err = parseDecimal(dividendEq); err != nil {
		return types.FundReport{}, err
	}
	if fr.IntermittentDividends, err = parseDecimal(intermittent); err != nil {
		return types.FundReport{}, err
	}
	if fr.WithheldDividend, err = parseDecimal(withheld); err != nil {
		return types.FundReport{}, err
	}
	if fr.WacAdjustment, err = parseDecimal(wacAdj); err != nil {
		return types.FundReport{}, err
	}
	return fr, nil
}

func (s *SQLStorageAdapter) QueryFundReports(ctx context.Context, start, end time.Time) ([]types.FundReport, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, report_date, isin, currency, dividend, dividend_equivalent, intermittent_dividends, withheld_dividend, wac_adjustment
		FROM fund_reports
		WHERE user_id = ? AND report_date >= ? AND report_date < ?
		ORDER BY report_date`,
		s.UserID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, errs.NewAdapter("sqlite", err)
	}
	defer rows.Close()

	var out []types.FundReport
	for rows.Next() {
		fr, err := scanFundReport(rows)
		if err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

func (s *SQLStorageAdapter) GetFundReport(ctx context.Context, id string) (types.FundReport, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, report_date, isin, currency, dividend, dividend_equivalent, intermittent_dividends, withheld_dividend, wac_adjustment
		FROM fund_reports
		WHERE id = ? AND user_id = ?`, id, s.UserID)
	fr, err := scanFundReport(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.FundReport{}, errs.NewNotFound("fund report", id)
		}
		return types.FundReport{}, errs.NewAdapter("sqlite", err)
	}
	return fr, nil
}

func (s *SQLStorageAdapter) ListStockSplits(ctx context.Context) ([]types.StockSplit, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT isin, ex_date, from_factor, to_factor FROM stock_splits ORDER BY ex_date`)
	if err != nil {
		return nil, errs.NewAdapter("sqlite", err)
	}
	defer rows.Close()

	var out []types.StockSplit
	for rows.Next() {
		var sp types.StockSplit
		var dateStr, fromF, toF string
		if err := rows.Scan(&sp.ISIN, &dateStr, &fromF, &toF); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if sp.ExDate, err = time.Parse("2006-01-02", dateStr); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if sp.FromFactor, err = parseDecimal(fromF); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if sp.ToFactor, err = parseDecimal(toF); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *SQLStorageAdapter) ListListingChanges(ctx context.Context) ([]types.ListingChange, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT ex_date, from_identifier, to_identifier, from_factor, to_factor
		FROM listing_changes ORDER BY ex_date`)
	if err != nil {
		return nil, errs.NewAdapter("sqlite", err)
	}
	defer rows.Close()

	var out []types.ListingChange
	for rows.Next() {
		var lc types.ListingChange
		var dateStr, fromF, toF string
		if err := rows.Scan(&dateStr, &lc.FromIdentifier, &lc.ToIdentifier, &fromF, &toF); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if lc.ExDate, err = time.Parse("2006-01-02", dateStr); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if lc.FromFactor, err = parseDecimal(fromF); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		if lc.ToFactor, err = parseDecimal(toF); err != nil {
			return nil, errs.NewAdapter("sqlite", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (s *SQLStorageAdapter) EarliestEventYear(ctx context.Context) (int, error) {
	var earliest sql.NullString
	row := s.DB.QueryRowContext(ctx, `
		SELECT MIN(d) FROM (
			SELECT MIN(trade_date) AS d FROM trades WHERE user_id = ?
			UNION ALL SELECT MIN(pay_date) FROM dividends WHERE user_id = ?
			UNION ALL SELECT MIN(pay_date) FROM interest_payments WHERE user_id = ?
			UNION ALL SELECT MIN(conversion_date) FROM fx_conversions WHERE user_id = ?
			UNION ALL SELECT MIN(report_date) FROM fund_reports WHERE user_id = ?
		)`, s.UserID, s.UserID, s.UserID, s.UserID, s.UserID)
	if err := row.Scan(&earliest); err != nil {
		return 0, errs.NewAdapter("sqlite", err)
	}
	if !earliest.Valid {
		return time.Now().Year(), nil
	}
	d, err := time.Parse("2006-01-02", earliest.String)
	if err != nil {
		return 0, errs.NewAdapter("sqlite", err)
	}
	return d.Year(), nil
}

// NewRecordID mints a fresh record primary key for importers writing raw
// rows; kept here so every writer shares one ID scheme.
func NewRecordID() string {
	return uuid.NewString()
}

// InsertTrade persists one Trade row for this adapter's user. Importers are
// the only callers; ports.StorageAdapter itself is read-only (see ports.go).
func (s *SQLStorageAdapter) InsertTrade(ctx context.Context, t types.Trade) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO trades (id, user_id, broker, trade_date, isin, direction, units, price_per_unit,
		                     price_per_unit_eur, currency, security_type, fees, withholding_tax, withholding_tax_ccy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		NewRecordID(), s.UserID, t.Broker, t.Date.Format("2006-01-02"), t.ISIN, string(t.Direction),
		t.Units.String(), t.PricePerUnit.String(), t.PricePerUnitEUR.String(), t.Currency, t.SecurityType,
		t.Fees.String(), t.WithholdingTax.String(), t.WithholdingTaxCcy)
	if err != nil {
		return errs.NewAdapter("sqlite", err)
	}
	return nil
}

// InsertDividend persists one Dividend row for this adapter's user.
func (s *SQLStorageAdapter) InsertDividend(ctx context.Context, d types.Dividend) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO dividends (id, user_id, broker, pay_date, isin, amount, currency, amount_eur, withholding_tax, withholding_tax_ccy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		NewRecordID(), s.UserID, d.Broker, d.Date.Format("2006-01-02"), d.ISIN,
		d.Amount.String(), d.Currency, d.AmountEUR.String(), d.WithholdingTax.String(), d.WithholdingTaxCcy)
	if err != nil {
		return errs.NewAdapter("sqlite", err)
	}
	return nil
}

// InsertInterest persists one InterestPayment row for this adapter's user.
func (s *SQLStorageAdapter) InsertInterest(ctx context.Context, ip types.InterestPayment) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO interest_payments (id, user_id, broker, pay_date, amount, currency, amount_eur, principal, withholding_tax, withholding_tax_ccy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		NewRecordID(), s.UserID, ip.Broker, ip.Date.Format("2006-01-02"),
		ip.Amount.String(), ip.Currency, ip.AmountEUR.String(), string(ip.Principal), ip.WithholdingTax.String(), ip.WithholdingTaxCcy)
	if err != nil {
		return errs.NewAdapter("sqlite", err)
	}
	return nil
}

// InsertFx persists one FxConversion row for this adapter's user.
func (s *SQLStorageAdapter) InsertFx(ctx context.Context, fx types.FxConversion) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO fx_conversions (id, user_id, broker, conversion_date, from_currency, to_currency, from_amount, to_amount, fees)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		NewRecordID(), s.UserID, fx.Broker, fx.Date.Format("2006-01-02"), fx.FromCurrency, fx.ToCurrency,
		fx.FromAmount.String(), fx.ToAmount.String(), fx.Fees.String())
	if err != nil {
		return errs.NewAdapter("sqlite", err)
	}
	return nil
}
