// backend/src/services/price_service.go
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/publicsuffix"

	"github.com/austriantax/ledger/src/ledger/errs"
	"github.com/austriantax/ledger/src/logger"
	"github.com/austriantax/ledger/src/model"
)

// Struct for the v1 search API to convert ISIN to Ticker
type yahooSearchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		Exchange  string `json:"exchange"`
		Shortname string `json:"shortname"`
		QuoteType string `json:"quoteType"`
		Currency  string `json:"currency"`
	} `json:"quotes"`
}

// Struct for the v8 chart/quote API to get the price
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// PriceService implements ports.PriceAdapter by resolving an ISIN to a
// Yahoo Finance ticker (DB-cached) and fetching its current quote
// (DB-cached for the day), entirely in decimal.Decimal.
type PriceService struct {
	db            *sql.DB
	httpClient    http.Client
	isInitialized bool
	mu            sync.Mutex
}

func NewPriceService(db *sql.DB) *PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("failed to create cookie jar", "error", err)
	}
	client := http.Client{
		Jar:     jar,
		Timeout: 20 * time.Second,
	}
	s := &PriceService{db: db, httpClient: client}
	go s.initializeYahooSession()
	return s
}

func (s *PriceService) initializeYahooSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isInitialized {
		return
	}
	logger.L.Info("attempting to initialize Yahoo Finance session")
	req, _ := http.NewRequest("GET", "https://finance.yahoo.com/quote/AAPL", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.L.Error("failed session init request", "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusOK {
		s.isInitialized = true
		logger.L.Info("Yahoo session initialized successfully")
	} else {
		logger.L.Warn("failed to initialize Yahoo session", "status", resp.Status)
	}
}

// CurrentPrice implements ports.PriceAdapter.
func (s *PriceService) CurrentPrice(ctx context.Context, isin string) (decimal.Decimal, string, error) {
	s.mu.Lock()
	initialized := s.isInitialized
	s.mu.Unlock()
	if !initialized {
		s.initializeYahooSession()
	}

	ticker, err := s.tickerForISIN(isin)
	if err != nil {
		return decimal.Zero, "", err
	}

	price, currency, err := s.priceForTicker(ticker)
	if err != nil {
		return decimal.Zero, "", err
	}
	return price, currency, nil
}

// RefreshTickerMapping re-resolves isin against the upstream ticker search
// and overwrites the cached mapping, even if one already exists. Unlike
// tickerForISIN (which treats any cache hit as final), this is for callers
// that want to correct a stale mapping, e.g. Housekeeper.
func (s *PriceService) RefreshTickerMapping(ctx context.Context, isin string) error {
	ticker, exchange, currency, err := s.fetchTickerForISIN(isin)
	if err != nil {
		return err
	}
	return model.UpsertMapping(s.db, model.ISINTickerMap{
		ISIN:         isin,
		TickerSymbol: ticker,
		Exchange:     sql.NullString{String: exchange, Valid: exchange != ""},
		Currency:     currency,
	})
}

func (s *PriceService) tickerForISIN(isin string) (string, error) {
	mappings, err := model.GetMappingsByISINs(s.db, []string{isin})
	if err != nil {
		logger.L.Error("failed to get ISIN mapping from DB", "isin", isin, "error", err)
	}
	if mapping, ok := mappings[isin]; ok {
		return mapping.TickerSymbol, nil
	}

	ticker, exchange, currency, err := s.fetchTickerForISIN(isin)
	if err != nil {
		return "", err
	}
	if err := model.InsertMapping(s.db, model.ISINTickerMap{
		ISIN:         isin,
		TickerSymbol: ticker,
		Exchange:     sql.NullString{String: exchange, Valid: exchange != ""},
		Currency:     currency,
	}); err != nil {
		logger.L.Warn("failed to cache ISIN->ticker mapping", "isin", isin, "error", err)
	}
	return ticker, nil
}

func (s *PriceService) priceForTicker(ticker string) (decimal.Decimal, string, error) {
	today := time.Now().Format("2006-01-02")
	if cached, ok, err := model.GetDailyPrice(s.db, ticker, today); err == nil && ok {
		return cached.Price, cached.Currency, nil
	}

	price, currency, err := s.fetchPriceForTicker(ticker)
	if err != nil {
		return decimal.Zero, "", err
	}
	if err := model.UpsertDailyPrice(s.db, model.DailyPrice{
		TickerSymbol: ticker,
		Date:         today,
		Price:        price,
		Currency:     currency,
	}); err != nil {
		logger.L.Warn("failed to cache daily price", "ticker", ticker, "error", err)
	}
	return price, currency, nil
}

func (s *PriceService) fetchTickerForISIN(isin string) (string, string, string, error) {
	searchURL := fmt.Sprintf("https://query1.finance.yahoo.com/v1/finance/search?q=%s&quotesCount=1&lang=en-US", isin)
	req, err := http.NewRequest("GET", searchURL, nil)
	if err != nil {
		return "", "", "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", "", errs.NewAdapter("yahoo-search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", "", errs.NewAdapter("yahoo-search", fmt.Errorf("unexpected status %d for ISIN %s", resp.StatusCode, isin))
	}

	var searchData yahooSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchData); err != nil {
		return "", "", "", errs.NewAdapter("yahoo-search", err)
	}
	if len(searchData.Quotes) == 0 || searchData.Quotes[0].Symbol == "" {
		return "", "", "", errs.NewNotFound("ticker", isin)
	}
	quote := searchData.Quotes[0]
	return quote.Symbol, quote.Exchange, quote.Currency, nil
}

func (s *PriceService) fetchPriceForTicker(ticker string) (decimal.Decimal, string, error) {
	quoteURL := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s", ticker)
	req, err := http.NewRequest("GET", quoteURL, nil)
	if err != nil {
		return decimal.Zero, "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, "", errs.NewAdapter("yahoo-chart", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, "", errs.NewAdapter("yahoo-chart", fmt.Errorf("unexpected status %d for ticker %s", resp.StatusCode, ticker))
	}

	var chartData yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartData); err != nil {
		return decimal.Zero, "", errs.NewAdapter("yahoo-chart", err)
	}
	if chartData.Chart.Error != nil {
		return decimal.Zero, "", errs.NewAdapter("yahoo-chart", fmt.Errorf("ticker %s: %v", ticker, chartData.Chart.Error))
	}
	if len(chartData.Chart.Result) == 0 || chartData.Chart.Result[0].Meta.RegularMarketPrice == 0 {
		return decimal.Zero, "", errs.NewNotFound("price", ticker)
	}

	meta := chartData.Chart.Result[0].Meta
	if meta.Currency == "" {
		return decimal.Zero, "", errs.NewDataIntegrity("ticker quote missing currency", ticker)
	}
	return decimal.NewFromFloat(meta.RegularMarketPrice), meta.Currency, nil
}
