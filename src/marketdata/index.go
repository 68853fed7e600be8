package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/austriantax/ledger/src/ledger/errs"
	"github.com/austriantax/ledger/src/logger"
)

// fredObservationsResponse mirrors the subset of the FRED API's
// fred/series/observations JSON response this adapter consumes.
type fredObservationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// FredIndexAdapter resolves a benchmark series' value on a date from the
// St. Louis Fed's FRED API, rate-limited to stay within FRED's published
// request budget and cached per (series, date) to avoid refetching a
// series already pulled in this process lifetime.
type FredIndexAdapter struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *gocache.Cache

	mu     sync.Mutex
	series map[string][]rateObservation
}

func NewFredIndexAdapter(apiKey string, requestsPerMinute int) *FredIndexAdapter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}
	return &FredIndexAdapter{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		cache:      gocache.New(24*time.Hour, time.Hour),
		series:     map[string][]rateObservation{},
	}
}

// Observation implements ports.IndexAdapter with most-recent-prior semantics.
func (a *FredIndexAdapter) Observation(ctx context.Context, series string, date time.Time) (decimal.Decimal, error) {
	obs, err := a.seriesObservations(ctx, series)
	if err != nil {
		return decimal.Zero, err
	}

	idx := sort.Search(len(obs), func(i int) bool { return obs[i].date.After(date) })
	if idx == 0 {
		return decimal.Zero, errs.NewNotFound("index observation", series+" on/before "+date.Format("2006-01-02"))
	}
	return obs[idx-1].rate, nil
}

func (a *FredIndexAdapter) seriesObservations(ctx context.Context, series string) ([]rateObservation, error) {
	a.mu.Lock()
	if cached, ok := a.series[series]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	if cached, ok := a.cache.Get(series); ok {
		obs := cached.([]rateObservation)
		a.mu.Lock()
		a.series[series] = obs
		a.mu.Unlock()
		return obs, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf(
		"https://api.stlouisfed.org/fred/series/observations?series_id=%s&api_key=%s&file_type=json",
		series, a.apiKey,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.NewAdapter("fred", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, errs.NewAdapter("fred", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.NewAdapter("fred", fmt.Errorf("unexpected status %d for series %s", resp.StatusCode, series))
	}

	var payload fredObservationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errs.NewAdapter("fred", err)
	}

	obs := make([]rateObservation, 0, len(payload.Observations))
	for _, o := range payload.Observations {
		d, err := time.Parse("2006-01-02", o.Date)
		if err != nil {
			continue
		}
		value, err := decimal.NewFromString(o.Value)
		if err != nil {
			// FRED represents missing observations as "."; skip silently.
			continue
		}
		obs = append(obs, rateObservation{date: d, rate: value})
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].date.Before(obs[j].date) })

	logger.L.Info("fetched fred series", "series", series, "observations", len(obs))
	a.cache.Set(series, obs, gocache.DefaultExpiration)
	a.mu.Lock()
	a.series[series] = obs
	a.mu.Unlock()
	return obs, nil
}
