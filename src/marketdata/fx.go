// Package marketdata provides the FxAdapter and IndexAdapter implementations
// the tax and performance engines rely on: an ECB-style historical exchange
// rate file and a FRED benchmark series, both resolved with
// most-recent-observation-on-or-before-date semantics.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/austriantax/ledger/src/ledger/errs"
	"github.com/austriantax/ledger/src/logger"
)

// exchangeRateFile mirrors the ECB Data Portal SDMX-flavoured export this
// adapter is grounded on: a flat array of (currency, date, value) rows keyed
// by ISO 4217 code, each value being foreign-currency-units-per-EUR.
type exchangeRateFile struct {
	Root struct {
		Obs []struct {
			TimePeriod string `json:"_TIME_PERIOD"`
			ObsValue   string `json:"_OBS_VALUE"`
			Ccy        string `json:"_CCY"`
		} `json:"Obs"`
	} `json:"root"`
}

type rateObservation struct {
	date time.Time
	rate decimal.Decimal
}

// HistoricalFxAdapter resolves EUR exchange rates from a pre-loaded JSON
// snapshot. It implements ports.FxAdapter.
type HistoricalFxAdapter struct {
	mu    sync.RWMutex
	byCcy map[string][]rateObservation
}

// LoadHistoricalFxAdapter reads and parses the exchange rate snapshot at
// path, pre-sorting every currency's observations by date ascending so
// lookups are a single binary search.
func LoadHistoricalFxAdapter(path string) (*HistoricalFxAdapter, error) {
	logger.L.Info("loading historical exchange rates", "path", path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading historical exchange rate file %q: %w", path, err)
	}

	var file exchangeRateFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing historical exchange rate file %q: %w", path, err)
	}

	byCcy := map[string][]rateObservation{}
	for _, obs := range file.Root.Obs {
		d, err := time.Parse("2006-01-02", obs.TimePeriod)
		if err != nil {
			logger.L.Warn("skipping exchange rate observation with unparsable date", "currency", obs.Ccy, "raw", obs.TimePeriod)
			continue
		}
		rate, err := decimal.NewFromString(obs.ObsValue)
		if err != nil {
			logger.L.Warn("skipping exchange rate observation with unparsable value", "currency", obs.Ccy, "raw", obs.ObsValue)
			continue
		}
		byCcy[obs.Ccy] = append(byCcy[obs.Ccy], rateObservation{date: d, rate: rate})
	}
	for ccy := range byCcy {
		sort.Slice(byCcy[ccy], func(i, j int) bool { return byCcy[ccy][i].date.Before(byCcy[ccy][j].date) })
	}

	logger.L.Info("historical exchange rates loaded", "path", path, "currencies", len(byCcy))
	return &HistoricalFxAdapter{byCcy: byCcy}, nil
}

// Rate implements ports.FxAdapter: Rate(ctx, "EUR", ccy, date) returns
// ccy-units-per-EUR, the convention the engines expect on applied_fx_rate.
// Rate(ctx, ccy, "EUR", date) returns the reciprocal. At least one leg must
// be EUR.
func (a *HistoricalFxAdapter) Rate(_ context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	switch {
	case from == "EUR":
		return a.perEur(to, date)
	case to == "EUR":
		rate, err := a.perEur(from, date)
		if err != nil {
			return decimal.Zero, err
		}
		if rate.IsZero() {
			return decimal.Zero, errs.NewDataIntegrity("zero exchange rate encountered", from)
		}
		return decimal.NewFromInt(1).Div(rate), nil
	default:
		return decimal.Zero, errs.NewDataIntegrity("fx rate requested between two non-EUR currencies", from+"/"+to)
	}
}

func (a *HistoricalFxAdapter) perEur(ccy string, date time.Time) (decimal.Decimal, error) {
	if ccy == "GBX" {
		rate, err := a.perEur("GBP", date)
		if err != nil {
			return decimal.Zero, err
		}
		return rate.Mul(decimal.NewFromInt(100)), nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	obs, ok := a.byCcy[ccy]
	if !ok || len(obs) == 0 {
		return decimal.Zero, errs.NewNotFound("exchange rate", ccy)
	}

	idx := sort.Search(len(obs), func(i int) bool { return obs[i].date.After(date) })
	if idx == 0 {
		return decimal.Zero, errs.NewNotFound("exchange rate", ccy+" on/before "+date.Format("2006-01-02"))
	}
	return obs[idx-1].rate, nil
}
