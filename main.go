// backend/main.go
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/austriantax/ledger/src/config"
	"github.com/austriantax/ledger/src/database"
	"github.com/austriantax/ledger/src/handlers"
	"github.com/austriantax/ledger/src/ledger/tax"
	"github.com/austriantax/ledger/src/logger"
	"github.com/austriantax/ledger/src/marketdata"
	"github.com/austriantax/ledger/src/reports"
	"github.com/austriantax/ledger/src/services"
)

// proxyHeadersMiddleware inspects proxy headers to determine if the original
// request was HTTPS, and updates the request object accordingly. This is
// crucial for security features (like Secure cookies) to work correctly
// behind a reverse proxy.
func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "method", r.Method, "path", r.URL.Path, "remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			"https://www.rumoclaro.pt": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Requested-With, Cookie")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// localUserID is the sole account this single-tenant instance serves.
// Multi-tenancy is deliberately out of scope (see DESIGN.md).
const localUserID int64 = 1

// dailyPriceRetention bounds how long a cached quote survives in
// daily_prices before housekeeping purges it.
const dailyPriceRetention = 30 * 24 * time.Hour

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("austriantax ledger server starting...")

	// Report JSON always carries decimal fields quoted, never as bare
	// floating-point numbers.
	decimal.MarshalJSONWithoutQuotes = false

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)
	if err := database.EnsureLocalUser(localUserID); err != nil {
		stdlog.Fatalf("failed to provision local user row: %v", err)
	}
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing market data adapters...")
	fxAdapter, err := marketdata.LoadHistoricalFxAdapter(config.Cfg.FxRatesPath)
	if err != nil {
		stdlog.Fatalf("failed to load historical FX rates from %s: %v", config.Cfg.FxRatesPath, err)
	}
	indexAdapter := marketdata.NewFredIndexAdapter(config.Cfg.FredAPIKey, config.Cfg.FredRequestsPerMin)
	priceService := services.NewPriceService(database.DB)

	storage := database.NewSQLStorageAdapter(database.DB, localUserID)
	builder := reports.NewBuilder(storage, fxAdapter, indexAdapter, priceService, tax.AustrianRates(), config.Cfg.BenchmarkIndexSeries)

	housekeeper := services.NewHousekeeper(database.DB, storage, priceService)
	go func() {
		if err := housekeeper.Run(context.Background(), dailyPriceRetention); err != nil {
			logger.L.Error("housekeeping run failed", "error", err)
		}
	}()

	reportsHandler := handlers.NewReportsHandler(builder)
	importHandler := handlers.NewImportHandler(storage, fxAdapter)

	logger.L.Info("Configuring routes...")
	router := chi.NewRouter()

	router.Route("/api", func(api chi.Router) {
		api.Get("/reports/overview", reportsHandler.HandleOverview)
		api.Get("/reports/performance", reportsHandler.HandlePerformance)
		api.Get("/reports/taxation", reportsHandler.HandleTaxation)

		api.Post("/import/degiro", importHandler.HandleImportDegiro)
		api.Post("/import/ibkr", importHandler.HandleImportIBKR)
	})

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "austriantax ledger backend is running"})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
		}
		http.NotFound(w, r)
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := proxyHeadersMiddleware(enableCORS(rateLimitMiddleware(router)))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
