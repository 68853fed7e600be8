// Package handlers: reports_handler serves the three read-facing views the
// core produces, driving a single reports.Builder per request.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/austriantax/ledger/src/logger"
	"github.com/austriantax/ledger/src/reports"
)

// ReportsHandler exposes PortfolioOverview, PortfolioPerformance and
// TaxationReport over HTTP, each as-of either "now" or an explicit
// ?asof=YYYY-MM-DD query parameter.
type ReportsHandler struct {
	Builder *reports.Builder
}

func NewReportsHandler(builder *reports.Builder) *ReportsHandler {
	return &ReportsHandler{Builder: builder}
}

func asOfFromQuery(r *http.Request) time.Time {
	if raw := r.URL.Query().Get("asof"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t
		}
	}
	return time.Now()
}

func (h *ReportsHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Builder.Overview(r.Context(), asOfFromQuery(r))
	if err != nil {
		logger.L.Error("overview report failed", "error", err)
		sendJSONError(w, "failed to build portfolio overview", http.StatusInternalServerError)
		return
	}
	writeJSON(w, overview)
}

func (h *ReportsHandler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	performance, err := h.Builder.Performance(r.Context(), asOfFromQuery(r))
	if err != nil {
		logger.L.Error("performance report failed", "error", err)
		sendJSONError(w, "failed to build performance report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, performance)
}

func (h *ReportsHandler) HandleTaxation(w http.ResponseWriter, r *http.Request) {
	taxation, err := h.Builder.Taxation(r.Context(), asOfFromQuery(r))
	if err != nil {
		logger.L.Error("taxation report failed", "error", err)
		sendJSONError(w, "failed to build taxation report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, taxation)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("failed to encode JSON response", "error", err)
	}
}
