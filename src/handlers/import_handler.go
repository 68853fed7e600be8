// Package handlers: import_handler drives a broker export upload through
// the matching importer and persists its raw records via SQLStorageAdapter.
package handlers

import (
	"encoding/json"
	"mime/multipart"
	"net/http"

	"github.com/austriantax/ledger/src/database"
	"github.com/austriantax/ledger/src/importers/degiro"
	"github.com/austriantax/ledger/src/importers/ibkr"
	"github.com/austriantax/ledger/src/logger"
	"github.com/austriantax/ledger/src/ports"
)

// ImportHandler accepts a multipart-form broker statement upload, parses it
// with the broker-specific importer, and writes the extracted trades,
// dividends, and interest payments through Storage.
type ImportHandler struct {
	Storage *database.SQLStorageAdapter
	Fx      ports.FxAdapter
}

func NewImportHandler(storage *database.SQLStorageAdapter, fx ports.FxAdapter) *ImportHandler {
	return &ImportHandler{Storage: storage, Fx: fx}
}

type importSummary struct {
	Trades    int `json:"trades"`
	Dividends int `json:"dividends"`
	Interest  int `json:"interest"`
}

// HandleImportDegiro parses an uploaded DeGiro account-statement CSV.
func (h *ImportHandler) HandleImportDegiro(w http.ResponseWriter, r *http.Request) {
	file, broker, err := h.formFile(r)
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if broker == "" {
		broker = "degiro"
	}
	result, err := degiro.New(broker).Parse(file)
	if err != nil {
		logger.L.Error("degiro import failed", "error", err)
		sendJSONError(w, "failed to parse degiro statement", http.StatusUnprocessableEntity)
		return
	}

	ctx := r.Context()
	for _, t := range result.Trades {
		if err := h.Storage.InsertTrade(ctx, t); err != nil {
			logger.L.Error("failed to persist trade", "isin", t.ISIN, "error", err)
			sendJSONError(w, "failed to persist imported trades", http.StatusInternalServerError)
			return
		}
	}
	for _, d := range result.Dividends {
		if err := h.Storage.InsertDividend(ctx, d); err != nil {
			logger.L.Error("failed to persist dividend", "isin", d.ISIN, "error", err)
			sendJSONError(w, "failed to persist imported dividends", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, importSummary{Trades: len(result.Trades), Dividends: len(result.Dividends)})
}

// HandleImportIBKR parses an uploaded IBKR Flex Query XML report.
func (h *ImportHandler) HandleImportIBKR(w http.ResponseWriter, r *http.Request) {
	file, broker, err := h.formFile(r)
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if broker == "" {
		broker = "ibkr"
	}
	ctx := r.Context()
	result, err := ibkr.New(broker, h.Fx).Parse(ctx, file)
	if err != nil {
		logger.L.Error("ibkr import failed", "error", err)
		sendJSONError(w, "failed to parse ibkr Flex Query report", http.StatusUnprocessableEntity)
		return
	}

	for _, t := range result.Trades {
		if err := h.Storage.InsertTrade(ctx, t); err != nil {
			logger.L.Error("failed to persist trade", "isin", t.ISIN, "error", err)
			sendJSONError(w, "failed to persist imported trades", http.StatusInternalServerError)
			return
		}
	}
	for _, d := range result.Dividends {
		if err := h.Storage.InsertDividend(ctx, d); err != nil {
			logger.L.Error("failed to persist dividend", "isin", d.ISIN, "error", err)
			sendJSONError(w, "failed to persist imported dividends", http.StatusInternalServerError)
			return
		}
	}
	for _, ip := range result.Interest {
		if err := h.Storage.InsertInterest(ctx, ip); err != nil {
			logger.L.Error("failed to persist interest payment", "error", err)
			sendJSONError(w, "failed to persist imported interest", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, importSummary{Trades: len(result.Trades), Dividends: len(result.Dividends), Interest: len(result.Interest)})
}

func (h *ImportHandler) formFile(r *http.Request) (multipart.File, string, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, "", errBadUpload("malformed multipart upload")
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, "", errBadUpload("missing \"file\" form field")
	}
	return file, r.FormValue("broker"), nil
}

type errBadUpload string

func (e errBadUpload) Error() string { return string(e) }

func sendJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
