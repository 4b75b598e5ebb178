package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/esgreportlinks/internal/models"
	"github.com/Lllllllleong/esgreportlinks/internal/services"
)

var (
	extractorInstance *services.LinkExtractorFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleExtractLinks" is the entry point name configured in GCP.
	functions.HTTP("HandleExtractLinks", handleExtractLinks)
}

// main is required by the Go Functions Framework.
func main() {}

// handleExtractLinks runs one extraction and answers with the RunReport.
func handleExtractLinks(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		extractorInstance, initErr = services.NewLinkExtractor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ExtractLinksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	report, err := extractorInstance.Process(r.Context(), &req)
	if err != nil {
		code := statusFor(err)
		slog.Error("Link extraction request failed", "error", err, "status", code, "companyId", req.CompanyID)
		http.Error(w, errorMessage(code), code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrCompanyLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the fixed client-facing text for each status; details stay in the logs.
func errorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "Bad Request: companyId, companyName, pdfLink and a positive year are required"
	case http.StatusConflict:
		return "Conflict: another extraction is running for this company"
	default:
		return "Internal Server Error: processing failed"
	}
}
