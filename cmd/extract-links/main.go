// Command extract-links runs a single link extraction against the configured
// GCP project and prints the run report as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Lllllllleong/esgreportlinks/internal/models"
	"github.com/Lllllllleong/esgreportlinks/internal/services"
	"github.com/joho/godotenv"
)

func main() {
	companyID := flag.String("company-id", "", "company identifier (warehouse key)")
	companyName := flag.String("company-name", "", "company display name")
	pdfLink := flag.String("pdf-link", "", "URL of the seed report PDF")
	year := flag.Int("year", 0, "report year")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("No env file loaded; using process environment", "path", *envFile, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, &models.ExtractLinksRequest{
		CompanyID:   *companyID,
		CompanyName: *companyName,
		PDFLink:     *pdfLink,
		Year:        *year,
	})
	stop()
	os.Exit(code)
}

func run(ctx context.Context, req *models.ExtractLinksRequest) int {
	if err := req.Validate(); err != nil {
		slog.Error("Invalid arguments", "error", err)
		flag.Usage()
		return 2
	}

	extractor, err := services.NewLinkExtractor(ctx)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		return 1
	}
	defer func() {
		if err := extractor.Close(); err != nil {
			slog.Error("Failed to close clients", "error", err)
		}
	}()

	report, err := extractor.Process(ctx, req)
	if err != nil {
		slog.Error("Extraction failed", "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("Failed to write report", "error", err)
		return 1
	}
	if report.Status != models.RunStatusCompleted {
		return 3
	}
	return 0
}
