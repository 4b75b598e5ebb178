package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Lllllllleong/esgreportlinks/internal/models"
)

// Warehouse runs parameterized statements against the link table.
type Warehouse interface {
	Query(ctx context.Context, sql string, params map[string]any) ([]map[string]any, error)
	Exec(ctx context.Context, sql string, params map[string]any) error
}

// tableNameRegex accepts dataset.table or project.dataset.table.
var tableNameRegex = regexp.MustCompile(`^([A-Za-z0-9-]+\.)?[A-Za-z0-9_]+\.[A-Za-z0-9_-]+$`)

// ReportStore persists ReportRecords with update-or-insert semantics keyed by company_id.
type ReportStore struct {
	warehouse Warehouse
	table     string
	now       func() time.Time

	existsSQL string
	updateSQL string
	insertSQL string
}

// NewReportStore validates table, which is spliced into SQL as an identifier;
// every value travels as a query parameter.
func NewReportStore(warehouse Warehouse, table string) (*ReportStore, error) {
	if !tableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q: want dataset.table or project.dataset.table", table)
	}
	return &ReportStore{
		warehouse: warehouse,
		table:     table,
		now:       time.Now,
		existsSQL: fmt.Sprintf("SELECT company_id FROM `%s` WHERE company_id = @company_id", table),
		updateSQL: fmt.Sprintf("UPDATE `%s`\n"+
			"SET company_name = @company_name,\n"+
			"    sr_pdf_link = @sr_pdf_link,\n"+
			"    links_with_pgno = @links_with_pgno,\n"+
			"    links_pdf = @links_pdf,\n"+
			"    updated_dt = @updated_dt\n"+
			"WHERE company_id = @company_id", table),
		insertSQL: fmt.Sprintf("INSERT INTO `%s`\n"+
			"(company_id, company_name, sr_pdf_link, links_with_pgno, links_pdf, inserted_dt, updated_dt)\n"+
			"VALUES (@company_id, @company_name, @sr_pdf_link, @links_with_pgno, @links_pdf, @inserted_dt, @updated_dt)", table),
	}, nil
}

// Upsert updates the row for rec.CompanyID when one exists and inserts one otherwise.
// Exactly one mutation is issued. rec's timestamps are set to what was written.
func (s *ReportStore) Upsert(ctx context.Context, rec *models.ReportRecord) (models.UpsertAction, error) {
	logCtx := slog.With("companyId", rec.CompanyID, "table", s.table)

	rows, err := s.warehouse.Query(ctx, s.existsSQL, map[string]any{"company_id": rec.CompanyID})
	if err != nil {
		logCtx.Error("Existence check failed", "error", err)
		return "", &models.WarehouseError{Op: "check", CompanyID: rec.CompanyID, Err: err}
	}

	linksWithPgNo, linksPDF, err := serializeLinks(rec)
	if err != nil {
		return "", &models.WarehouseError{Op: "serialize", CompanyID: rec.CompanyID, Err: err}
	}

	now := s.now().UTC()
	params := map[string]any{
		"company_id":      rec.CompanyID,
		"company_name":    rec.CompanyName,
		"sr_pdf_link":     rec.SeedPDFLink,
		"links_with_pgno": linksWithPgNo,
		"links_pdf":       linksPDF,
		"updated_dt":      now,
	}

	if len(rows) > 0 {
		if err := s.warehouse.Exec(ctx, s.updateSQL, params); err != nil {
			logCtx.Error("Update failed", "error", err)
			return "", &models.WarehouseError{Op: "update", CompanyID: rec.CompanyID, Err: err}
		}
		rec.UpdatedAt = now
		logCtx.Info("Updated link record.", "matchingRows", len(rows))
		return models.UpsertUpdated, nil
	}

	params["inserted_dt"] = now
	if err := s.warehouse.Exec(ctx, s.insertSQL, params); err != nil {
		logCtx.Error("Insert failed", "error", err)
		return "", &models.WarehouseError{Op: "insert", CompanyID: rec.CompanyID, Err: err}
	}
	rec.InsertedAt = now
	rec.UpdatedAt = now
	logCtx.Info("Inserted link record.")
	return models.UpsertInserted, nil
}

// serializeLinks renders the page mapping as a JSON object and the PDF links as a JSON array.
func serializeLinks(rec *models.ReportRecord) (string, string, error) {
	byPage := rec.LinksByPage
	if byPage == nil {
		byPage = map[int][]string{}
	}
	pdfLinks := rec.PDFLinks
	if pdfLinks == nil {
		pdfLinks = []string{}
	}

	pageJSON, err := json.Marshal(byPage)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal links_with_pgno: %w", err)
	}
	pdfJSON, err := json.Marshal(pdfLinks)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal links_pdf: %w", err)
	}
	return string(pageJSON), string(pdfJSON), nil
}
