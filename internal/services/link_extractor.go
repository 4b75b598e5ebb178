package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/esgreportlinks/internal/gcp"
	"github.com/Lllllllleong/esgreportlinks/internal/httpfetch"
	"github.com/Lllllllleong/esgreportlinks/internal/links"
	"github.com/Lllllllleong/esgreportlinks/internal/models"
	"github.com/google/uuid"
)

// LinkExtractorConfig holds all configuration for the link-extractor service.
type LinkExtractorConfig struct {
	ProjectID        string
	LinksTable       string
	BigQueryLocation string
	ReportsBucket    string
	RunsCollection   string
	LockCollection   string
	LockTTL          time.Duration
	HTTPTimeout      time.Duration
	UploadTimeout    time.Duration
	MaxPDFBytes      int64
	WorkflowID       string
	WorkflowLocation string
}

// RunLedger keeps the status of each run.
type RunLedger interface {
	Record(ctx context.Context, run *models.Run) error
}

// CompanyLocker serializes runs for the same company. Leases expire unless renewed.
type CompanyLocker interface {
	Lock(ctx context.Context, companyID, runID string) (unlock func(context.Context) error, err error)
	Renew(ctx context.Context, companyID, runID string) error
}

// WorkflowTrigger hands uploaded objects to a downstream workflow.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, payload any) (string, error)
	Name() string
}

// LinkExtractorFunction holds the dependencies for a full extraction run.
type LinkExtractorFunction struct {
	extractor *links.Extractor
	store     *ReportStore
	publisher *Publisher
	ledger    RunLedger
	locker    CompanyLocker
	trigger   WorkflowTrigger // nil disables the hand-off

	config  LinkExtractorConfig
	closers []io.Closer
	newID   func() string
	now     func() time.Time
}

// loadConfig loads and validates all necessary environment variables for this service.
func loadConfig() (*LinkExtractorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	linksTable := gcp.GetEnv("LINKS_TABLE", "")
	if linksTable == "" {
		return nil, fmt.Errorf("LINKS_TABLE environment variable must be set")
	}

	return &LinkExtractorConfig{
		ProjectID:        projectID,
		LinksTable:       linksTable,
		BigQueryLocation: gcp.GetEnv("BIGQUERY_LOCATION", ""),
		ReportsBucket:    gcp.GetEnv("REPORTS_BUCKET", "sr_organisation_data"),
		RunsCollection:   gcp.GetEnv("RUNS_COLLECTION", "link_extraction_runs"),
		LockCollection:   gcp.GetEnv("LOCK_COLLECTION", "company_locks"),
		LockTTL:          gcp.GetDurationEnv("LOCK_TTL", 10*time.Minute),
		HTTPTimeout:      gcp.GetDurationEnv("HTTP_TIMEOUT", 60*time.Second),
		UploadTimeout:    gcp.GetDurationEnv("UPLOAD_TIMEOUT", 50*time.Second),
		MaxPDFBytes:      gcp.GetInt64Env("MAX_PDF_BYTES", 200<<20),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}, nil
}

// NewLinkExtractor creates a LinkExtractorFunction backed by BigQuery,
// Cloud Storage, Firestore and (optionally) Cloud Workflows.
func NewLinkExtractor(ctx context.Context) (*LinkExtractorFunction, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	bigqueryClient, err := gcp.NewBigQueryClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	store, err := NewReportStore(gcp.NewBigQueryWarehouse(bigqueryClient, config.BigQueryLocation), config.LinksTable)
	if err != nil {
		return nil, err
	}

	// The extractor fetches plainly; uploads present a browser User-Agent,
	// which some corporate sites require before serving PDFs.
	extractor := links.NewExtractor(
		httpfetch.New(httpfetch.Options{Timeout: config.HTTPTimeout, MaxBytes: config.MaxPDFBytes}),
		links.NewPDFCPUReader(),
	)
	publisher := NewPublisher(
		gcp.NewGCSBlobStore(storageClient, config.UploadTimeout),
		httpfetch.New(httpfetch.Options{Timeout: config.HTTPTimeout, MaxBytes: config.MaxPDFBytes, RandomUserAgent: true}),
		config.ReportsBucket,
	)

	f := &LinkExtractorFunction{
		extractor: extractor,
		store:     store,
		publisher: publisher,
		ledger:    gcp.NewFirestoreRunLedger(firestoreClient, config.RunsCollection),
		locker:    gcp.NewFirestoreLocker(firestoreClient, config.LockCollection, config.LockTTL),
		config:    *config,
		closers:   []io.Closer{storageClient, firestoreClient, bigqueryClient},
		newID:     uuid.NewString,
		now:       time.Now,
	}

	if config.WorkflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, err
		}
		f.trigger = trigger
		f.closers = append(f.closers, trigger)
	}

	slog.Info("Link extractor initialized.",
		"linksTable", config.LinksTable,
		"bucket", config.ReportsBucket,
		"workflowId", config.WorkflowID,
	)
	return f, nil
}

// Close releases every client opened by NewLinkExtractor.
func (f *LinkExtractorFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Process runs extraction, persistence and publishing for one report.
// Invalid requests, a held company lock, ledger creation and extraction failures
// abort the run and are returned as errors. Warehouse, upload and workflow
// failures are reported per item in the returned RunReport.
func (f *LinkExtractorFunction) Process(ctx context.Context, req *models.ExtractLinksRequest) (*models.RunReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID := f.newID()
	logCtx := slog.With("runId", runID, "companyId", req.CompanyID)
	logCtx.Info("Starting link extraction.", "pdfLink", req.PDFLink, "year", req.Year)

	now := f.now()
	run := &models.Run{
		RunID:       runID,
		CompanyID:   req.CompanyID,
		CompanyName: req.CompanyName,
		PDFLink:     req.PDFLink,
		Year:        req.Year,
		Status:      models.RunStatusExtracting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.ledger.Record(ctx, run); err != nil {
		logCtx.Error("Failed to create run record", "error", err)
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	unlock, err := f.locker.Lock(ctx, req.CompanyID, runID)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, run, "failed to acquire company lock", err)
	}
	stopRenewing := f.keepLease(ctx, logCtx, req.CompanyID, runID)
	defer func() {
		stopRenewing()
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			logCtx.Error("Failed to release company lock", "error", err)
		}
	}()

	extraction, err := f.extractor.Extract(ctx, req.PDFLink)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, run, "failed to extract links", err)
	}
	report := &models.RunReport{
		RunID:      runID,
		CompanyID:  req.CompanyID,
		Extraction: extraction,
	}
	run.LinkCount = len(extraction.AllLinks)
	run.PDFLinkCount = len(extraction.PDFLinks)
	f.advance(ctx, logCtx, run, models.RunStatusPersisting)

	record := &models.ReportRecord{
		CompanyID:   req.CompanyID,
		CompanyName: req.CompanyName,
		SeedPDFLink: req.PDFLink,
		LinksByPage: extraction.LinksByPage,
		PDFLinks:    extraction.PDFLinks,
	}
	if action, err := f.store.Upsert(ctx, record); err != nil {
		report.Upsert = models.UpsertResult{ErrorKind: models.ErrorKind(err), Error: err.Error()}
	} else {
		report.Upsert = models.UpsertResult{Action: action}
	}
	f.advance(ctx, logCtx, run, models.RunStatusPublishing)

	partition := links.Partition(extraction.PDFLinks, req.CompanyName)
	report.Partition = &partition
	logCtx.Info("Filtered PDF links by company keyword.",
		"keyword", partition.Keyword,
		"matched", len(partition.Matched),
		"unmatched", len(partition.Unmatched),
	)
	report.Uploads = f.publisher.PublishAll(ctx, req.PDFLink, partition.Matched, req.CompanyName, req.Year)

	if f.trigger != nil {
		report.Workflow = f.handOff(ctx, logCtx, req, report)
		run.WorkflowExecution = report.Workflow.Execution
	}

	report.Status = models.RunStatusCompleted
	var problems []string
	if report.Upsert.Error != "" {
		problems = append(problems, report.Upsert.Error)
	}
	for _, u := range report.Uploads {
		if !u.OK() {
			problems = append(problems, u.Error)
		}
	}
	if report.Workflow != nil && report.Workflow.Error != "" {
		problems = append(problems, report.Workflow.Error)
	}
	if len(problems) > 0 {
		report.Status = models.RunStatusCompletedWithErrors
		run.ErrorDetails = fmt.Sprintf("%d step(s) failed; first: %s", len(problems), problems[0])
	}

	run.FailedUploadCount = report.FailedUploads()
	run.UploadedCount = len(report.Uploads) - run.FailedUploadCount
	f.advance(ctx, logCtx, run, report.Status)

	logCtx.Info("Link extraction complete.",
		"status", report.Status,
		"upsert", report.Upsert.Action,
		"uploaded", run.UploadedCount,
		"failedUploads", run.FailedUploadCount,
	)
	return report, nil
}

// handOff starts the downstream workflow with every successfully uploaded object.
func (f *LinkExtractorFunction) handOff(ctx context.Context, logCtx *slog.Logger, req *models.ExtractLinksRequest, report *models.RunReport) *models.WorkflowResult {
	objects := []string{}
	for _, u := range report.Uploads {
		if u.OK() {
			objects = append(objects, u.ObjectURI)
		}
	}
	if len(objects) == 0 {
		logCtx.Warn("Nothing was uploaded; skipping workflow hand-off.")
		return &models.WorkflowResult{}
	}

	payload := map[string]any{
		"runId":     report.RunID,
		"companyId": req.CompanyID,
		"year":      req.Year,
		"objects":   objects,
	}
	execution, err := f.trigger.Trigger(ctx, payload)
	if err != nil {
		err = &models.WorkflowError{Workflow: f.trigger.Name(), Err: err}
		logCtx.Error("Workflow hand-off failed", "error", err)
		return &models.WorkflowResult{ErrorKind: models.ErrorKind(err), Error: err.Error()}
	}
	logCtx.Info("Triggered workflow.", "execution", execution, "objectCount", len(objects))
	return &models.WorkflowResult{Execution: execution}
}

// keepLease renews the company lock every third of LockTTL until the returned
// function is called; that function waits for the renewer to exit.
func (f *LinkExtractorFunction) keepLease(ctx context.Context, logCtx *slog.Logger, companyID, runID string) func() {
	interval := f.config.LockTTL / 3
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := f.locker.Renew(ctx, companyID, runID)
				if errors.Is(err, models.ErrLockLost) {
					logCtx.Error("Company lock was lost; another run may start", "error", err)
					return
				}
				if err != nil {
					logCtx.Warn("Failed to renew company lock", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// advance moves the run to status. Ledger failures here are logged only;
// they must not change the outcome of work that already happened.
func (f *LinkExtractorFunction) advance(ctx context.Context, logCtx *slog.Logger, run *models.Run, status string) {
	run.Status = status
	run.UpdatedAt = f.now()
	if err := f.ledger.Record(ctx, run); err != nil {
		logCtx.Error("Failed to update run status", "status", status, "error", err)
	}
}

func (f *LinkExtractorFunction) handleError(ctx context.Context, logCtx *slog.Logger, run *models.Run, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr, "errorKind", models.ErrorKind(originalErr))
	run.ErrorDetails = fmt.Sprintf("%s: %v", message, originalErr)
	f.advance(ctx, logCtx, run, models.RunStatusFailed)
	return fmt.Errorf("%s: %w", message, originalErr)
}
