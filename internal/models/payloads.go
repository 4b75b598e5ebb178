package models

import (
	"fmt"
	"strings"
)

// These structs define the JSON payloads exchanged with the link-extractor
// functions and returned to callers.

// ExtractLinksRequest is the input for the link-extractor function.
type ExtractLinksRequest struct {
	CompanyID   string `json:"companyId"`
	CompanyName string `json:"companyName"`
	PDFLink     string `json:"pdfLink"`
	Year        int    `json:"year"`
}

// Validate reports the first missing or malformed field.
func (r *ExtractLinksRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.CompanyID) == "":
		return fmt.Errorf("%w: companyId is required", ErrInvalidRequest)
	case strings.TrimSpace(r.CompanyName) == "":
		return fmt.Errorf("%w: companyName is required", ErrInvalidRequest)
	case strings.TrimSpace(r.PDFLink) == "":
		return fmt.Errorf("%w: pdfLink is required", ErrInvalidRequest)
	case r.Year <= 0:
		return fmt.Errorf("%w: year must be positive", ErrInvalidRequest)
	}
	return nil
}

// UpsertAction says which mutation the warehouse received.
type UpsertAction string

const (
	UpsertInserted UpsertAction = "inserted"
	UpsertUpdated  UpsertAction = "updated"
)

// UpsertResult is the outcome of persisting a ReportRecord.
type UpsertResult struct {
	Action    UpsertAction `json:"action,omitempty"`
	ErrorKind string       `json:"errorKind,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// UploadResult is the outcome of publishing one PDF.
type UploadResult struct {
	Link      string     `json:"link"`
	Category  Category   `json:"category"`
	Target    BlobTarget `json:"target"`
	ObjectURI string     `json:"objectUri,omitempty"`
	Existed   bool       `json:"existed"`
	Bytes     int        `json:"bytes"`
	ErrorKind string     `json:"errorKind,omitempty"`
	Error     string     `json:"error,omitempty"`

	Err error `json:"-"`
}

// OK reports whether the upload succeeded.
func (r *UploadResult) OK() bool { return r.Err == nil && r.Error == "" }

// WorkflowResult is the outcome of the downstream hand-off.
type WorkflowResult struct {
	Execution string `json:"execution,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunReport is the output of the link-extractor function.
type RunReport struct {
	RunID      string          `json:"runId"`
	CompanyID  string          `json:"companyId"`
	Status     string          `json:"status"`
	Extraction *Extraction     `json:"extraction,omitempty"`
	Partition  *LinkPartition  `json:"partition,omitempty"`
	Upsert     UpsertResult    `json:"upsert"`
	Uploads    []UploadResult  `json:"uploads"`
	Workflow   *WorkflowResult `json:"workflow,omitempty"`
}

// FailedUploads counts uploads that did not succeed.
func (r *RunReport) FailedUploads() int {
	n := 0
	for i := range r.Uploads {
		if !r.Uploads[i].OK() {
			n++
		}
	}
	return n
}
