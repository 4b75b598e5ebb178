package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrCompanyLocked  = errors.New("another run holds the lock for this company")
	ErrInvalidTarget  = errors.New("invalid blob target")
	ErrLockLost       = errors.New("company lock is no longer held by this run")
)

// Error kinds reported in JSON results.
const (
	KindFetch      = "fetch"
	KindExtraction = "extraction"
	KindWarehouse  = "warehouse"
	KindStorage    = "storage"
	KindWorkflow   = "workflow"
	KindUnknown    = "unknown"
)

// FetchError is returned when an HTTP download fails or answers with a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int // 0 for transport failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError is returned when a downloaded document cannot be parsed.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract links from %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// WarehouseError is returned when the existence check or a mutation fails.
type WarehouseError struct {
	Op        string // check, serialize, update or insert
	CompanyID string
	Err       error
}

func (e *WarehouseError) Error() string {
	return fmt.Sprintf("warehouse %s for company %s: %v", e.Op, e.CompanyID, e.Err)
}

func (e *WarehouseError) Unwrap() error { return e.Err }

// StorageError is returned when an object store call fails.
type StorageError struct {
	Op     string // exists or put
	Bucket string
	Object string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s gs://%s/%s: %v", e.Op, e.Bucket, e.Object, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WorkflowError is returned when the downstream workflow could not be started.
type WorkflowError struct {
	Workflow string
	Err      error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("trigger workflow %s: %v", e.Workflow, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// ErrorKind classifies err for callers that only see serialized results.
func ErrorKind(err error) string {
	var (
		fetchErr      *FetchError
		extractionErr *ExtractionError
		warehouseErr  *WarehouseError
		storageErr    *StorageError
		workflowErr   *WorkflowError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &extractionErr):
		return KindExtraction
	case errors.As(err, &warehouseErr):
		return KindWarehouse
	case errors.As(err, &storageErr), errors.Is(err, ErrInvalidTarget):
		return KindStorage
	case errors.As(err, &workflowErr):
		return KindWorkflow
	default:
		return KindUnknown
	}
}
