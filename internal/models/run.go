package models

import "time"

// Run statuses recorded in the Firestore ledger.
const (
	RunStatusExtracting          = "EXTRACTING"
	RunStatusPersisting          = "PERSISTING"
	RunStatusPublishing          = "PUBLISHING"
	RunStatusCompleted           = "COMPLETED"
	RunStatusCompletedWithErrors = "COMPLETED_WITH_ERRORS"
	RunStatusFailed              = "FAILED"
)

// Run is the ledger record for a single link extraction job in Firestore.
// It tracks the overall status and counters of the run.
type Run struct {
	RunID             string    `firestore:"runId"`
	CompanyID         string    `firestore:"companyId"`
	CompanyName       string    `firestore:"companyName,omitempty"`
	PDFLink           string    `firestore:"pdfLink,omitempty"`
	Year              int       `firestore:"year,omitempty"`
	Status            string    `firestore:"status"`
	ErrorDetails      string    `firestore:"errorDetails,omitempty"`
	LinkCount         int       `firestore:"linkCount"`
	PDFLinkCount      int       `firestore:"pdfLinkCount"`
	UploadedCount     int       `firestore:"uploadedCount"`
	FailedUploadCount int       `firestore:"failedUploadCount"`
	WorkflowExecution string    `firestore:"workflowExecution,omitempty"` // For traceability
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// CompanyLock is the Firestore document that serializes runs for one company.
type CompanyLock struct {
	CompanyID  string    `firestore:"companyId"`
	RunID      string    `firestore:"runId"`
	AcquiredAt time.Time `firestore:"acquiredAt"`
	ExpiresAt  time.Time `firestore:"expiresAt"`
}
