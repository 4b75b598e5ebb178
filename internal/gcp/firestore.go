package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/esgreportlinks/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreRunLedger stores one document per run, keyed by run ID.
type FirestoreRunLedger struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRunLedger creates a ledger writing to collection.
func NewFirestoreRunLedger(client *firestore.Client, collection string) *FirestoreRunLedger {
	return &FirestoreRunLedger{client: client, collection: collection}
}

// Record writes the full state of run, replacing the previous snapshot.
func (l *FirestoreRunLedger) Record(ctx context.Context, run *models.Run) error {
	if _, err := l.client.Collection(l.collection).Doc(run.RunID).Set(ctx, run); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// FirestoreLocker hands out leased per-company locks.
type FirestoreLocker struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
	now        func() time.Time
}

// NewFirestoreLocker creates a locker whose leases expire after ttl.
func NewFirestoreLocker(client *firestore.Client, collection string, ttl time.Duration) *FirestoreLocker {
	return &FirestoreLocker{client: client, collection: collection, ttl: ttl, now: time.Now}
}

// Lock claims companyID for runID. It fails with models.ErrCompanyLocked while
// another run holds an unexpired lease. The returned function releases the lock.
func (l *FirestoreLocker) Lock(ctx context.Context, companyID, runID string) (func(context.Context) error, error) {
	ref := l.client.Collection(l.collection).Doc(lockDocID(companyID))

	err := l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		held, err := getLock(tx, ref)
		if err != nil {
			return err
		}
		lock, err := claimLock(held, companyID, runID, l.now(), l.ttl)
		if err != nil {
			return err
		}
		return tx.Set(ref, lock)
	})
	if err != nil {
		if errors.Is(err, models.ErrCompanyLocked) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to acquire lock for company %s: %w", companyID, err)
	}

	unlock := func(ctx context.Context) error {
		return l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			held, err := getLock(tx, ref)
			if err != nil {
				return err
			}
			if !ownsLock(held, runID) {
				return nil // lease expired and was taken over
			}
			return tx.Delete(ref)
		})
	}
	return unlock, nil
}

// Renew pushes the expiry of runID's lease one TTL past now. It fails with
// models.ErrLockLost when the lease is gone or belongs to another run.
func (l *FirestoreLocker) Renew(ctx context.Context, companyID, runID string) error {
	ref := l.client.Collection(l.collection).Doc(lockDocID(companyID))
	return l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		held, err := getLock(tx, ref)
		if err != nil {
			return err
		}
		lock, err := renewLock(held, runID, l.now(), l.ttl)
		if err != nil {
			return err
		}
		return tx.Set(ref, lock)
	})
}

// getLock returns the lock document, or nil when there is none.
func getLock(tx *firestore.Transaction, ref *firestore.DocumentRef) (*models.CompanyLock, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, nil
	}
	var held models.CompanyLock
	if err := snap.DataTo(&held); err != nil {
		return nil, fmt.Errorf("failed to decode lock: %w", err)
	}
	return &held, nil
}

// claimLock decides whether runID may take the lease in held (nil when absent).
// A free, expired or already owned lease is granted.
func claimLock(held *models.CompanyLock, companyID, runID string, now time.Time, ttl time.Duration) (models.CompanyLock, error) {
	if held != nil && held.RunID != runID && now.Before(held.ExpiresAt) {
		return models.CompanyLock{}, fmt.Errorf("%w (run %s until %s)", models.ErrCompanyLocked, held.RunID, held.ExpiresAt.Format(time.RFC3339))
	}
	return models.CompanyLock{
		CompanyID:  companyID,
		RunID:      runID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// renewLock extends a lease that runID still owns.
func renewLock(held *models.CompanyLock, runID string, now time.Time, ttl time.Duration) (models.CompanyLock, error) {
	if !ownsLock(held, runID) {
		return models.CompanyLock{}, models.ErrLockLost
	}
	renewed := *held
	renewed.ExpiresAt = now.Add(ttl)
	return renewed, nil
}

func ownsLock(held *models.CompanyLock, runID string) bool {
	return held != nil && held.RunID == runID
}

// lockDocID makes a company id safe for use as a document ID (no slashes).
func lockDocID(companyID string) string {
	return url.PathEscape(companyID)
}
