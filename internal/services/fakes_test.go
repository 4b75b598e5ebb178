package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/esgreportlinks/internal/links"
	"github.com/Lllllllleong/esgreportlinks/internal/models"
)

type statement struct {
	sql    string
	params map[string]any
}

// fakeWarehouse keeps rows keyed by company_id and understands the three
// statements ReportStore issues.
type fakeWarehouse struct {
	rows     map[string]map[string]any
	queries  []statement
	execs    []statement
	queryErr error
	execErr  error
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{rows: map[string]map[string]any{}}
}

func (w *fakeWarehouse) Query(ctx context.Context, sql string, params map[string]any) ([]map[string]any, error) {
	w.queries = append(w.queries, statement{sql, params})
	if w.queryErr != nil {
		return nil, w.queryErr
	}
	id, _ := params["company_id"].(string)
	if _, ok := w.rows[id]; !ok {
		return nil, nil
	}
	return []map[string]any{{"company_id": id}}, nil
}

func (w *fakeWarehouse) Exec(ctx context.Context, sql string, params map[string]any) error {
	w.execs = append(w.execs, statement{sql, params})
	if w.execErr != nil {
		return w.execErr
	}
	id, _ := params["company_id"].(string)
	switch {
	case strings.HasPrefix(sql, "UPDATE"):
		row := w.rows[id]
		for _, col := range []string{"company_name", "sr_pdf_link", "links_with_pgno", "links_pdf", "updated_dt"} {
			row[col] = params[col]
		}
	case strings.HasPrefix(sql, "INSERT"):
		row := map[string]any{}
		for k, v := range params {
			row[k] = v
		}
		w.rows[id] = row
	default:
		return fmt.Errorf("unexpected statement: %s", sql)
	}
	return nil
}

func (w *fakeWarehouse) count(prefix string) int {
	n := 0
	for _, s := range w.execs {
		if strings.HasPrefix(s.sql, prefix) {
			n++
		}
	}
	return n
}

type fakeBlobStore struct {
	objects      map[string][]byte
	contentTypes map[string]string
	puts         []string
	existsErr    error
	putErr       map[string]error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
		putErr:       map[string]error{},
	}
}

func (s *fakeBlobStore) Exists(ctx context.Context, bucket, object string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.objects[bucket+"/"+object]
	return ok, nil
}

func (s *fakeBlobStore) Put(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	key := bucket + "/" + object
	s.puts = append(s.puts, key)
	if err := s.putErr[key]; err != nil {
		return err
	}
	s.objects[key] = data
	s.contentTypes[key] = contentType
	return nil
}

// fakeFetcher serves bodies by URL; unknown URLs answer 404.
type fakeFetcher struct {
	bodies  map[string][]byte
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.fetched = append(f.fetched, url)
	body, ok := f.bodies[url]
	if !ok {
		return nil, &models.FetchError{URL: url, StatusCode: 404, Err: errors.New("404 Not Found")}
	}
	return body, nil
}

type fakeReader struct {
	pages []links.Page
	err   error
	delay time.Duration
}

func (r *fakeReader) ReadPages(rs io.ReadSeeker) ([]links.Page, error) {
	time.Sleep(r.delay)
	return r.pages, r.err
}

type fakeLedger struct {
	statuses []string
	last     models.Run
	err      error
	failFrom int // fail every Record call from this index on; 0 disables
	calls    int
}

func (l *fakeLedger) Record(ctx context.Context, run *models.Run) error {
	l.calls++
	if l.err != nil && (l.failFrom == 0 || l.calls >= l.failFrom) {
		return l.err
	}
	l.statuses = append(l.statuses, run.Status)
	l.last = *run
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	released []string
	renewals int
	renewErr error
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]string{}} }

func (l *fakeLocker) Lock(ctx context.Context, companyID, runID string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner, ok := l.held[companyID]; ok && owner != runID {
		return nil, fmt.Errorf("%w (run %s)", models.ErrCompanyLocked, owner)
	}
	l.held[companyID] = runID
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, companyID)
		l.released = append(l.released, companyID)
		return nil
	}, nil
}

func (l *fakeLocker) Renew(ctx context.Context, companyID, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renewals++
	if l.renewErr != nil {
		return l.renewErr
	}
	if l.held[companyID] != runID {
		return models.ErrLockLost
	}
	return nil
}

func (l *fakeLocker) renewCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.renewals
}

type fakeTrigger struct {
	payloads []map[string]any
	err      error
}

func (t *fakeTrigger) Trigger(ctx context.Context, payload any) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	t.payloads = append(t.payloads, payload.(map[string]any))
	return fmt.Sprintf("executions/%d", len(t.payloads)), nil
}

func (t *fakeTrigger) Name() string { return "projects/p/locations/l/workflows/w" }

// fixedClock returns successive instants one minute apart.
func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		now := t
		t = t.Add(time.Minute)
		return now
	}
}
