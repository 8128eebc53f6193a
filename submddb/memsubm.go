package submddb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/programme-lv/handin/submission"
)

// InMemSubmTable keeps records in a map. Used for local runs and tests.
type InMemSubmTable struct {
	mu      sync.Mutex
	records map[string]submission.Record
	updates []RecordedUpdate
	now     func() time.Time

	// FailUpdate, when set, is consulted before every update;
	// a non-nil result is returned instead of applying it.
	FailUpdate func(submissionID string, upd submission.Update) error
}

type RecordedUpdate struct {
	SubmissionID string
	Update       submission.Update
}

func NewInMemSubmTable() *InMemSubmTable {
	return &InMemSubmTable{
		records: make(map[string]submission.Record),
		now:     time.Now,
	}
}

func (t *InMemSubmTable) Get(ctx context.Context, submissionID string) (*submission.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[submissionID]
	if !ok {
		return nil, nil
	}
	rec = clone(rec)
	return &rec, nil
}

func (t *InMemSubmTable) Create(ctx context.Context, rec submission.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[rec.SubmissionID]; ok {
		return fmt.Errorf("submission %s already exists", rec.SubmissionID)
	}
	t.records[rec.SubmissionID] = clone(rec)
	return nil
}

func (t *InMemSubmTable) Update(ctx context.Context, submissionID string, upd submission.Update) error {
	if t.FailUpdate != nil {
		if err := t.FailUpdate(submissionID, upd); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[submissionID]
	if !ok {
		return submission.ErrSubmissionNotFound(submissionID)
	}
	if !upd.Allows(rec.Status) {
		return submission.ErrStatusChanged(submissionID, rec.Status)
	}
	t.records[submissionID] = upd.Apply(rec, t.now())
	t.updates = append(t.updates, RecordedUpdate{SubmissionID: submissionID, Update: upd})
	return nil
}

// Updates returns every update applied so far, in order.
func (t *InMemSubmTable) Updates() []RecordedUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RecordedUpdate(nil), t.updates...)
}

func clone(rec submission.Record) submission.Record {
	rec.Files = append([]submission.FileRecord(nil), rec.Files...)
	rec.EducatorEmails = append([]string(nil), rec.EducatorEmails...)
	return rec
}
