package submquery

import (
	"context"
	"fmt"
	"time"

	decorator "github.com/programme-lv/handin/srvccqs"
	"github.com/programme-lv/handin/submission"
)

type GetLifecycleQuery decorator.QueryHandler[GetLifecycleParams, Lifecycle]

type GetLifecycleParams struct {
	SubmissionID string
}

// Lifecycle is an operator view of where a submission stands, including
// the dates the storage tiering and retention rules will act on it.
type Lifecycle struct {
	SubmissionID       string
	Status             submission.Status
	FileCount          int
	LastError          string
	CreatedAt          time.Time
	ArchiveRequestedAt *time.Time
	CompletedAt        *time.Time
	FirstAccessedAt    *time.Time
	LastAccessedAt     *time.Time
	DeletedAt          *time.Time
	DeletedBy          string

	ArchiveTransitionAt time.Time
	DeletionAt          time.Time
}

func NewGetLifecycleQuery(
	getSubm func(ctx context.Context, submissionID string) (*submission.Record, error),
) GetLifecycleQuery {
	return getLifecycleHandler{getSubm: getSubm}
}

type getLifecycleHandler struct {
	getSubm func(ctx context.Context, submissionID string) (*submission.Record, error)
}

func (h getLifecycleHandler) Handle(ctx context.Context, p GetLifecycleParams) (Lifecycle, error) {
	if p.SubmissionID == "" {
		return Lifecycle{}, submission.ErrValidation("submissionId is required")
	}
	rec, err := h.getSubm(ctx, p.SubmissionID)
	if err != nil {
		return Lifecycle{}, fmt.Errorf("failed to get submission: %w", err)
	}
	if rec == nil {
		return Lifecycle{}, submission.ErrSubmissionNotFound(p.SubmissionID)
	}

	sched := rec.Schedule()
	return Lifecycle{
		SubmissionID:        rec.SubmissionID,
		Status:              rec.Status,
		FileCount:           len(rec.Files),
		LastError:           rec.LastError,
		CreatedAt:           rec.CreatedAt,
		ArchiveRequestedAt:  rec.ArchiveRequestedAt,
		CompletedAt:         rec.CompletedAt,
		FirstAccessedAt:     rec.FirstAccessedAt,
		LastAccessedAt:      rec.LastAccessedAt,
		DeletedAt:           rec.DeletedAt,
		DeletedBy:           rec.DeletedBy,
		ArchiveTransitionAt: sched.ArchiveTransitionAt,
		DeletionAt:          sched.DeletionAt,
	}, nil
}
