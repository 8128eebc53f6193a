package submcmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/handin/logger"
	decorator "github.com/programme-lv/handin/srvccqs"
	"github.com/programme-lv/handin/submission"
)

type DeleteSubmCmd decorator.CmdHandler[DeleteSubmParams]

type DeleteSubmParams struct {
	SubmissionID string
	DeletedBy    string
}

// DeleteSubmCmdHandler purges a submission's stored objects and marks it
// DELETED. The record itself is kept for audit. Deleting an already
// deleted submission does nothing.
type DeleteSubmCmdHandler struct {
	GetSubm       func(ctx context.Context, submissionID string) (*submission.Record, error)
	UpdateSubm    func(ctx context.Context, submissionID string, upd submission.Update) error
	ListKeys      func(ctx context.Context, prefix string) ([]string, error)
	DeleteObjects func(ctx context.Context, keys []string) error
	Now           func() time.Time
}

func (h DeleteSubmCmdHandler) Handle(ctx context.Context, p DeleteSubmParams) error {
	if p.SubmissionID == "" {
		return submission.ErrValidation("submissionId is required")
	}
	if p.DeletedBy == "" {
		return submission.ErrValidation("deletedBy is required")
	}
	ctx = logger.WithSubmissionID(ctx, p.SubmissionID)
	log := logger.FromContext(ctx)

	rec, err := h.GetSubm(ctx, p.SubmissionID)
	if err != nil {
		return fmt.Errorf("failed to get submission: %w", err)
	}
	if rec == nil {
		return submission.ErrSubmissionNotFound(p.SubmissionID)
	}
	if rec.Status == submission.StatusDeleted {
		log.Info("submission already deleted")
		return nil
	}
	if err := rec.Status.CheckTransition(submission.StatusDeleted); err != nil {
		return err
	}

	keys, err := h.objectKeys(ctx, *rec)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := h.DeleteObjects(ctx, keys); err != nil {
			return fmt.Errorf("failed to purge submission objects: %w", err)
		}
	}

	now := h.Now()
	status := submission.StatusDeleted
	files := []submission.FileRecord{}
	err = h.UpdateSubm(ctx, rec.SubmissionID, submission.Update{
		Status:    &status,
		Files:     &files,
		DeletedAt: &now,
		DeletedBy: &p.DeletedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to mark submission deleted: %w", err)
	}
	log.Info("submission deleted", "deleted_by", p.DeletedBy, "purged_objects", len(keys))
	return nil
}

// objectKeys collects the record's file keys plus any archive left behind
// by an earlier attempt, e.g. after a partial failure.
func (h DeleteSubmCmdHandler) objectKeys(ctx context.Context, rec submission.Record) ([]string, error) {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, f := range rec.Files {
		add(f.ObjectKey)
	}

	prefix := "archives/" + rec.SubmissionID + "-"
	listed, err := h.ListKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	for _, k := range listed {
		if isArchiveOf(k, prefix) {
			add(k)
		}
	}
	return keys, nil
}

// isArchiveOf filters out archives of other submissions whose id merely
// starts with the same characters, e.g. "abc" and "abc-2".
func isArchiveOf(key string, prefix string) bool {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return false
	}
	rest, ok = strings.CutSuffix(rest, ".zip")
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
