package submcmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/programme-lv/handin/archive"
	"github.com/programme-lv/handin/logger"
	decorator "github.com/programme-lv/handin/srvccqs"
	"github.com/programme-lv/handin/submission"
)

const queueFailureWriteTimeout = 10 * time.Second

type CompleteUploadCmd decorator.CmdHandler[CompleteUploadParams]

type CompleteUploadParams struct {
	SubmissionID    string
	DownloadBaseURL string
}

// CompleteUploadCmdHandler moves an uploaded submission to PENDING_ARCHIVE
// and queues its archive job. A submission whose job could not be queued
// ends in ARCHIVE_QUEUE_FAILED, from where the command may be run again.
type CompleteUploadCmdHandler struct {
	GetSubm    func(ctx context.Context, submissionID string) (*submission.Record, error)
	UpdateSubm func(ctx context.Context, submissionID string, upd submission.Update) error
	Enqueue    func(ctx context.Context, job archive.Job) error
	Now        func() time.Time
}

func (h CompleteUploadCmdHandler) Handle(ctx context.Context, p CompleteUploadParams) error {
	if p.SubmissionID == "" {
		return submission.ErrValidation("submissionId is required")
	}
	if err := validateBaseURL(p.DownloadBaseURL); err != nil {
		return err
	}
	ctx = logger.WithSubmissionID(ctx, p.SubmissionID)

	rec, err := h.GetSubm(ctx, p.SubmissionID)
	if err != nil {
		return fmt.Errorf("failed to get submission: %w", err)
	}
	if rec == nil {
		return submission.ErrSubmissionNotFound(p.SubmissionID)
	}
	if err := rec.Status.CheckTransition(submission.StatusPendingArchive); err != nil {
		return err
	}

	now := h.Now()
	status := submission.StatusPendingArchive
	err = h.UpdateSubm(ctx, rec.SubmissionID, submission.Update{
		Status:             &status,
		ArchiveRequestedAt: &now,
		DownloadBaseURL:    &p.DownloadBaseURL,
		Remove:             []submission.Field{submission.FieldLastError},
	})
	if err != nil {
		return fmt.Errorf("failed to mark submission pending archive: %w", err)
	}

	err = h.Enqueue(ctx, archive.Job{
		SubmissionID:    rec.SubmissionID,
		RequestedAt:     now,
		DownloadBaseURL: p.DownloadBaseURL,
	})
	if err != nil {
		return h.markQueueFailed(ctx, rec.SubmissionID, err)
	}
	return nil
}

func (h CompleteUploadCmdHandler) markQueueFailed(ctx context.Context, submissionID string, cause error) error {
	cause = fmt.Errorf("failed to enqueue archive job: %w", cause)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queueFailureWriteTimeout)
	defer cancel()

	status := submission.StatusArchiveQueueFailed
	msg := cause.Error()
	err := h.UpdateSubm(writeCtx, submissionID, submission.Update{
		Status:    &status,
		LastError: &msg,
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to record queue failure", "error", err, "cause", cause)
		return errors.Join(cause, fmt.Errorf("failed to mark submission queue failed: %w", err))
	}
	return cause
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return submission.ErrValidation("downloadBaseUrl must be an absolute http(s) url")
	}
	return nil
}
