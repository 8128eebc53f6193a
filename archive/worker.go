package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/handin/course"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/notify"
	"github.com/programme-lv/handin/submission"
	"golang.org/x/sync/errgroup"
)

const (
	ZipContentType = "application/zip"

	// ErrMsgNoFiles is stored in lastError when a submission has nothing to archive.
	ErrMsgNoFiles = "No files available for archiving"

	maxLastErrorLen     = 1000
	failureWriteTimeout = 10 * time.Second
)

// archivable are the statuses a job may move out of. Every write the
// worker makes is conditional on them, so a stale read or a failed load
// never overwrites COMPLETED or DELETED.
var archivable = []submission.Status{
	submission.StatusPendingArchive,
	submission.StatusArchiveFailed,
}

type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error)
	Delete(ctx context.Context, keys []string) error
	HeadSize(ctx context.Context, key string) (int64, error)
}

type SubmissionStore interface {
	// Get returns nil without error when the submission does not exist.
	Get(ctx context.Context, submissionID string) (*submission.Record, error)
	Update(ctx context.Context, submissionID string, upd submission.Update) error
}

type CourseLookup interface {
	Get(ctx context.Context, courseID string) (*course.Course, error)
}

// Worker consolidates a submission's uploaded files and completes it.
// It returns nil or an error; redelivery, backoff and dead-lettering
// belong to whoever invokes it.
type Worker struct {
	store   SubmissionStore
	objects ObjectStore
	courses CourseLookup
	mailer  notify.Sender

	Now        func() time.Time
	TokenTTL   time.Duration
	ArchiveKey func(submissionID string) (string, error)
}

func NewWorker(
	store SubmissionStore,
	objects ObjectStore,
	courses CourseLookup,
	mailer notify.Sender,
) *Worker {
	return &Worker{
		store:      store,
		objects:    objects,
		courses:    courses,
		mailer:     mailer,
		Now:        time.Now,
		TokenTTL:   submission.DefaultTokenTTL,
		ArchiveKey: newArchiveKey,
	}
}

// newArchiveKey returns "archives/<submissionID>-<uuid>.zip". A fresh
// suffix per attempt keeps a retry from overwriting an archive that a
// previous attempt may already have recorded.
func newArchiveKey(submissionID string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate archive key: %w", err)
	}
	return fmt.Sprintf("archives/%s-%s.zip", submissionID, id), nil
}

// Process runs one archive job:
//  1. loads the record, dropping jobs for unknown or deleted submissions;
//  2. returns at once if the submission is already completed;
//  3. fails the submission if it has no files;
//  4. assigns missing download tokens, keeping existing ones;
//  5. keeps a single file as is, or zips several into one archive,
//     uploads it and deletes the originals;
//  6. marks the record completed;
//  7. notifies educators and the student, best-effort.
//
// A failure in steps 1-6 is recorded as ARCHIVE_FAILED when possible and
// then returned unchanged.
func (w *Worker) Process(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		jobsTotal.WithLabelValues(outcomeRejected).Inc()
		return err
	}

	ctx = logger.WithSubmissionID(ctx, job.SubmissionID)
	log := logger.FromContext(ctx)
	start := w.Now()
	defer func() {
		jobDuration.Observe(w.Now().Sub(start).Seconds())
	}()

	rec, err := w.store.Get(ctx, job.SubmissionID)
	if err != nil {
		w.recordFailure(ctx, job.SubmissionID, nil, err)
		jobsTotal.WithLabelValues(outcomeFailed).Inc()
		return fmt.Errorf("failed to load submission: %w", err)
	}
	if rec == nil {
		log.Warn("submission not found, dropping archive job")
		jobsTotal.WithLabelValues(outcomeDropped).Inc()
		return nil
	}

	switch rec.Status {
	case submission.StatusCompleted:
		log.Info("submission already completed, skipping archive job")
		jobsTotal.WithLabelValues(outcomeAlreadyCompleted).Inc()
		return nil
	case submission.StatusDeleted:
		log.Info("submission deleted, dropping archive job")
		jobsTotal.WithLabelValues(outcomeDropped).Inc()
		return nil
	}
	if err := rec.Status.CheckTransition(submission.StatusCompleted); err != nil {
		log.Error("archive job for submission in unexpected state", "status", rec.Status)
		jobsTotal.WithLabelValues(outcomeRejected).Inc()
		return err
	}

	if len(rec.Files) == 0 {
		status := submission.StatusArchiveFailed
		msg := ErrMsgNoFiles
		err := w.store.Update(ctx, rec.SubmissionID, submission.Update{
			Status:       &status,
			LastError:    &msg,
			ExpectStatus: archivable,
		})
		if submission.IsStatusChanged(err) {
			log.Info("submission changed status meanwhile, dropping archive job", "error", err)
			jobsTotal.WithLabelValues(outcomeDropped).Inc()
			return nil
		}
		if err != nil {
			jobsTotal.WithLabelValues(outcomeFailed).Inc()
			return fmt.Errorf("failed to mark submission without files: %w", err)
		}
		log.Warn("submission has no files to archive")
		jobsTotal.WithLabelValues(outcomeNoFiles).Inc()
		return nil
	}

	files, err := w.complete(ctx, *rec, job)
	if err != nil {
		w.recordFailure(ctx, rec.SubmissionID, rec, err)
		jobsTotal.WithLabelValues(outcomeFailed).Inc()
		return err
	}
	jobsTotal.WithLabelValues(outcomeCompleted).Inc()
	log.Info("submission completed", "files", len(files))

	baseURL := job.DownloadBaseURL
	if baseURL == "" {
		baseURL = rec.DownloadBaseURL
	}
	w.notifyCompleted(ctx, *rec, files, baseURL)
	return nil
}

// complete performs steps 4-6 and returns the final file list.
func (w *Worker) complete(ctx context.Context, rec submission.Record, job Job) ([]submission.FileRecord, error) {
	now := w.Now()

	files, filesChanged, err := submission.AssignTokens(rec.Files, now, w.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to assign download tokens: %w", err)
	}

	archiveKey := ""
	if len(files) > 1 {
		zipped, err := w.zipFiles(ctx, rec.SubmissionID, files)
		if err != nil {
			return nil, err
		}
		archiveKey = zipped.ObjectKey

		if err := w.objects.Delete(ctx, objectKeys(files)); err != nil {
			return nil, &partialFailure{archiveKey: archiveKey, step: "deleting originals", err: err}
		}

		zipped, err = submission.NewTokenizedFile(zipped, w.Now(), w.TokenTTL)
		if err != nil {
			return nil, &partialFailure{archiveKey: archiveKey, step: "assigning archive token", err: err}
		}
		files = []submission.FileRecord{zipped}
		filesChanged = true
	}

	status := submission.StatusCompleted
	completedAt := w.Now()
	upd := submission.Update{
		Status:       &status,
		CompletedAt:  &completedAt,
		Remove:       []submission.Field{submission.FieldLastError},
		ExpectStatus: archivable,
	}
	if filesChanged {
		upd.Files = &files
	}
	if job.DownloadBaseURL != "" && job.DownloadBaseURL != rec.DownloadBaseURL {
		upd.DownloadBaseURL = &job.DownloadBaseURL
	}

	if err := w.store.Update(ctx, rec.SubmissionID, upd); err != nil {
		if archiveKey != "" {
			return nil, &partialFailure{archiveKey: archiveKey, step: "updating record", err: err}
		}
		return nil, fmt.Errorf("failed to mark submission completed: %w", err)
	}
	return files, nil
}

// zipFiles streams files into one zip uploaded to the object store and
// returns the archive's file record without a token. The zip writer and
// the upload are joined by an unbuffered pipe, so reading from the source
// objects runs only as fast as the upload accepts bytes.
func (w *Worker) zipFiles(ctx context.Context, submissionID string, files []submission.FileRecord) (submission.FileRecord, error) {
	log := logger.FromContext(ctx)

	key, err := w.ArchiveKey(submissionID)
	if err != nil {
		return submission.FileRecord{}, err
	}
	names := entryNames(submissionID, files)
	modified := w.Now()

	pr, pw := io.Pipe()
	var written int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := writeZip(gctx, pw, w.objects, files, names, modified)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		n, err := w.objects.Put(gctx, key, pr, ZipContentType)
		pr.CloseWithError(err)
		written = n
		return err
	})
	if err := g.Wait(); err != nil {
		return submission.FileRecord{}, fmt.Errorf("failed to build archive %s: %w", key, err)
	}

	size, err := w.objects.HeadSize(ctx, key)
	if err != nil || size <= 0 {
		fallback := sumSizes(files)
		if fallback <= 0 {
			fallback = written
		}
		log.Warn("could not confirm archive size, using fallback",
			"archive_key", key, "fallback_size", fallback, "error", err)
		size = fallback
	}
	archivedBytesTotal.Add(float64(written))
	log.Info("archive uploaded", "archive_key", key, "size", size, "entries", len(files))

	return submission.FileRecord{
		ObjectKey:   key,
		FileName:    submissionID + ".zip",
		ContentType: ZipContentType,
		Size:        size,
	}, nil
}

// recordFailure writes ARCHIVE_FAILED with a summary of cause, but only
// over PENDING_ARCHIVE or ARCHIVE_FAILED as currently stored. It runs on
// a context detached from ctx's cancellation so that a job aborted by its
// deadline still leaves a trace. Its own failure is only logged.
func (w *Worker) recordFailure(ctx context.Context, submissionID string, rec *submission.Record, cause error) {
	log := logger.FromContext(ctx)
	if submission.IsNotFound(cause) || submission.IsStatusChanged(cause) {
		return
	}
	if rec != nil && !rec.Status.CanTransitionTo(submission.StatusArchiveFailed) {
		log.Warn("not recording archive failure", "status", rec.Status, "error", cause)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	status := submission.StatusArchiveFailed
	msg := summarize(cause)
	err := w.store.Update(writeCtx, submissionID, submission.Update{
		Status:       &status,
		LastError:    &msg,
		ExpectStatus: archivable,
	})
	if submission.IsStatusChanged(err) {
		log.Warn("submission left the archivable states, not recording archive failure",
			"error", err, "cause", cause)
		return
	}
	if err != nil {
		log.Error("failed to record archive failure", "error", err, "cause", cause)
		return
	}
	log.Error("archive job failed", "error", cause)
}

// partialFailure means the archive was uploaded but a later step failed.
// The archive is left in place for manual reconciliation.
type partialFailure struct {
	archiveKey string
	step       string
	err        error
}

func (e *partialFailure) Error() string {
	return fmt.Sprintf("archive %s uploaded but %s failed: %v", e.archiveKey, e.step, e.err)
}

func (e *partialFailure) Unwrap() error {
	return e.err
}

// IsPartialFailure reports whether err left an uploaded archive behind.
func IsPartialFailure(err error) bool {
	var pf *partialFailure
	return errors.As(err, &pf)
}

func summarize(err error) string {
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen-3] + "..."
	}
	return msg
}

func objectKeys(files []submission.FileRecord) []string {
	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = f.ObjectKey
	}
	return keys
}

func sumSizes(files []submission.FileRecord) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
