package archive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/programme-lv/handin/archive"
	"github.com/programme-lv/handin/course"
	"github.com/programme-lv/handin/notify"
	"github.com/programme-lv/handin/s3bucket"
	"github.com/programme-lv/handin/submddb"
	"github.com/programme-lv/handin/submission"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type courseLookupMock struct {
	get func(ctx context.Context, courseID string) (*course.Course, error)
}

func (m courseLookupMock) Get(ctx context.Context, courseID string) (*course.Course, error) {
	return m.get(ctx, courseID)
}

func okCourses() courseLookupMock {
	return courseLookupMock{get: func(ctx context.Context, courseID string) (*course.Course, error) {
		return &course.Course{
			CourseID:      courseID,
			CourseName:    "Operating Systems",
			EducatorName:  "Dr. Grace",
			EducatorEmail: "grace@example.edu",
		}, nil
	}}
}

// faultyBucket lets a test make single operations of a MemBucket fail.
type faultyBucket struct {
	*s3bucket.MemBucket
	deleteErr error
	headErr   error
}

func (b *faultyBucket) Delete(ctx context.Context, keys []string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.MemBucket.Delete(ctx, keys)
}

func (b *faultyBucket) HeadSize(ctx context.Context, key string) (int64, error) {
	if b.headErr != nil {
		return 0, b.headErr
	}
	return b.MemBucket.HeadSize(ctx, key)
}

// storeMock serves Get through get when it is set and everything else
// from the in-memory table.
type storeMock struct {
	*submddb.InMemSubmTable
	get func(ctx context.Context, submissionID string) (*submission.Record, error)
}

func (s *storeMock) Get(ctx context.Context, submissionID string) (*submission.Record, error) {
	if s.get != nil {
		return s.get(ctx, submissionID)
	}
	return s.InMemSubmTable.Get(ctx, submissionID)
}

type fixture struct {
	store   *submddb.InMemSubmTable
	bucket  *faultyBucket
	mailer  *notify.ConsoleSender
	worker  *archive.Worker
	courses courseLookupMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   submddb.NewInMemSubmTable(),
		bucket:  &faultyBucket{MemBucket: s3bucket.NewMemBucket()},
		mailer:  notify.NewConsoleSender(nil),
		courses: okCourses(),
	}
	f.worker = archive.NewWorker(f.store, f.bucket, &f.courses, f.mailer)
	f.worker.Now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) seed(t *testing.T, id string, status submission.Status, files map[string]string, names ...string) {
	t.Helper()
	rec := submission.Record{
		SubmissionID:   id,
		Status:         status,
		CourseID:       "os-101",
		StudentName:    "Ada",
		StudentEmail:   "ada@example.edu",
		EducatorEmails: []string{"GRACE@example.edu", "ta@example.edu"},
		CreatedAt:      fixedNow.Add(-time.Hour),
	}
	for _, name := range names {
		key := "uploads/" + id + "/" + name
		f.bucket.Seed(key, []byte(files[name]))
		rec.Files = append(rec.Files, submission.FileRecord{
			ObjectKey:   key,
			FileName:    name,
			ContentType: "text/plain",
			Size:        int64(len(files[name])),
		})
	}
	require.NoError(t, f.store.Create(context.Background(), rec))
}

func (f *fixture) get(t *testing.T, id string) submission.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return *rec
}

func job(id string) archive.Job {
	return archive.Job{
		SubmissionID:    id,
		RequestedAt:     fixedNow.Add(-time.Minute),
		DownloadBaseURL: "https://handin.example.edu",
	}
}

func TestProcessMultipleFilesScenario(t *testing.T) {
	f := newFixture(t)
	files := map[string]string{
		"a.txt":     strings.Repeat("a", 10),
		"sub/b.txt": strings.Repeat("b", 20),
		"c.txt":     strings.Repeat("c", 30),
	}
	f.seed(t, "s1", submission.StatusPendingArchive, files, "a.txt", "sub/b.txt", "c.txt")

	require.NoError(t, f.worker.Process(context.Background(), job("s1")))

	rec := f.get(t, "s1")
	require.Equal(t, submission.StatusCompleted, rec.Status)
	require.NotNil(t, rec.CompletedAt)
	require.Empty(t, rec.LastError)
	require.Len(t, rec.Files, 1)

	zf := rec.Files[0]
	require.Equal(t, "s1.zip", zf.FileName)
	require.Equal(t, "application/zip", zf.ContentType)
	require.Regexp(t, regexp.MustCompile(`^archives/s1-.+\.zip$`), zf.ObjectKey)
	require.NotEmpty(t, zf.DownloadToken)
	require.Equal(t, fixedNow.Add(submission.DefaultTokenTTL), *zf.ExpiresAt)

	// originals are gone, only the archive remains
	require.Equal(t, []string{zf.ObjectKey}, f.bucket.Keys())

	content, ok := f.bucket.Content(zf.ObjectKey)
	require.True(t, ok)
	require.Equal(t, int64(len(content)), zf.Size)
	require.Greater(t, zf.Size, int64(0))

	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	got := map[string]string{}
	for _, entry := range zr.File {
		rc, err := entry.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		got[entry.Name] = string(b)
	}
	require.Equal(t, map[string]string{
		"s1/a.txt":     files["a.txt"],
		"s1/sub/b.txt": files["sub/b.txt"],
		"s1/c.txt":     files["c.txt"],
	}, got)

	sent := f.mailer.Sent()
	require.Len(t, sent, 2)
	educators := sent[0]
	require.Equal(t, []string{"GRACE@example.edu", "ta@example.edu"}, educators.To)
	require.Contains(t, educators.HTML, "https://handin.example.edu/downloads/s1/"+zf.DownloadToken)
	require.Contains(t, educators.HTML, "Operating Systems")
	require.Equal(t, []string{"ada@example.edu"}, sent[1].To)
	require.NotContains(t, sent[1].HTML, zf.DownloadToken, "the student gets no download link")
}

func TestProcessFlatUploadUsesBareEntryNames(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s2", submission.StatusPendingArchive,
		map[string]string{"x.py": "print(1)", "y.py": "print(2)"}, "x.py", "y.py")

	require.NoError(t, f.worker.Process(context.Background(), job("s2")))

	rec := f.get(t, "s2")
	content, ok := f.bucket.Content(rec.Files[0].ObjectKey)
	require.True(t, ok)
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	var names []string
	for _, entry := range zr.File {
		names = append(names, entry.Name)
	}
	sort.Strings(names)
	require.Equal(t, []string{"x.py", "y.py"}, names)
}

func TestProcessSingleFileSkipsZip(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s3", submission.StatusPendingArchive, map[string]string{"essay.pdf": "%PDF"}, "essay.pdf")

	require.NoError(t, f.worker.Process(context.Background(), job("s3")))

	require.Empty(t, f.bucket.Calls(), "single file must not touch the object store")

	rec := f.get(t, "s3")
	require.Equal(t, submission.StatusCompleted, rec.Status)
	require.Len(t, rec.Files, 1)
	require.Equal(t, "uploads/s3/essay.pdf", rec.Files[0].ObjectKey)
	require.Equal(t, "essay.pdf", rec.Files[0].FileName)
	require.NotEmpty(t, rec.Files[0].DownloadToken)
	require.NotNil(t, rec.Files[0].ExpiresAt)
	require.Equal(t, "https://handin.example.edu", rec.DownloadBaseURL)
}

func TestProcessSingleFileKeepsExistingToken(t *testing.T) {
	f := newFixture(t)
	expires := fixedNow.Add(24 * time.Hour)
	rec := submission.Record{
		SubmissionID: "s4",
		Status:       submission.StatusArchiveFailed,
		CourseID:     "os-101",
		CreatedAt:    fixedNow,
		LastError:    "earlier failure",
		Files: []submission.FileRecord{
			{ObjectKey: "uploads/s4/a.txt", FileName: "a.txt", DownloadToken: "existing", ExpiresAt: &expires},
		},
	}
	require.NoError(t, f.store.Create(context.Background(), rec))

	require.NoError(t, f.worker.Process(context.Background(), job("s4")))

	got := f.get(t, "s4")
	require.Equal(t, submission.StatusCompleted, got.Status)
	require.Empty(t, got.LastError)
	require.Equal(t, "existing", got.Files[0].DownloadToken)
	require.Equal(t, expires, *got.Files[0].ExpiresAt)

	updates := f.store.Updates()
	require.Len(t, updates, 1)
	require.Nil(t, updates[0].Update.Files, "unchanged files are not rewritten")
}

func TestProcessAlreadyCompletedIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s5", submission.StatusCompleted, map[string]string{"a": "1", "b": "2"}, "a", "b")
	seededCalls := len(f.bucket.Calls())

	require.NoError(t, f.worker.Process(context.Background(), job("s5")))
	require.NoError(t, f.worker.Process(context.Background(), job("s5")))

	require.Empty(t, f.store.Updates())
	require.Len(t, f.bucket.Calls(), seededCalls)
	require.Empty(t, f.mailer.Sent())
}

func TestProcessRedeliveryAfterSuccessIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s6", submission.StatusPendingArchive, map[string]string{"a": "1", "b": "2"}, "a", "b")

	require.NoError(t, f.worker.Process(context.Background(), job("s6")))
	first := f.get(t, "s6")
	updates := len(f.store.Updates())
	sent := len(f.mailer.Sent())

	require.NoError(t, f.worker.Process(context.Background(), job("s6")))
	require.Equal(t, first, f.get(t, "s6"))
	require.Len(t, f.store.Updates(), updates)
	require.Len(t, f.mailer.Sent(), sent)
}

func TestProcessZeroFiles(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s7", submission.StatusPendingArchive, nil)

	require.NoError(t, f.worker.Process(context.Background(), job("s7")))

	rec := f.get(t, "s7")
	require.Equal(t, submission.StatusArchiveFailed, rec.Status)
	require.Equal(t, "No files available for archiving", rec.LastError)
	require.Empty(t, f.bucket.Calls())
	require.Empty(t, f.mailer.Sent())
}

func TestProcessUnknownSubmissionIsDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.worker.Process(context.Background(), job("missing")))
	require.Empty(t, f.store.Updates())
}

func TestProcessRejectsInvalidJobAndState(t *testing.T) {
	f := newFixture(t)
	err := f.worker.Process(context.Background(), archive.Job{})
	require.True(t, submission.IsValidation(err))

	f.seed(t, "s8", submission.StatusPending, map[string]string{"a": "1"}, "a")
	err = f.worker.Process(context.Background(), job("s8"))
	require.Error(t, err)
	require.True(t, submission.IsValidation(err))
	require.Equal(t, submission.StatusPending, f.get(t, "s8").Status)
}

func TestProcessMissingOriginalMarksFailedAndReturnsError(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s9", submission.StatusPendingArchive, map[string]string{"a": "1", "b": "2"}, "a", "b")
	require.NoError(t, f.bucket.MemBucket.Delete(context.Background(), []string{"uploads/s9/b"}))

	err := f.worker.Process(context.Background(), job("s9"))
	require.Error(t, err)
	require.ErrorIs(t, err, s3bucket.ErrObjectNotFound)

	rec := f.get(t, "s9")
	require.Equal(t, submission.StatusArchiveFailed, rec.Status)
	require.NotEmpty(t, rec.LastError)
	require.Len(t, rec.Files, 2, "files stay untouched on failure")
	require.Empty(t, f.mailer.Sent())
}

func TestProcessDeleteFailureIsPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s10", submission.StatusPendingArchive, map[string]string{"a": "1", "b": "2"}, "a", "b")
	f.bucket.deleteErr = errors.New("access denied")

	err := f.worker.Process(context.Background(), job("s10"))
	require.Error(t, err)
	require.True(t, archive.IsPartialFailure(err))

	rec := f.get(t, "s10")
	require.Equal(t, submission.StatusArchiveFailed, rec.Status)
	require.Contains(t, rec.LastError, "archives/s10-")
	require.Contains(t, rec.LastError, "deleting originals")
	require.Len(t, f.bucket.Keys(), 3, "archive and both originals remain")
}

func TestProcessFailureRecordingErrorStillReturnsCause(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s11", submission.StatusPendingArchive, map[string]string{"a": "1"}, "a")
	cause := errors.New("dynamodb unavailable")
	f.store.FailUpdate = func(string, submission.Update) error { return cause }

	err := f.worker.Process(context.Background(), job("s11"))
	require.ErrorIs(t, err, cause)
	require.Equal(t, submission.StatusPendingArchive, f.get(t, "s11").Status)
}

func TestProcessSizeFallsBackToSumOfOriginals(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s12", submission.StatusPendingArchive,
		map[string]string{"a": strings.Repeat("x", 10), "b": strings.Repeat("y", 50)}, "a", "b")
	f.bucket.headErr = errors.New("head timed out")

	require.NoError(t, f.worker.Process(context.Background(), job("s12")))
	require.Equal(t, int64(60), f.get(t, "s12").Files[0].Size)
}

func TestProcessSideEffectFailuresDoNotFailJob(t *testing.T) {
	f := newFixture(t)
	f.courses.get = func(ctx context.Context, courseID string) (*course.Course, error) {
		return nil, errors.New("course table throttled")
	}
	f.mailer.Fail = func(notify.Message) error { return errors.New("sendgrid 503") }
	f.seed(t, "s13", submission.StatusPendingArchive, map[string]string{"a": "1"}, "a")

	require.NoError(t, f.worker.Process(context.Background(), job("s13")))
	require.Equal(t, submission.StatusCompleted, f.get(t, "s13").Status)
}

func TestProcessDeletedSubmissionIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s14", submission.StatusDeleted, nil)
	require.NoError(t, f.worker.Process(context.Background(), job("s14")))
	require.Empty(t, f.store.Updates())
}

// workerWithGet builds a second worker over the same table and bucket
// whose record reads go through get.
func (f *fixture) workerWithGet(get func(ctx context.Context, submissionID string) (*submission.Record, error)) *archive.Worker {
	w := archive.NewWorker(&storeMock{InMemSubmTable: f.store, get: get}, f.bucket, &f.courses, f.mailer)
	w.Now = func() time.Time { return fixedNow }
	return w
}

func TestProcessLoadFailureLeavesDeletedSubmission(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s15", submission.StatusDeleted, nil)
	throttled := errors.New("provisioned throughput exceeded")
	w := f.workerWithGet(func(context.Context, string) (*submission.Record, error) {
		return nil, throttled
	})

	err := w.Process(context.Background(), job("s15"))
	require.ErrorIs(t, err, throttled)
	require.Equal(t, submission.StatusDeleted, f.get(t, "s15").Status)
	require.Empty(t, f.store.Updates())
}

func TestProcessLoadFailureAfterCompletionKeepsCompleted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s16", submission.StatusPendingArchive, map[string]string{"a": "1", "b": "2"}, "a", "b")
	require.NoError(t, f.worker.Process(context.Background(), job("s16")))
	completed := f.get(t, "s16")
	sent := len(f.mailer.Sent())

	w := f.workerWithGet(func(context.Context, string) (*submission.Record, error) {
		return nil, errors.New("connection reset")
	})
	require.Error(t, w.Process(context.Background(), job("s16")))
	require.Equal(t, completed, f.get(t, "s16"))

	// the queue redelivers; the healthy retry must see COMPLETED
	require.NoError(t, f.worker.Process(context.Background(), job("s16")))
	require.Equal(t, completed, f.get(t, "s16"))
	require.Len(t, f.mailer.Sent(), sent)
}

func TestProcessStaleDuplicateDeliveryKeepsCompleted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s17", submission.StatusPendingArchive, map[string]string{"a": "1", "b": "2"}, "a", "b")
	stale := f.get(t, "s17")

	require.NoError(t, f.worker.Process(context.Background(), job("s17")))
	completed := f.get(t, "s17")
	require.Equal(t, submission.StatusCompleted, completed.Status)

	w := f.workerWithGet(func(context.Context, string) (*submission.Record, error) {
		rec := stale
		rec.Files = append([]submission.FileRecord(nil), stale.Files...)
		return &rec, nil
	})
	err := w.Process(context.Background(), job("s17"))
	require.ErrorIs(t, err, s3bucket.ErrObjectNotFound)

	rec := f.get(t, "s17")
	require.Equal(t, submission.StatusCompleted, rec.Status)
	require.Empty(t, rec.LastError)
	require.Equal(t, completed.Files, rec.Files)
}

func TestProcessCompletionIsConditionalOnStatus(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "s18", submission.StatusPendingArchive, map[string]string{"a": "1"}, "a")
	w := f.workerWithGet(func(ctx context.Context, id string) (*submission.Record, error) {
		rec, err := f.store.Get(ctx, id)
		if err != nil || rec == nil {
			return rec, err
		}
		// deleted by an admin right after this worker read the record
		deleted := submission.StatusDeleted
		require.NoError(t, f.store.Update(ctx, id, submission.Update{Status: &deleted}))
		return rec, nil
	})

	err := w.Process(context.Background(), job("s18"))
	require.True(t, submission.IsStatusChanged(err))
	require.Equal(t, submission.StatusDeleted, f.get(t, "s18").Status)
	require.Empty(t, f.mailer.Sent())
}

func TestParseJob(t *testing.T) {
	j, err := archive.ParseJob([]byte(`{"submissionId":"s1","requestedAt":"2026-05-04T10:00:00Z","downloadBaseUrl":"https://x"}`))
	require.NoError(t, err)
	require.Equal(t, "s1", j.SubmissionID)
	require.Equal(t, fixedNow, j.RequestedAt)

	_, err = archive.ParseJob([]byte(`{"requestedAt":"2026-05-04T10:00:00Z"}`))
	require.True(t, submission.IsValidation(err))

	_, err = archive.ParseJob([]byte(`not json`))
	require.True(t, submission.IsValidation(err))
}
