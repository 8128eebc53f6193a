package dltoken

import (
	"context"
	"fmt"
	"time"

	"github.com/programme-lv/handin/course"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/notify"
	"github.com/programme-lv/handin/submission"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultPresignTTL bounds how long a redirect target stays usable.
const DefaultPresignTTL = 15 * time.Minute

type SubmissionStore interface {
	Get(ctx context.Context, submissionID string) (*submission.Record, error)
	Update(ctx context.Context, submissionID string, upd submission.Update) error
}

type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type CourseLookup interface {
	Get(ctx context.Context, courseID string) (*course.Course, error)
}

// RedirectTarget is where a download link sends its visitor.
type RedirectTarget struct {
	URL      string
	FileName string
}

var resolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "handin_download_resolutions_total",
		Help: "Download link resolutions, by outcome",
	},
	[]string{"outcome"},
)

type Resolver struct {
	store   SubmissionStore
	presign Presigner
	courses CourseLookup
	mailer  notify.Sender

	Now        func() time.Time
	PresignTTL time.Duration
}

func NewResolver(store SubmissionStore, presign Presigner, courses CourseLookup, mailer notify.Sender) *Resolver {
	return &Resolver{
		store:      store,
		presign:    presign,
		courses:    courses,
		mailer:     mailer,
		Now:        time.Now,
		PresignTTL: DefaultPresignTTL,
	}
}

// Resolve turns a download token into a short-lived retrieval URL.
// Unknown tokens yield a not-found error, stale ones an expired error.
// Access bookkeeping and the first-view email never fail the call.
func (r *Resolver) Resolve(ctx context.Context, submissionID string, token string) (RedirectTarget, error) {
	ctx = logger.WithSubmissionID(ctx, submissionID)

	if submissionID == "" || token == "" {
		resolutionsTotal.WithLabelValues("not_found").Inc()
		return RedirectTarget{}, submission.ErrTokenNotFound()
	}

	rec, err := r.store.Get(ctx, submissionID)
	if err != nil {
		resolutionsTotal.WithLabelValues("error").Inc()
		return RedirectTarget{}, fmt.Errorf("failed to load submission: %w", err)
	}
	if rec == nil || rec.Status == submission.StatusDeleted {
		resolutionsTotal.WithLabelValues("not_found").Inc()
		return RedirectTarget{}, submission.ErrTokenNotFound()
	}

	file, ok := submission.FindByToken(rec.Files, token)
	if !ok {
		resolutionsTotal.WithLabelValues("not_found").Inc()
		return RedirectTarget{}, submission.ErrTokenNotFound()
	}

	now := r.Now()
	if file.Expired(now) {
		resolutionsTotal.WithLabelValues("expired").Inc()
		return RedirectTarget{}, submission.ErrTokenExpired()
	}

	url, err := r.presign.PresignGet(ctx, file.ObjectKey, r.PresignTTL)
	if err != nil {
		resolutionsTotal.WithLabelValues("error").Inc()
		return RedirectTarget{}, fmt.Errorf("failed to presign %s: %w", file.ObjectKey, err)
	}

	r.recordAccess(ctx, *rec, now)
	resolutionsTotal.WithLabelValues("redirected").Inc()

	return RedirectTarget{URL: url, FileName: file.FileName}, nil
}

func (r *Resolver) recordAccess(ctx context.Context, rec submission.Record, now time.Time) {
	log := logger.FromContext(ctx)

	first := rec.FirstAccessedAt == nil
	upd := submission.Update{LastAccessedAt: &now}
	if first {
		upd.FirstAccessedAt = &now
	}
	if err := r.store.Update(ctx, rec.SubmissionID, upd); err != nil {
		log.Error("failed to record download access", "error", err)
		return
	}
	if first {
		r.notifyViewed(ctx, rec, now)
	}
}

func (r *Resolver) notifyViewed(ctx context.Context, rec submission.Record, viewedAt time.Time) {
	log := logger.FromContext(ctx)
	if r.mailer == nil || rec.StudentEmail == "" {
		return
	}

	data := notify.WorkViewedData{
		StudentName: rec.StudentName,
		ViewedAt:    viewedAt.UTC().Format("2 January 2006 15:04 MST"),
	}
	if r.courses != nil {
		c, err := r.courses.Get(ctx, rec.CourseID)
		if err != nil {
			log.Warn("course lookup failed", "course_id", rec.CourseID, "error", err)
		} else if c != nil {
			data.CourseName = c.CourseName
		}
	}

	subject, body, err := notify.RenderWorkViewedEmail(data)
	if err == nil {
		err = r.mailer.Send(ctx, []string{rec.StudentEmail}, subject, body)
	}
	if err != nil {
		log.Error("failed to send work viewed email", "error", err)
	}
}
