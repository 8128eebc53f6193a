package archive

import (
	"context"
	"strings"

	"github.com/programme-lv/handin/course"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/notify"
	"github.com/programme-lv/handin/submission"
)

// notifyCompleted emails download links to educators and a confirmation
// to the student. Nothing here fails the job.
func (w *Worker) notifyCompleted(ctx context.Context, rec submission.Record, files []submission.FileRecord, baseURL string) {
	log := logger.FromContext(ctx)
	if w.mailer == nil {
		return
	}
	if baseURL == "" {
		log.Warn("no download base url, skipping completion emails")
		return
	}

	var c *course.Course
	if w.courses != nil {
		var err error
		c, err = w.courses.Get(ctx, rec.CourseID)
		if err != nil {
			log.Warn("course lookup failed", "course_id", rec.CourseID, "error", err)
		} else if c == nil {
			log.Info("course not found", "course_id", rec.CourseID)
		}
	}

	data := notify.ArchiveReadyData{
		StudentName: rec.StudentName,
		Comment:     rec.Comment,
		Links:       make([]notify.Link, 0, len(files)),
	}
	if c != nil {
		data.CourseName = c.CourseName
		data.EducatorName = c.EducatorName
	}
	for _, f := range files {
		data.Links = append(data.Links, notify.Link{
			FileName: f.FileName,
			URL:      submission.DownloadURL(baseURL, rec.SubmissionID, f.DownloadToken),
		})
		if f.ExpiresAt != nil && data.ExpiresOn == "" {
			data.ExpiresOn = f.ExpiresAt.UTC().Format("2 January 2006")
		}
	}

	educators := educatorRecipients(rec.EducatorEmails, c)
	if len(educators) > 0 {
		subject, body, err := notify.RenderEducatorEmail(data)
		if err == nil {
			err = w.mailer.Send(ctx, educators, subject, body)
		}
		if err != nil {
			log.Error("failed to notify educators", "error", err)
		}
	} else {
		log.Warn("submission has no educator recipients")
	}

	if rec.StudentEmail != "" {
		subject, body, err := notify.RenderStudentEmail(data)
		if err == nil {
			err = w.mailer.Send(ctx, []string{rec.StudentEmail}, subject, body)
		}
		if err != nil {
			log.Error("failed to notify student", "error", err)
		}
	}
}

// educatorRecipients merges the record's educators with the course
// educator, dropping blanks and case-insensitive duplicates.
func educatorRecipients(emails []string, c *course.Course) []string {
	all := append([]string(nil), emails...)
	if c != nil {
		all = append(all, c.EducatorEmail)
	}

	seen := make(map[string]bool, len(all))
	out := make([]string, 0, len(all))
	for _, e := range all {
		e = strings.TrimSpace(e)
		key := strings.ToLower(e)
		if e == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
