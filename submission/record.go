package submission

import (
	"strings"
	"time"
)

// Record is one student's set of uploaded files for one course.
type Record struct {
	SubmissionID string
	Status       Status
	CourseID     string

	StudentID      string
	StudentName    string
	StudentEmail   string
	EducatorEmails []string
	Comment        string

	// Files is either the original per-file list or,
	// once archived, a single zip file record.
	Files []FileRecord

	CreatedAt          time.Time
	UpdatedAt          *time.Time
	ArchiveRequestedAt *time.Time
	CompletedAt        *time.Time
	FirstAccessedAt    *time.Time
	LastAccessedAt     *time.Time

	ReminderCount int
	LastError     string

	DeletedAt *time.Time
	DeletedBy string

	DownloadBaseURL string
}

type FileRecord struct {
	ObjectKey     string
	FileName      string
	ContentType   string
	Size          int64
	DownloadToken string
	ExpiresAt     *time.Time
}

// Row is the persisted shape of a Record. Timestamps are RFC 3339 strings.
type Row struct {
	SubmissionID string `dynamo:"submissionId,hash" dynamodbav:"submissionId" json:"submissionId"`
	Status       string `dynamo:"status" dynamodbav:"status" json:"status"`
	CourseID     string `dynamo:"courseId" dynamodbav:"courseId" json:"courseId"`

	StudentID      string   `dynamo:"studentId,omitempty" dynamodbav:"studentId,omitempty" json:"studentId,omitempty"`
	StudentName    string   `dynamo:"studentName,omitempty" dynamodbav:"studentName,omitempty" json:"studentName,omitempty"`
	StudentEmail   string   `dynamo:"studentEmail,omitempty" dynamodbav:"studentEmail,omitempty" json:"studentEmail,omitempty"`
	EducatorEmails []string `dynamo:"educatorEmails,set,omitempty" dynamodbav:"educatorEmails,stringset,omitempty" json:"educatorEmails,omitempty"`
	Comment        string   `dynamo:"comment,omitempty" dynamodbav:"comment,omitempty" json:"comment,omitempty"`

	Files []FileRow `dynamo:"files" dynamodbav:"files" json:"files"`

	CreatedAt          string `dynamo:"createdAt" dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt          string `dynamo:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty" json:"updatedAt,omitempty"`
	ArchiveRequestedAt string `dynamo:"archiveRequestedAt,omitempty" dynamodbav:"archiveRequestedAt,omitempty" json:"archiveRequestedAt,omitempty"`
	CompletedAt        string `dynamo:"completedAt,omitempty" dynamodbav:"completedAt,omitempty" json:"completedAt,omitempty"`
	FirstAccessedAt    string `dynamo:"firstAccessedAt,omitempty" dynamodbav:"firstAccessedAt,omitempty" json:"firstAccessedAt,omitempty"`
	LastAccessedAt     string `dynamo:"lastAccessedAt,omitempty" dynamodbav:"lastAccessedAt,omitempty" json:"lastAccessedAt,omitempty"`

	ReminderCount int    `dynamo:"reminderCount" dynamodbav:"reminderCount" json:"reminderCount"`
	LastError     string `dynamo:"lastError,omitempty" dynamodbav:"lastError,omitempty" json:"lastError,omitempty"`

	DeletedAt string `dynamo:"deletedAt,omitempty" dynamodbav:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	DeletedBy string `dynamo:"deletedBy,omitempty" dynamodbav:"deletedBy,omitempty" json:"deletedBy,omitempty"`

	DownloadBaseURL string `dynamo:"downloadBaseUrl,omitempty" dynamodbav:"downloadBaseUrl,omitempty" json:"downloadBaseUrl,omitempty"`
}

type FileRow struct {
	ObjectKey     string `dynamo:"objectKey" dynamodbav:"objectKey" json:"objectKey"`
	FileName      string `dynamo:"fileName" dynamodbav:"fileName" json:"fileName"`
	ContentType   string `dynamo:"contentType,omitempty" dynamodbav:"contentType,omitempty" json:"contentType,omitempty"`
	Size          int64  `dynamo:"size" dynamodbav:"size" json:"size"`
	DownloadToken string `dynamo:"downloadToken,omitempty" dynamodbav:"downloadToken,omitempty" json:"downloadToken,omitempty"`
	ExpiresAt     string `dynamo:"expiresAt,omitempty" dynamodbav:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}

// NewRecord validates a persisted row and converts it into a Record.
// A row without submissionId, courseId or a parsable createdAt is rejected
// with a validation error; no partially populated record is ever returned.
func NewRecord(row Row) (Record, error) {
	if strings.TrimSpace(row.SubmissionID) == "" {
		return Record{}, ErrValidation("submission record is missing submissionId")
	}
	if strings.TrimSpace(row.CourseID) == "" {
		return Record{}, ErrValidation("submission %s is missing courseId", row.SubmissionID)
	}
	if row.CreatedAt == "" {
		return Record{}, ErrValidation("submission %s is missing createdAt", row.SubmissionID)
	}

	status, err := ParseStatus(row.Status)
	if err != nil {
		return Record{}, ErrValidation("submission %s: %v", row.SubmissionID, err)
	}

	p := timeParser{submissionID: row.SubmissionID}
	createdAt := p.required("createdAt", row.CreatedAt)

	files := make([]FileRecord, 0, len(row.Files))
	for i, f := range row.Files {
		if strings.TrimSpace(f.ObjectKey) == "" {
			return Record{}, ErrValidation("submission %s: file #%d is missing objectKey", row.SubmissionID, i)
		}
		files = append(files, FileRecord{
			ObjectKey:     f.ObjectKey,
			FileName:      f.FileName,
			ContentType:   f.ContentType,
			Size:          f.Size,
			DownloadToken: f.DownloadToken,
			ExpiresAt:     p.optional("files.expiresAt", f.ExpiresAt),
		})
	}

	rec := Record{
		SubmissionID:       row.SubmissionID,
		Status:             status,
		CourseID:           row.CourseID,
		StudentID:          row.StudentID,
		StudentName:        row.StudentName,
		StudentEmail:       row.StudentEmail,
		EducatorEmails:     append([]string(nil), row.EducatorEmails...),
		Comment:            row.Comment,
		Files:              files,
		CreatedAt:          createdAt,
		UpdatedAt:          p.optional("updatedAt", row.UpdatedAt),
		ArchiveRequestedAt: p.optional("archiveRequestedAt", row.ArchiveRequestedAt),
		CompletedAt:        p.optional("completedAt", row.CompletedAt),
		FirstAccessedAt:    p.optional("firstAccessedAt", row.FirstAccessedAt),
		LastAccessedAt:     p.optional("lastAccessedAt", row.LastAccessedAt),
		ReminderCount:      row.ReminderCount,
		LastError:          row.LastError,
		DeletedAt:          p.optional("deletedAt", row.DeletedAt),
		DeletedBy:          row.DeletedBy,
		DownloadBaseURL:    row.DownloadBaseURL,
	}
	if p.err != nil {
		return Record{}, p.err
	}
	return rec, nil
}

// Row converts the record back to its persisted shape.
func (r Record) Row() Row {
	return Row{
		SubmissionID:       r.SubmissionID,
		Status:             string(r.Status),
		CourseID:           r.CourseID,
		StudentID:          r.StudentID,
		StudentName:        r.StudentName,
		StudentEmail:       r.StudentEmail,
		EducatorEmails:     append([]string(nil), r.EducatorEmails...),
		Comment:            r.Comment,
		Files:              FileRows(r.Files),
		CreatedAt:          FormatTime(r.CreatedAt),
		UpdatedAt:          formatOptional(r.UpdatedAt),
		ArchiveRequestedAt: formatOptional(r.ArchiveRequestedAt),
		CompletedAt:        formatOptional(r.CompletedAt),
		FirstAccessedAt:    formatOptional(r.FirstAccessedAt),
		LastAccessedAt:     formatOptional(r.LastAccessedAt),
		ReminderCount:      r.ReminderCount,
		LastError:          r.LastError,
		DeletedAt:          formatOptional(r.DeletedAt),
		DeletedBy:          r.DeletedBy,
		DownloadBaseURL:    r.DownloadBaseURL,
	}
}

func FileRows(files []FileRecord) []FileRow {
	rows := make([]FileRow, len(files))
	for i, f := range files {
		rows[i] = FileRow{
			ObjectKey:     f.ObjectKey,
			FileName:      f.FileName,
			ContentType:   f.ContentType,
			Size:          f.Size,
			DownloadToken: f.DownloadToken,
			ExpiresAt:     formatOptional(f.ExpiresAt),
		}
	}
	return rows
}

// FormatTime renders t as a UTC RFC 3339 timestamp with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}

// timeParser keeps the first parse failure so that NewRecord
// can convert every timestamp and check once at the end.
type timeParser struct {
	submissionID string
	err          error
}

func (p *timeParser) required(field string, value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil && p.err == nil {
		p.err = ErrValidation("submission %s: invalid %s %q", p.submissionID, field, value).SetDebug(err)
	}
	return t
}

func (p *timeParser) optional(field string, value string) *time.Time {
	if value == "" {
		return nil
	}
	t := p.required(field, value)
	return &t
}
