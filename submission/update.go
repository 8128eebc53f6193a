package submission

import (
	"slices"
	"time"
)

// Field names a removable record attribute.
type Field string

const (
	FieldLastError       Field = "lastError"
	FieldFirstAccessedAt Field = "firstAccessedAt"
	FieldCompletedAt     Field = "completedAt"
)

// Update is a partial write: nil members are left untouched,
// Remove lists attributes to clear. Files replaces the whole list.
type Update struct {
	Status             *Status
	Files              *[]FileRecord
	ArchiveRequestedAt *time.Time
	CompletedAt        *time.Time
	FirstAccessedAt    *time.Time
	LastAccessedAt     *time.Time
	LastError          *string
	DeletedAt          *time.Time
	DeletedBy          *string
	DownloadBaseURL    *string

	Remove []Field

	// ExpectStatus, when non-empty, makes the write conditional on the
	// stored status being one of these. A mismatch is ErrStatusChanged.
	ExpectStatus []Status
}

// Allows reports whether the precondition holds for current.
func (u Update) Allows(current Status) bool {
	return len(u.ExpectStatus) == 0 || slices.Contains(u.ExpectStatus, current)
}

func (u Update) IsEmpty() bool {
	return u.Status == nil &&
		u.Files == nil &&
		u.ArchiveRequestedAt == nil &&
		u.CompletedAt == nil &&
		u.FirstAccessedAt == nil &&
		u.LastAccessedAt == nil &&
		u.LastError == nil &&
		u.DeletedAt == nil &&
		u.DeletedBy == nil &&
		u.DownloadBaseURL == nil &&
		len(u.Remove) == 0
}

// Apply returns a copy of r with the update applied and UpdatedAt set to now.
func (u Update) Apply(r Record, now time.Time) Record {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.Files != nil {
		r.Files = append([]FileRecord{}, (*u.Files)...)
	}
	if u.ArchiveRequestedAt != nil {
		r.ArchiveRequestedAt = ptr(*u.ArchiveRequestedAt)
	}
	if u.CompletedAt != nil {
		r.CompletedAt = ptr(*u.CompletedAt)
	}
	if u.FirstAccessedAt != nil {
		r.FirstAccessedAt = ptr(*u.FirstAccessedAt)
	}
	if u.LastAccessedAt != nil {
		r.LastAccessedAt = ptr(*u.LastAccessedAt)
	}
	if u.LastError != nil {
		r.LastError = *u.LastError
	}
	if u.DeletedAt != nil {
		r.DeletedAt = ptr(*u.DeletedAt)
	}
	if u.DeletedBy != nil {
		r.DeletedBy = *u.DeletedBy
	}
	if u.DownloadBaseURL != nil {
		r.DownloadBaseURL = *u.DownloadBaseURL
	}
	for _, f := range u.Remove {
		switch f {
		case FieldLastError:
			r.LastError = ""
		case FieldFirstAccessedAt:
			r.FirstAccessedAt = nil
		case FieldCompletedAt:
			r.CompletedAt = nil
		}
	}
	r.UpdatedAt = ptr(now)
	return r
}

func ptr[T any](v T) *T {
	return &v
}
