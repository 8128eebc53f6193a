package submission

import (
	"strings"
	"time"
)

const (
	ArchiveTransitionAfter = 30 * 24 * time.Hour
	DeletionAfter          = 180 * 24 * time.Hour
)

// Schedule mirrors the object storage tiering and retention rules.
// It is informational only and never persisted.
type Schedule struct {
	ArchiveTransitionAt time.Time
	DeletionAt          time.Time
}

func (r Record) Schedule() Schedule {
	base := r.CreatedAt
	if r.CompletedAt != nil {
		base = *r.CompletedAt
	}
	return Schedule{
		ArchiveTransitionAt: base.Add(ArchiveTransitionAfter),
		DeletionAt:          base.Add(DeletionAfter),
	}
}

// DownloadURL builds the public link for one file token.
func DownloadURL(baseURL string, submissionID string, token string) string {
	return strings.TrimRight(baseURL, "/") + "/downloads/" + submissionID + "/" + token
}
