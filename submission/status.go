package submission

import "fmt"

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusPendingArchive     Status = "PENDING_ARCHIVE"
	StatusCompleted          Status = "COMPLETED"
	StatusArchiveFailed      Status = "ARCHIVE_FAILED"
	StatusArchiveQueueFailed Status = "ARCHIVE_QUEUE_FAILED"
	StatusDeleted            Status = "DELETED"
)

// transitions lists, for every status, the statuses it may move to.
// Retrying a failed archive job may land in ARCHIVE_FAILED again or
// finally in COMPLETED; a failed enqueue may be retried by completing
// the upload again. DELETED is absorbing.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusPendingArchive: true,
		StatusDeleted:        true,
	},
	StatusPendingArchive: {
		StatusCompleted:          true,
		StatusArchiveFailed:      true,
		StatusArchiveQueueFailed: true,
		StatusDeleted:            true,
	},
	StatusArchiveFailed: {
		StatusCompleted:     true,
		StatusArchiveFailed: true,
		StatusDeleted:       true,
	},
	StatusArchiveQueueFailed: {
		StatusPendingArchive: true,
		StatusDeleted:        true,
	},
	StatusCompleted: {
		StatusDeleted: true,
	},
	StatusDeleted: {},
}

func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusPending, nil
	}
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown submission status %q", s)
	}
	return st, nil
}

func (s Status) String() string {
	return string(s)
}

func (s Status) CanTransitionTo(target Status) bool {
	return transitions[s][target]
}

// CheckTransition returns an illegal transition error
// when the record may not move from s to target.
func (s Status) CheckTransition(target Status) error {
	if s.CanTransitionTo(target) {
		return nil
	}
	return ErrIllegalTransition(s, target)
}
