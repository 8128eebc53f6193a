package submission

import (
	"fmt"
	"net/http"

	"github.com/programme-lv/handin/srvcerror"
)

const ErrCodeValidation = "validation_error"

func ErrValidation(format string, args ...any) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeValidation,
		fmt.Sprintf(format, args...),
	).SetHttpStatusCode(http.StatusBadRequest)
}

const ErrCodeIllegalTransition = "illegal_status_transition"

// ErrIllegalTransition is a validation error: retrying it never helps.
func ErrIllegalTransition(from Status, to Status) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeIllegalTransition,
		fmt.Sprintf("submission cannot move from %s to %s", from, to),
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeSubmissionNotFound = "submission_not_found"

func ErrSubmissionNotFound(submissionID string) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeSubmissionNotFound,
		fmt.Sprintf("submission %s not found", submissionID),
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeTokenNotFound = "download_token_not_found"

func ErrTokenNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeTokenNotFound,
		"download link not found",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeTokenExpired = "download_token_expired"

func ErrTokenExpired() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeTokenExpired,
		"download link has expired",
	).SetHttpStatusCode(http.StatusGone)
}

const ErrCodeStatusChanged = "submission_status_changed"

// ErrStatusChanged means a conditional update found the record in a
// status other than the ones it expected.
func ErrStatusChanged(submissionID string, current Status) *srvcerror.Error {
	return srvcerror.New(
		ErrCodeStatusChanged,
		fmt.Sprintf("submission %s is now %s", submissionID, current),
	).SetHttpStatusCode(http.StatusConflict)
}

func IsStatusChanged(err error) bool {
	return srvcerror.HasCode(err, ErrCodeStatusChanged)
}

// IsValidation reports whether err is fatal for a job: a malformed
// record or message, or a status transition that can never succeed.
func IsValidation(err error) bool {
	return srvcerror.HasCode(err, ErrCodeValidation) ||
		srvcerror.HasCode(err, ErrCodeIllegalTransition)
}

func IsNotFound(err error) bool {
	return srvcerror.HasCode(err, ErrCodeSubmissionNotFound) ||
		srvcerror.HasCode(err, ErrCodeTokenNotFound)
}

func IsExpired(err error) bool {
	return srvcerror.HasCode(err, ErrCodeTokenExpired)
}
