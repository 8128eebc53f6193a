package archive

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/programme-lv/handin/submission"
)

// Job asks the worker to consolidate one submission. It is delivered at
// least once; processing the same job twice must be harmless.
type Job struct {
	SubmissionID    string    `json:"submissionId"`
	RequestedAt     time.Time `json:"requestedAt"`
	DownloadBaseURL string    `json:"downloadBaseUrl"`
}

func (j Job) Validate() error {
	if strings.TrimSpace(j.SubmissionID) == "" {
		return submission.ErrValidation("archive job is missing submissionId")
	}
	return nil
}

// ParseJob decodes and validates a queued message body.
func ParseJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, submission.ErrValidation("malformed archive job message").SetDebug(err)
	}
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (j Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}
