package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/handin/auth"
	"github.com/programme-lv/handin/httpjson"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/submission"
	"github.com/programme-lv/handin/submsrvc/submcmd"
	"github.com/programme-lv/handin/submsrvc/submquery"
)

type completeUploadRequest struct {
	DownloadBaseURL string `json:"downloadBaseUrl"`
}

type statusResponse struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"`
}

func (httpserver *HttpServer) completeUpload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	submissionID := chi.URLParam(r, "submissionId")

	var req completeUploadRequest
	if err := httpjson.DecodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpjson.HandleError(log, w, submission.ErrValidation("request body must be {\"downloadBaseUrl\": string}").SetDebug(err))
		return
	}
	if req.DownloadBaseURL == "" {
		req.DownloadBaseURL = httpserver.opts.PublicBaseURL
	}

	err := httpserver.submSrvc.CompleteUpload.Handle(r.Context(), submcmd.CompleteUploadParams{
		SubmissionID:    submissionID,
		DownloadBaseURL: req.DownloadBaseURL,
	})
	if err != nil {
		httpjson.HandleError(log, w, err)
		return
	}

	httpjson.WriteSuccessJson(w, statusResponse{
		SubmissionID: submissionID,
		Status:       submission.StatusPendingArchive.String(),
	})
}

type lifecycleView struct {
	SubmissionID        string  `json:"submissionId"`
	Status              string  `json:"status"`
	FileCount           int     `json:"fileCount"`
	LastError           string  `json:"lastError,omitempty"`
	CreatedAt           string  `json:"createdAt"`
	ArchiveRequestedAt  *string `json:"archiveRequestedAt,omitempty"`
	CompletedAt         *string `json:"completedAt,omitempty"`
	FirstAccessedAt     *string `json:"firstAccessedAt,omitempty"`
	LastAccessedAt      *string `json:"lastAccessedAt,omitempty"`
	DeletedAt           *string `json:"deletedAt,omitempty"`
	DeletedBy           string  `json:"deletedBy,omitempty"`
	ArchiveTransitionAt string  `json:"archiveTransitionAt"`
	DeletionAt          string  `json:"deletionAt"`
}

func mapLifecycle(lc submquery.Lifecycle) lifecycleView {
	return lifecycleView{
		SubmissionID:        lc.SubmissionID,
		Status:              lc.Status.String(),
		FileCount:           lc.FileCount,
		LastError:           lc.LastError,
		CreatedAt:           submission.FormatTime(lc.CreatedAt),
		ArchiveRequestedAt:  formatPtr(lc.ArchiveRequestedAt),
		CompletedAt:         formatPtr(lc.CompletedAt),
		FirstAccessedAt:     formatPtr(lc.FirstAccessedAt),
		LastAccessedAt:      formatPtr(lc.LastAccessedAt),
		DeletedAt:           formatPtr(lc.DeletedAt),
		DeletedBy:           lc.DeletedBy,
		ArchiveTransitionAt: submission.FormatTime(lc.ArchiveTransitionAt),
		DeletionAt:          submission.FormatTime(lc.DeletionAt),
	}
}

func (httpserver *HttpServer) getLifecycle(w http.ResponseWriter, r *http.Request) {
	lc, err := httpserver.submSrvc.GetLifecycle.Handle(r.Context(), submquery.GetLifecycleParams{
		SubmissionID: chi.URLParam(r, "submissionId"),
	})
	if err != nil {
		httpjson.HandleError(logger.FromContext(r.Context()), w, err)
		return
	}
	httpjson.WriteSuccessJson(w, mapLifecycle(lc))
}

func (httpserver *HttpServer) deleteSubmission(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	claims := auth.ClaimsFromContext(r.Context())

	deletedBy := claims.Subject
	if deletedBy == "" {
		deletedBy = claims.Email
	}

	submissionID := chi.URLParam(r, "submissionId")
	err := httpserver.submSrvc.DeleteSubm.Handle(r.Context(), submcmd.DeleteSubmParams{
		SubmissionID: submissionID,
		DeletedBy:    deletedBy,
	})
	if err != nil {
		httpjson.HandleError(log, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, statusResponse{
		SubmissionID: submissionID,
		Status:       submission.StatusDeleted.String(),
	})
}

func formatPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := submission.FormatTime(*t)
	return &s
}
