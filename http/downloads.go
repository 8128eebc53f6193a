package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/handin/httpjson"
	"github.com/programme-lv/handin/logger"
)

// download redirects a valid token to a short-lived object URL.
// Unknown tokens get 404 and expired ones 410.
func (httpserver *HttpServer) download(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submissionId")
	token := chi.URLParam(r, "token")

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")

	target, err := httpserver.downloads.Resolve(r.Context(), submissionID, token)
	if err != nil {
		httpjson.HandleError(logger.FromContext(r.Context()), w, err)
		return
	}

	http.Redirect(w, r, target.URL, http.StatusFound)
}
