package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/programme-lv/handin/auth"
	"github.com/programme-lv/handin/dltoken"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/submsrvc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type DownloadResolver interface {
	Resolve(ctx context.Context, submissionID string, token string) (dltoken.RedirectTarget, error)
}

type Options struct {
	AllowedOrigins []string
	// PublicBaseURL is used for download links when a completion request
	// does not name one.
	PublicBaseURL string
	LogLevel      slog.Level
	Env           string
	Version       string
}

type HttpServer struct {
	submSrvc  *submsrvc.SubmSrvc
	downloads DownloadResolver
	router    *chi.Mux
	opts      Options
}

func NewHttpServer(
	submSrvc *submsrvc.SubmSrvc,
	downloads DownloadResolver,
	jwtKey []byte,
	opts Options,
) *HttpServer {
	router := chi.NewRouter()

	httpLogger := httplog.NewLogger("handin", httplog.Options{
		JSON:             true,
		LogLevel:         opts.LogLevel,
		Concise:          true,
		RequestHeaders:   false,
		MessageFieldName: "message",
		QuietDownRoutes:  []string{"/healthz", "/metrics"},
		QuietDownPeriod:  time.Minute,
		Tags: map[string]string{
			"version": opts.Version,
			"env":     opts.Env,
		},
	})

	router.Use(httplog.RequestLogger(httpLogger))
	router.Use(contextLogger)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           3000,
	}))

	router.Use(auth.GetJwtAuthMiddleware(jwtKey))

	server := &HttpServer{
		submSrvc:  submSrvc,
		downloads: downloads,
		router:    router,
		opts:      opts,
	}

	server.routes()

	return server
}

func (httpserver *HttpServer) routes() {
	r := httpserver.router
	r.Get("/healthz", httpserver.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/downloads/{submissionId}/{token}", httpserver.download)

	r.With(auth.RequireToken).Post("/submissions/{submissionId}/complete", httpserver.completeUpload)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireScope(auth.ScopeAdmin))
		r.Get("/submissions/{submissionId}/lifecycle", httpserver.getLifecycle)
		r.Delete("/submissions/{submissionId}", httpserver.deleteSubmission)
	})
}

func (httpserver *HttpServer) Handler() http.Handler {
	return httpserver.router
}

// Start serves on address until ctx is cancelled, then drains in-flight
// requests for up to 10 seconds.
func (httpserver *HttpServer) Start(ctx context.Context, address string) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           httpserver.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (httpserver *HttpServer) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// contextLogger hands the request-scoped httplog logger to the logger
// package so that services log with the request id attached.
func contextLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithLogger(r.Context(), httplog.LogEntry(r.Context()))
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logger.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
