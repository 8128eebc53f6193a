package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/programme-lv/handin/archive"
	"github.com/programme-lv/handin/archivequeue"
	"github.com/programme-lv/handin/conf"
	"github.com/programme-lv/handin/course"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/submddb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var version = "dev"

// archiver long-polls the archive queue and processes one job at a time.
// Run more instances to process more submissions in parallel.
func main() {
	cfg, err := conf.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat).With("app", "handin-archiver", "version", version)
	slog.SetDefault(log)

	if err := cfg.ValidateWorker(true); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	awsCfg, err := cfg.AWSConfig(ctx)
	if err != nil {
		log.Error("failed to load aws config", "error", err)
		os.Exit(1)
	}

	mailer, err := cfg.NewMailer(ctx, awsCfg, log)
	if err != nil {
		log.Error("failed to set up notifications", "error", err)
		os.Exit(1)
	}

	ddb := cfg.DynamoDBClient(awsCfg)
	worker := archive.NewWorker(
		submddb.NewDynamoDbSubmTable(ddb, cfg.DynamoDB.SubmissionsTable),
		cfg.Bucket(awsCfg),
		course.NewLookup(course.NewDynamoDbCourseTable(ddb, cfg.DynamoDB.CoursesTable)),
		mailer,
	)

	queue := archivequeue.NewSqsQueue(cfg.SQSClient(awsCfg), cfg.SQS.ArchiveQueueURL)
	queue.WaitTimeSeconds = cfg.SQS.WaitTimeSeconds
	queue.VisibilityTimeout = cfg.SQS.VisibilityTimeout

	if cfg.HTTP.Address != "" {
		go serveMetrics(ctx, cfg.HTTP.Address)
	}

	log.Info("consuming archive jobs", "queue_url", cfg.SQS.ArchiveQueueURL)
	if err := queue.Consume(ctx, worker); err != nil {
		log.Error("archive consumer stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("archive consumer stopped")
}

func serveMetrics(ctx context.Context, address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.FromContext(ctx).Error("metrics server stopped", "error", err)
	}
}
