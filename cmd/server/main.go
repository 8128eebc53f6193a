package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/programme-lv/handin/archivequeue"
	"github.com/programme-lv/handin/conf"
	"github.com/programme-lv/handin/course"
	"github.com/programme-lv/handin/dltoken"
	"github.com/programme-lv/handin/http"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/submddb"
	"github.com/programme-lv/handin/submsrvc"
)

var version = "dev"

func main() {
	cfg, err := conf.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat).With("app", "handin-server", "version", version)
	slog.SetDefault(log)

	if err := cfg.ValidateServer(); err != nil {
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

	ddb := cfg.DynamoDBClient(awsCfg)
	store := submddb.NewDynamoDbSubmTable(ddb, cfg.DynamoDB.SubmissionsTable)
	courses := course.NewLookup(course.NewDynamoDbCourseTable(ddb, cfg.DynamoDB.CoursesTable))
	bucket := cfg.Bucket(awsCfg)
	queue := archivequeue.NewSqsQueue(cfg.SQSClient(awsCfg), cfg.SQS.ArchiveQueueURL)

	mailer, err := cfg.NewMailer(ctx, awsCfg, log)
	if err != nil {
		log.Error("failed to set up notifications", "error", err)
		os.Exit(1)
	}

	submSrvc := submsrvc.NewSubmSrvc(store, bucket, queue)
	resolver := dltoken.NewResolver(store, bucket, courses, mailer)

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.LogLevel))

	httpServer := http.NewHttpServer(submSrvc, resolver, []byte(cfg.HTTP.JwtKey), http.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		PublicBaseURL:  cfg.HTTP.PublicBaseURL,
		LogLevel:       level,
		Env:            cfg.Env,
		Version:        version,
	})

	log.Info("starting server", "address", cfg.HTTP.Address)
	err = httpServer.Start(ctx, cfg.HTTP.Address)
	if err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
