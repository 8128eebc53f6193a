package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/programme-lv/handin/archive"
	"github.com/programme-lv/handin/archivequeue"
	"github.com/programme-lv/handin/conf"
	"github.com/programme-lv/handin/course"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/submddb"
)

var version = "dev"

func main() {
	cfg, err := conf.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat).With("app", "handin-archive-lambda", "version", version)
	slog.SetDefault(log)

	if err := cfg.ValidateWorker(false); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
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
	handler := archivequeue.NewLambdaHandler(worker)

	lambda.Start(func(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
		return handler.Handle(logger.WithLogger(ctx, log), ev)
	})
}
