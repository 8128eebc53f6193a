package archivequeue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/handin/archive"
	"github.com/programme-lv/handin/logger"
	"github.com/programme-lv/handin/submission"
)

type SqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Processor runs one archive job. archive.Worker implements it.
type Processor interface {
	Process(ctx context.Context, job archive.Job) error
}

type SqsQueue struct {
	client   SqsClient
	queueURL string

	// WaitTimeSeconds is the long-poll duration, at most 20.
	WaitTimeSeconds int32
	// VisibilityTimeout, when positive, overrides the queue default for
	// received messages. It should exceed the longest expected job.
	VisibilityTimeout int32
	MaxMessages       int32
	// ErrorBackoff is how long to wait after a failed receive.
	ErrorBackoff time.Duration
}

func NewSqsQueue(client SqsClient, queueURL string) *SqsQueue {
	return &SqsQueue{
		client:          client,
		queueURL:        queueURL,
		WaitTimeSeconds: 20,
		MaxMessages:     1,
		ErrorBackoff:    time.Second,
	}
}

// Enqueue sends job to the queue as JSON.
func (q *SqsQueue) Enqueue(ctx context.Context, job archive.Job) error {
	body, err := job.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal archive job: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to archive queue: %w", err)
	}
	return nil
}

// Consume receives jobs until ctx is cancelled and runs each through p.
// A message is deleted once p succeeds or the job can never succeed;
// otherwise it is left to reappear after the visibility timeout.
func (q *SqsQueue) Consume(ctx context.Context, p Processor) error {
	log := logger.FromContext(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		input := &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: q.MaxMessages,
			WaitTimeSeconds:     q.WaitTimeSeconds,
		}
		if q.VisibilityTimeout > 0 {
			input.VisibilityTimeout = q.VisibilityTimeout
		}
		output, err := q.client.ReceiveMessage(ctx, input)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Error("failed to receive messages", "error", err)
			sleep(ctx, q.ErrorBackoff)
			continue
		}

		for _, msg := range output.Messages {
			msgCtx := logger.With(ctx, "sqs_message_id", aws.ToString(msg.MessageId))
			if !handle(msgCtx, p, aws.ToString(msg.Body)) {
				continue
			}
			_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(q.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if err != nil {
				logger.FromContext(msgCtx).Error("failed to delete message", "error", err)
			}
		}
	}
}

// handle parses and processes one message body and reports whether the
// message should be acknowledged.
func handle(ctx context.Context, p Processor, body string) bool {
	log := logger.FromContext(ctx)

	job, err := archive.ParseJob([]byte(body))
	if err != nil {
		log.Error("discarding malformed archive job", "error", err)
		return true
	}
	ctx = logger.With(ctx, "job_requested_at", job.RequestedAt)

	err = p.Process(ctx, job)
	switch {
	case err == nil:
		return true
	case submission.IsValidation(err):
		log.Error("discarding archive job that cannot succeed",
			"submission_id", job.SubmissionID, "error", err)
		return true
	default:
		log.Warn("archive job failed, leaving it for redelivery",
			"submission_id", job.SubmissionID, "error", err)
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
