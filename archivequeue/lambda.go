package archivequeue

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/programme-lv/handin/logger"
)

// LambdaHandler processes an SQS batch delivered to a Lambda function.
// Failed jobs are reported as batch item failures so that only they are
// redelivered; the function must have ReportBatchItemFailures enabled.
type LambdaHandler struct {
	proc Processor
}

func NewLambdaHandler(p Processor) *LambdaHandler {
	return &LambdaHandler{proc: p}
}

func (h *LambdaHandler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	resp := events.SQSEventResponse{}
	for _, rec := range ev.Records {
		msgCtx := logger.With(ctx, "sqs_message_id", rec.MessageId)
		if handle(msgCtx, h.proc, rec.Body) {
			continue
		}
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
			ItemIdentifier: rec.MessageId,
		})
	}
	return resp, nil
}
