package submddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/guregu/dynamo/v2"
	"github.com/programme-lv/handin/submission"
)

const hashKey = "submissionId"

// DynamoDbSubmTable stores one item per submission keyed by submissionId.
type DynamoDbSubmTable struct {
	ddbClient *dynamodb.Client
	tableName string
	submTable dynamo.Table
	now       func() time.Time
}

func NewDynamoDbSubmTable(ddbClient *dynamodb.Client, tableName string) *DynamoDbSubmTable {
	ddb := &DynamoDbSubmTable{
		ddbClient: ddbClient,
		tableName: tableName,
		now:       time.Now,
	}
	db := dynamo.NewFromIface(ddb.ddbClient)
	ddb.submTable = db.Table(ddb.tableName)

	return ddb
}

// Get returns nil without error when the submission does not exist.
// A stored item that fails validation yields a validation error.
func (ddb *DynamoDbSubmTable) Get(ctx context.Context, submissionID string) (*submission.Record, error) {
	var row submission.Row
	err := ddb.submTable.Get(hashKey, submissionID).One(ctx, &row)
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get submission %s: %w", submissionID, err)
	}

	rec, err := submission.NewRecord(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update applies a partial write. It never creates a missing item.
func (ddb *DynamoDbSubmTable) Update(ctx context.Context, submissionID string, upd submission.Update) error {
	expr, err := buildUpdateExpr(upd, ddb.now())
	if err != nil {
		return fmt.Errorf("failed to build update for submission %s: %w", submissionID, err)
	}

	_, err = ddb.ddbClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(ddb.tableName),
		Key: map[string]types.AttributeValue{
			hashKey: &types.AttributeValueMemberS{Value: submissionID},
		},
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return conditionFailure(submissionID, ccf)
		}
		return fmt.Errorf("failed to update submission %s: %w", submissionID, err)
	}
	return nil
}

func buildUpdateExpr(upd submission.Update, now time.Time) (expression.Expression, error) {
	update := expression.Set(expression.Name("updatedAt"), expression.Value(submission.FormatTime(now)))

	set := func(name string, value any) {
		update = update.Set(expression.Name(name), expression.Value(value))
	}
	setTime := func(name string, t *time.Time) {
		if t != nil {
			set(name, submission.FormatTime(*t))
		}
	}

	if upd.Status != nil {
		set("status", string(*upd.Status))
	}
	if upd.Files != nil {
		set("files", submission.FileRows(*upd.Files))
	}
	setTime("archiveRequestedAt", upd.ArchiveRequestedAt)
	setTime("completedAt", upd.CompletedAt)
	setTime("firstAccessedAt", upd.FirstAccessedAt)
	setTime("lastAccessedAt", upd.LastAccessedAt)
	setTime("deletedAt", upd.DeletedAt)
	if upd.LastError != nil {
		set("lastError", *upd.LastError)
	}
	if upd.DeletedBy != nil {
		set("deletedBy", *upd.DeletedBy)
	}
	if upd.DownloadBaseURL != nil {
		set("downloadBaseUrl", *upd.DownloadBaseURL)
	}
	for _, f := range upd.Remove {
		update = update.Remove(expression.Name(string(f)))
	}

	cond := expression.AttributeExists(expression.Name(hashKey))
	if len(upd.ExpectStatus) > 0 {
		allowed := make([]expression.OperandBuilder, len(upd.ExpectStatus))
		for i, st := range upd.ExpectStatus {
			allowed[i] = expression.Value(string(st))
		}
		cond = cond.And(expression.Name("status").In(allowed[0], allowed[1:]...))
	}
	return expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
}

// conditionFailure tells a missing item apart from one whose status did
// not match: only the latter comes back with the old item attached.
func conditionFailure(submissionID string, ccf *types.ConditionalCheckFailedException) error {
	if len(ccf.Item) == 0 {
		return submission.ErrSubmissionNotFound(submissionID).SetDebug(ccf)
	}
	var row struct {
		Status string `dynamodbav:"status"`
	}
	if err := attributevalue.UnmarshalMap(ccf.Item, &row); err != nil {
		return fmt.Errorf("failed to decode submission %s after conditional check: %w", submissionID, err)
	}
	status, err := submission.ParseStatus(row.Status)
	if err != nil {
		status = submission.Status(row.Status)
	}
	return submission.ErrStatusChanged(submissionID, status).SetDebug(ccf)
}
