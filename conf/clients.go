package conf

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/handin/s3bucket"
)

func (c Config) Bucket(awsCfg aws.Config) *s3bucket.S3Bucket {
	return s3bucket.NewS3Bucket(awsCfg, c.S3.Bucket, s3bucket.WithEndpoint(c.S3.Endpoint))
}

func (c Config) DynamoDBClient(awsCfg aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if c.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.DynamoDB.Endpoint)
		}
	})
}

func (c Config) SQSClient(awsCfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(awsCfg)
}
