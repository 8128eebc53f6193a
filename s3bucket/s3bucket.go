package s3bucket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteBatchSize is the DeleteObjects per-request key limit.
const deleteBatchSize = 1000

// partSize bounds how much of an upload is held in memory at once.
const partSize = 8 * 1024 * 1024

var ErrObjectNotFound = errors.New("object not found")

type S3Bucket struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	bucket   string
}

type Option func(o *s3.Options)

// WithEndpoint points the client at an S3-compatible endpoint such as MinIO.
func WithEndpoint(endpoint string) Option {
	return func(o *s3.Options) {
		if endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}
}

func NewS3Bucket(cfg aws.Config, bucket string, opts ...Option) *S3Bucket {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		for _, opt := range opts {
			opt(o)
		}
	})
	return &S3Bucket{
		client:  client,
		presign: s3.NewPresignClient(client),
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
			u.Concurrency = 1
		}),
		bucket: bucket,
	}
}

// Get opens a read stream for the object. The caller closes it.
func (b *S3Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	output, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("failed to get object %s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return output.Body, nil
}

// Put streams body into the object without knowing its length up front.
// Memory use is bounded by the multipart part size. It returns the number
// of bytes read from body.
func (b *S3Bucket) Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	counter := &countingReader{r: body}
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &b.bucket,
		Key:         &key,
		Body:        counter,
		ContentType: &contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return counter.n, nil
}

// HeadSize returns the stored object's content length.
func (b *S3Bucket) HeadSize(ctx context.Context, key string) (int64, error) {
	output, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("failed to head object %s: %w", key, ErrObjectNotFound)
		}
		return 0, fmt.Errorf("failed to head object %s: %w", key, err)
	}
	return aws.ToInt64(output.ContentLength), nil
}

// Delete removes the given keys. Keys that do not exist are not an error,
// so deleting already deleted originals on a retried job succeeds.
func (b *S3Bucket) Delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		output, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &b.bucket,
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		var errs []error
		for _, e := range output.Errors {
			if aws.ToString(e.Code) == "NoSuchKey" {
				continue
			}
			errs = append(errs, fmt.Errorf("failed to delete object %s: %s: %s",
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message)))
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
	}
	return nil
}

// PresignGet returns a short-lived URL granting direct read access to one object.
func (b *S3Bucket) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return req.URL, nil
}

// ListKeys lists the keys in the bucket under prefix.
func (b *S3Bucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: &b.bucket,
	}
	if prefix != "" {
		input.Prefix = &prefix
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	slog.Default().Debug("listed objects", "bucket", b.bucket, "prefix", prefix, "count", len(keys))
	return keys, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var responseError *awshttp.ResponseError
	return errors.As(err, &responseError) && responseError.ResponseError.HTTPStatusCode() == 404
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
