package s3output

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/relex/xevent-aggregator/base"
)

// ObjectStore is the storage backend client consumed by the upload worker
//
// Put performs exactly one storage call; retry happens in the caller
type ObjectStore interface {
	Put(ctx context.Context, task *base.UploadTask) error
}

// s3Store is the AWS S3 implementation of ObjectStore
type s3Store struct {
	client  *s3.Client
	bucket  string
	timeout awsTimeout
}

type awsTimeout = func(ctx context.Context) (context.Context, context.CancelFunc)

// NewS3Store creates an ObjectStore backed by an S3 bucket and verifies the bucket is
// reachable with the resolved credentials
//
// SDK-internal retries are disabled so the attempt count stays under the worker's control
func NewS3Store(ctx context.Context, cfg Config) (ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
		if len(cfg.Endpoint) > 0 {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	store := &s3Store{
		client: client,
		bucket: cfg.Bucket,
		timeout: func(parent context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(parent, cfg.Timeout)
		},
	}

	// fail at startup rather than on the first rotation if the target is misconfigured
	probeCtx, cancel := store.timeout(ctx)
	defer cancel()
	if _, err := client.HeadBucket(probeCtx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, err
	}

	return store, nil
}

func (store *s3Store) Put(ctx context.Context, task *base.UploadTask) error {
	callCtx, cancel := store.timeout(ctx)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(store.bucket),
		Key:           aws.String(task.Key),
		Body:          bytes.NewReader(task.Data),
		ContentLength: aws.Int64(int64(len(task.Data))),
		ContentType:   aws.String(task.ContentType),
		Metadata:      task.Metadata,
	}
	if len(task.ContentEncoding) > 0 {
		input.ContentEncoding = aws.String(task.ContentEncoding)
	}

	_, err := store.client.PutObject(callCtx, input)
	return err
}
