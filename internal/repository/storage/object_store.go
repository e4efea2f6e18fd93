// Package storage implements domain.ObjectStore against an S3-compatible
// bucket, adapted from the teacher's S3 image gateway: same client
// construction and bucket-existence check, generalized from image blobs to
// the settlement/feedback files this engine exchanges with CFS (spec §4.3,
// §4.7, §4.9).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bcgov/sbc-pay-sub002/internal/config"
)

// S3ObjectStore implements domain.ObjectStore using AWS S3 or an
// S3-compatible endpoint (e.g. MinIO in local/CI environments).
type S3ObjectStore struct {
	client *s3.Client
	bucket string
}

// NewS3ObjectStore constructs the S3 client and verifies the configured
// bucket exists, creating it if this is a fresh local/CI environment.
func NewS3ObjectStore(ctx context.Context, oscfg config.ObjectStoreConfig) (*S3ObjectStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(oscfg.Region),
	}

	if oscfg.AccessKeyID != "" && oscfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(oscfg.AccessKeyID, oscfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if oscfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(oscfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	store := &S3ObjectStore{client: client, bucket: oscfg.Bucket}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *S3ObjectStore) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		var noSuchBucket *types.NoSuchBucket
		if !errors.As(err, &noSuchBucket) {
			return fmt.Errorf("failed to check bucket (may be permission denied): %w", err)
		}
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func objectKey(location, filename string) string {
	return location + "/" + filename
}

// Fetch downloads a settlement or feedback file by (location, filename).
func (s *S3ObjectStore) Fetch(ctx context.Context, location, filename string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(location, filename)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch object %s/%s: %w", location, filename, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", location, filename, err)
	}
	return data, nil
}

// Put uploads a file (e.g. the error-feedback CSV CAS reconciliation writes
// back) under (location, filename).
func (s *S3ObjectStore) Put(ctx context.Context, location, filename string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey(location, filename)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s/%s: %w", location, filename, err)
	}
	return nil
}
