package blackboard

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore is the blob leg of the Blackboard: result payloads, dataset
// matrices, and report artifacts that don't belong in Redis or Postgres
// rows live here. It wraps the AWS S3 SDK and works against any
// S3-compatible endpoint (AWS S3 or MinIO).
type BlobStore struct {
	client *s3.Client
	bucket string
}

// NewBlobStore creates a blob store configured for the given endpoint.
// For MinIO, set useSSL to false and pass the MinIO endpoint
// (e.g. "http://localhost:9002").
//
// If skipBucketVerification is true, the client does not verify or create
// the bucket — useful for development against MinIO where the bucket may
// already exist or the caller may lack bucket-admin permissions.
func NewBlobStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL, skipBucketVerification bool) (*BlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("blackboard: bucket name is required")
	}

	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		if !useSSL {
			o.EndpointOptions.DisableHTTPS = true
		}
	})

	if !skipBucketVerification {
		_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		if err != nil {
			_, createErr := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
			if createErr != nil {
				return nil, fmt.Errorf("blackboard: bucket %q not accessible and could not create: %w (original: %v)", bucket, createErr, err)
			}
		}
	}

	return &BlobStore{client: client, bucket: bucket}, nil
}

// Put uploads a blob under key. size < 0 streams without a pre-declared
// Content-Length.
func (b *BlobStore) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("blackboard: blob put %q: %w", key, err)
	}
	return nil
}

// Get returns a reader for the blob at key. The caller must close it.
func (b *BlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("blackboard: blob get %q: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the blob at key.
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("blackboard: blob delete %q: %w", key, err)
	}
	return nil
}

// ResultKey builds the object key for an analysis result blob.
func ResultKey(jobID string) string { return path.Join("result", jobID) }

// DatasetKey builds the object key for a dataset record blob.
func DatasetKey(datasetID string) string { return path.Join("dataset", datasetID) }

// ReportArtifactKey builds the object key for one report artifact.
func ReportArtifactKey(jobID, artifactName string) string {
	return path.Join("report", jobID, artifactName)
}

// Bucket returns the configured bucket name.
func (b *BlobStore) Bucket() string { return b.bucket }
