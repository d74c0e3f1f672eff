package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
)

// S3Options configures an S3-compatible bucket (AWS, Tigris, MinIO, R2).
type S3Options struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Store uploads documents to object storage.
type S3Store struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3Store creates an S3 client with static credentials.
func NewS3Store(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})

	logger.Info("document storage: s3", "bucket", opts.Bucket, "endpoint", opts.Endpoint)
	return &S3Store{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// Save uploads doc and returns its object key.
func (s *S3Store) Save(ctx context.Context, entityID string, doc *pagedriver.Document) (*Stored, error) {
	key := objectKey(entityID, doc)

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc.Data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"entity-id": entityID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}

	stored := &Stored{Path: "s3://" + s.bucket + "/" + key, Size: len(doc.Data)}
	inspect(doc, stored, s.logger)

	s.logger.Debug("stored document", "entity_id", entityID, "key", key, "size", stored.Size)
	return stored, nil
}
