package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/BrianStatesThat/thepepassport/internal/config"
)

// ErrNoBucket is returned when publishing without a configured bucket.
var ErrNoBucket = errors.New("no S3 bucket configured")

// IS3Storage defines the interface for S3 operations.
type IS3Storage interface {
	// PutObject uploads body under key and returns the object's URL.
	PutObject(ctx context.Context, key, contentType, cacheControl string, body []byte) (string, error)
}

// S3PutAPI is the part of *s3.Client used here.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	client S3PutAPI
	bucket string
	region string
}

// NewS3Client builds an S3 client from static credentials in cfg. Without
// keys the default AWS credential chain is used.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	opts := []func(*aws_config.LoadOptions) error{aws_config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKeyID != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)))
	}
	awsCfg, err := aws_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(client S3PutAPI, bucket, region string) IS3Storage {
	return &s3Storage{client: client, bucket: bucket, region: region}
}

func (s *s3Storage) PutObject(ctx context.Context, key, contentType, cacheControl string, body []byte) (string, error) {
	if s.bucket == "" {
		return "", ErrNoBucket
	}
	key = strings.TrimLeft(key, "/")
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if cacheControl != "" {
		input.CacheControl = aws.String(cacheControl)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	slog.Info("uploaded object", "bucket", s.bucket, "key", key, "bytes", len(body))
	return url, nil
}
