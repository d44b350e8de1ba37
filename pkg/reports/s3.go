package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultKeyPrefix is where reports land in the bucket
const DefaultKeyPrefix = "reports/usage"

// Sink stores a finished report and returns where it was written
type Sink interface {
	Put(ctx context.Context, report *Report) (string, error)
}

// S3Config configures an S3Sink
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string // MinIO or another S3 compatible endpoint
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string
}

// S3Sink writes reports as JSON objects to a bucket
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink creates a sink. Static credentials are used when both keys are
// set, otherwise the default AWS credential chain.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3 compatible stores often reject the default trailing checksums
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3SinkFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3SinkFromClient wraps an existing client
func NewS3SinkFromClient(client *s3.Client, bucket, prefix string) *S3Sink {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key of the report for month (YYYY-MM)
func (s *S3Sink) Key(month string) string {
	return path.Join(s.prefix, month+".json")
}

// Put uploads the report, replacing any earlier export of the same month
func (s *S3Sink) Put(ctx context.Context, report *Report) (string, error) {
	key := s.Key(report.Month)

	ctx, span := reportsTracer.Start(ctx, "S3.PutObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
		Metadata: map[string]string{
			"report-id": report.ID,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put failed")
		return "", fmt.Errorf("failed to upload report to s3://%s/%s: %w", s.bucket, key, err)
	}

	span.SetAttributes(attribute.Int("content.size", len(body)))
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
