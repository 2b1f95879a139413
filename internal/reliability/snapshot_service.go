// Package reliability archives run reports and keeps the local databases healthy.
package reliability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/config"
	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
)

// uploader is the part of manager.Uploader the service uses
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// SnapshotService uploads run reports to S3-compatible storage
type SnapshotService struct {
	uploader uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewSnapshotService builds an S3 uploader from the snapshot configuration.
// A custom endpoint (R2, MinIO) switches to path-style addressing.
func NewSnapshotService(ctx context.Context, cfg config.SnapshotConfig, region string, log zerolog.Logger) (*SnapshotService, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newSnapshotService(manager.NewUploader(client), cfg.Bucket, cfg.Prefix, log), nil
}

func newSnapshotService(up uploader, bucket, prefix string, log zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		uploader: up,
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("service", "snapshot").Logger(),
	}
}

// Key returns the object key of a report: <prefix>/<date>/<run id>.json
func (s *SnapshotService) Key(report *portfolio.RunReport) string {
	return path.Join(s.prefix, report.Date, report.RunID+".json")
}

// Archive uploads the report as JSON and returns its object key
func (s *SnapshotService) Archive(ctx context.Context, report *portfolio.RunReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run report: %w", err)
	}

	key := s.Key(report)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload run report %s: %w", key, err)
	}

	s.log.Info().Str("bucket", s.bucket).Str("key", key).Int("bytes", len(body)).Msg("Run report archived")
	return key, nil
}
