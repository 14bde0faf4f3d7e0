package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appconfig "github.com/kyotei-project/backend/internal/config"
)

// S3Mirror stores raw archives in a bucket.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror returns nil, nil when no bucket is configured.
func NewS3Mirror(ctx context.Context, cfg *appconfig.Config) (*S3Mirror, error) {
	if cfg.Archive.S3Bucket == "" {
		return nil, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Archive.Region)}
	if cfg.Archive.AccessKeyID != "" && cfg.Archive.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Archive.AccessKeyID,
				cfg.Archive.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Archive.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Archive.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Mirror{client: client, bucket: cfg.Archive.S3Bucket, prefix: cfg.Archive.S3Prefix}, nil
}

// Put uploads body under prefix/key.
func (m *S3Mirror) Put(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(path.Join(m.prefix, key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-lzh-compressed"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
