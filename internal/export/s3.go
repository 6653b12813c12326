// Package export writes merged records to S3 as JSON snapshots. Export
// runs only after the store has accepted a record and never replaces it.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-profiler/internal/model"
)

// Config configures the S3 sink.
type Config struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
}

// Uploader is the part of the S3 client the exporter needs.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter uploads merged records.
type Exporter struct {
	client Uploader
	bucket string
	prefix string
}

// New creates an Exporter over an existing client.
func New(client Uploader, bucket, prefix string) *Exporter {
	if prefix == "" {
		prefix = "merged"
	}
	return &Exporter{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3Client builds an S3 client from cfg. Static credentials are used
// when both keys are set; otherwise the default AWS chain applies. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "export: load aws config")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewFromConfig is New over a client built by NewS3Client.
func NewFromConfig(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("export: bucket is required")
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, cfg.Bucket, cfg.Prefix), nil
}

// Key returns the object key for rec.
func (e *Exporter) Key(rec *model.MergedRecord) string {
	ts := rec.ExtractionTimestamp.UTC().Format("20060102T150405.000000Z")
	return fmt.Sprintf("%s/%s/%s.json", e.prefix, rec.CompanyID, ts)
}

// Export uploads rec and returns its object key.
func (e *Exporter) Export(ctx context.Context, rec *model.MergedRecord) (string, error) {
	if rec == nil || rec.CompanyID == "" {
		return "", eris.New("export: record has no company_id")
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "export: marshal record")
	}

	key := e.Key(rec)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", eris.Wrapf(err, "export: put s3://%s/%s", e.bucket, key)
	}

	zap.L().Info("export: record uploaded",
		zap.String("company_id", rec.CompanyID),
		zap.String("bucket", e.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return key, nil
}
