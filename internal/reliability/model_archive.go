// Package reliability copies published models to S3-compatible object
// storage so a lost host does not lose trained models.
package reliability

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const (
	objectPrefix    = "aqicast-model-"
	objectSuffix    = ".aqkm"
	labelTimeFormat = "v20060102_150405"
)

// ArchiveConfig holds object storage settings. Endpoint is set for R2 or
// MinIO and switches to path-style addressing.
type ArchiveConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Enabled reports whether a bucket is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// ArchivedModel describes a model blob stored in the bucket.
type ArchivedModel struct {
	TrainedAt    time.Time `json:"trained_at"`
	Key          string    `json:"key"`
	VersionLabel string    `json:"version_label"`
	SizeBytes    int64     `json:"size_bytes"`
}

type objectClient interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
}

// ModelArchive uploads encoded model blobs.
type ModelArchive struct {
	client   objectClient
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewModelArchive builds an S3 client from cfg.
func NewModelArchive(ctx context.Context, cfg ArchiveConfig, log zerolog.Logger) (*ModelArchive, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("model archive bucket is not configured")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newModelArchive(client, cfg.Bucket, cfg.Prefix, log), nil
}

func newModelArchive(client objectClient, bucket, prefix string, log zerolog.Logger) *ModelArchive {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ModelArchive{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("service", "model_archive").Logger(),
	}
}

// Key returns the object key used for a version label.
func (a *ModelArchive) Key(label string) string {
	return a.prefix + objectPrefix + label + objectSuffix
}

// Upload stores blob under the key derived from label.
func (a *ModelArchive) Upload(ctx context.Context, label string, blob []byte) error {
	key := a.Key(label)
	start := time.Now()

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload model %s: %w", label, err)
	}

	a.log.Info().
		Str("key", key).
		Int("bytes", len(blob)).
		Dur("duration", time.Since(start)).
		Msg("Model archived")
	return nil
}

// List returns archived models, newest first. Objects whose names do not
// follow the archive naming are ignored.
func (a *ModelArchive) List(ctx context.Context) ([]ArchivedModel, error) {
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix + objectPrefix),
	})

	var models []ArchivedModel
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list archived models: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			label, ok := a.labelFromKey(*obj.Key)
			if !ok {
				continue
			}
			trainedAt, err := time.Parse(labelTimeFormat, label)
			if err != nil {
				a.log.Warn().Str("key", *obj.Key).Msg("Failed to parse timestamp from key")
				continue
			}
			m := ArchivedModel{Key: *obj.Key, VersionLabel: label, TrainedAt: trainedAt}
			if obj.Size != nil {
				m.SizeBytes = *obj.Size
			}
			models = append(models, m)
		}
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].TrainedAt.After(models[j].TrainedAt)
	})
	return models, nil
}

func (a *ModelArchive) labelFromKey(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, a.prefix+objectPrefix)
	if !ok {
		return "", false
	}
	label, ok := strings.CutSuffix(name, objectSuffix)
	return label, ok && label != ""
}
