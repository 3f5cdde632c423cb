package databases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
)

// S3CheckpointStore is an optional remote backend for encoder weight
// checkpoints, satisfying encoder.CheckpointLoader, so a deployment can
// distribute retrained Q/M-encoder weights without bundling them into
// the container image.
type S3CheckpointStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3CheckpointStore builds an S3CheckpointStore from cfg. When
// cfg.AccessKey/SecretKey are empty, the default AWS credential chain is
// used instead (environment, shared config, instance role).
func NewS3CheckpointStore(ctx context.Context, cfg config.S3Config) (*S3CheckpointStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 checkpoint store: bucket is required")
	}
	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 checkpoint store: load aws config: %w", err)
	}
	return &S3CheckpointStore{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: strings.TrimSuffix(cfg.Prefix, "/"),
	}, nil
}

func (s *S3CheckpointStore) fullKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Load fetches the checkpoint object named name (e.g. "q_encoder" or
// "m_encoder") from the configured bucket.
func (s *S3CheckpointStore) Load(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(name)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("s3 checkpoint store: %s: %w", name, errNotFoundCheckpoint)
		}
		return nil, fmt.Errorf("s3 checkpoint store: get %s: %w", name, err)
	}
	return out.Body, nil
}

var errNotFoundCheckpoint = errors.New("checkpoint not found")
