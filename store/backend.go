package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// Backend names.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// BackendConfig selects and configures a storage backend.
type BackendConfig struct {
	// Backend is fs, s3 or memory (default fs).
	Backend string
	// Path is the root directory (fs) or "bucket/prefix" (s3).
	Path string
	// Region is the AWS region (s3, optional).
	Region string
	// Endpoint is a custom S3 endpoint for S3-compatible providers
	// (e.g. MinIO, Cloudflare R2).
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible providers.
	UsePathStyle bool
}

// Validate checks the backend name and required fields.
func (c *BackendConfig) Validate() error {
	switch c.backend() {
	case BackendFS, BackendS3:
		if c.Path == "" {
			return fmt.Errorf("storage path is required for %s backend", c.backend())
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q (want fs, s3 or memory)", c.Backend)
	}
	if c.backend() == BackendS3 {
		if bucket, _ := ParseS3Path(c.Path); bucket == "" {
			return errors.New("S3 bucket is required")
		}
	}
	return nil
}

func (c *BackendConfig) backend() string {
	if c.Backend == "" {
		return BackendFS
	}
	return c.Backend
}

// ParseS3Path parses "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	parts := strings.SplitN(strings.TrimPrefix(path, "s3://"), "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// NewFactory builds a lode store factory for the configured backend.
// S3 uses the AWS SDK default credential chain.
func NewFactory(ctx context.Context, cfg BackendConfig) (lode.StoreFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.backend() {
	case BackendMemory:
		return lode.NewMemoryFactory(), nil
	case BackendS3:
		return newS3Factory(ctx, cfg)
	default:
		return lode.NewFSFactory(cfg.Path), nil
	}
}

func newS3Factory(ctx context.Context, cfg BackendConfig) (lode.StoreFactory, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, wrap(fmt.Errorf("load AWS config: %w", err), "init", cfg.Path)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	bucket, prefix := ParseS3Path(cfg.Path)
	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: bucket,
			Prefix: prefix,
		})
	}, nil
}
