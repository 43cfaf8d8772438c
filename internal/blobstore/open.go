package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gocloud.dev/blob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/secrets"

	// Register bucket drivers
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	// Register keeper drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// Config selects and tunes the byte store.
type Config struct {
	// BucketURL is a gocloud.dev/blob URL such as "file:///var/lib/sealdrop" or "mem://".
	BucketURL string
	// KeyURI is an optional gocloud.dev/secrets keeper URI used to wrap blobs at rest.
	KeyURI string
	// MaxRetries bounds retried writes.
	MaxRetries int

	// S3Bucket selects an S3 compatible bucket and takes precedence over BucketURL.
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Open opens the configured bucket and optional keeper.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	var (
		bucket *blob.Bucket
		err    error
	)
	if cfg.S3Bucket != "" {
		bucket, err = openS3Bucket(ctx, cfg)
	} else {
		if err := ensureFileBucketDir(cfg.BucketURL); err != nil {
			return nil, err
		}
		bucket, err = blob.OpenBucket(ctx, cfg.BucketURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob bucket: %w", err)
	}

	opts := []Option{WithMaxRetries(cfg.MaxRetries), WithLogger(logger)}

	if cfg.KeyURI != "" {
		keeper, err := secrets.OpenKeeper(ctx, cfg.KeyURI)
		if err != nil {
			_ = bucket.Close()
			return nil, fmt.Errorf("failed to open blob keeper: %w", err)
		}
		opts = append(opts, WithKeeper(keeper))
	}

	return New(bucket, opts...), nil
}

func openS3Bucket(ctx context.Context, cfg Config) (*blob.Bucket, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			// MinIO and most self-hosted gateways only serve path-style requests.
			o.UsePathStyle = true
		}
	})

	return s3blob.OpenBucket(ctx, client, cfg.S3Bucket, nil)
}

// ensureFileBucketDir creates the root directory of a file:// bucket, which fileblob requires to exist.
func ensureFileBucketDir(bucketURL string) error {
	u, err := url.Parse(bucketURL)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return nil
	}
	if err := os.MkdirAll(u.Path, 0o700); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	return nil
}
