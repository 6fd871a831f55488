// Package minio keeps fragmentation reports and depictions in an S3
// compatible bucket.
package minio

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// objectAPI is the subset of *minio.Client used here.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
	// DepictionTTLDays expires depiction objects; zero keeps them.
	DepictionTTLDays int `mapstructure:"depiction_ttl_days"`
}

type Client struct {
	api    objectAPI
	config *MinIOConfig
	logger logging.Logger
}

// NewClient connects, creates the bucket when missing and installs the
// depiction lifecycle rule.
func NewClient(cfg *MinIOConfig, log logging.Logger) (*Client, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeConfigError, "minio endpoint is required")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	applyDefaults(cfg)

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "create minio client")
	}

	c := newClient(mc, cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info("minio connected", logging.String("endpoint", cfg.Endpoint), logging.String("bucket", cfg.Bucket))
	return c, nil
}

func newClient(api objectAPI, cfg *MinIOConfig, log logging.Logger) *Client {
	return &Client{api: api, config: cfg, logger: log.Named("minio")}
}

func applyDefaults(cfg *MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "fragmenter-reports"
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = time.Hour
	}
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	bucket := c.config.Bucket
	exists, err := c.api.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "check bucket").WithDetail(bucket)
	}
	if !exists {
		if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "create bucket").WithDetail(bucket)
		}
		c.logger.Info("bucket created", logging.String("bucket", bucket))
	}
	if c.config.DepictionTTLDays > 0 {
		lc := lifecycle.NewConfiguration()
		lc.Rules = []lifecycle.Rule{{
			ID:         "depiction-expiry",
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: depictionPrefix},
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(c.config.DepictionTTLDays)},
		}}
		if err := c.api.SetBucketLifecycle(ctx, bucket, lc); err != nil {
			c.logger.Warn("bucket lifecycle not applied", logging.String("bucket", bucket), logging.Err(err))
		}
	}
	return nil
}

// HealthCheck reports whether the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	ok, err := c.api.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "minio health check")
	}
	if !ok {
		return errors.New(errors.ErrCodeStorageError, "bucket missing").WithDetail(c.config.Bucket)
	}
	return nil
}

func (c *Client) Bucket() string { return c.config.Bucket }
