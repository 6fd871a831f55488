package minio

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

const (
	reportPrefix    = "reports/"
	depictionPrefix = "depictions/"
)

var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")

// ReportStore writes job reports to reports/<job>.json and depictions to
// depictions/<job>/<name>.
type ReportStore struct {
	client *Client
	logger logging.Logger
}

func NewReportStore(client *Client, log logging.Logger) *ReportStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ReportStore{client: client, logger: log.Named("report_store")}
}

func ReportKey(jobID string) string { return reportPrefix + jobID + ".json" }

func DepictionKey(jobID, name string) string {
	return depictionPrefix + path.Join(jobID, path.Base(name))
}

// PutReport uploads an encoded report and returns its s3:// location.
func (s *ReportStore) PutReport(ctx context.Context, jobID string, report []byte) (string, error) {
	if jobID == "" {
		return "", errors.New(errors.ErrCodeValidation, "job id is required")
	}
	return s.put(ctx, ReportKey(jobID), report, "application/json", map[string]string{"job-id": jobID})
}

func (s *ReportStore) PutDepiction(ctx context.Context, jobID, name string, png []byte) (string, error) {
	if jobID == "" || name == "" {
		return "", errors.New(errors.ErrCodeValidation, "job id and name are required")
	}
	return s.put(ctx, DepictionKey(jobID, name), png, "image/png", map[string]string{"job-id": jobID})
}

func (s *ReportStore) put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error) {
	bucket := s.client.Bucket()
	info, err := s.client.api.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "upload object").WithDetail(key)
	}
	s.logger.Debug("object uploaded", logging.String("key", key), logging.Int64("size", info.Size))
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

// PresignReport returns a time limited download URL for a job report.
func (s *ReportStore) PresignReport(ctx context.Context, jobID string) (string, error) {
	key := ReportKey(jobID)
	bucket := s.client.Bucket()
	if _, err := s.client.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrObjectNotFound.WithDetail(key)
		}
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "stat object").WithDetail(key)
	}
	u, err := s.client.api.PresignedGetObject(ctx, bucket, key, s.client.config.PresignExpiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "presign object").WithDetail(key)
	}
	return u.String(), nil
}
