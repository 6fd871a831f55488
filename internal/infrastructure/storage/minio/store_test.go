package minio

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "reports/job-1.json", ReportKey("job-1"))
	assert.Equal(t, "depictions/job-1/benzene.png", DepictionKey("job-1", "benzene.png"))
	assert.Equal(t, "depictions/job-1/passwd", DepictionKey("job-1", "../../etc/passwd"))
}

func TestReportStore_PutReport(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("PutObject", mock.Anything, "fragmenter-reports", "reports/job-1.json", mock.Anything, int64(2),
		mock.MatchedBy(func(o minio.PutObjectOptions) bool {
			return o.ContentType == "application/json" && o.UserMetadata["job-id"] == "job-1"
		})).Return(minio.UploadInfo{Size: 2}, nil)

	store := NewReportStore(newTestClient(api, nil), nil)
	loc, err := store.PutReport(context.Background(), "job-1", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "s3://fragmenter-reports/reports/job-1.json", loc)
	api.AssertExpectations(t)
}

func TestReportStore_PutDepiction(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("PutObject", mock.Anything, "fragmenter-reports", "depictions/job-1/mol.png", mock.Anything, int64(3),
		mock.MatchedBy(func(o minio.PutObjectOptions) bool { return o.ContentType == "image/png" })).
		Return(minio.UploadInfo{}, assert.AnError)

	store := NewReportStore(newTestClient(api, nil), nil)
	_, err := store.PutDepiction(context.Background(), "job-1", "mol.png", []byte{1, 2, 3})
	assert.True(t, errors.IsCode(err, errors.ErrCodeStorageError))
}

func TestReportStore_PresignReport(t *testing.T) {
	api := new(MockObjectAPI)
	u, _ := url.Parse("http://localhost:9000/fragmenter-reports/reports/job-1.json?sig=x")
	api.On("StatObject", mock.Anything, "fragmenter-reports", "reports/job-1.json", mock.Anything).Return(minio.ObjectInfo{}, nil)
	api.On("PresignedGetObject", mock.Anything, "fragmenter-reports", "reports/job-1.json", time.Hour, url.Values(nil)).Return(u, nil)

	store := NewReportStore(newTestClient(api, nil), nil)
	got, err := store.PresignReport(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, u.String(), got)
}

func TestReportStore_PresignMissing(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("StatObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"})

	store := NewReportStore(newTestClient(api, nil), nil)
	_, err := store.PresignReport(context.Background(), "nope")
	assert.True(t, errors.IsNotFound(err))
	api.AssertNotCalled(t, "PresignedGetObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReportStore_RequiresJobID(t *testing.T) {
	store := NewReportStore(newTestClient(new(MockObjectAPI), nil), nil)
	_, err := store.PutReport(context.Background(), "", []byte("{}"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}
