package minio

import (
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailmerge/storage"
)

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled())
	assert.True(t, cfg.Secure)
	assert.Equal(t, "us-east-1", cfg.Region)

	cfg.Endpoint = "localhost:9000"
	assert.True(t, cfg.Enabled())
}

func TestNew(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 endpoint is not configured")

	s, err := New(Config{Endpoint: "localhost:9000", AccessKey: "key", SecretKey: "secret"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, s.cfg.Region)
}

func TestGet_AfterClose(t *testing.T) {
	s, err := New(Config{Endpoint: "localhost:9000"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Get(t.Context(), "lists", "march.csv")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestToStorageError(t *testing.T) {
	loc := storage.Location{Bucket: "lists", Key: "march.csv"}

	tests := []struct {
		name string
		err  error
		want storage.ErrorCode
	}{
		{name: "no such key", err: minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, want: storage.CodeNotFound},
		{name: "no such bucket", err: minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}, want: storage.CodeBucketNotFound},
		{name: "access denied", err: minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, want: storage.CodeAccessDenied},
		{name: "bare 404", err: minio.ErrorResponse{StatusCode: http.StatusNotFound}, want: storage.CodeNotFound},
		{name: "bare 403", err: minio.ErrorResponse{StatusCode: http.StatusForbidden}, want: storage.CodeAccessDenied},
		{name: "bucket text", err: errors.New("bucket does not exist"), want: storage.CodeBucketNotFound},
		{name: "object text", err: errors.New("object not found"), want: storage.CodeNotFound},
		{name: "other", err: errors.New("connection reset by peer"), want: storage.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toStorageError(tt.err, loc)

			var storageErr *storage.StorageError
			require.ErrorAs(t, err, &storageErr)
			assert.Equal(t, tt.want, storageErr.Code)
			assert.Equal(t, loc, storageErr.Location)
		})
	}

	assert.NoError(t, toStorageError(nil, loc))
}
