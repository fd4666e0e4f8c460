//go:build integration
// +build integration

package minio

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/pure-golang/mailmerge/storage"
)

func TestIntegrationGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := New(Config{
		Endpoint:  strings.TrimPrefix(endpoint, "http://"),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}, nil)
	require.NoError(t, err)
	defer s.Close()

	const csv = "email,name\nb@y.com,Bob\n"
	require.NoError(t, s.client.MakeBucket(ctx, "lists", minio.MakeBucketOptions{}))
	_, err = s.client.PutObject(ctx, "lists", "march.csv", bytes.NewReader([]byte(csv)), int64(len(csv)), minio.PutObjectOptions{})
	require.NoError(t, err)

	t.Run("existing object", func(t *testing.T) {
		rc, err := s.Get(ctx, "lists", "march.csv")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, csv, string(data))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "lists", "april.csv")
		require.Error(t, err)
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := s.Get(ctx, "archive", "march.csv")
		require.Error(t, err)
		assert.True(t, storage.IsNotFound(err))
	})
}
