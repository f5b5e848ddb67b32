package local_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/loancob/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/loancob/pkg/batch/adapter/storage/config"
	_ "github.com/tigerroll/loancob/pkg/batch/adapter/storage/local"
)

func TestLocalAdapter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := storage.Open(ctx, "report", storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir(), BucketName: "reports"})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Upload(ctx, "", "2024/01/failures.parquet", bytes.NewBufferString("one"), "application/octet-stream"))
	require.NoError(t, conn.Upload(ctx, "", "2024/02/failures.parquet", bytes.NewBufferString("two"), "application/octet-stream"))
	require.NoError(t, conn.Upload(ctx, "", "other.txt", bytes.NewBufferString("x"), "text/plain"))

	rc, err := conn.Download(ctx, "reports", "2024/01/failures.parquet")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "one", string(body))

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "2024/", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"2024/01/failures.parquet", "2024/02/failures.parquet"}, names)

	require.NoError(t, conn.DeleteObject(ctx, "", "other.txt"))
	require.NoError(t, conn.DeleteObject(ctx, "", "other.txt"))
}

func TestLocalAdapter_RejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	conn, err := storage.Open(ctx, "report", storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()})
	require.NoError(t, err)

	err = conn.Upload(ctx, "", "../escape.txt", bytes.NewBufferString("x"), "text/plain")
	assert.ErrorContains(t, err, "outside of BaseDir")
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := storage.Open(context.Background(), "x", storageConfig.StorageConfig{Type: "ftp"})
	assert.ErrorContains(t, err, "no storage backend registered")
}
