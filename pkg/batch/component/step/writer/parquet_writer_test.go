package writer_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/loancob/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/loancob/pkg/batch/adapter/storage/config"
	_ "github.com/tigerroll/loancob/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/loancob/pkg/batch/component/step/writer"
	"github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

type row struct {
	AccountID int64  `parquet:"name=account_id, type=INT64"`
	Day       string `parquet:"name=day, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func TestParquetWriter_UploadsOneFilePerPartition(t *testing.T) {
	ctx := context.Background()
	conn, err := storage.Open(ctx, "report", storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir(), BucketName: "reports"})
	require.NoError(t, err)

	w, err := writer.NewParquetWriter("failures", writer.ParquetWriterConfig{OutputBaseDir: "cob", CompressionType: "NONE"}, conn, new(row),
		func(r row) (string, error) { return "dt=" + r.Day, nil })
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))
	require.NoError(t, w.Write(ctx, []row{{1, "2024-01-01"}, {2, "2024-01-02"}}))
	require.NoError(t, w.Write(ctx, []row{{3, "2024-01-01"}}))
	require.NoError(t, w.Close(ctx))

	uploaded := w.Uploaded()
	require.Len(t, uploaded, 2)
	assert.Contains(t, uploaded[0], "cob/dt=2024-01-01/")

	rc, err := conn.Download(ctx, "", uploaded[0])
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))
}

func TestParquetWriter_EmptyCloseUploadsNothing(t *testing.T) {
	ctx := context.Background()
	conn, err := storage.Open(ctx, "report", storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()})
	require.NoError(t, err)
	w, err := writer.NewParquetWriter("failures", writer.ParquetWriterConfig{OutputBaseDir: "cob"}, conn, new(row),
		func(r row) (string, error) { return r.Day, nil })
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx, nil))
	require.NoError(t, w.Close(ctx))
	assert.Empty(t, w.Uploaded())
}

func TestNewParquetWriter_RejectsUnknownCompression(t *testing.T) {
	conn, err := storage.Open(context.Background(), "report", storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = writer.NewParquetWriter("failures", writer.ParquetWriterConfig{OutputBaseDir: "cob", CompressionType: "LZMA"}, conn, new(row),
		func(r row) (string, error) { return r.Day, nil })
	assert.ErrorContains(t, err, "unsupported compression type")
}
