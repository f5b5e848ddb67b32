package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/loancob/pkg/batch/adapter/storage"
	"github.com/tigerroll/loancob/pkg/batch/core/application/port"
	"github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// Bucket is passed to the storage connection; "" uses the connection's default.
	Bucket string
	// OutputBaseDir is the object prefix for exported files (e.g. "cob-failures").
	OutputBaseDir string
	// CompressionType is SNAPPY, GZIP or NONE.
	CompressionType string
}

// ParquetWriter buffers items by partition key and uploads one Parquet file per key on Close.
// T must be a struct carrying parquet tags.
type ParquetWriter[T any] struct {
	name             string
	config           ParquetWriterConfig
	storageConn      storage.StorageConnection
	itemPrototype    *T
	partitionKeyFunc func(T) (string, error)

	mu            sync.Mutex
	bufferedItems map[string][]T
	totalBuffered int64
	uploaded      []string
}

// NewParquetWriter creates a new instance of ParquetWriter.
func NewParquetWriter[T any](
	name string,
	config ParquetWriterConfig,
	storageConn storage.StorageConnection,
	itemPrototype *T,
	partitionKeyFunc func(T) (string, error),
) (*ParquetWriter[T], error) {
	if storageConn == nil {
		return nil, exception.NewBatchErrorf("writer", "ParquetWriter '%s' requires a storage connection", name)
	}
	if config.OutputBaseDir == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetWriter '%s' requires an output base directory", name)
	}
	if config.CompressionType == "" {
		config.CompressionType = "SNAPPY"
	}
	if _, err := getCompressionCodec(config.CompressionType); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("ParquetWriter '%s': %v", name, err), err, false, false)
	}
	return &ParquetWriter[T]{
		name:             name,
		config:           config,
		storageConn:      storageConn,
		itemPrototype:    itemPrototype,
		partitionKeyFunc: partitionKeyFunc,
		bufferedItems:    make(map[string][]T),
	}, nil
}

// Open clears the buffers.
func (w *ParquetWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bufferedItems = make(map[string][]T)
	w.totalBuffered = 0
	w.uploaded = nil
	logger.Debugf("ParquetWriter '%s' opened. Target: %s/%s", w.name, w.storageConn.Name(), w.config.OutputBaseDir)
	return nil
}

// Write only buffers. Nothing is uploaded until Close.
func (w *ParquetWriter[T]) Write(ctx context.Context, items []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, item := range items {
		partitionKey, err := w.partitionKeyFunc(item)
		if err != nil {
			return exception.NewBatchError("writer",
				fmt.Sprintf("Failed to get partition key for item in ParquetWriter '%s'", w.name), err, false, false)
		}
		w.bufferedItems[partitionKey] = append(w.bufferedItems[partitionKey], item)
		w.totalBuffered++
	}
	return nil
}

// Close writes one file per partition key and uploads it. Failures of one partition do not
// prevent the others; all errors are returned together.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.totalBuffered == 0 {
		logger.Infof("ParquetWriter '%s': No records buffered, skipping Parquet file generation.", w.name)
		return nil
	}
	codec, _ := getCompressionCodec(w.config.CompressionType)

	keys := make([]string, 0, len(w.bufferedItems))
	for k := range w.bufferedItems {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var multiErr error
	for _, partitionKey := range keys {
		items := w.bufferedItems[partitionKey]
		buf, err := w.encode(items, codec)
		if err != nil {
			multiErr = multierror.Append(multiErr, exception.NewBatchError("writer",
				fmt.Sprintf("Failed to encode partition '%s' in ParquetWriter '%s'", partitionKey, w.name), err, false, false))
			continue
		}

		fileName := fmt.Sprintf("data_%s_%s.parquet", time.Now().Format("20060102150405"), uuid.NewString()[:8])
		objectName := path.Join(w.config.OutputBaseDir, partitionKey, fileName)
		if err := w.storageConn.Upload(ctx, w.config.Bucket, objectName, buf, "application/octet-stream"); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewBatchError("writer",
				fmt.Sprintf("Failed to upload Parquet file '%s' in ParquetWriter '%s'", objectName, w.name), err, false, false))
			continue
		}
		w.uploaded = append(w.uploaded, objectName)
		logger.Infof("ParquetWriter '%s': uploaded %d records for partition '%s' to %s", w.name, len(items), partitionKey, objectName)
	}

	w.bufferedItems = make(map[string][]T)
	w.totalBuffered = 0
	return multiErr
}

// Uploaded returns the object names written by the last Close.
func (w *ParquetWriter[T]) Uploaded() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.uploaded...)
}

func (w *ParquetWriter[T]) encode(items []T, codec parquet.CompressionCodec) (buf *bytes.Buffer, err error) {
	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, w.itemPrototype, 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = codec
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return nil, err
		}
	}
	// parquet-go panics on some schema mismatches during flush.
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf, nil
}

func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

var _ port.ItemWriter[any] = (*ParquetWriter[any])(nil)
