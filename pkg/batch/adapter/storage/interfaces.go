// Package storage defines the object storage abstraction used to publish batch reports.
package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	storageConfig "github.com/tigerroll/loancob/pkg/batch/adapter/storage/config"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload uploads data to the specified bucket and object name.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download returns a ReadCloser which must be closed by the caller.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is an open storage backend.
type StorageConnection interface {
	StorageExecutor
	Name() string
	Type() string
	Close() error
}

// ConnectionFactory opens a StorageConnection for one backend type.
type ConnectionFactory func(ctx context.Context, name string, cfg storageConfig.StorageConfig) (StorageConnection, error)

var (
	factories   = make(map[string]ConnectionFactory)
	factoriesMu sync.RWMutex
)

// RegisterFactory registers the factory for a backend type. Backends call it from init.
func RegisterFactory(storageType string, factory ConnectionFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[storageType] = factory
}

// Open opens a connection using the factory registered for cfg.Type.
func Open(ctx context.Context, name string, cfg storageConfig.StorageConfig) (StorageConnection, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no storage backend registered for type '%s' (connection '%s')", cfg.Type, name)
	}
	return factory(ctx, name, cfg)
}
