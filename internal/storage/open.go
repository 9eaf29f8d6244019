package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"storyteller/internal/infra"
	"storyteller/internal/pipeline"
)

const (
	DriverFS  = "fs"
	DriverGCS = "gcs"
)

// Store is a blob store owning resources that must be released.
type Store interface {
	pipeline.BlobStore
	Close() error
}

// Open builds the store selected by cfg.StorageDriver.
func Open(ctx context.Context, cfg *infra.Config) (Store, error) {
	switch cfg.StorageDriver {
	case "", DriverFS:
		path := cfg.StoragePath
		if path == "" {
			path = "./storage"
		}
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		return NewFileStore(path, cfg.StorageBaseURL)
	case DriverGCS:
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.StorageBaseURL)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.StorageDriver)
	}
}
