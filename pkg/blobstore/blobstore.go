// Package blobstore provides the key/value blob stores that hold the local
// workspace snapshot.
//
// A snapshot is a single opaque value written under a fixed key, so the
// contract is deliberately small: [Store.Get], [Store.Put] and [Store.Delete].
// Backends are a directory on disk ([FileStore]), a SQLite table
// ([SQLiteStore]), an S3 bucket ([S3Store]) and process memory
// ([MemoryStore]). [Compressed] adds snappy compression on top of any of them.
package blobstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("blob not found")

// Store defines the interface for blob storage.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put overwrites the value stored under key.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend"`
	// Path is the directory for the file backend and the database file for
	// the sqlite backend.
	Path     string   `yaml:"path"`
	S3       S3Config `yaml:"s3"`
	Compress bool     `yaml:"compress"`
}

// Open builds the backend described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case BackendFile, "":
		path := cfg.Path
		if path == "" {
			path = ".worklin"
		}
		store, err = NewFileStore(path)
	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = "worklin.db"
		}
		store, err = NewSQLiteStore(ctx, path)
	case BackendS3:
		store, err = NewS3Store(ctx, cfg.S3)
	case BackendMemory:
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Compress {
		store = Compressed(store)
	}
	return store, nil
}
