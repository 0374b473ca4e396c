package storage

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrNotFound   = errors.New("key not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// KV is a flat key/value area. Each key ("slot") holds one opaque blob.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	sqliteFile = "ait.db"
)

// Open returns the backend named in the configuration, rooted at dir.
func Open(backend, dir string) (KV, error) {
	switch backend {
	case "", BackendFile:
		return NewFileKV(dir)
	case BackendSQLite:
		return NewSQLiteKV(filepath.Join(dir, sqliteFile))
	default:
		return nil, goerr.New("unknown storage backend", goerr.V("backend", backend))
	}
}

func validKey(key string) error {
	if key == "" || len(key) > 128 {
		return goerr.Wrap(ErrInvalidKey, "key length", goerr.V("key", key))
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return goerr.Wrap(ErrInvalidKey, "unsupported character", goerr.V("key", key))
		}
	}
	if key == "." || key == ".." {
		return goerr.Wrap(ErrInvalidKey, "reserved key", goerr.V("key", key))
	}
	return nil
}
