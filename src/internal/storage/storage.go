package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

const blobExt = ".blob"

// FileKV keeps one file per key inside baseDir.
type FileKV struct {
	baseDir string
	mu      sync.RWMutex
}

func NewFileKV(baseDir string) (*FileKV, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return nil, goerr.Wrap(err, "create storage dir", goerr.V("dir", baseDir))
		}
	}
	return &FileKV{baseDir: baseDir}, nil
}

func (s *FileKV) GetBaseDir() string {
	return s.baseDir
}

func (s *FileKV) path(key string) string {
	return filepath.Join(s.baseDir, key+blobExt)
}

func (s *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(ErrNotFound, "read slot", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "read slot", goerr.V("key", key))
	}
	return data, nil
}

// Set replaces the slot through a temp file and rename, so readers never see
// a half written blob.
func (s *FileKV) Set(_ context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.baseDir, key+".*.tmp")
	if err != nil {
		return goerr.Wrap(err, "create temp file", goerr.V("key", key))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "write slot", goerr.V("key", key))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "close slot", goerr.V("key", key))
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return goerr.Wrap(err, "chmod slot", goerr.V("key", key))
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return goerr.Wrap(err, "replace slot", goerr.V("key", key))
	}
	return nil
}

func (s *FileKV) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return goerr.Wrap(err, "delete slot", goerr.V("key", key))
	}
	return nil
}

func (s *FileKV) Close() error {
	return nil
}
