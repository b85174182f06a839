package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

const secretFileExt = ".secret"

// FileStorage persists secrets as individual files under a directory,
// one file per key, created with owner-only permissions. File names are
// the base64url encoding of the key so arbitrary key strings stay
// within a single directory.
type FileStorage struct {
	mu  sync.Mutex
	dir string
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.New("vault: storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("vault: create storage directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (f *FileStorage) path(key string) string {
	name := base64.URLEncoding.EncodeToString([]byte(key))
	return filepath.Join(f.dir, name+secretFileExt)
}

func (f *FileStorage) Read(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.WrapError(domain.ErrCredentialNotFound, "file storage read", errors.New(key))
		}
		return "", domain.WrapError(domain.ErrDataSource, "file storage read", err)
	}
	return string(data), nil
}

func (f *FileStorage) Write(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return domain.WrapError(domain.ErrDataSource, "file storage write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return domain.WrapError(domain.ErrDataSource, "file storage write", err)
	}
	return nil
}

func (f *FileStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return domain.WrapError(domain.ErrDataSource, "file storage delete", err)
	}
	return nil
}

func (f *FileStorage) Keys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDataSource, "file storage list", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, secretFileExt) {
			continue
		}
		raw, err := base64.URLEncoding.DecodeString(strings.TrimSuffix(name, secretFileExt))
		if err != nil {
			continue
		}
		keys = append(keys, string(raw))
	}
	return keys, nil
}
