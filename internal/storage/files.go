package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/your-org/pictor/internal/config"
)

// ErrNotFound is returned for keys that do not exist or that would resolve
// outside the store.
var ErrNotFound = errors.New("object not found")

// FileStore keeps uploads and artifacts as flat files in one directory.
// Keys are bare file names.
type FileStore struct {
	dir      string
	allowed  map[string]bool
	maxBytes int64
}

func NewFileStore(cfg config.ServerConfig) (*FileStore, error) {
	dir, err := filepath.Abs(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}

	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	return &FileStore{
		dir:      dir,
		allowed:  allowed,
		maxBytes: int64(cfg.MaxUploadMB) << 20,
	}, nil
}

// EnsureDir creates the store directory if it doesn't exist.
func (s *FileStore) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	return nil
}

func (s *FileStore) Dir() string { return s.dir }

// MaxBytes is the upload size limit.
func (s *FileStore) MaxBytes() int64 { return s.maxBytes }

// Path resolves key to a file inside the store. Keys containing path
// separators or parent references are rejected.
func (s *FileStore) Path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, "/\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return filepath.Join(s.dir, key), nil
}

// PutObject writes data under key, replacing any existing object.
func (s *FileStore) PutObject(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := s.Path(key)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("put object %s: %w", key, err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("put object %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("put object %s: %w", key, err)
	}
	return n, nil
}

// Exists reports whether key names a regular file in the store.
func (s *FileStore) Exists(key string) bool {
	path, err := s.Path(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DeleteObject removes an object. Missing objects are not an error.
func (s *FileStore) DeleteObject(key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Ping checks that the directory exists and is writable.
func (s *FileStore) Ping(_ context.Context) error {
	f, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("upload dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
