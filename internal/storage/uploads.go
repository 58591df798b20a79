package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidUpload covers missing files, empty names, disallowed extensions
// and oversized or malformed payloads.
var ErrInvalidUpload = errors.New("invalid upload")

// UploadError describes why an upload was rejected.
type UploadError struct {
	Reason string
}

func (e *UploadError) Error() string { return "invalid upload: " + e.Reason }

func (e *UploadError) Is(target error) bool { return target == ErrInvalidUpload }

func invalid(format string, args ...any) error {
	return &UploadError{Reason: fmt.Sprintf(format, args...)}
}

// Upload is a stored input image.
type Upload struct {
	Key          string // unique name inside the store
	OriginalName string
	Path         string
	Size         int64
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces name to a safe ASCII file name: compatibility
// decomposition, non-ASCII dropped, separators and whitespace collapsed to
// underscores, anything outside [A-Za-z0-9_.-] removed, leading and trailing
// dots and underscores trimmed. The result may be empty.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	name = b.String()

	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// Allowed reports whether name has an extension on the whitelist.
func (s *FileStore) Allowed(name string) bool {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return false
	}
	return s.allowed[strings.ToLower(name[i+1:])]
}

// keyFor validates an original file name and derives a unique store key.
func (s *FileStore) keyFor(original string) (string, error) {
	if original == "" {
		return "", invalid("no file selected")
	}
	if !s.Allowed(original) {
		return "", invalid("extension of %q is not allowed", original)
	}
	safe := SecureFilename(original)
	if safe == "" || !s.Allowed(safe) {
		return "", invalid("file name %q has no usable characters", original)
	}
	return uuid.NewString() + "_" + safe, nil
}

// SaveUpload stores a multipart file.
func (s *FileStore) SaveUpload(ctx context.Context, fh *multipart.FileHeader) (*Upload, error) {
	if fh == nil {
		return nil, invalid("no file part")
	}
	if s.maxBytes > 0 && fh.Size > s.maxBytes {
		return nil, invalid("file exceeds %d bytes", s.maxBytes)
	}

	key, err := s.keyFor(fh.Filename)
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	return s.put(ctx, key, fh.Filename, f)
}

// SaveBase64 stores an image sent as base64 text. A data URL prefix
// ("data:image/png;base64,") is accepted and stripped.
func (s *FileStore) SaveBase64(ctx context.Context, filename, payload string) (*Upload, error) {
	key, err := s.keyFor(filename)
	if err != nil {
		return nil, err
	}

	if i := strings.Index(payload, ","); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+1:]
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, invalid("empty image payload")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, invalid("malformed base64: %v", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, invalid("file exceeds %d bytes", s.maxBytes)
	}

	return s.put(ctx, key, filename, bytes.NewReader(data))
}

func (s *FileStore) put(ctx context.Context, key, original string, r io.Reader) (*Upload, error) {
	n, err := s.PutObject(ctx, key, r)
	if err != nil {
		return nil, err
	}
	path, _ := s.Path(key)
	return &Upload{Key: key, OriginalName: original, Path: path, Size: n}, nil
}

// Artifact pairs an output key with its path in the store.
type Artifact struct {
	Key  string
	Path string
}

// ArtifactFor names the output of an operation on an upload, e.g.
// "processed_" + key. ext, when set, replaces the extension.
func (s *FileStore) ArtifactFor(prefix, key, ext string) (Artifact, error) {
	name := prefix + key
	if ext != "" {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + "." + strings.TrimPrefix(ext, ".")
	}
	path, err := s.Path(name)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Key: name, Path: path}, nil
}
