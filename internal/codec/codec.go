// Package codec converts between image files and the in-memory pixel buffer
// used by every pipeline stage.
//
// All decoded images are returned as *image.NRGBA: 8-bit samples in R, G, B, A
// order. Detectors and transforms rely on that layout, so nothing downstream
// should decode images on its own.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	jpegQuality = 95
	webpQuality = 90
)

// DecodeError reports a source that is unreadable or not a valid image.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a destination that could not be written.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Decode reads the image at path. EXIF orientation is applied.
func Decode(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Source: path, Err: err}
	}
	return toNRGBA(img), nil
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Source: "<bytes>", Err: errors.New("empty input")}
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Source: "<bytes>", Err: err}
	}
	return toNRGBA(img), nil
}

// Encode writes img to path, choosing the format from the file extension.
func Encode(img image.Image, path string) error {
	format, err := Format(path)
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}

	if format == "webp" {
		f, err := os.Create(path)
		if err != nil {
			return &EncodeError{Path: path, Err: err}
		}
		if err := webp.Encode(f, img, &webp.Options{Quality: webpQuality}); err != nil {
			f.Close()
			return &EncodeError{Path: path, Err: err}
		}
		if err := f.Close(); err != nil {
			return &EncodeError{Path: path, Err: err}
		}
		return nil
	}

	if err := imaging.Save(img, path, imaging.JPEGQuality(jpegQuality)); err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	return nil
}

// CopyFile copies src to dst byte for byte. Used when an artifact would be
// identical to its input.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &EncodeError{Path: dst, Err: fmt.Errorf("open source: %w", err)}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return &EncodeError{Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &EncodeError{Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &EncodeError{Path: dst, Err: err}
	}
	return nil
}

// Format returns the normalised format name for a file path
// ("jpeg", "png", "gif", "bmp", "tiff" or "webp").
func Format(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "jpg", "jpeg":
		return "jpeg", nil
	case "png", "gif", "bmp", "webp":
		return ext, nil
	case "tif", "tiff":
		return "tiff", nil
	default:
		return "", fmt.Errorf("unsupported image extension %q", filepath.Ext(path))
	}
}

// SameFormat reports whether both paths map to the same encoder.
func SameFormat(a, b string) bool {
	fa, errA := Format(a)
	fb, errB := Format(b)
	return errA == nil && errB == nil && fa == fb
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}
