package codec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func createTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 7), uint8(y * 11), uint8(x + y), 255})
		}
	}
	return img
}

func TestEncodeDecode_PNGRoundTrip(t *testing.T) {
	src := createTestImage(20, 10)
	path := filepath.Join(t.TempDir(), "out.png")

	if err := Encode(src, path); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Bounds() != src.Bounds() {
		t.Fatalf("bounds: got %v, want %v", got.Bounds(), src.Bounds())
	}
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Error("PNG round trip changed pixel data")
	}
}

func TestEncode_JPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")
	if err := Encode(createTestImage(16, 16), path); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	img, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Errorf("dimensions: got %v", img.Bounds())
	}
}

func TestDecode_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.png")},
		{"invalid data", garbage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.path)
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected *DecodeError, got %v", err)
			}
			if decErr.Source != tt.path {
				t.Errorf("source: got %q, want %q", decErr.Source, tt.path)
			}
		})
	}
}

func TestDecodeBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	if err := Encode(createTestImage(4, 4), path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	img, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("width: got %d, want 4", img.Bounds().Dx())
	}

	var decErr *DecodeError
	if _, err := DecodeBytes(nil); !errors.As(err, &decErr) {
		t.Errorf("empty input: expected *DecodeError, got %v", err)
	}
}

func TestEncode_Errors(t *testing.T) {
	img := createTestImage(2, 2)
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing directory", filepath.Join(dir, "nope", "out.png")},
		{"unknown extension", filepath.Join(dir, "out.xyz")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var encErr *EncodeError
			if err := Encode(img, tt.path); !errors.As(err, &encErr) {
				t.Fatalf("expected *EncodeError, got %v", err)
			}
		})
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	dst := filepath.Join(dir, "b.png")
	if err := Encode(createTestImage(3, 3), src); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	a, _ := os.ReadFile(src)
	b, _ := os.ReadFile(dst)
	if !bytes.Equal(a, b) {
		t.Error("copied file differs from source")
	}

	var encErr *EncodeError
	if err := CopyFile(filepath.Join(dir, "missing.png"), dst); !errors.As(err, &encErr) {
		t.Errorf("expected *EncodeError, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"a.JPG", "jpeg", false},
		{"a.jpeg", "jpeg", false},
		{"dir/b.png", "png", false},
		{"c.webp", "webp", false},
		{"d.tif", "tiff", false},
		{"e", "", true},
		{"f.txt", "", true},
	}
	for _, tt := range tests {
		got, err := Format(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("Format(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Format(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	if !SameFormat("x.jpg", "y.JPEG") {
		t.Error("jpg and JPEG should share a format")
	}
	if SameFormat("x.png", "y.jpg") {
		t.Error("png and jpg should differ")
	}
}
