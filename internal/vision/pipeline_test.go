package vision

import (
	"bytes"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	pigo "github.com/esimov/pigo/core"

	"github.com/your-org/pictor/internal/codec"
	"github.com/your-org/pictor/internal/config"
	"github.com/your-org/pictor/internal/filters"
)

func garbageFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func faceCascade() *fakeCascade {
	var dets []pigo.Detection
	for i := 0; i < 5; i++ {
		dets = append(dets, pigo.Detection{Row: 40, Col: 40, Scale: 40, Q: 3})
	}
	return &fakeCascade{dets: dets}
}

func TestPipeline_DetectFaces(t *testing.T) {
	p := NewPipeline(Components{Faces: &FaceDetector{cascade: faceCascade()}})
	in := writeImage(t, "in.png", uniformImage(80, 80, color.NRGBA{200, 200, 200, 255}))
	out := filepath.Join(t.TempDir(), "faces.png")

	n, err := p.DetectFaces(in, out)
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("count: got %d, want 1", n)
	}

	img, err := codec.Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.NRGBAAt(20, 40); got != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("expected green outline at left edge, got %v", got)
	}
	if got := img.NRGBAAt(40, 40); got != (color.NRGBA{200, 200, 200, 255}) {
		t.Errorf("face interior should be untouched, got %v", got)
	}
}

func TestPipeline_DetectFaces_Failures(t *testing.T) {
	t.Run("undecodable input is soft", func(t *testing.T) {
		p := NewPipeline(Components{Faces: &FaceDetector{cascade: faceCascade()}})
		n, err := p.DetectFaces(garbageFile(t), filepath.Join(t.TempDir(), "out.png"))
		if err != nil || n != 0 {
			t.Errorf("got (%d, %v), want (0, nil)", n, err)
		}
	})

	t.Run("missing cascade", func(t *testing.T) {
		p := NewPipeline(Components{})
		_, err := p.DetectFaces("in.png", "out.png")
		if !errors.Is(err, ErrModelAssetMissing) {
			t.Errorf("expected ErrModelAssetMissing, got %v", err)
		}
	})

	t.Run("unwritable output", func(t *testing.T) {
		p := NewPipeline(Components{Faces: &FaceDetector{cascade: faceCascade()}})
		in := writeImage(t, "in.png", uniformImage(80, 80, color.NRGBA{A: 255}))
		_, err := p.DetectFaces(in, filepath.Join(t.TempDir(), "missing", "out.png"))
		var encErr *codec.EncodeError
		if !errors.As(err, &encErr) {
			t.Errorf("expected *codec.EncodeError, got %v", err)
		}
	})
}

func TestLoadFaceDetector_MissingFile(t *testing.T) {
	_, err := LoadFaceDetector(filepath.Join(t.TempDir(), "facefinder"))
	if !errors.Is(err, ErrModelAssetMissing) {
		t.Fatalf("expected ErrModelAssetMissing, got %v", err)
	}
	var assetErr *AssetError
	if !errors.As(err, &assetErr) || filepath.Base(assetErr.Path) != "facefinder" {
		t.Errorf("expected *AssetError naming the file, got %v", err)
	}
}

func recognizer(faceOut []float32) *FaceAttributeRecognizer {
	return NewFaceAttributeRecognizer(
		&fakeNet{out: faceOut},
		&fakeNet{out: probs(8, int(Age38to43))},
		&fakeNet{out: probs(2, int(Male))},
		0.7,
	)
}

func TestPipeline_RecognizeFaces(t *testing.T) {
	t.Run("no faces copies input", func(t *testing.T) {
		p := NewPipeline(Components{Recognizer: recognizer(ssdOutput())})
		in := writeImage(t, "in.png", uniformImage(30, 30, color.NRGBA{10, 20, 30, 255}))
		out := filepath.Join(t.TempDir(), "recognized.png")

		people, err := p.RecognizeFaces(in, out)
		if err != nil {
			t.Fatalf("RecognizeFaces failed: %v", err)
		}
		if people == nil || len(people) != 0 {
			t.Errorf("expected empty non-nil list, got %v", people)
		}

		a, _ := os.ReadFile(in)
		b, _ := os.ReadFile(out)
		if !bytes.Equal(a, b) {
			t.Error("output should be byte-identical to input")
		}
	})

	t.Run("no faces different format re-encodes", func(t *testing.T) {
		p := NewPipeline(Components{Recognizer: recognizer(ssdOutput())})
		in := writeImage(t, "in.png", uniformImage(30, 30, color.NRGBA{10, 20, 30, 255}))
		out := filepath.Join(t.TempDir(), "recognized.jpg")

		if _, err := p.RecognizeFaces(in, out); err != nil {
			t.Fatal(err)
		}
		if _, err := codec.Decode(out); err != nil {
			t.Errorf("output not decodable: %v", err)
		}
	})

	t.Run("one face", func(t *testing.T) {
		p := NewPipeline(Components{Recognizer: recognizer(ssdOutput([7]float32{0, 1, 0.99, 0.25, 0.25, 0.75, 0.75}))})
		in := writeImage(t, "in.png", uniformImage(100, 100, color.NRGBA{50, 50, 50, 255}))
		out := filepath.Join(t.TempDir(), "recognized.png")

		people, err := p.RecognizeFaces(in, out)
		if err != nil {
			t.Fatal(err)
		}
		if len(people) != 1 || people[0].Label() != "Male, (38-43)" {
			t.Fatalf("people: %+v", people)
		}

		img, err := codec.Decode(out)
		if err != nil {
			t.Fatal(err)
		}
		if got := img.NRGBAAt(25, 50); got != (color.NRGBA{0, 255, 0, 255}) {
			t.Errorf("expected green outline, got %v", got)
		}
	})

	t.Run("undecodable input is soft", func(t *testing.T) {
		p := NewPipeline(Components{Recognizer: recognizer(ssdOutput())})
		people, err := p.RecognizeFaces(garbageFile(t), filepath.Join(t.TempDir(), "out.jpg"))
		if err != nil || people == nil || len(people) != 0 {
			t.Errorf("got (%v, %v), want ([], nil)", people, err)
		}
	})

	t.Run("missing networks", func(t *testing.T) {
		p := NewPipeline(Components{Errors: map[string]error{
			OpFaceRecognition: &AssetError{Path: "age_net.onnx", Err: os.ErrNotExist},
		}})
		_, err := p.RecognizeFaces("in.png", "out.png")
		if !errors.Is(err, ErrModelAssetMissing) {
			t.Errorf("expected ErrModelAssetMissing, got %v", err)
		}
	})
}

func TestPipeline_DetectObjects(t *testing.T) {
	t.Run("empty network output", func(t *testing.T) {
		p := NewPipeline(Components{Objects: NewObjectDetector(&fakeNet{out: ssdOutput()}, 0.5, 1)})
		in := writeImage(t, "gray.png", uniformImage(64, 48, color.NRGBA{128, 128, 128, 255}))

		report, err := p.DetectObjects(in, filepath.Join(t.TempDir(), "objects.png"))
		if err != nil {
			t.Fatalf("DetectObjects failed: %v", err)
		}
		if report.TotalObjects != 0 || report.ObjectCounts == nil || len(report.ObjectCounts) != 0 {
			t.Errorf("report: %+v", report)
		}
	})

	t.Run("detections are counted", func(t *testing.T) {
		net := &fakeNet{out: ssdOutput(
			[7]float32{0, 15, 0.91, 0.1, 0.1, 0.4, 0.9},
			[7]float32{0, 15, 0.66, 0.5, 0.1, 0.9, 0.9},
			[7]float32{0, 12, 0.8, 0.2, 0.5, 0.6, 0.8},
		)}
		p := NewPipeline(Components{Objects: NewObjectDetector(net, 0.5, 1)})
		in := writeImage(t, "in.png", uniformImage(64, 48, color.NRGBA{128, 128, 128, 255}))

		report, err := p.DetectObjects(in, filepath.Join(t.TempDir(), "objects.png"))
		if err != nil {
			t.Fatal(err)
		}
		if report.TotalObjects != 3 || report.ObjectCounts["person"] != 2 || report.ObjectCounts["dog"] != 1 {
			t.Errorf("report: %+v", report)
		}
		if report.Detections[0].Percent != 91 {
			t.Errorf("percent: got %v", report.Detections[0].Percent)
		}
	})

	t.Run("undecodable input propagates", func(t *testing.T) {
		p := NewPipeline(Components{Objects: NewObjectDetector(&fakeNet{out: ssdOutput()}, 0.5, 1)})
		_, err := p.DetectObjects(garbageFile(t), filepath.Join(t.TempDir(), "out.png"))
		var decErr *codec.DecodeError
		if !errors.As(err, &decErr) {
			t.Errorf("expected *codec.DecodeError, got %v", err)
		}
		if ErrorCode(err) != CodeDecodeError {
			t.Errorf("code: got %q", ErrorCode(err))
		}
	})

	t.Run("missing network", func(t *testing.T) {
		_, err := NewPipeline(Components{}).DetectObjects("in.png", "out.png")
		if !errors.Is(err, ErrModelAssetMissing) {
			t.Errorf("expected ErrModelAssetMissing, got %v", err)
		}
	})
}

func TestPipeline_ApplyFilter(t *testing.T) {
	p := NewPipeline(Components{Filters: filters.NewEngine(filters.WithSeed(1))})
	in := writeImage(t, "in.png", uniformImage(16, 16, color.NRGBA{10, 20, 30, 255}))
	out := filepath.Join(t.TempDir(), "filtered_in.png")

	got, err := p.ApplyFilter(in, out, filters.KindInvert, filters.Params{})
	if err != nil {
		t.Fatalf("ApplyFilter failed: %v", err)
	}
	if got != out {
		t.Errorf("path: got %q, want %q", got, out)
	}
	img, err := codec.Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	if px := img.NRGBAAt(3, 3); px != (color.NRGBA{245, 235, 225, 255}) {
		t.Errorf("inverted pixel: got %v", px)
	}

	_, err = p.ApplyFilter(garbageFile(t), out, filters.KindSepia, filters.Params{})
	if ErrorCode(err) != CodeDecodeError {
		t.Errorf("undecodable input: code %q (%v)", ErrorCode(err), err)
	}

	_, err = p.ApplyFilter(in, out, filters.KindAdjustable, filters.Params{Brightness: 999})
	if ErrorCode(err) != CodeTransformError {
		t.Errorf("bad params: code %q (%v)", ErrorCode(err), err)
	}
}

func TestLoadPipeline_MissingAssets(t *testing.T) {
	cfg := config.Default().Vision
	cfg.ModelsDir = t.TempDir()

	p := LoadPipeline(cfg, &Runtime{err: ErrInferenceUnavailable})
	defer p.Close()

	status := p.Status()
	if status[OpFilter] != "ready" {
		t.Errorf("filters should always be ready: %v", status)
	}
	for _, op := range []string{OpFaceDetection, OpFaceRecognition, OpObjectDetection} {
		if status[op] == "ready" {
			t.Errorf("%s should not be ready without assets", op)
		}
	}

	if _, err := p.DetectObjects("in.png", "out.png"); !errors.Is(err, ErrModelAssetMissing) {
		t.Errorf("expected ErrModelAssetMissing, got %v", err)
	}
}

func TestLoadPipeline_RuntimeDown(t *testing.T) {
	cfg := config.Default().Vision
	cfg.ModelsDir = t.TempDir()
	if err := os.WriteFile(filepath.Join(cfg.ModelsDir, cfg.ObjectModel), []byte("onnx"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := LoadPipeline(cfg, &Runtime{err: ErrInferenceUnavailable})
	_, err := p.DetectObjects("in.png", "out.png")
	if !errors.Is(err, ErrInferenceUnavailable) {
		t.Errorf("expected ErrInferenceUnavailable, got %v", err)
	}
	if ErrorCode(err) != CodeInferenceUnavailable {
		t.Errorf("code: got %q", ErrorCode(err))
	}
}
