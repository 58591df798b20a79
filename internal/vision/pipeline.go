// Package vision holds the detectors and the pipeline entry points that tie
// decoding, inference, annotation and encoding together.
//
// Failure policy differs per entry point. Face detection and face
// recognition treat an unreadable input as "no faces": they log a warning
// and return an empty result with a nil error. Filters and object detection
// propagate the decode error. Encode failures always propagate.
package vision

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/your-org/pictor/internal/codec"
	"github.com/your-org/pictor/internal/config"
	"github.com/your-org/pictor/internal/filters"
	"github.com/your-org/pictor/internal/observability"
)

// Operation names used as metric labels and readiness keys.
const (
	OpFaceDetection   = "face_detection"
	OpFaceRecognition = "face_recognition"
	OpFilter          = "filter"
	OpObjectDetection = "object_detection"
)

// Components are the loaded building blocks of a Pipeline. A nil detector
// makes its entry point fail with the matching entry in Errors.
type Components struct {
	Faces      *FaceDetector
	Recognizer *FaceAttributeRecognizer
	Objects    *ObjectDetector
	Filters    *filters.Engine
	Errors     map[string]error
	Closers    []func()
}

// Pipeline is shared by all requests. Its model handles are loaded once.
type Pipeline struct {
	faces      *FaceDetector
	recognizer *FaceAttributeRecognizer
	objects    *ObjectDetector
	filters    *filters.Engine
	errs       map[string]error
	closers    []func()
}

func NewPipeline(c Components) *Pipeline {
	p := &Pipeline{
		faces:      c.Faces,
		recognizer: c.Recognizer,
		objects:    c.Objects,
		filters:    c.Filters,
		errs:       c.Errors,
		closers:    c.Closers,
	}
	if p.filters == nil {
		p.filters = filters.NewEngine()
	}
	if p.errs == nil {
		p.errs = make(map[string]error)
	}
	return p
}

// LoadPipeline loads every model asset under cfg.ModelsDir. Components whose
// assets are missing are left unloaded and reported by Status; the rest of
// the pipeline stays usable.
func LoadPipeline(cfg config.VisionConfig, rt *Runtime) *Pipeline {
	c := Components{
		Filters: filters.NewEngine(filters.WithSeed(cfg.ColorSeed)),
		Errors:  make(map[string]error),
	}
	asset := func(name string) string { return filepath.Join(cfg.ModelsDir, name) }

	cascadePath := asset(cfg.CascadeFile)
	slog.Info("loading face cascade", "path", cascadePath)
	if faces, err := LoadFaceDetector(cascadePath); err != nil {
		slog.Warn("face detection disabled", "error", err)
		c.Errors[OpFaceDetection] = err
	} else {
		c.Faces = faces
	}

	var nets []*ONNXNetwork
	open := func(name string, spec NetworkSpec) (*ONNXNetwork, error) {
		path := asset(name)
		slog.Info("loading network", "path", path)
		n, err := rt.open(path, spec)
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
		return n, nil
	}

	faceNet, err := open(cfg.FaceModel, faceNetSpec(cfg.FaceMaxDetections))
	var ageNet, genderNet *ONNXNetwork
	if err == nil {
		ageNet, err = open(cfg.AgeModel, classifierSpec(len(ageBucketLabels)))
	}
	if err == nil {
		genderNet, err = open(cfg.GenderModel, classifierSpec(len(genderLabels)))
	}
	if err != nil {
		slog.Warn("face recognition disabled", "error", err)
		c.Errors[OpFaceRecognition] = err
	} else {
		c.Recognizer = NewFaceAttributeRecognizer(faceNet, ageNet, genderNet, float32(cfg.FaceConfidence))
	}

	if objNet, err := open(cfg.ObjectModel, objectNetSpec(cfg.ObjectMaxDetections)); err != nil {
		slog.Warn("object detection disabled", "error", err)
		c.Errors[OpObjectDetection] = err
	} else {
		c.Objects = NewObjectDetector(objNet, float32(cfg.ObjectConfidence), cfg.ColorSeed)
	}

	for _, n := range nets {
		c.Closers = append(c.Closers, n.Close)
	}

	slog.Info("vision pipeline ready",
		"face_detection", c.Faces != nil,
		"face_recognition", c.Recognizer != nil,
		"object_detection", c.Objects != nil,
	)
	return NewPipeline(c)
}

// Status reports readiness per operation: "ready" or the load error.
func (p *Pipeline) Status() map[string]string {
	status := map[string]string{OpFilter: "ready"}
	for _, op := range []string{OpFaceDetection, OpFaceRecognition, OpObjectDetection} {
		if err := p.unavailable(op); err != nil {
			status[op] = err.Error()
		} else {
			status[op] = "ready"
		}
	}
	return status
}

func (p *Pipeline) unavailable(op string) error {
	var loaded bool
	switch op {
	case OpFaceDetection:
		loaded = p.faces != nil
	case OpFaceRecognition:
		loaded = p.recognizer != nil
	case OpObjectDetection:
		loaded = p.objects != nil
	default:
		return nil
	}
	if loaded {
		return nil
	}
	if err, ok := p.errs[op]; ok && err != nil {
		return err
	}
	return ErrModelAssetMissing
}

// DetectFaces draws a box around every face and returns how many were drawn.
// An undecodable input yields 0 and a nil error.
func (p *Pipeline) DetectFaces(inputPath, outputPath string) (int, error) {
	if err := p.unavailable(OpFaceDetection); err != nil {
		return 0, p.fail(OpFaceDetection, err)
	}

	img, ok := p.decodeSoft(OpFaceDetection, inputPath)
	if !ok {
		return 0, nil
	}

	start := time.Now()
	faces := p.faces.Detect(img)
	observability.InferenceDuration.WithLabelValues("cascade").Observe(time.Since(start).Seconds())

	p.faces.Annotate(img, faces)
	if err := p.encode(img, outputPath); err != nil {
		return 0, p.fail(OpFaceDetection, err)
	}

	observability.FacesDetected.WithLabelValues(OpFaceDetection).Add(float64(len(faces)))
	slog.Debug("faces detected", "path", inputPath, "count", len(faces))
	return len(faces), nil
}

// RecognizeFaces labels every face with an age bucket and gender. When no
// face is found the output is the input unchanged (a byte copy when the
// formats match). An undecodable input yields an empty list and a nil error.
func (p *Pipeline) RecognizeFaces(inputPath, outputPath string) ([]FaceAttribute, error) {
	if err := p.unavailable(OpFaceRecognition); err != nil {
		return nil, p.fail(OpFaceRecognition, err)
	}

	img, ok := p.decodeSoft(OpFaceRecognition, inputPath)
	if !ok {
		return []FaceAttribute{}, nil
	}

	start := time.Now()
	people, err := p.recognizer.Recognize(img)
	observability.InferenceDuration.WithLabelValues("recognize").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, p.fail(OpFaceRecognition, fmt.Errorf("recognize faces: %w", err))
	}

	if len(people) == 0 {
		if codec.SameFormat(inputPath, outputPath) {
			err = codec.CopyFile(inputPath, outputPath)
		} else {
			err = p.encode(img, outputPath)
		}
		if err != nil {
			return nil, p.fail(OpFaceRecognition, err)
		}
		return people, nil
	}

	p.recognizer.Annotate(img, people)
	if err := p.encode(img, outputPath); err != nil {
		return nil, p.fail(OpFaceRecognition, err)
	}

	observability.FacesDetected.WithLabelValues(OpFaceRecognition).Add(float64(len(people)))
	return people, nil
}

// ApplyFilter writes the filtered image and returns its path.
func (p *Pipeline) ApplyFilter(inputPath, outputPath string, kind filters.Kind, params filters.Params) (string, error) {
	start := time.Now()
	out, err := p.filters.ApplyFile(inputPath, outputPath, kind, params)
	observability.InferenceDuration.WithLabelValues("filter").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", p.fail(OpFilter, err)
	}

	observability.FiltersApplied.WithLabelValues(string(kind)).Inc()
	return out, nil
}

// DetectObjects annotates every detected object and summarises them.
func (p *Pipeline) DetectObjects(inputPath, outputPath string) (*ObjectReport, error) {
	if err := p.unavailable(OpObjectDetection); err != nil {
		return nil, p.fail(OpObjectDetection, err)
	}

	img, err := p.decode(inputPath)
	if err != nil {
		return nil, p.fail(OpObjectDetection, err)
	}

	start := time.Now()
	dets, err := p.objects.Detect(img)
	observability.InferenceDuration.WithLabelValues("objects").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, p.fail(OpObjectDetection, fmt.Errorf("detect objects: %w", err))
	}

	p.objects.Annotate(img, dets)
	if err := p.encode(img, outputPath); err != nil {
		return nil, p.fail(OpObjectDetection, err)
	}

	for _, d := range dets {
		observability.ObjectsDetected.WithLabelValues(d.Label).Inc()
	}
	return NewObjectReport(dets), nil
}

// Close releases every network handle.
func (p *Pipeline) Close() {
	for _, c := range p.closers {
		c()
	}
	p.closers = nil
}

func (p *Pipeline) decode(path string) (*image.NRGBA, error) {
	start := time.Now()
	img, err := codec.Decode(path)
	observability.InferenceDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
	return img, err
}

func (p *Pipeline) decodeSoft(op, path string) (*image.NRGBA, bool) {
	img, err := p.decode(path)
	if err != nil {
		slog.Warn("skipping unreadable image", "operation", op, "path", path, "error", err)
		observability.PipelineErrors.WithLabelValues(op, CodeDecodeError).Inc()
		return nil, false
	}
	return img, true
}

func (p *Pipeline) encode(img *image.NRGBA, path string) error {
	start := time.Now()
	err := codec.Encode(img, path)
	observability.InferenceDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())
	return err
}

func (p *Pipeline) fail(op string, err error) error {
	code := ErrorCode(err)
	observability.PipelineErrors.WithLabelValues(op, code).Inc()
	if !errors.Is(err, ErrModelAssetMissing) {
		slog.Error("pipeline failure", "operation", op, "code", code, "error", err)
	}
	return err
}
