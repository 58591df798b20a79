// Package jobs runs one pipeline operation against a stored upload and
// shapes the response body. The HTTP handlers call it synchronously and the
// worker calls it for queued jobs, so both paths return identical payloads.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/your-org/pictor/internal/filters"
	"github.com/your-org/pictor/internal/models"
	"github.com/your-org/pictor/internal/observability"
	"github.com/your-org/pictor/internal/storage"
	"github.com/your-org/pictor/internal/vision"
	"github.com/your-org/pictor/pkg/dto"
)

// CodeInvalidRequest is reported for requests naming an unknown operation.
const CodeInvalidRequest = "invalid_request"

var ErrUnknownOperation = errors.New("unknown operation")

// Analyzer is the set of pipeline entry points. *vision.Pipeline
// implements it.
type Analyzer interface {
	DetectFaces(inputPath, outputPath string) (int, error)
	RecognizeFaces(inputPath, outputPath string) ([]vision.FaceAttribute, error)
	ApplyFilter(inputPath, outputPath string, kind filters.Kind, params filters.Params) (string, error)
	DetectObjects(inputPath, outputPath string) (*vision.ObjectReport, error)
	Status() map[string]string
}

var _ Analyzer = (*vision.Pipeline)(nil)

// Request is one operation on an upload already in the store. An empty
// ArtifactKey is derived from the operation prefix and InputKey.
type Request struct {
	Operation   models.Operation
	InputKey    string
	ArtifactKey string
	Filter      filters.Kind
	Params      filters.Params
}

type Executor struct {
	analyzer Analyzer
	store    *storage.FileStore
	baseURL  string
}

func NewExecutor(analyzer Analyzer, store *storage.FileStore, publicBaseURL string) *Executor {
	return &Executor{
		analyzer: analyzer,
		store:    store,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
	}
}

func (e *Executor) Analyzer() Analyzer { return e.analyzer }

// URL is where a stored key is served.
func (e *Executor) URL(key string) string {
	return e.baseURL + "/uploads/" + url.PathEscape(key)
}

// Run executes req and returns the response body together with the
// artifact key.
func (e *Executor) Run(ctx context.Context, req Request) (any, string, error) {
	if !req.Operation.Valid() {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	in, err := e.store.Path(req.InputKey)
	if err != nil {
		return nil, "", err
	}
	art, err := e.artifact(req)
	if err != nil {
		return nil, "", err
	}
	link := e.URL(art.Key)

	switch req.Operation {
	case models.OperationFaceDetection:
		n, err := e.analyzer.DetectFaces(in, art.Path)
		if err != nil {
			return nil, "", err
		}
		return dto.FaceDetectionResponse{Filename: art.Key, URL: link, Faces: n}, art.Key, nil

	case models.OperationFaceRecognition:
		people, err := e.analyzer.RecognizeFaces(in, art.Path)
		if err != nil {
			return nil, "", err
		}
		return dto.FaceRecognitionResponse{Filename: art.Key, URL: link, People: personResponses(people)}, art.Key, nil

	case models.OperationFilter:
		kind := req.Filter
		if kind == "" {
			kind = filters.KindNone
		}
		if _, err := e.analyzer.ApplyFilter(in, art.Path, kind, req.Params); err != nil {
			return nil, "", err
		}
		return dto.FilterResponse{Filename: art.Key, URL: link, Filter: string(kind)}, art.Key, nil

	default: // models.OperationObjectDetection
		report, err := e.analyzer.DetectObjects(in, art.Path)
		if err != nil {
			return nil, "", err
		}
		return objectResponse(art.Key, link, report), art.Key, nil
	}
}

func (e *Executor) artifact(req Request) (storage.Artifact, error) {
	if req.ArtifactKey == "" {
		return e.store.ArtifactFor(req.Operation.ArtifactPrefix(), req.InputKey, "")
	}
	path, err := e.store.Path(req.ArtifactKey)
	if err != nil {
		return storage.Artifact{}, err
	}
	return storage.Artifact{Key: req.ArtifactKey, Path: path}, nil
}

// Execute runs a queued job. Failures are reported in the result, never
// returned, so a bad job is not redelivered.
func (e *Executor) Execute(ctx context.Context, job models.Job) models.JobResult {
	res := models.JobResult{
		JobID:     job.ID,
		Operation: job.Operation,
		Status:    models.JobStatusDone,
	}

	body, key, err := e.Run(ctx, Request{
		Operation:   job.Operation,
		InputKey:    job.InputKey,
		ArtifactKey: job.ArtifactKey,
		Filter:      job.Filter,
		Params:      job.Params,
	})
	if err == nil {
		res.ArtifactKey = key
		res.Result, err = json.Marshal(body)
	}
	if err != nil {
		res.Status = models.JobStatusFailed
		res.ErrorCode = ErrorCode(err)
		res.Error = err.Error()
		slog.Warn("job failed", "job_id", job.ID, "operation", job.Operation, "code", res.ErrorCode, "error", err)
	}

	res.CompletedAt = time.Now().UTC()
	observability.JobsProcessed.WithLabelValues(string(job.Operation), string(res.Status)).Inc()
	return res
}

// ErrorCode extends vision.ErrorCode with upload and request errors.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, storage.ErrInvalidUpload), errors.Is(err, storage.ErrNotFound):
		return vision.CodeInvalidUpload
	case errors.Is(err, ErrUnknownOperation):
		return CodeInvalidRequest
	default:
		return vision.ErrorCode(err)
	}
}

func personResponses(people []vision.FaceAttribute) []dto.PersonResponse {
	out := make([]dto.PersonResponse, 0, len(people))
	for _, p := range people {
		out = append(out, dto.PersonResponse{
			Age:        p.Age.String(),
			Gender:     p.Gender.String(),
			Box:        dto.Box{p.Box.X1, p.Box.Y1, p.Box.X2, p.Box.Y2},
			Confidence: p.Confidence,
		})
	}
	return out
}

func objectResponse(key, link string, r *vision.ObjectReport) dto.ObjectDetectionResponse {
	if r == nil {
		r = vision.NewObjectReport(nil)
	}
	dets := make([]dto.DetectedObject, 0, len(r.Detections))
	for _, d := range r.Detections {
		dets = append(dets, dto.DetectedObject{
			Label:      d.Label,
			Confidence: d.Percent,
			Box:        dto.Box{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
		})
	}
	return dto.ObjectDetectionResponse{
		Filename:     key,
		URL:          link,
		TotalObjects: r.TotalObjects,
		ObjectCounts: r.ObjectCounts,
		Detections:   dets,
	}
}
