package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/your-org/pictor/internal/api/handlers"
	"github.com/your-org/pictor/internal/codec"
	"github.com/your-org/pictor/internal/config"
	"github.com/your-org/pictor/internal/filters"
	"github.com/your-org/pictor/internal/geometry"
	"github.com/your-org/pictor/internal/jobs"
	"github.com/your-org/pictor/internal/models"
	"github.com/your-org/pictor/internal/storage"
	"github.com/your-org/pictor/internal/vision"
	"github.com/your-org/pictor/pkg/dto"
)

type fakeAnalyzer struct {
	err    error
	status map[string]string
	kind   filters.Kind
	params filters.Params
}

func (f *fakeAnalyzer) write(out string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(out, []byte("annotated"), 0o644)
}

func (f *fakeAnalyzer) DetectFaces(_, out string) (int, error) {
	if err := f.write(out); err != nil {
		return 0, err
	}
	return 2, nil
}

func (f *fakeAnalyzer) RecognizeFaces(_, out string) ([]vision.FaceAttribute, error) {
	if err := f.write(out); err != nil {
		return nil, err
	}
	return []vision.FaceAttribute{{
		Box:        geometry.Box{X1: 10, Y1: 10, X2: 50, Y2: 60},
		Confidence: 0.95,
		Age:        vision.Age38to43,
		Gender:     vision.Male,
	}}, nil
}

func (f *fakeAnalyzer) ApplyFilter(_, out string, kind filters.Kind, p filters.Params) (string, error) {
	f.kind, f.params = kind, p
	return out, f.write(out)
}

func (f *fakeAnalyzer) DetectObjects(_, out string) (*vision.ObjectReport, error) {
	if err := f.write(out); err != nil {
		return nil, err
	}
	return vision.NewObjectReport([]vision.Detection{
		{Box: geometry.Box{X1: 1, Y1: 1, X2: 9, Y2: 9}, Label: "person", ClassID: 15, Confidence: 0.9, Percent: 90},
		{Box: geometry.Box{X1: 2, Y1: 2, X2: 8, Y2: 8}, Label: "person", ClassID: 15, Confidence: 0.6, Percent: 60},
	}), nil
}

func (f *fakeAnalyzer) Status() map[string]string {
	if f.status != nil {
		return f.status
	}
	return map[string]string{vision.OpFilter: "ready"}
}

type fakePublisher struct {
	jobs []models.Job
	err  error
}

func (p *fakePublisher) PublishJob(_ context.Context, job models.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping() error { return p.err }

type testServer struct {
	router   http.Handler
	store    *storage.FileStore
	analyzer *fakeAnalyzer
}

func newTestServer(t *testing.T, publisher handlers.JobPublisher, queue handlers.Pinger) *testServer {
	t.Helper()
	store, err := storage.NewFileStore(config.ServerConfig{
		UploadDir:         t.TempDir(),
		MaxUploadMB:       1,
		AllowedExtensions: []string{"png", "jpg", "jpeg"},
	})
	if err != nil {
		t.Fatal(err)
	}
	a := &fakeAnalyzer{}
	router := NewRouter(RouterConfig{
		Store:     store,
		Executor:  jobs.NewExecutor(a, store, ""),
		Publisher: publisher,
		Queue:     queue,
	})
	return &testServer{router: router, store: store, analyzer: a}
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, path, filename string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, []byte("image"), fields)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return s.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestFaceDetection(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.upload(t, "/v1/face-detection", "group photo.jpg", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	resp := decode[dto.FaceDetectionResponse](t, rec)
	if resp.Faces != 2 {
		t.Errorf("faces: got %d", resp.Faces)
	}
	if !strings.HasPrefix(resp.Filename, "processed_") || !strings.HasSuffix(resp.Filename, "_group_photo.jpg") {
		t.Errorf("filename: got %q", resp.Filename)
	}
	if resp.URL != "/uploads/"+url.PathEscape(resp.Filename) {
		t.Errorf("url: got %q", resp.URL)
	}

	get := s.do(httptest.NewRequest(http.MethodGet, resp.URL, nil))
	if get.Code != http.StatusOK || get.Body.String() != "annotated" {
		t.Errorf("serving artifact: %d %q", get.Code, get.Body.String())
	}
}

func TestFaceRecognition_Base64(t *testing.T) {
	s := newTestServer(t, nil, nil)

	form := url.Values{
		"image_base64": {"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("image"))},
		"filename":     {"snap.png"},
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/face-recognition", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := s.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	resp := decode[dto.FaceRecognitionResponse](t, rec)
	if !strings.HasPrefix(resp.Filename, "recog_") {
		t.Errorf("filename: got %q", resp.Filename)
	}
	if len(resp.People) != 1 || resp.People[0].Age != "(38-43)" || resp.People[0].Gender != "Male" {
		t.Errorf("people: %+v", resp.People)
	}
}

func TestObjectDetection(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.upload(t, "/v1/object-detection", "street.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	resp := decode[dto.ObjectDetectionResponse](t, rec)
	if resp.TotalObjects != 2 || resp.ObjectCounts["person"] != 2 || len(resp.Detections) != 2 {
		t.Errorf("response: %+v", resp)
	}
	if resp.Detections[0].Confidence != 90 {
		t.Errorf("confidence should be a percentage, got %v", resp.Detections[0].Confidence)
	}
}

func TestFilters(t *testing.T) {
	s := newTestServer(t, nil, nil)

	list := decode[dto.FilterListResponse](t, s.do(httptest.NewRequest(http.MethodGet, "/v1/filters", nil)))
	if len(list.Filters) != len(filters.Kinds()) {
		t.Errorf("filters: got %v", list.Filters)
	}

	rec := s.upload(t, "/v1/filters", "a.png", map[string]string{"filter": "Adjustable", "brightness": "150", "blur": "3"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	resp := decode[dto.FilterResponse](t, rec)
	if resp.Filter != "adjustable" || !strings.HasPrefix(resp.Filename, "filtered_") {
		t.Errorf("response: %+v", resp)
	}
	want := filters.Params{Brightness: 150, Contrast: 100, Blur: 3}
	if s.analyzer.params != want {
		t.Errorf("params: got %+v, want %+v", s.analyzer.params, want)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		filename   string
		fields     map[string]string
		analyzeErr error
		wantStatus int
		wantCode   string
	}{
		{"no file", "/v1/face-detection", "", nil, nil, http.StatusBadRequest, vision.CodeInvalidUpload},
		{"bad extension", "/v1/face-detection", "doc.pdf", nil, nil, http.StatusBadRequest, vision.CodeInvalidUpload},
		{"brightness out of range", "/v1/filters", "a.png", map[string]string{"filter": "adjustable", "brightness": "300"}, nil, http.StatusBadRequest, vision.CodeTransformError},
		{"brightness not a number", "/v1/filters", "a.png", map[string]string{"filter": "adjustable", "brightness": "abc"}, nil, http.StatusBadRequest, vision.CodeTransformError},
		{"undecodable", "/v1/object-detection", "a.png", nil, &codec.DecodeError{Source: "a.png", Err: errors.New("bad")}, http.StatusUnprocessableEntity, vision.CodeDecodeError},
		{"missing model", "/v1/object-detection", "a.png", nil, &vision.AssetError{Path: "m.onnx", Err: os.ErrNotExist}, http.StatusServiceUnavailable, vision.CodeModelAssetMissing},
		{"runtime down", "/v1/face-recognition", "a.png", nil, vision.ErrInferenceUnavailable, http.StatusServiceUnavailable, vision.CodeInferenceUnavailable},
		{"encode", "/v1/face-detection", "a.png", nil, &codec.EncodeError{Path: "x", Err: os.ErrPermission}, http.StatusInternalServerError, vision.CodeEncodeError},
		{"internal", "/v1/face-detection", "a.png", nil, errors.New("boom"), http.StatusInternalServerError, vision.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, nil)
			s.analyzer.err = tt.analyzeErr

			rec := s.upload(t, tt.path, tt.filename, tt.fields)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body)
			}
			resp := decode[dto.ErrorResponse](t, rec)
			if resp.Code != tt.wantCode {
				t.Errorf("code: got %q, want %q", resp.Code, tt.wantCode)
			}
			if tt.wantCode == vision.CodeModelAssetMissing && resp.Error != "required model files are missing" {
				t.Errorf("message: got %q", resp.Error)
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, nil, nil)

	body, ct := multipartBody(t, "huge.png", bytes.Repeat([]byte{0xff}, 3<<20), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/face-detection", body)
	req.Header.Set("Content-Type", ct)

	rec := s.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body)
	}
	if resp := decode[dto.ErrorResponse](t, rec); resp.Code != vision.CodeInvalidUpload {
		t.Errorf("code: got %q", resp.Code)
	}
}

func TestServeUploads_NotFound(t *testing.T) {
	s := newTestServer(t, nil, nil)
	for _, p := range []string{"/uploads/missing.png", "/uploads/..%2fconfig.yaml", "/uploads/.."} {
		if rec := s.do(httptest.NewRequest(http.MethodGet, p, nil)); rec.Code != http.StatusNotFound {
			t.Errorf("%s: got %d", p, rec.Code)
		}
	}
}

func TestJobs(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		rec := s.upload(t, "/v1/jobs", "a.png", map[string]string{"operation": "face_detection"})
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status: got %d", rec.Code)
		}
		if resp := decode[dto.ErrorResponse](t, rec); resp.Code != "queue_unavailable" {
			t.Errorf("code: got %q", resp.Code)
		}
	})

	t.Run("queued", func(t *testing.T) {
		pub := &fakePublisher{}
		s := newTestServer(t, pub, fakePinger{})

		rec := s.upload(t, "/v1/jobs", "a.png", map[string]string{"operation": "filter", "filter": "sepia"})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status %d: %s", rec.Code, rec.Body)
		}
		resp := decode[dto.JobAccepted](t, rec)
		if resp.Status != "queued" || len(pub.jobs) != 1 || pub.jobs[0].ID != resp.JobID {
			t.Fatalf("accepted %+v, published %+v", resp, pub.jobs)
		}
		job := pub.jobs[0]
		if job.Filter != filters.KindSepia || job.ArtifactKey != "filtered_"+job.InputKey {
			t.Errorf("job: %+v", job)
		}
		if !s.store.Exists(job.InputKey) {
			t.Error("job input should be stored before publishing")
		}
	})

	t.Run("unknown operation", func(t *testing.T) {
		s := newTestServer(t, &fakePublisher{}, fakePinger{})
		rec := s.upload(t, "/v1/jobs", "a.png", map[string]string{"operation": "resize"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d", rec.Code)
		}
		if resp := decode[dto.ErrorResponse](t, rec); resp.Code != jobs.CodeInvalidRequest {
			t.Errorf("code: got %q", resp.Code)
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		s := newTestServer(t, &fakePublisher{err: errors.New("nats down")}, fakePinger{})
		rec := s.upload(t, "/v1/jobs", "a.png", map[string]string{"operation": "face_detection"})
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status: got %d", rec.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)
	if rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d", rec.Code)
	}

	type readiness struct {
		Status     string            `json:"status"`
		Checks     map[string]string `json:"checks"`
		Operations map[string]string `json:"operations"`
	}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	r := decode[readiness](t, rec)
	if rec.Code != http.StatusOK || r.Status != "ready" || r.Checks["nats"] != "disabled" {
		t.Errorf("readyz: %d %+v", rec.Code, r)
	}

	s.analyzer.status = map[string]string{vision.OpFilter: "ready", vision.OpObjectDetection: "required model files are missing"}
	rec = s.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if r := decode[readiness](t, rec); rec.Code != http.StatusOK || r.Status != "degraded" {
		t.Errorf("degraded readyz: %d %+v", rec.Code, r)
	}

	down := newTestServer(t, &fakePublisher{}, fakePinger{err: errors.New("nats not connected")})
	rec = down.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with queue down: got %d", rec.Code)
	}
}
