package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/pictor/internal/filters"
	"github.com/your-org/pictor/internal/jobs"
	"github.com/your-org/pictor/internal/models"
	"github.com/your-org/pictor/internal/storage"
	"github.com/your-org/pictor/pkg/dto"
)

// AnalysisHandler serves the synchronous analysis endpoints. Every request
// stores its input first; the artifact is written next to it.
type AnalysisHandler struct {
	store *storage.FileStore
	exec  *jobs.Executor
}

func NewAnalysisHandler(store *storage.FileStore, exec *jobs.Executor) *AnalysisHandler {
	return &AnalysisHandler{store: store, exec: exec}
}

func (h *AnalysisHandler) FaceDetection(c *gin.Context) {
	h.run(c, models.OperationFaceDetection)
}

func (h *AnalysisHandler) FaceRecognition(c *gin.Context) {
	h.run(c, models.OperationFaceRecognition)
}

func (h *AnalysisHandler) Filter(c *gin.Context) {
	h.run(c, models.OperationFilter)
}

func (h *AnalysisHandler) ObjectDetection(c *gin.Context) {
	h.run(c, models.OperationObjectDetection)
}

// ListFilters returns every filter name accepted by POST /v1/filters.
func (h *AnalysisHandler) ListFilters(c *gin.Context) {
	kinds := filters.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	c.JSON(http.StatusOK, dto.FilterListResponse{Filters: names})
}

// Serve returns a stored upload or artifact.
func (h *AnalysisHandler) Serve(c *gin.Context) {
	key := c.Param("filename")
	path, err := h.store.Path(key)
	if err != nil || !h.store.Exists(key) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "file not found", Code: "not_found"})
		return
	}
	c.File(path)
}

func (h *AnalysisHandler) run(c *gin.Context, op models.Operation) {
	req, err := parseRequest(c, h.store, op)
	if err != nil {
		writeError(c, err)
		return
	}

	body, _, err := h.exec.Run(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// parseRequest stores the input image and reads the filter fields.
func parseRequest(c *gin.Context, store *storage.FileStore, op models.Operation) (jobs.Request, error) {
	req := jobs.Request{Operation: op}
	if op == models.OperationFilter {
		kind, params, err := parseFilter(c)
		if err != nil {
			return req, err
		}
		req.Filter, req.Params = kind, params
	}

	up, err := saveInput(c, store)
	if err != nil {
		return req, err
	}
	req.InputKey = up.Key
	return req, nil
}

// saveInput accepts a multipart "file" or a base64 "image_base64" field
// with its "filename".
func saveInput(c *gin.Context, store *storage.FileStore) (*storage.Upload, error) {
	fh, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return store.SaveUpload(c.Request.Context(), fh)
	case errors.As(err, &tooLarge):
		return nil, &storage.UploadError{Reason: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
	}

	if payload := c.PostForm("image_base64"); payload != "" {
		return store.SaveBase64(c.Request.Context(), c.PostForm("filename"), payload)
	}
	return nil, &storage.UploadError{Reason: "no file part"}
}

func parseFilter(c *gin.Context) (filters.Kind, filters.Params, error) {
	kind := filters.ParseKind(c.PostForm("filter"))
	params := filters.DefaultParams()

	fields := []struct {
		name string
		dst  *int
	}{
		{"brightness", &params.Brightness},
		{"contrast", &params.Contrast},
		{"sepia", &params.Sepia},
		{"blur", &params.Blur},
	}
	for _, f := range fields {
		v := c.PostForm(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return kind, params, &filters.TransformError{Kind: kind, Err: fmt.Errorf("%s must be an integer", f.name)}
		}
		*f.dst = n
	}

	if kind == filters.KindAdjustable {
		if err := params.Validate(); err != nil {
			return kind, params, &filters.TransformError{Kind: kind, Err: err}
		}
	}
	return kind, params, nil
}
