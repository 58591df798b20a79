package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/pictor/internal/jobs"
	"github.com/your-org/pictor/internal/vision"
	"github.com/your-org/pictor/pkg/dto"
)

// CodeQueueUnavailable is returned by job endpoints when NATS is not
// configured or not connected.
const CodeQueueUnavailable = "queue_unavailable"

var errQueueDisabled = errors.New("asynchronous jobs are disabled")

// StatusFor maps an error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case vision.CodeInvalidUpload, vision.CodeTransformError, jobs.CodeInvalidRequest:
		return http.StatusBadRequest
	case vision.CodeDecodeError:
		return http.StatusUnprocessableEntity
	case vision.CodeModelAssetMissing, vision.CodeInferenceUnavailable, CodeQueueUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := jobs.ErrorCode(err)
	if errors.Is(err, errQueueDisabled) {
		code = CodeQueueUnavailable
	}

	msg := err.Error()
	switch code {
	case vision.CodeModelAssetMissing:
		msg = vision.ErrModelAssetMissing.Error()
	case vision.CodeInternal:
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
		msg = "internal error"
	}

	c.AbortWithStatusJSON(StatusFor(code), dto.ErrorResponse{Error: msg, Code: code})
}
