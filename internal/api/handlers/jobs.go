package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/pictor/internal/jobs"
	"github.com/your-org/pictor/internal/models"
	"github.com/your-org/pictor/internal/storage"
	"github.com/your-org/pictor/pkg/dto"
)

// JobPublisher queues jobs for the worker. *queue.Producer implements it.
type JobPublisher interface {
	PublishJob(ctx context.Context, job models.Job) error
}

type JobHandler struct {
	store     *storage.FileStore
	publisher JobPublisher
}

// NewJobHandler builds the handler. A nil publisher disables submission.
func NewJobHandler(store *storage.FileStore, publisher JobPublisher) *JobHandler {
	return &JobHandler{store: store, publisher: publisher}
}

// Submit stores the input and queues the operation. Results arrive on the
// websocket feed.
func (h *JobHandler) Submit(c *gin.Context) {
	if h.publisher == nil {
		writeError(c, errQueueDisabled)
		return
	}

	op := models.Operation(c.PostForm("operation"))
	if !op.Valid() {
		writeError(c, fmt.Errorf("%w: %q", jobs.ErrUnknownOperation, op))
		return
	}

	req, err := parseRequest(c, h.store, op)
	if err != nil {
		writeError(c, err)
		return
	}
	art, err := h.store.ArtifactFor(op.ArtifactPrefix(), req.InputKey, "")
	if err != nil {
		writeError(c, err)
		return
	}

	job := models.Job{
		ID:          uuid.New(),
		Operation:   op,
		InputKey:    req.InputKey,
		ArtifactKey: art.Key,
		Filter:      req.Filter,
		Params:      req.Params,
		SubmittedAt: time.Now().UTC(),
	}
	if err := h.publisher.PublishJob(c.Request.Context(), job); err != nil {
		slog.Error("publish job", "job_id", job.ID, "error", err)
		writeError(c, fmt.Errorf("%w: %v", errQueueDisabled, err))
		return
	}

	slog.Info("job queued", "job_id", job.ID, "operation", op, "input", job.InputKey)
	c.JSON(http.StatusAccepted, dto.JobAccepted{JobID: job.ID, Status: string(models.JobStatusQueued)})
}
