package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/pictor/internal/storage"
)

// Pinger reports connectivity of an optional dependency.
type Pinger interface {
	Ping() error
}

// StatusReporter reports readiness per pipeline operation.
type StatusReporter interface {
	Status() map[string]string
}

type SystemHandler struct {
	store    *storage.FileStore
	pipeline StatusReporter
	queue    Pinger
}

// NewSystemHandler builds the handler. queue may be nil when async jobs
// are disabled.
func NewSystemHandler(store *storage.FileStore, pipeline StatusReporter, queue Pinger) *SystemHandler {
	return &SystemHandler{store: store, pipeline: pipeline, queue: queue}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz fails when the upload directory is unusable or a configured queue
// is unreachable. Missing model assets only degrade the affected operations.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		checks["storage"] = err.Error()
		healthy = false
	} else {
		checks["storage"] = "ok"
	}

	if h.queue == nil {
		checks["nats"] = "disabled"
	} else if err := h.queue.Ping(); err != nil {
		checks["nats"] = err.Error()
		healthy = false
	} else {
		checks["nats"] = "ok"
	}

	operations := h.pipeline.Status()
	degraded := false
	for _, s := range operations {
		if s != "ready" {
			degraded = true
		}
	}

	status, state := http.StatusOK, "ready"
	switch {
	case !healthy:
		status, state = http.StatusServiceUnavailable, "not ready"
	case degraded:
		state = "degraded"
	}

	c.JSON(status, gin.H{
		"status":     state,
		"checks":     checks,
		"operations": operations,
	})
}
