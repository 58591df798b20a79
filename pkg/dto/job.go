package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type JobAccepted struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

// WSEvent is a WebSocket message announcing a finished job.
type WSEvent struct {
	Type  string          `json:"type"` // job_completed, job_failed
	JobID uuid.UUID       `json:"job_id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorResponse  `json:"error,omitempty"`
}
