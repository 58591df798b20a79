package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/pictor/internal/filters"
)

// Operation selects a pipeline entry point.
type Operation string

const (
	OperationFaceDetection   Operation = "face_detection"
	OperationFaceRecognition Operation = "face_recognition"
	OperationFilter          Operation = "filter"
	OperationObjectDetection Operation = "object_detection"
)

// Operations lists every supported operation.
func Operations() []Operation {
	return []Operation{OperationFaceDetection, OperationFaceRecognition, OperationFilter, OperationObjectDetection}
}

// Valid reports whether o names a supported operation.
func (o Operation) Valid() bool {
	for _, op := range Operations() {
		if o == op {
			return true
		}
	}
	return false
}

// ArtifactPrefix is prepended to the upload key to name the operation's
// output file.
func (o Operation) ArtifactPrefix() string {
	switch o {
	case OperationFaceDetection:
		return "processed_"
	case OperationFaceRecognition:
		return "recog_"
	case OperationFilter:
		return "filtered_"
	case OperationObjectDetection:
		return "objects_"
	default:
		return ""
	}
}

type JobStatus string

const (
	JobStatusQueued JobStatus = "queued"
	JobStatusDone   JobStatus = "done"
	JobStatusFailed JobStatus = "failed"
)

// Job is the message published to NATS for worker processing. Keys are
// file names inside the shared upload directory.
type Job struct {
	ID          uuid.UUID      `json:"id"`
	Operation   Operation      `json:"operation"`
	InputKey    string         `json:"input_key"`
	ArtifactKey string         `json:"artifact_key"`
	Filter      filters.Kind   `json:"filter,omitempty"`
	Params      filters.Params `json:"params"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// JobResult is published by a worker once a job has run. Result holds the
// same JSON body the synchronous endpoint would have returned.
type JobResult struct {
	JobID       uuid.UUID       `json:"job_id"`
	Operation   Operation       `json:"operation"`
	Status      JobStatus       `json:"status"`
	ErrorCode   string          `json:"error_code,omitempty"`
	Error       string          `json:"error,omitempty"`
	ArtifactKey string          `json:"artifact_key,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}
