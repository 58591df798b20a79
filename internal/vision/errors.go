package vision

import (
	"errors"
	"fmt"

	"github.com/your-org/pictor/internal/codec"
	"github.com/your-org/pictor/internal/filters"
)

var (
	// ErrModelAssetMissing is returned when a pretrained cascade or network
	// file is not on disk.
	ErrModelAssetMissing = errors.New("required model files are missing")

	// ErrInferenceUnavailable is returned when ONNX Runtime could not be
	// initialised, so no neural network can be loaded at all.
	ErrInferenceUnavailable = errors.New("inference runtime unavailable")
)

// AssetError names the missing file. It matches ErrModelAssetMissing with
// errors.Is.
type AssetError struct {
	Path string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("model asset %s: %v", e.Path, ErrModelAssetMissing)
}

func (e *AssetError) Unwrap() error { return e.Err }

func (e *AssetError) Is(target error) bool { return target == ErrModelAssetMissing }

// Error codes surfaced to API clients.
const (
	CodeInvalidUpload        = "invalid_upload"
	CodeTransformError       = "transform_error"
	CodeDecodeError          = "decode_error"
	CodeModelAssetMissing    = "model_asset_missing"
	CodeInferenceUnavailable = "inference_unavailable"
	CodeEncodeError          = "encode_error"
	CodeInternal             = "internal"
)

// ErrorCode maps an error from any pipeline stage to a stable code.
func ErrorCode(err error) string {
	var (
		decErr   *codec.DecodeError
		encErr   *codec.EncodeError
		transErr *filters.TransformError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelAssetMissing):
		return CodeModelAssetMissing
	case errors.Is(err, ErrInferenceUnavailable):
		return CodeInferenceUnavailable
	case errors.As(err, &decErr):
		return CodeDecodeError
	case errors.As(err, &transErr):
		return CodeTransformError
	case errors.As(err, &encErr):
		return CodeEncodeError
	default:
		return CodeInternal
	}
}
