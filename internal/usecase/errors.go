package usecase

import (
	"errors"

	"github.com/example/face-vision/internal/descriptor"
	"github.com/example/face-vision/internal/detector"
	"github.com/example/face-vision/internal/imaging"
	"github.com/example/face-vision/internal/logging"
	"github.com/example/face-vision/internal/phash"
	"github.com/example/face-vision/internal/repository"
)

// ErrorCode is the stable machine-readable error identifier returned to
// clients.
type ErrorCode string

const (
	CodeUnsupportedFileType ErrorCode = "unsupported_file_type"
	CodeInvalidImage        ErrorCode = "invalid_image"
	CodeInvalidImageShape   ErrorCode = "invalid_image_shape"
	CodeResourceExhausted   ErrorCode = "resource_exhausted"
	CodeInvalidInput        ErrorCode = "invalid_input"
	CodeFeatureDisabled     ErrorCode = "feature_disabled"
	CodeNotFound            ErrorCode = "not_found"
	CodeInternal            ErrorCode = "internal_error"
)

var (
	// ErrInvalidInput reports a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFeatureDisabled is returned for operations the active profile
	// turns off.
	ErrFeatureDisabled = errors.New("feature disabled by profile")
	// ErrAuditDisabled is returned by metrics operations when no audit log
	// is configured.
	ErrAuditDisabled = errors.New("audit log disabled")
)

const internalMessage = "internal server error"

// Classify maps an operation failure to its client-facing code. Anything
// not recognized is internal.
func Classify(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, imaging.ErrUnsupportedType):
		return CodeUnsupportedFileType
	case errors.Is(err, imaging.ErrCorruptImage), errors.Is(err, imaging.ErrTooLarge):
		return CodeInvalidImage
	case errors.Is(err, imaging.ErrInvalidShape):
		return CodeInvalidImageShape
	case errors.Is(err, detector.ErrResourceExhausted):
		return CodeResourceExhausted
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, descriptor.ErrInvalidInput),
		errors.Is(err, phash.ErrInvalidSize):
		return CodeInvalidInput
	case errors.Is(err, ErrFeatureDisabled):
		return CodeFeatureDisabled
	case errors.Is(err, repository.ErrLogNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// PublicMessage returns the text safe to show a client. Internal failures
// get a generic message; others the cause without operation metadata.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if Classify(err) == CodeInternal {
		return internalMessage
	}
	var opErr *logging.OperationError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	return err.Error()
}
