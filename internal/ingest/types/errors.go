package types

import "errors"

// Pipeline error taxonomy. Stages wrap these with context via %w.
var (
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrUnsupportedType   = errors.New("unsupported type")
	ErrCorruptInput      = errors.New("corrupt input")
	ErrTranscodeFailure  = errors.New("transcode failure")
	ErrStorageIO         = errors.New("storage i/o failure")
	ErrLockedFileWarning = errors.New("staged file locked")
)

// Kind returns the taxonomy name of err for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrCorruptInput):
		return "corrupt_input"
	case errors.Is(err, ErrTranscodeFailure):
		return "transcode_failure"
	case errors.Is(err, ErrStorageIO):
		return "storage_io"
	case errors.Is(err, ErrLockedFileWarning):
		return "locked_file"
	default:
		return "internal"
	}
}

// IsRejection reports whether err is a content verdict rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrCorruptInput)
}
