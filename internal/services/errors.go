package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCaptureDenied         = errors.New("capture denied")
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	ErrTrimUnavailable       = errors.New("trim unavailable")
	ErrUpload                = errors.New("upload failure")
	ErrInvalidTransition     = errors.New("invalid stage transition")
	ErrExternalTool          = errors.New("external tool error")
	ErrValidation            = errors.New("validation error")
	ErrConfiguration         = errors.New("configuration error")
	ErrNotFound              = errors.New("not found")
	ErrTransient             = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Recoverable reports whether the pipeline should stay in its current stage and
// offer the user a retry. Capture denial and upload failures keep every held
// artifact; anything else ends the attempt.
func Recoverable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCaptureDenied), errors.Is(err, ErrUpload), errors.Is(err, ErrTransient):
		return true
	default:
		return false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
