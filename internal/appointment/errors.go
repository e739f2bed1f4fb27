package appointment

import (
	"errors"
	"fmt"
)

var (
	// ErrInternal is returned when a booking could not be completed after its quota was
	// reserved. The reservation has been released by the time the caller sees it.
	ErrInternal                = errors.New("internal error")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrNotRefreshable          = errors.New("appointment risk can no longer be refreshed")
)

// ValidationError reports a bad request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
