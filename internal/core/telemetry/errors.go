package telemetry

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrInvalidRange       = errors.New("invalid time range")
	ErrInvalidGranularity = errors.New("invalid granularity")
	ErrInvalidField       = errors.New("invalid field selector")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// ValidationError is a caller error detected before any work is performed.
// Value carries the offending input verbatim.
type ValidationError struct {
	Kind   error
	Param  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s=%v: %s", e.Kind, e.Param, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s: %s=%v", e.Kind, e.Param, e.Value)
}

// Unwrap exposes both the specific kind and ErrValidation to errors.Is.
func (e *ValidationError) Unwrap() []error {
	return []error{e.Kind, ErrValidation}
}

// InvalidRange reports a range whose end does not lie after its start.
func InvalidRange(start, end time.Time) error {
	return &ValidationError{
		Kind:   ErrInvalidRange,
		Param:  "range",
		Value:  fmt.Sprintf("[%s, %s)", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		Reason: "end must be after start",
	}
}

// InvalidArgument builds a ValidationError for a numeric or free-form parameter.
func InvalidArgument(param string, value interface{}, reason string) error {
	return &ValidationError{Kind: ErrInvalidArgument, Param: param, Value: value, Reason: reason}
}
