package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindProbeFailure       Kind = "probe_failure"
	KindInvalidDimensions  Kind = "invalid_dimensions"
	KindEncodeFailure      Kind = "encode_failure"
	KindMalformedStructure Kind = "malformed_structure"
	KindInvalidSegment     Kind = "invalid_segment"
	KindConfig             Kind = "config"
	KindTransport          Kind = "transport"
	KindStorage            Kind = "storage"
)

// Error is the typed error shared by the image pipeline and the token inspector.
// Field names the offending part of the input when there is one (a token segment,
// a config key).
type Error struct {
	Kind    Kind
	Op      string
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s:%s]", e.Kind, e.Op)
	if e.Field != "" {
		prefix = fmt.Sprintf("[%s:%s:%s]", e.Kind, e.Op, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// Wrap keeps an already typed error as is. A nil err yields the same error
// New would, so the result is never a nil *Error.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return New(kind, op, message)
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// WithField returns a copy of e that names the offending input.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}

// FieldOf reports the Field of the first typed error in the chain.
func FieldOf(err error) (string, bool) {
	var target *Error
	if errors.As(err, &target) && target.Field != "" {
		return target.Field, true
	}
	return "", false
}
