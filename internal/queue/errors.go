package queue

import (
	"context"
	"errors"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mahirjain10/convertkit/internal/apperrors"
)

// ProcessingError tells the consumer loop whether to requeue a delivery.
type ProcessingError struct {
	Err     error
	Requeue bool
}

func (p ProcessingError) Error() string {
	return p.Err.Error()
}

func (p ProcessingError) Unwrap() error {
	return p.Err
}

func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover
	}
	errorStr := strings.ToLower(err.Error())
	return strings.Contains(errorStr, "timeout") || strings.Contains(errorStr, "connection reset")
}

// IsFatalError reports infrastructure failures that stop a Worker rather than
// being retried per message.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) || apperrors.IsKind(err, apperrors.KindConfig) {
		return true
	}
	errorStr := strings.ToLower(err.Error())

	if strings.Contains(errorStr, "connection closed") || strings.Contains(errorStr, "channel closed") {
		return true
	}
	if strings.Contains(errorStr, "invalid credentials") || strings.Contains(errorStr, "access denied") {
		return true
	}
	if strings.Contains(errorStr, "no space left") || strings.Contains(errorStr, "out of memory") {
		return true
	}
	return false
}

// requeueFor decides the Nack requeue flag for a failed delivery.
func requeueFor(err error) bool {
	var procErr ProcessingError
	if errors.As(err, &procErr) {
		return procErr.Requeue
	}
	return IsTransientError(err)
}
