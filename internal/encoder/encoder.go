package encoder

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mahirjain10/convertkit/internal/transformation"
	"github.com/mahirjain10/convertkit/internal/types"
)

// Encoder re-encodes an image payload. Failures are reported in the result,
// never as a Go error, so callers handle both outcomes in one place.
type Encoder interface {
	Encode(ctx context.Context, req types.ConversionRequest) types.ConversionResult
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(ctx context.Context, req types.ConversionRequest) types.ConversionResult

func (f EncoderFunc) Encode(ctx context.Context, req types.ConversionRequest) types.ConversionResult {
	return f(ctx, req)
}

// NewRequest builds a request with a fresh id.
func NewRequest(payload string, width, height int, format types.Format) types.ConversionRequest {
	return types.ConversionRequest{
		ID:      uuid.NewString(),
		Payload: payload,
		Width:   width,
		Height:  height,
		Format:  format,
	}
}

// Local runs conversions in-process, at most maxParallel at a time.
type Local struct {
	opts   transformation.Options
	sem    *semaphore.Weighted
	logger *slog.Logger
}

func NewLocal(maxParallel int64, opts transformation.Options, logger *slog.Logger) *Local {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Local{
		opts:   opts,
		sem:    semaphore.NewWeighted(maxParallel),
		logger: logger,
	}
}

func (l *Local) Encode(ctx context.Context, req types.ConversionRequest) types.ConversionResult {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return types.Failure(err.Error())
	}
	defer l.sem.Release(1)

	start := time.Now()
	out, err := transformation.Process(req.Payload, req.Width, req.Height, string(req.Format), l.opts)
	if err != nil {
		l.logger.Warn("[encoder] conversion failed", "id", req.ID, "format", req.Format, "error", err)
		return types.Failure(err.Error())
	}
	l.logger.Debug("[encoder] conversion done", "id", req.ID, "format", req.Format,
		"width", req.Width, "height", req.Height, "took", time.Since(start))
	return types.Success(out, req.Format.MimeType())
}
