package types

import (
	"fmt"
	"strings"

	"github.com/mahirjain10/convertkit/internal/apperrors"
)

type Format string

const (
	WEBP Format = "webp"
	JPG  Format = "jpg"
	ICO  Format = "ico"
	PNG  Format = "png"
	BMP  Format = "bmp"
)

// Formats lists the output formats in the order the converter offers them.
var Formats = []Format{WEBP, JPG, ICO, PNG, BMP}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "webp":
		return WEBP, nil
	case "jpg", "jpeg":
		return JPG, nil
	case "ico":
		return ICO, nil
	case "png":
		return PNG, nil
	case "bmp":
		return BMP, nil
	default:
		return "", fmt.Errorf("Unsupported format: %s", s)
	}
}

func (f Format) MimeType() string {
	switch f {
	case WEBP:
		return "image/webp"
	case JPG:
		return "image/jpeg"
	case ICO:
		return "image/x-icon"
	case PNG:
		return "image/png"
	case BMP:
		return "image/bmp"
	default:
		return ""
	}
}

// ConversionRequest is what the orchestrator hands to an encoder.
type ConversionRequest struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  Format `json:"format"`
}

type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultFailure
)

// ConversionResult is either a success carrying a data URI and its mime type or
// a failure carrying the encoder's message. Every failure, including transport
// failures of a remote encoder, has Reason KindEncodeFailure.
type ConversionResult struct {
	Kind     ResultKind
	Payload  string
	MimeType string
	Message  string
	Reason   apperrors.Kind
}

func Success(payload, mimeType string) ConversionResult {
	return ConversionResult{Kind: ResultSuccess, Payload: payload, MimeType: mimeType}
}

func Failure(message string) ConversionResult {
	return ConversionResult{Kind: ResultFailure, Message: message, Reason: apperrors.KindEncodeFailure}
}

func (r ConversionResult) Failed() bool {
	return r.Kind == ResultFailure
}

// Err returns the failure as a typed error whose message is shown to the user
// as it is, or nil for a success.
func (r ConversionResult) Err() error {
	if !r.Failed() {
		return nil
	}
	return apperrors.New(r.Reason, "encoder.Encode", r.Message)
}
