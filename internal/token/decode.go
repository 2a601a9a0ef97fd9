// Package token splits compact signed tokens (JWTs) into their parts and reads
// their time claims. Signatures are never verified.
package token

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mahirjain10/convertkit/internal/apperrors"
)

type Segment string

const (
	SegmentHeader  Segment = "header"
	SegmentPayload Segment = "payload"
)

// Segments holds the three raw dot-separated parts of a token.
type Segments struct {
	Header    string
	Payload   string
	Signature string
}

// Decoded is a token with its header and payload parsed. Signature stays raw.
type Decoded struct {
	Raw       Segments
	Header    map[string]any
	Payload   jwt.MapClaims
	Signature string
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Split checks the three-part structure without decoding anything.
func Split(raw string) (Segments, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Segments{}, apperrors.New(apperrors.KindMalformedStructure, "token.Split",
			fmt.Sprintf("expected 3 dot-separated segments, got %d", len(parts)))
	}
	return Segments{Header: parts[0], Payload: parts[1], Signature: parts[2]}, nil
}

func Decode(raw string) (*Decoded, error) {
	segs, err := Split(raw)
	if err != nil {
		return nil, err
	}

	header, err := decodeObject(segs.Header, SegmentHeader)
	if err != nil {
		return nil, err
	}
	payload, err := decodeObject(segs.Payload, SegmentPayload)
	if err != nil {
		return nil, err
	}

	return &Decoded{
		Raw:       segs,
		Header:    header,
		Payload:   jwt.MapClaims(payload),
		Signature: segs.Signature,
	}, nil
}

// FailedSegment reports which segment an InvalidSegment error refers to.
func FailedSegment(err error) (Segment, bool) {
	if !apperrors.IsKind(err, apperrors.KindInvalidSegment) {
		return "", false
	}
	field, ok := apperrors.FieldOf(err)
	return Segment(field), ok
}

func decodeObject(seg string, which Segment) (map[string]any, error) {
	raw, err := segmentParser.DecodeSegment(seg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSegment, "token.Decode", "invalid base64url", err).
			WithField(string(which))
	}

	var obj map[string]any
	if err := sonic.Unmarshal(raw, &obj); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSegment, "token.Decode", "invalid JSON", err).
			WithField(string(which))
	}
	// "null" unmarshals into a nil map without error.
	if obj == nil {
		return nil, apperrors.New(apperrors.KindInvalidSegment, "token.Decode", "segment is not a JSON object").
			WithField(string(which))
	}
	return obj, nil
}
