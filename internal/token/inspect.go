package token

import (
	"strings"
	"time"

	"github.com/mahirjain10/convertkit/internal/apperrors"
	"github.com/mahirjain10/convertkit/internal/utils"
)

const (
	malformedMessage = "Invalid Token Format: A JWT must consist of three parts separated by dots."
	decodeMessage    = "Decoding Failed: Invalid Base64 or JSON structure."
)

// Report is everything the inspector shows for one input.
type Report struct {
	// Empty is set for blank input, which shows nothing at all.
	Empty      bool
	Error      string
	Header     string
	Payload    string
	Signature  string
	Evaluation Evaluation
}

func Inspect(raw string, now time.Time, f Formatter) Report {
	if strings.TrimSpace(raw) == "" {
		return Report{Empty: true}
	}

	decoded, err := Decode(strings.TrimSpace(raw))
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindMalformedStructure) {
			return Report{Error: malformedMessage}
		}
		return Report{Error: decodeMessage}
	}

	header, err := utils.IndentJSON(decoded.Header)
	if err != nil {
		return Report{Error: decodeMessage}
	}
	payload, err := utils.IndentJSON(decoded.Payload)
	if err != nil {
		return Report{Error: decodeMessage}
	}

	return Report{
		Header:     header,
		Payload:    payload,
		Signature:  decoded.Signature,
		Evaluation: Evaluate(decoded.Payload, now, f),
	}
}

// String renders the report as plain text, payload first.
func (r Report) String() string {
	if r.Empty {
		return ""
	}
	if r.Error != "" {
		return r.Error + "\n"
	}

	var b strings.Builder
	if r.Evaluation.ShowHints {
		for _, h := range r.Evaluation.Hints {
			b.WriteString(h.Label)
			b.WriteString(" ")
			b.WriteString(h.Value)
			if h.Tag != "" {
				b.WriteString(" ")
				b.WriteString(h.Tag)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Primary\n")
	b.WriteString(r.Payload)
	b.WriteString("\n\nHeader\n")
	b.WriteString(r.Header)
	b.WriteString("\n\nSignature\n")
	b.WriteString(r.Signature)
	b.WriteString("\n")
	return b.String()
}
