package utils

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const dataPrefix = "data"

// IsDataURI reports whether content looks like an inline data payload.
func IsDataURI(content string) bool {
	return strings.HasPrefix(content, dataPrefix)
}

// EncodeDataURI builds "data:<mime>;base64,<payload>".
func EncodeDataURI(mimeType string, raw []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(raw))
}

// StripDataURIHeader returns everything after the first comma, or content
// unchanged when there is none.
func StripDataURIHeader(content string) string {
	if i := strings.IndexByte(content, ','); i >= 0 {
		return content[i+1:]
	}
	return content
}

// DecodeDataURI returns the decoded bytes of a data URI or of a bare base64 string.
func DecodeDataURI(content string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(StripDataURIHeader(content))
	if err != nil {
		return nil, fmt.Errorf("Base64 decode failed: %w", err)
	}
	return raw, nil
}

// MimeTypeOf extracts the mime type of "data:<mime>;base64,...".
func MimeTypeOf(content string) string {
	head, _, _ := strings.Cut(content, ";")
	_, mime, ok := strings.Cut(head, ":")
	if !ok {
		return ""
	}
	return mime
}

// Base64Size is the decoded byte count of a data URI, computed from its length.
func Base64Size(content string) int {
	payload := StripDataURIHeader(content)
	if payload == "" {
		return 0
	}
	padding := 0
	if strings.HasSuffix(payload, "==") {
		padding = 2
	} else if strings.HasSuffix(payload, "=") {
		padding = 1
	}
	return len(payload)*3/4 - padding
}

func FormatBytes(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
