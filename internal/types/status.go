package types

// StatusData is the worker's reply for one conversion request.
type StatusData struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Payload  string `json:"payload,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

// StatusMessage represents the full reply envelope
type StatusMessage struct {
	Pattern string     `json:"pattern"`
	Data    StatusData `json:"data"`
}

const PROCESSED = "PROCESSED"
const FAILED = "FAILED"
