package types

const (
	ConvertPattern = "convert"
	StatusPattern  = "status"
)

// RabbitMQMessage is the envelope for requests sent to the encoder worker.
type RabbitMQMessage struct {
	Pattern string            `json:"pattern"`
	Data    ConversionRequest `json:"data"`
}
