package utils

import (
	"fmt"

	"github.com/bytedance/sonic"
)

func ParseJSON(data []byte, v any) error {
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func SerializeJSON(data any) ([]byte, error) {
	value, err := sonic.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize JSON: %w", err)
	}
	return value, nil
}

// IndentJSON renders v with two-space indentation and sorted keys.
func IndentJSON(v any) (string, error) {
	value, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize JSON: %w", err)
	}
	return string(value), nil
}
