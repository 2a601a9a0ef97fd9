package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// PathUtil joins the parts and creates every missing parent directory.
func PathUtil(parts ...string) (string, error) {
	filePath := filepath.Join(parts...)

	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	return filePath, nil
}
