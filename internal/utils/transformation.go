package utils

import (
	"fmt"
	"os"
)

func ReadImageBuffer(imagePath string) ([]byte, error) {
	buffer, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("error while reading image :%w", err)
	}
	return buffer, nil
}

func WriteImageBuffer(imagePath string, buffer []byte) error {
	filePath, err := PathUtil(imagePath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, buffer, 0644); err != nil {
		return fmt.Errorf("error while writing image :%w", err)
	}
	return nil
}
