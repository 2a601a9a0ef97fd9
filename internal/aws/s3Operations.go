package aws

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mahirjain10/convertkit/internal/apperrors"
)

const downloadTimeout = 10 * time.Second

// S3Service reads source images from a bucket. It never writes.
type S3Service struct {
	client     S3ClientAPI
	bucketName string
	maxBytes   int64
	logger     *slog.Logger
}

func NewS3Service(client S3ClientAPI, bucketName string, maxBytes int64, logger *slog.Logger) *S3Service {
	return &S3Service{client: client, bucketName: bucketName, maxBytes: maxBytes, logger: logger}
}

func (service *S3Service) BucketName() string {
	return service.bucketName
}

// DownloadObject fetches key from bucket, or from the default bucket when bucket is empty.
func (service *S3Service) DownloadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if key == "" {
		return nil, apperrors.New(apperrors.KindStorage, "s3.Download", "key cannot be empty")
	}
	if bucket == "" {
		bucket = service.bucketName
	}
	if bucket == "" {
		return nil, apperrors.New(apperrors.KindStorage, "s3.Download", "no bucket configured")
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	resp, err := service.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "s3.Download",
			fmt.Sprintf("couldn't download object with key: %s", key), err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if service.maxBytes > 0 {
		body = io.LimitReader(resp.Body, service.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "s3.Download", "failed to read object data", err)
	}
	if service.maxBytes > 0 && int64(len(data)) > service.maxBytes {
		return nil, apperrors.New(apperrors.KindStorage, "s3.Download",
			fmt.Sprintf("object %s exceeds %d bytes", key, service.maxBytes))
	}
	service.logger.Debug("[s3] download success", "bucket", bucket, "key", key, "bytes", len(data))
	return data, nil
}
