package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/mahirjain10/convertkit/internal/apperrors"
)

// InitializeAws resolves the SDK config for the S3 source, pinning the region
// and shared profile from c when they are set.
func InitializeAws(ctx context.Context, c AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		field := "aws.region"
		if c.Profile != "" {
			field = "aws.profile"
		}
		return aws.Config{}, apperrors.Wrap(apperrors.KindConfig, "config.InitializeAws",
			"failed to load AWS config", err).WithField(field)
	}
	return cfg, nil
}
