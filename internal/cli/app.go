package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/mahirjain10/convertkit/config"
	"github.com/mahirjain10/convertkit/internal/aws"
	"github.com/mahirjain10/convertkit/internal/encoder"
	"github.com/mahirjain10/convertkit/internal/queue"
	"github.com/mahirjain10/convertkit/internal/source"
	"github.com/mahirjain10/convertkit/internal/transformation"
)

type App struct {
	config  *config.Config
	logger  *slog.Logger
	bus     evbus.Bus
	encoder encoder.Encoder
	client  *queue.Client
}

// NewApp wires the encoder for the configured mode. remote forces the
// RabbitMQ encoder regardless of converter.mode.
func NewApp(cfg *config.Config, logger *slog.Logger, remote bool) (*App, error) {
	app := &App{
		config: cfg,
		logger: logger,
		bus:    evbus.New(),
	}

	if remote || cfg.Converter.Mode == "remote" {
		if err := cfg.RequireRabbitMQ(); err != nil {
			return nil, err
		}
		timeout := time.Duration(cfg.Converter.TimeoutSeconds) * time.Second
		app.client = queue.NewClient(cfg.RabbitMQ.URL, cfg.RabbitMQ.RequestQueue, timeout, logger)
		app.encoder = app.client
		logger.Info("[app] using remote encoder", "queue", cfg.RabbitMQ.RequestQueue)
		return app, nil
	}

	local, err := newLocalEncoder(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.encoder = local
	return app, nil
}

func newLocalEncoder(cfg *config.Config, logger *slog.Logger) (*encoder.Local, error) {
	filter, err := transformation.FilterByName(cfg.Converter.Filter)
	if err != nil {
		return nil, fmt.Errorf("invalid converter.filter: %w", err)
	}
	opts := transformation.Options{
		Filter:      filter,
		JPEGQuality: cfg.Converter.JPEGQuality,
		WebPQuality: float32(cfg.Converter.WebPQuality),
		MaxPixels:   cfg.Converter.MaxPixels,
	}
	return encoder.NewLocal(cfg.Converter.MaxParallel, opts, logger), nil
}

// Loader returns a source loader for ref. The AWS SDK is only initialised for
// s3:// references.
func (a *App) Loader(ctx context.Context, ref string) (*source.Loader, error) {
	if !strings.HasPrefix(ref, "s3://") {
		return source.NewLoader(nil), nil
	}
	awsConfig, err := config.InitializeAws(ctx, a.config.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS config: %w", err)
	}
	s3Service := aws.NewS3Service(aws.NewS3Client(awsConfig), a.config.AWS.BucketName, a.config.AWS.MaxBytes, a.logger)
	return source.NewLoader(s3Service), nil
}

func (a *App) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}
