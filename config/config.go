package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mahirjain10/convertkit/internal/apperrors"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Converter ConverterConfig `yaml:"converter"`
	Token     TokenConfig     `yaml:"token"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	AWS       AWSConfig       `yaml:"aws"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ConverterConfig struct {
	// Mode is "local" to encode in-process or "remote" to send work to the
	// RabbitMQ worker.
	Mode          string `yaml:"mode"`
	DefaultFormat string `yaml:"default_format"`
	MaxParallel   int64  `yaml:"max_parallel"`
	Filter        string `yaml:"filter"`
	JPEGQuality   int    `yaml:"jpeg_quality"`
	WebPQuality   int    `yaml:"webp_quality"`
	// MaxPixels bounds width*height of any decoded or encoded image.
	MaxPixels int `yaml:"max_pixels"`
	// TimeoutSeconds bounds a single remote conversion.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type TokenConfig struct {
	TimeLayout string `yaml:"time_layout"`
	TimeZone   string `yaml:"time_zone"`
}

type RabbitMQConfig struct {
	URL          string `yaml:"url"`
	RequestQueue string `yaml:"request_queue"`
	Workers      int    `yaml:"workers"`
}

// AWSConfig selects the S3 source. Region and Profile override the SDK's
// default chain when set.
type AWSConfig struct {
	BucketName string `yaml:"bucket_name"`
	MaxBytes   int64  `yaml:"max_bytes"`
	Region     string `yaml:"region"`
	Profile    string `yaml:"profile"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Converter: ConverterConfig{
			Mode:           "local",
			DefaultFormat:  "webp",
			MaxParallel:    4,
			Filter:         "lanczos",
			JPEGQuality:    90,
			WebPQuality:    80,
			MaxPixels:      50_000_000,
			TimeoutSeconds: 60,
		},
		Token: TokenConfig{
			TimeLayout: "1/2/2006, 3:04:05 PM",
			TimeZone:   "Local",
		},
		RabbitMQ: RabbitMQConfig{
			RequestQueue: "convert_queue",
			Workers:      2,
		},
		AWS: AWSConfig{MaxBytes: 50 << 20},
	}
}

// Load starts from Default, applies the YAML file at path when path is not
// empty, then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindConfig, "config.Load", "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrap(apperrors.KindConfig, "config.Load", "failed to parse config", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Wrap(apperrors.KindConfig, "config.Load", key+" must be an integer", err).WithField(key)
		}
		*dst = n
		return nil
	}

	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)
	setString("CONVERTER_MODE", &c.Converter.Mode)
	setString("CONVERTER_DEFAULT_FORMAT", &c.Converter.DefaultFormat)
	setString("RABBITMQ_URL", &c.RabbitMQ.URL)
	setString("RABBITMQ_QUEUE", &c.RabbitMQ.RequestQueue)
	setString("AWS_BUCKET_NAME", &c.AWS.BucketName)
	setString("TOKEN_TIME_LAYOUT", &c.Token.TimeLayout)
	setString("TOKEN_TIME_ZONE", &c.Token.TimeZone)

	if err := setInt("RABBITMQ_WORKERS", &c.RabbitMQ.Workers); err != nil {
		return err
	}
	parallel := int(c.Converter.MaxParallel)
	if err := setInt("CONVERTER_MAX_PARALLEL", &parallel); err != nil {
		return err
	}
	c.Converter.MaxParallel = int64(parallel)
	return nil
}

// Validate checks the fields every command relies on. RabbitMQ settings are
// checked by RequireRabbitMQ only where they are used.
func (c *Config) Validate() error {
	invalid := func(field, msg string) error {
		return apperrors.New(apperrors.KindConfig, "config.Validate", msg).WithField(field)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalid("log.format", fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	switch c.Converter.Mode {
	case "local", "remote":
	default:
		return invalid("converter.mode", fmt.Sprintf("converter.mode must be local or remote, got %q", c.Converter.Mode))
	}
	if c.Converter.MaxParallel <= 0 {
		return invalid("converter.max_parallel", "converter.max_parallel must be positive")
	}
	if c.Converter.JPEGQuality < 1 || c.Converter.JPEGQuality > 100 {
		return invalid("converter.jpeg_quality", "converter.jpeg_quality must be within 1-100")
	}
	if c.Converter.WebPQuality < 0 || c.Converter.WebPQuality > 100 {
		return invalid("converter.webp_quality", "converter.webp_quality must be within 0-100")
	}
	if c.Converter.MaxPixels <= 0 {
		return invalid("converter.max_pixels", "converter.max_pixels must be positive")
	}
	if c.Converter.TimeoutSeconds <= 0 {
		return invalid("converter.timeout_seconds", "converter.timeout_seconds must be positive")
	}
	if c.Converter.Mode == "remote" {
		return c.RequireRabbitMQ()
	}
	return nil
}

func (c *Config) RequireRabbitMQ() error {
	if c.RabbitMQ.URL == "" || c.RabbitMQ.RequestQueue == "" {
		return apperrors.New(apperrors.KindConfig, "config.Validate", "RABBITMQ_URL or RABBITMQ_QUEUE is missing").
			WithField("rabbitmq")
	}
	if c.RabbitMQ.Workers <= 0 {
		return apperrors.New(apperrors.KindConfig, "config.Validate", "rabbitmq.workers must be positive").
			WithField("rabbitmq.workers")
	}
	return nil
}
