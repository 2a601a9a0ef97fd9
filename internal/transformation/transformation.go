package transformation

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	// Decoders must be registered with the standard image package before
	// image.Decode and image.DecodeConfig can recognise their formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	ico "github.com/biessek/golang-ico"
	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/mahirjain10/convertkit/internal/apperrors"
	"github.com/mahirjain10/convertkit/internal/types"
	"github.com/mahirjain10/convertkit/internal/utils"
)

// Ico images store each dimension in a single byte where 0 means 256.
const maxIcoSide = 256

const (
	// MaxSide bounds either side of a source or target image. WebP cannot
	// encode more than 16383 px per side.
	MaxSide = 16383
	// DefaultMaxPixels bounds width*height of a source or target image, about
	// 200 MB as NRGBA.
	DefaultMaxPixels = 50_000_000
)

type Options struct {
	Filter      imaging.ResampleFilter
	JPEGQuality int
	WebPQuality float32
	// MaxPixels is the pixel budget per image; 0 means DefaultMaxPixels.
	MaxPixels int
}

func DefaultOptions() Options {
	return Options{
		Filter:      imaging.Lanczos,
		JPEGQuality: 90,
		WebPQuality: 80,
		MaxPixels:   DefaultMaxPixels,
	}
}

func (o Options) maxPixels() int {
	if o.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return o.MaxPixels
}

// checkBudget rejects sizes that would not fit the per-image memory budget.
// Sides are checked first so the product cannot overflow.
func checkBudget(width, height, maxPixels int) error {
	if width > MaxSide || height > MaxSide {
		return fmt.Errorf("%d x %d exceeds the %d px side limit", width, height, MaxSide)
	}
	if width*height > maxPixels {
		return fmt.Errorf("%d x %d exceeds the %d pixel limit", width, height, maxPixels)
	}
	return nil
}

var filters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"linear":     imaging.Linear,
	"triangle":   imaging.Linear,
	"box":        imaging.Box,
	"nearest":    imaging.NearestNeighbor,
}

// FilterByName maps a config value to a resample filter. Unknown names are an error.
func FilterByName(name string) (imaging.ResampleFilter, error) {
	f, ok := filters[strings.ToLower(name)]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter: %s", name)
	}
	return f, nil
}

// Probe decodes only the image header of a data URI and returns its natural size.
func Probe(content string) (int, int, error) {
	raw, err := utils.DecodeDataURI(content)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.KindProbeFailure, "transformation.Probe",
			"Failed to load image for dimension extraction", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.KindProbeFailure, "transformation.Probe",
			"Failed to load image for dimension extraction", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, apperrors.New(apperrors.KindInvalidDimensions, "transformation.Probe",
			fmt.Sprintf("image has no pixels: %d x %d", cfg.Width, cfg.Height))
	}
	return cfg.Width, cfg.Height, nil
}

// Process resizes the image held in content to exactly width x height and
// re-encodes it. The result is a data URI of the target format. Error messages
// are meant to be shown to the user as they are.
//
// Source and target sizes are checked against opts' pixel budget before any
// pixel buffer is allocated, so oversized requests fail instead of exhausting
// memory.
func Process(content string, width, height int, format string, opts Options) (string, error) {
	raw, err := utils.DecodeDataURI(content)
	if err != nil {
		return "", err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("Failed to load image: %w", err)
	}
	if err := checkBudget(cfg.Width, cfg.Height, opts.maxPixels()); err != nil {
		return "", fmt.Errorf("Failed to load image: source %w", err)
	}

	target, err := types.ParseFormat(format)
	if err != nil {
		return "", err
	}
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("Failed to write output: invalid target size %d x %d", width, height)
	}
	if err := checkBudget(width, height, opts.maxPixels()); err != nil {
		return "", fmt.Errorf("Failed to write output: target %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("Failed to load image: %w", err)
	}

	scaled := imaging.Resize(img, width, height, opts.Filter)

	buf := new(bytes.Buffer)
	if err := encode(buf, scaled, target, opts); err != nil {
		return "", fmt.Errorf("Failed to write output: %w", err)
	}
	return utils.EncodeDataURI(target.MimeType(), buf.Bytes()), nil
}

func encode(buf *bytes.Buffer, img image.Image, format types.Format, opts Options) error {
	switch format {
	case types.PNG:
		return imaging.Encode(buf, img, imaging.PNG)
	case types.JPG:
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(opts.JPEGQuality))
	case types.BMP:
		return imaging.Encode(buf, img, imaging.BMP)
	case types.WEBP:
		options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, opts.WebPQuality)
		if err != nil {
			return err
		}
		return webp.Encode(buf, img, options)
	case types.ICO:
		b := img.Bounds()
		if b.Dx() > maxIcoSide || b.Dy() > maxIcoSide {
			return fmt.Errorf("ico images cannot exceed %dx%d, got %dx%d", maxIcoSide, maxIcoSide, b.Dx(), b.Dy())
		}
		return ico.Encode(buf, img)
	default:
		return fmt.Errorf("Unsupported format: %s", format)
	}
}
