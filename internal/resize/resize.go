package resize

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
	"unicode"

	"github.com/mahirjain10/convertkit/internal/apperrors"
)

type Mode string

const (
	ModeAuto   Mode = "Auto"
	ModeWidth  Mode = "Width"
	ModeHeight Mode = "Height"
)

// MaxValue is the largest width or height the resize control accepts.
const MaxValue = 5000

// Spec is the resize control state. Value <= 0 means no value was given.
type Spec struct {
	Mode  Mode
	Value int
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%d x %d", d.Width, d.Height)
}

// ParseMode accepts auto, width and height in any case. An empty string is Auto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "width":
		return ModeWidth, nil
	case "height":
		return ModeHeight, nil
	default:
		return "", fmt.Errorf("unknown resize mode %q", s)
	}
}

// ParseValue reads the leading integer of s, so "400px" is 400. Anything that
// does not start with a positive integer yields 0. Values above MaxValue are
// capped to it.
func ParseValue(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		// Only digits were kept, so this is a range error.
		return MaxValue
	}
	if v <= 0 {
		return 0
	}
	return min(v, MaxValue)
}

// Plan computes the target dimensions for an image of the given natural size.
// The dimension that is not fixed by spec keeps the source aspect ratio and is
// rounded down, but never below 1. A requested value is capped at MaxValue; the
// derived side is not, so the encoder enforces its own size budget.
func Plan(naturalWidth, naturalHeight int, spec Spec) (Dimensions, error) {
	if naturalWidth <= 0 || naturalHeight <= 0 {
		return Dimensions{}, apperrors.New(apperrors.KindInvalidDimensions, "resize.Plan",
			fmt.Sprintf("source dimensions must be positive, got %d x %d", naturalWidth, naturalHeight))
	}

	switch spec.Mode {
	case ModeWidth:
		width := naturalWidth
		if spec.Value > 0 {
			width = min(spec.Value, MaxValue)
		}
		return Dimensions{Width: width, Height: scale(width, naturalHeight, naturalWidth)}, nil
	case ModeHeight:
		height := naturalHeight
		if spec.Value > 0 {
			height = min(spec.Value, MaxValue)
		}
		return Dimensions{Width: scale(height, naturalWidth, naturalHeight), Height: height}, nil
	default:
		return Dimensions{Width: naturalWidth, Height: naturalHeight}, nil
	}
}

// scale returns floor(v * num / den) for positive inputs, clamped to
// [1, math.MaxInt]. The product is computed in 128 bits.
func scale(v, num, den int) int {
	hi, lo := bits.Mul64(uint64(v), uint64(num))
	if hi >= uint64(den) {
		return math.MaxInt
	}
	q, _ := bits.Div64(hi, lo, uint64(den))
	if q > math.MaxInt {
		return math.MaxInt
	}
	if q < 1 {
		return 1
	}
	return int(q)
}
