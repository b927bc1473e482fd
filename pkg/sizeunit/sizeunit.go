package sizeunit

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/docker/go-units"
)

var (
	// ErrInvalidFormat is returned when a size string does not match
	// <number><unit>.
	ErrInvalidFormat = errors.New("invalid size format")

	// ErrUnsupportedUnit is returned when the unit is syntactically valid
	// but not one of B, KB, MB, GB, TB.
	ErrUnsupportedUnit = errors.New("unsupported size unit")
)

// sizePattern accepts an unsigned decimal number, optional whitespace and
// an alphabetic unit.
var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]+)$`)

// multipliers uses binary (1024-based) multiples.
var multipliers = map[string]int64{
	"b":  1,
	"kb": units.KiB,
	"mb": units.MiB,
	"gb": units.GiB,
	"tb": units.TiB,
}

// Parse converts a human-readable size such as "150KB" or "1.5 MB" into a
// byte count. Fractional results are truncated to whole bytes.
func Parse(s string) (int64, error) {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	mult, ok := multipliers[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("%w: %q in %q", ErrUnsupportedUnit, m[2], s)
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidFormat, s, err)
	}

	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	bytes := n * float64(mult)
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidFormat, s)
	}

	return int64(bytes), nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) int64 {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return n
}

// Format renders a byte count using binary units, e.g. "97.66KiB".
func Format(bytes int64) string {
	if bytes < 0 {
		return "-" + units.BytesSize(float64(-bytes))
	}

	return units.BytesSize(float64(bytes))
}

// FormatDelta renders a signed byte difference with an explicit sign.
func FormatDelta(delta int64) string {
	if delta > 0 {
		return "+" + Format(delta)
	}

	return Format(delta)
}
