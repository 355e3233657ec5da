package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/preserve/pkg/preserve/types"
)

// Duration constants.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day  // Approximate
	Year  = 365 * Day // Approximate
)

var (
	// ErrInvalidDuration indicates that the duration string could not be parsed.
	ErrInvalidDuration = errors.New("invalid duration format")

	// ErrInvalidSize indicates that the size string could not be parsed.
	ErrInvalidSize = errors.New("invalid size format")

	// ErrNegativeValue indicates that a negative value was provided.
	ErrNegativeValue = errors.New("value cannot be negative")
)

var (
	durationPattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*(d|w|mo|y|h|m|s|ms)\s*$`)
	sizePattern     = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?)(?:i?B)?\s*$`)
)

// ParseDuration parses "30d", "2w", "1mo", "1y" and anything
// time.ParseDuration accepts.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidDuration)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeValue
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		return d, nil
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "d":
		unit = Day
	case "w":
		unit = Week
	case "mo":
		unit = Month
	case "y":
		unit = Year
	case "h":
		unit = time.Hour
	case "m":
		unit = time.Minute
	case "s":
		unit = time.Second
	case "ms":
		unit = time.Millisecond
	}
	return time.Duration(value * float64(unit)), nil
}

// ParseSize parses "1024", "100K", "50MB", "2GiB" and similar into bytes.
// Units are binary.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeValue
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	mult := int64(1)
	switch strings.ToUpper(m[2]) {
	case "K":
		mult = types.KiB
	case "M":
		mult = types.MiB
	case "G":
		mult = types.GiB
	case "T":
		mult = types.GiB * 1024
	}
	return int64(value * float64(mult)), nil
}
