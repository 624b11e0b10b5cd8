package hwaccel

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	MinQuality = 0
	MaxQuality = 51

	// defaultBitrate is assumed when a bitrate string contains no digits.
	defaultBitrate = 2_800_000

	// bitrateStep is the number of bits/s which lowers the derived
	// quality number by one.
	bitrateStep = 100_000
)

// bitrateMatcher captures the first number and the magnitude suffix which
// immediately follows it.
var bitrateMatcher = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([km])?`)

// DeriveQuality converts a quality or bitrate value in to a quality number on
// the [0, 51] scale used by constant-quality encoders. A plain number already
// inside the scale is returned unchanged; any other value is read as a bitrate
// (with optional, case-insensitive 'k' or 'm' magnitude suffix), and mapped
// using floor(51 - bitrate/100000), clamped to the scale.
func DeriveQuality(value string) string {
	trimmed := strings.TrimSpace(value)
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil && n >= MinQuality && n <= MaxQuality {
		return trimmed
	}

	quality := math.Floor(MaxQuality - ParseBitrate(trimmed)/bitrateStep)
	return strconv.Itoa(int(math.Max(MinQuality, math.Min(MaxQuality, quality))))
}

// ParseBitrate reads a bitrate string such as "128k", "2M" or "800000" in to
// bits per second. Strings without any digits yield the default bitrate.
func ParseBitrate(value string) float64 {
	match := bitrateMatcher.FindStringSubmatch(strings.ToLower(value))
	if match == nil {
		return defaultBitrate
	}

	n, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return defaultBitrate
	}

	switch match[2] {
	case "m":
		return n * 1_000_000
	case "k":
		return n * 1_000
	default:
		return n
	}
}
