// Package numfmt parses human-readable engagement counts the way platform
// front-ends render them: "1.2K", "3.5M", "1,234", "12.3 k views".
package numfmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var countPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([kmb])?`)

// ParseCount converts a raw count string into an integer. Suffixes K, M and
// B multiply by 1e3, 1e6 and 1e9; thousands separators and surrounding
// label text ("12.3K views") are tolerated.
func ParseCount(raw string) (int64, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return 0, fmt.Errorf("empty count")
	}

	// Strip separators so "1,234,567" and "1 234" parse as plain integers.
	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, " ", "")

	matches := countPattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return 0, fmt.Errorf("no numeric value in %q", raw)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value in %q: %w", raw, err)
	}

	multiplier := 1.0
	if len(matches) >= 3 {
		switch matches[2] {
		case "k":
			multiplier = 1_000
		case "m":
			multiplier = 1_000_000
		case "b":
			multiplier = 1_000_000_000
		}
	}

	return int64(num*multiplier + 0.5), nil
}

// ParseCountOrZero is the lenient variant used where a missing count is an
// acceptable outcome rather than an error.
func ParseCountOrZero(raw string) int64 {
	n, err := ParseCount(raw)
	if err != nil {
		return 0
	}
	return n
}
