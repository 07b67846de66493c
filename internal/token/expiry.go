package token

import (
	"regexp"
	"strconv"
	"time"
)

// DefaultExpiry is applied whenever an expiry string cannot be parsed, so a
// malformed configuration can never yield an unbounded or zero token lifetime.
const DefaultExpiry = 7 * 24 * time.Hour

var expiryPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseExpiry converts a compact expiry string ("15m", "7d") into a duration.
// Unknown or malformed input falls back to DefaultExpiry.
func ParseExpiry(value string) time.Duration {
	match := expiryPattern.FindStringSubmatch(value)
	if match == nil {
		return DefaultExpiry
	}

	amount, err := strconv.Atoi(match[1])
	if err != nil || amount <= 0 {
		return DefaultExpiry
	}

	switch match[2] {
	case "s":
		return time.Duration(amount) * time.Second
	case "m":
		return time.Duration(amount) * time.Minute
	case "h":
		return time.Duration(amount) * time.Hour
	case "d":
		return time.Duration(amount) * 24 * time.Hour
	default:
		return DefaultExpiry
	}
}

// CalculateExpiry resolves an expiry string into an absolute instant relative
// to now.
func CalculateExpiry(value string, now time.Time) time.Time {
	return now.Add(ParseExpiry(value))
}
