package validate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reID  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reSKU = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
)

// ID validates a simple resource identifier (variant/product ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

func SKU(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reSKU.MatchString(s)
}

// Qty parses a strictly positive quantity.
func Qty(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// NonNegative parses a quantity that may be zero (absolute adjustments,
// initial stock).
func NonNegative(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Actor caps the opaque performedBy identity to a sane length.
func Actor(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

// Reason caps the free-text ledger reason.
func Reason(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// Name validates a displayable name with a reasonable max length.
func Name(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 80 {
		return "", false
	}
	return s, true
}
