package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var sessionCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// NormalizeSessionCode upper-cases and trims a code typed by a participant.
func NormalizeSessionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsValidSessionCode(code string) bool {
	return sessionCodeRegex.MatchString(code)
}

// TextWithin trims s and reports whether its length in runes lies in [min, max].
func TextWithin(s string, min, max int) (string, bool) {
	trimmed := strings.TrimSpace(s)
	n := utf8.RuneCountInString(trimmed)
	return trimmed, n >= min && n <= max
}
