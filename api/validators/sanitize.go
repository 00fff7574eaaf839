package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters and cuts the result to
// maxLen runes. Notes and references are written to the ledger verbatim, so a
// cut never splits an accented character.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	cleaned = strings.TrimSpace(cleaned)
	if maxLen <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) > maxLen {
		return strings.TrimSpace(string(runes[:maxLen]))
	}
	return cleaned
}

// SanitizeStallNumber normalizes a stall number from a path or body. Inner
// whitespace is removed so "A 12" and "A12" address the same stall.
func SanitizeStallNumber(input string, maxLen int) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
	return SanitizeString(compact, maxLen)
}
