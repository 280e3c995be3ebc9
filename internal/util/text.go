package util

import (
	"strings"
	"unicode/utf8"
)

// SanitizePostgresText strips byte sequences postgres rejects in text
// parameters, namely invalid UTF-8 and NUL bytes. Query text passes
// through here before it is used in SQL or prompt assembly.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// TruncateRunes shortens value to at most max runes. Used to bound the
// per-item text blocks handed to prompt builders.
func TruncateRunes(value string, max int) string {
	if max <= 0 || value == "" {
		return ""
	}
	if utf8.RuneCountInString(value) <= max {
		return value
	}

	runes := []rune(value)
	return string(runes[:max])
}
