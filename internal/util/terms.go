package util

import "strings"

// NormalizeTerm folds an entity mention into the form node names and
// aliases are matched under: lowercased, trimmed, inner whitespace
// collapsed to single spaces.
func NormalizeTerm(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}

	return strings.Join(strings.Fields(value), " ")
}

// FoldTerms normalizes every term and drops empty values and
// duplicates while keeping first-seen order.
func FoldTerms(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	folded := make([]string, 0, len(values))
	for _, value := range values {
		term := NormalizeTerm(value)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		folded = append(folded, term)
	}

	return folded
}
