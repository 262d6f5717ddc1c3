package shared

import (
	"regexp"
	"strings"
)

var listSplitRe = regexp.MustCompile(`[,\|]`)

// CleanString normalises raw string input coming from spreadsheets and the DB:
// nil-ish sentinels become "", surrounding quote pairs are stripped (at most
// twice), zero-width and NBSP characters are removed. It never fails.
func CleanString(v string) string {
	s := strings.TrimSpace(v)
	s = strings.ReplaceAll(s, "​", "")
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.TrimSpace(s)

	for i := 0; i < 2; i++ {
		if len(s) >= 2 && s[0] == s[len(s)-1] && (s[0] == '\'' || s[0] == '"') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}

	switch s {
	case "'", "''", `"`, `""`:
		return ""
	}
	switch strings.ToUpper(s) {
	case "NULL", "NONE", "NAN":
		return ""
	}
	return s
}

// NormalizeDashes converts unicode dash variants to a plain hyphen so range
// tokens like "1–5" parse the same as "1-5".
func NormalizeDashes(s string) string {
	replacer := strings.NewReplacer("–", "-", "—", "-", "−", "-")
	return replacer.Replace(s)
}

// IsAll reports whether a filter value means "no restriction": the literal
// string ALL (any case), an empty list, or a singleton list holding ALL.
func IsAll(values []string) bool {
	if len(values) == 0 {
		return true
	}
	if len(values) == 1 && strings.EqualFold(strings.TrimSpace(values[0]), "ALL") {
		return true
	}
	return false
}

// NormalizeFilter coerces a filter value into a canonical list. Elements are
// split on commas and pipes, cleaned, and empties dropped. The result is nil
// when the input means ALL or nothing usable remains: nil is the "unrestricted"
// convention consumed downstream, and must never be conflated with an empty
// but non-nil list.
func NormalizeFilter(values []string) []string {
	if IsAll(values) {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range listSplitRe.Split(v, -1) {
			cleaned := CleanString(part)
			if cleaned == "" || strings.EqualFold(cleaned, "ALL") {
				continue
			}
			out = append(out, cleaned)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FallbackUnknown substitutes the UNKNOWN bucket for blank grouping values.
func FallbackUnknown(v string) string {
	if cleaned := CleanString(v); cleaned != "" {
		return cleaned
	}
	return "UNKNOWN"
}
