// Package ident turns user-facing names into identifiers the transient query
// engines accept without quoting.
package ident

import (
	"strings"
	"unicode"
)

// digitPrefix is prepended to identifiers that would otherwise start with a digit.
const digitPrefix = "n_"

// emptyName is used when nothing alphanumeric survives normalization.
const emptyName = "col"

// Normalize maps an arbitrary column name to a lower-case identifier made of
// alphanumerics and single underscores. It is deterministic but not injective:
// "Revenue ($)" and "Revenue !$" both become "revenue".
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name) + len(digitPrefix))

	pendingUnderscore := false
	for _, r := range name {
		if !isAlnum(r) {
			pendingUnderscore = b.Len() > 0
			continue
		}
		if pendingUnderscore {
			b.WriteByte('_')
			pendingUnderscore = false
		}
		b.WriteString(strings.ToLower(string(r)))
	}

	cleaned := b.String()
	if cleaned == "" {
		return emptyName
	}
	first := []rune(cleaned)[0]
	if unicode.IsDigit(first) {
		cleaned = digitPrefix + cleaned
	}
	return cleaned
}

// SanitizeLabel keeps only ASCII letters and digits of label, lower-cased.
// It is used to embed a file name into a generated table name.
func SanitizeLabel(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// isAlnum reports whether r survives normalization. Letters whose lower-case
// form is not itself a letter or digit are rejected so the output alphabet
// stays closed under Normalize.
func isAlnum(r rune) bool {
	if r == '_' {
		return false
	}
	if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
		return false
	}
	for _, lr := range strings.ToLower(string(r)) {
		if !unicode.IsLetter(lr) && !unicode.IsDigit(lr) {
			return false
		}
	}
	return true
}
