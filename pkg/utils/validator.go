package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds project names, counted in runes.
const MaxNameLength = 200

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// ValidateName checks a sanitized display name
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return fmt.Errorf("name is %d characters, limit is %d", n, MaxNameLength)
	}
	return nil
}

// ValidateAmount rejects negative budget amounts
func ValidateAmount(field string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%s cannot be negative: %d", field, amount)
	}
	return nil
}
