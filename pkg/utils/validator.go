package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	actorRegex   = regexp.MustCompile(`^[\p{L}\p{N}._@\- ]{1,64}$`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateActor validates the name recorded as the author of a mutation
func ValidateActor(actor string) error {
	if !actorRegex.MatchString(actor) || strings.TrimSpace(actor) == "" {
		return fmt.Errorf("invalid actor: %q", actor)
	}
	return nil
}

// ParseDecimal parses a user supplied number. A comma is accepted as decimal separator.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number: %q", s)
	}
	return d, nil
}

// ValidateFileName rejects empty, oversized or non-UTF-8 upload names
func ValidateFileName(name string) error {
	if name == "" || len(name) > 255 || !utf8.ValidString(name) {
		return fmt.Errorf("invalid file name")
	}
	return nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
