package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// MaskSender keeps the country-code prefix and the last four digits of a
// sender id, e.g. "919876543210" becomes "91******3210".
func MaskSender(sender string) string {
	s := strings.TrimSpace(sender)
	if len(s) <= 6 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-6) + s[len(s)-4:]
}

// MaskSecret shows only the edges of a token, for settings views.
func MaskSecret(secret string) string {
	if len(secret) <= 14 {
		if secret == "" {
			return ""
		}
		return "***"
	}
	return secret[:10] + "..." + secret[len(secret)-4:]
}
