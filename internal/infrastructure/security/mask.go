package security

import (
	"regexp"
	"strings"
)

const secretMask = "****"

var (
	apiKeyAssignment   = regexp.MustCompile(`(?i)(api[_-]?key\s*[=:]\s*)([^\s*]+)`)
	passwordAssignment = regexp.MustCompile(`(?i)(password\s*[=:]\s*)([^\s*]+)`)
	bearerToken        = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-_.=]+)`)
	skToken            = regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{8,}\b`)

	cardCandidate = regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`)
	nonDigit      = regexp.MustCompile(`\D`)
)

// MaskSensitive replaces credential-looking substrings with a fixed
// mask and reduces payment-card numbers to their last four digits.
// Masking already-masked text is a no-op.
func (g *Gate) MaskSensitive(text string) string {
	out := apiKeyAssignment.ReplaceAllString(text, "${1}"+secretMask)
	out = passwordAssignment.ReplaceAllString(out, "${1}"+secretMask)
	out = bearerToken.ReplaceAllString(out, "${1}"+secretMask)
	out = skToken.ReplaceAllString(out, secretMask)

	out = cardCandidate.ReplaceAllStringFunc(out, func(match string) string {
		digits := nonDigit.ReplaceAllString(match, "")
		if !luhnValid(digits) {
			return match
		}
		return "**** **** **** " + digits[len(digits)-4:]
	})
	return out
}

// luhnValid distinguishes payment-card numbers from long phone numbers
// sharing the same digit count.
func luhnValid(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// Redact is a convenience for log attributes: masks secrets and trims
// the result to a displayable length. Truncation counts runes so a
// multi-byte character is never split.
func (g *Gate) Redact(text string, max int) string {
	masked := g.MaskSensitive(text)
	if max <= 0 {
		return masked
	}
	runes := []rune(masked)
	if len(runes) <= max {
		return masked
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
