// Package security screens untrusted text coming from OCR output, API
// responses and user input before the rest of the pipeline touches it.
package security

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

// GateError is a typed rejection. Reason is short and safe to show to a
// user; Detail carries the internal diagnostic and stays out of the
// user-visible channel.
type GateError struct {
	Kind   error
	Reason string
	Detail string
}

func (e *GateError) Error() string { return e.Reason }

func (e *GateError) Unwrap() error { return e.Kind }

func reject(kind error, reason, detail string) *GateError {
	return &GateError{Kind: kind, Reason: reason, Detail: detail}
}

const (
	// MaxContentBytes is the hard size bound for any screened text.
	MaxContentBytes = 100_000
	// maxControlFraction is the tolerated share of control characters.
	maxControlFraction = 0.20
	// sanitizePasses bounds the fixpoint loop in Sanitize.
	sanitizePasses = 5
)

var (
	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bunion\s+select\b`),
		regexp.MustCompile(`(?i)\bdrop\s+table\b`),
		regexp.MustCompile(`(?i)\bdelete\s+from\b`),
		regexp.MustCompile(`(?i)\binsert\s+into\b`),
		regexp.MustCompile(`(?i)'\s*or\s*'1'\s*=\s*'1`),
		regexp.MustCompile(`;\s*--`),
	}

	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
		regexp.MustCompile(`(?is)<script\b[^>]*>`),
		regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe\s*>`),
		regexp.MustCompile(`(?is)<iframe\b[^>]*>`),
		regexp.MustCompile(`(?i)javascript\s*:`),
		regexp.MustCompile(`(?i)\bon\w+\s*=`),
		regexp.MustCompile(`(?i)\balert\s*\([^)]*\)`),
	}

	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

	horizontalWhitespace = regexp.MustCompile(`[ \t]+`)
	newlineRuns          = regexp.MustCompile(`\s*\n\s*`)

	maliciousResponsePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\beval\s*\(`),
		regexp.MustCompile(`(?i)\bexec\s*\(`),
		regexp.MustCompile(`(?i)\bsystem\s*\(`),
		regexp.MustCompile(`(?i)document\.cookie`),
		regexp.MustCompile(`(?i)<script\b`),
		regexp.MustCompile(`(?i)javascript\s*:`),
		regexp.MustCompile(`(?i)\bon(?:error|load|click)\s*=`),
	}

	suspiciousActivityPhrases = []string{
		"brute force",
		"rate limit exceeded",
		"sql injection",
		"unauthorized access",
		"privilege escalation",
		"multiple failed login",
	}
)

// Gate holds the compiled threat signatures. It is stateless and safe
// for concurrent use.
type Gate struct {
	responseSchema *responseSchema
}

func NewGate() *Gate {
	return &Gate{responseSchema: compileResponseSchema()}
}

// Sanitize strips injection and script patterns, residual markup,
// non-printable characters (newline and tab survive) and collapses
// whitespace runs. It is total: any input maps to a clean, possibly
// empty, string. Applied twice it is a no-op.
func (g *Gate) Sanitize(text string) string {
	out := text
	for i := 0; i < sanitizePasses; i++ {
		next := sanitizeOnce(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func sanitizeOnce(text string) string {
	out := text
	for _, re := range sqlInjectionPatterns {
		out = re.ReplaceAllString(out, " ")
	}
	for _, re := range xssPatterns {
		out = re.ReplaceAllString(out, " ")
	}
	out = htmlTagPattern.ReplaceAllString(out, " ")

	out = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, out)

	out = horizontalWhitespace.ReplaceAllString(out, " ")
	out = newlineRuns.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}

// ValidateContent enforces the hard size bound and the control
// character budget. Odd-but-harmless input passes through unchanged.
func (g *Gate) ValidateContent(text string) error {
	if len(text) > MaxContentBytes {
		return reject(domain.ErrContentTooLarge,
			"the text is too large to process",
			fmt.Sprintf("content length %d exceeds %d", len(text), MaxContentBytes))
	}
	if len(text) == 0 {
		return nil
	}

	control := 0
	total := 0
	for _, r := range text {
		total++
		if r == '\n' || r == '\t' || r == '\r' {
			continue
		}
		if r < 0x20 || r == 0x7f {
			control++
		}
	}
	if frac := float64(control) / float64(total); frac > maxControlFraction {
		return reject(domain.ErrSuspiciousContent,
			"the text could not be processed",
			fmt.Sprintf("control character fraction %.2f exceeds %.2f", frac, maxControlFraction))
	}
	return nil
}

// ValidateAPIResponse screens text received from the AI collaborator.
// Code-execution signatures are rejected outright; JSON-looking
// payloads must decode, and decoded objects must fit the card payload
// shape.
func (g *Gate) ValidateAPIResponse(text string) error {
	for _, re := range maliciousResponsePatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			return reject(domain.ErrMaliciousContent,
				"the service returned an unsafe response",
				fmt.Sprintf("response matched threat signature %q", re.String()))
		}
	}

	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return reject(domain.ErrMalformedResponse,
			"the service returned an unreadable response",
			fmt.Sprintf("json decode: %v", err))
	}
	if trimmed[0] == '{' {
		if err := g.responseSchema.validate(decoded); err != nil {
			return reject(domain.ErrMalformedResponse,
				"the service returned an unexpected response",
				fmt.Sprintf("card payload schema: %v", err))
		}
	}
	return nil
}

// CheckInjection rejects text carrying script or SQL injection tokens
// or raw control bytes. The credential vault runs this over secret
// material before encrypting it.
func (g *Gate) CheckInjection(text string) error {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "<script") {
		return reject(domain.ErrMaliciousContent, "the value is not allowed", "script tag in input")
	}
	for _, re := range sqlInjectionPatterns {
		if re.MatchString(text) {
			return reject(domain.ErrMaliciousContent, "the value is not allowed",
				fmt.Sprintf("sql injection signature %q", re.String()))
		}
	}
	for _, r := range text {
		if r != '\n' && r != '\t' && (r < 0x20 || r == 0x7f) {
			return reject(domain.ErrMaliciousContent, "the value is not allowed", "raw control byte in input")
		}
	}
	return nil
}

// DetectSuspiciousActivity flags log lines matching known attack
// phrasing.
func (g *Gate) DetectSuspiciousActivity(logText string) error {
	lower := strings.ToLower(logText)
	for _, phrase := range suspiciousActivityPhrases {
		if strings.Contains(lower, phrase) {
			return reject(domain.ErrSuspiciousActivity,
				"suspicious activity detected",
				fmt.Sprintf("log text matched phrase %q", phrase))
		}
	}
	return nil
}
