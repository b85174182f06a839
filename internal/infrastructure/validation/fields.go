package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

// FieldError tags a validation failure with the field it belongs to.
// Reason is safe to show to a user; it never embeds the raw value.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return domain.ErrValidation }

func fieldErr(field, reason string) *FieldError {
	return &FieldError{Field: field, Reason: reason}
}

const (
	maxEmailLength     = 254
	maxLocalPartLength = 64
	minNameLength      = 1
	maxNameLength      = 100
	minCompanyLength   = 2
	maxCompanyLength   = 200
)

var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	urlPattern   = regexp.MustCompile(`^(?:https?://)?[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?)+(?:/\S*)?$`)

	deniedURLSchemes = []string{"javascript:", "data:", "vbscript:", "file:"}

	// Landline area codes accepted after the leading zero.
	landlineAreaCodes = map[string]struct{}{
		"02": {}, "03": {}, "04": {}, "05": {}, "06": {}, "07": {}, "08": {},
	}

	phoneStripper = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "")
	digitsOnly    = regexp.MustCompile(`^\d+$`)
)

// Email validates and returns the address unchanged. The shape check is
// deliberately conservative: local@domain.tld with sane dot placement.
func Email(value string) (string, error) {
	if value == "" {
		return "", fieldErr(domain.FieldEmail, "is required")
	}
	if value != strings.TrimSpace(value) {
		return "", fieldErr(domain.FieldEmail, "must not have surrounding whitespace")
	}
	if len(value) > maxEmailLength {
		return "", fieldErr(domain.FieldEmail, "is too long")
	}
	at := strings.LastIndex(value, "@")
	if at <= 0 || at == len(value)-1 {
		return "", fieldErr(domain.FieldEmail, "must be a valid email address")
	}
	local, dom := value[:at], value[at+1:]
	if len(local) > maxLocalPartLength {
		return "", fieldErr(domain.FieldEmail, "local part is too long")
	}
	if dom == "" || strings.HasPrefix(dom, ".") || strings.HasSuffix(dom, ".") || strings.Contains(dom, "..") {
		return "", fieldErr(domain.FieldEmail, "domain is malformed")
	}
	if !emailPattern.MatchString(value) {
		return "", fieldErr(domain.FieldEmail, "must be a valid email address")
	}
	return value, nil
}

// Phone strips separators and accepts exactly one of the Taiwan number
// shapes: international 886 + 9-10 digits, mobile 09 + 8 digits, or a
// landline with a known area code and 6-8 subscriber digits.
// International numbers normalize to a leading "+".
func Phone(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fieldErr(domain.FieldPhone, "is required")
	}
	digits := phoneStripper.Replace(strings.TrimSpace(value))
	if !digitsOnly.MatchString(digits) {
		return "", fieldErr(domain.FieldPhone, "must contain only digits and separators")
	}

	switch {
	case strings.HasPrefix(digits, "886"):
		rest := len(digits) - len("886")
		if rest < 9 || rest > 10 {
			return "", fieldErr(domain.FieldPhone, "is not a valid international number")
		}
		return "+" + digits, nil
	case strings.HasPrefix(digits, "09"):
		if len(digits) != len("09")+8 {
			return "", fieldErr(domain.FieldPhone, "is not a valid mobile number")
		}
		return digits, nil
	case strings.HasPrefix(digits, "0") && len(digits) >= 2:
		area := digits[:2]
		if _, ok := landlineAreaCodes[area]; !ok {
			return "", fieldErr(domain.FieldPhone, "has an unknown area code")
		}
		subscriber := len(digits) - len(area)
		if subscriber < 6 || subscriber > 8 {
			return "", fieldErr(domain.FieldPhone, "is not a valid landline number")
		}
		return digits, nil
	default:
		return "", fieldErr(domain.FieldPhone, "is not a recognized number format")
	}
}

// URL validates http(s) or bare host URLs and rejects script-capable
// schemes outright.
func URL(value string) (string, error) {
	if value == "" {
		return "", fieldErr(domain.FieldWebsite, "is required")
	}
	if strings.ContainsAny(value, " \t\n\r") {
		return "", fieldErr(domain.FieldWebsite, "must not contain whitespace")
	}
	lower := strings.ToLower(value)
	for _, scheme := range deniedURLSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", fieldErr(domain.FieldWebsite, "uses a forbidden scheme")
		}
	}
	if !urlPattern.MatchString(value) {
		return "", fieldErr(domain.FieldWebsite, "must be a valid URL")
	}
	return value, nil
}

// PersonName trims and validates a personal name (1-100 runes).
func PersonName(value string) (string, error) {
	return nameLike(domain.FieldName, value, minNameLength, maxNameLength)
}

// CompanyName trims and validates a company name (2-200 runes).
func CompanyName(value string) (string, error) {
	return nameLike(domain.FieldCompany, value, minCompanyLength, maxCompanyLength)
}

var namePunctuation = map[rune]struct{}{
	'.': {}, ',': {}, '\'': {}, '-': {}, '&': {}, '(': {}, ')': {}, '/': {},
}

func nameLike(field, value string, min, max int) (string, error) {
	trimmed := strings.TrimSpace(value)
	if strings.ContainsAny(value, "\n\t\r") {
		return "", fieldErr(field, "must not contain line breaks or tabs")
	}
	n := utf8.RuneCountInString(trimmed)
	if n < min || n > max {
		return "", fieldErr(field, fmt.Sprintf("must be between %d and %d characters", min, max))
	}

	hasLetter := false
	for _, r := range trimmed {
		switch {
		case unicode.IsLetter(r) || unicode.IsMark(r):
			hasLetter = true
		case unicode.IsDigit(r) || r == ' ':
		default:
			if _, ok := namePunctuation[r]; !ok {
				return "", fieldErr(field, "contains unsupported characters")
			}
		}
	}
	if !hasLetter {
		return "", fieldErr(field, "must not be digits only")
	}
	return trimmed, nil
}

// Required rejects empty or whitespace-only values.
func Required(field, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fieldErr(field, "is required")
	}
	return value, nil
}

func MinLength(field, value string, min int) (string, error) {
	if utf8.RuneCountInString(value) < min {
		return "", fieldErr(field, fmt.Sprintf("must be at least %d characters", min))
	}
	return value, nil
}

func MaxLength(field, value string, max int) (string, error) {
	if utf8.RuneCountInString(value) > max {
		return "", fieldErr(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return value, nil
}

func LengthRange(field, value string, min, max int) (string, error) {
	if _, err := MinLength(field, value, min); err != nil {
		return "", err
	}
	return MaxLength(field, value, max)
}

// Field routes a canonical card field to its validator and returns the
// normalized value. Fields without a dedicated rule only get a length
// cap, so notes and addresses stay permissive.
func Field(name, value string) (string, error) {
	switch name {
	case domain.FieldEmail:
		return Email(value)
	case domain.FieldPhone, domain.FieldMobile, domain.FieldFax:
		normalized, err := Phone(value)
		return normalized, retag(name, err)
	case domain.FieldWebsite:
		return URL(value)
	case domain.FieldName, domain.FieldNameEnglish:
		normalized, err := PersonName(value)
		return normalized, retag(name, err)
	case domain.FieldCompany, domain.FieldDepartment:
		normalized, err := CompanyName(value)
		return normalized, retag(name, err)
	default:
		return MaxLength(name, strings.TrimSpace(value), 500)
	}
}

// Validator adapts Field to the ports.FieldValidator contract.
type Validator struct{}

func (Validator) Validate(field, value string) (string, error) {
	return Field(field, value)
}

// retag keeps the failure reason but attributes it to the field the
// value actually came from (mobile/fax share the phone rule, and so on).
func retag(field string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return fieldErr(field, fe.Reason)
	}
	return err
}
