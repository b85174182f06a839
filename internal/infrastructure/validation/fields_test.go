package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

func TestEmailAccepted(t *testing.T) {
	got, err := Email("wang@abc.com")
	if err != nil {
		t.Fatalf("Email() error = %v", err)
	}
	if got != "wang@abc.com" {
		t.Fatalf("Email() = %q", got)
	}
}

func TestEmailRejected(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"surrounding whitespace", " wang@abc.com "},
		{"missing domain", "wang@"},
		{"missing local part", "@abc.com"},
		{"leading domain dot", "wang@.abc.com"},
		{"trailing domain dot", "wang@abc.com."},
		{"consecutive domain dots", "wang@abc..com"},
		{"no tld", "wang@abc"},
		{"too long", strings.Repeat("a", 250) + "@abc.com"},
		{"local part too long", strings.Repeat("a", 65) + "@abc.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Email(tc.value); err == nil {
				t.Fatalf("Email(%q) expected error", tc.value)
			}
		})
	}
}

func TestEmailErrorIsFieldTaggedValidation(t *testing.T) {
	_, err := Email("broken")
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FieldError, got %T", err)
	}
	if fe.Field != domain.FieldEmail {
		t.Fatalf("expected email field tag, got %q", fe.Field)
	}
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation kind, got %v", err)
	}
}

func TestPhoneAcceptsMobile(t *testing.T) {
	got, err := Phone("0912345678")
	if err != nil {
		t.Fatalf("Phone() error = %v", err)
	}
	if got != "0912345678" {
		t.Fatalf("Phone() = %q", got)
	}
}

func TestPhoneAcceptsSeparators(t *testing.T) {
	got, err := Phone("0912-345-678")
	if err != nil {
		t.Fatalf("Phone() error = %v", err)
	}
	if got != "0912345678" {
		t.Fatalf("Phone() = %q", got)
	}
}

func TestPhoneAcceptsInternational(t *testing.T) {
	got, err := Phone("+886912345678")
	if err != nil {
		t.Fatalf("Phone() error = %v", err)
	}
	if got != "+886912345678" {
		t.Fatalf("Phone() = %q", got)
	}
}

func TestPhoneAcceptsLandline(t *testing.T) {
	if _, err := Phone("02-2712-3456"); err != nil {
		t.Fatalf("Phone() error = %v", err)
	}
}

func TestPhoneRejected(t *testing.T) {
	cases := []struct {
		name  string
		value string
	}{
		{"too short", "123"},
		{"mobile prefix but short", "0912345"},
		{"unknown area code", "0112345678"},
		{"letters", "09123abc78"},
		{"international too short", "88691234"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Phone(tc.value); err == nil {
				t.Fatalf("Phone(%q) expected error", tc.value)
			}
		})
	}
}

func TestURL(t *testing.T) {
	accepted := []string{"https://example.com", "example.com/about", "www.example.com.tw"}
	for _, v := range accepted {
		if _, err := URL(v); err != nil {
			t.Fatalf("URL(%q) error = %v", v, err)
		}
	}

	rejected := []string{"", "has space.com", "javascript:alert(1)", "JAVASCRIPT:alert(1)", "data:text/html;x", "file:///etc/passwd", "not_a_url"}
	for _, v := range rejected {
		if _, err := URL(v); err == nil {
			t.Fatalf("URL(%q) expected error", v)
		}
	}
}

func TestPersonName(t *testing.T) {
	got, err := PersonName("  王小明 ")
	if err != nil {
		t.Fatalf("PersonName() error = %v", err)
	}
	if got != "王小明" {
		t.Fatalf("PersonName() = %q", got)
	}

	if _, err := PersonName("12345"); err == nil {
		t.Fatalf("expected digits-only rejection")
	}
	if _, err := PersonName("John\nSmith"); err == nil {
		t.Fatalf("expected newline rejection")
	}
	if _, err := PersonName(strings.Repeat("a", 101)); err == nil {
		t.Fatalf("expected length rejection")
	}
	if _, err := PersonName("John <Smith>"); err == nil {
		t.Fatalf("expected character allowlist rejection")
	}
}

func TestCompanyName(t *testing.T) {
	if _, err := CompanyName("A"); err == nil {
		t.Fatalf("expected min-length rejection")
	}
	got, err := CompanyName("ABC 科技股份有限公司")
	if err != nil {
		t.Fatalf("CompanyName() error = %v", err)
	}
	if got == "" {
		t.Fatalf("expected normalized company name")
	}
}

func TestGenericHelpers(t *testing.T) {
	if _, err := Required("notes", "  "); err == nil {
		t.Fatalf("Required expected error on blank")
	}
	if _, err := MinLength("notes", "ab", 3); err == nil {
		t.Fatalf("MinLength expected error")
	}
	if _, err := MaxLength("notes", "abcd", 3); err == nil {
		t.Fatalf("MaxLength expected error")
	}
	if _, err := LengthRange("notes", "abc", 2, 4); err != nil {
		t.Fatalf("LengthRange error = %v", err)
	}
}

func TestFieldRetagsSharedRules(t *testing.T) {
	_, err := Field(domain.FieldMobile, "123")
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FieldError, got %T", err)
	}
	if fe.Field != domain.FieldMobile {
		t.Fatalf("expected mobile field tag, got %q", fe.Field)
	}
}
