package heuristics

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

// Per-rule confidences recorded in ParsedCardData.FieldConfidence.
const (
	confNameSurname = 0.90
	confNameCJK     = 0.70
	confNameLatin   = 0.75
	confCompany     = 0.80
	confTitle       = 0.80
	confEmail       = 0.95
	confPhone       = 0.85
	confMobile      = 0.90
	confFax         = 0.85
	confAddress     = 0.70
	confWebsite     = 0.80
)

const minAddressLength = 10

// Extractor parses raw OCR text into candidate card fields using the
// injected pattern table. Parsing never fails; unusable input yields an
// empty result with zero confidence.
type Extractor struct {
	rules *compiled
	clock func() time.Time
}

type Option func(*Extractor)

// WithClock overrides the timestamp source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Extractor) { e.clock = clock }
}

func New(table *PatternTable, opts ...Option) *Extractor {
	if table == nil {
		table = DefaultPatterns()
	}
	e := &Extractor{
		rules: compilePatterns(table),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parse runs the field extractors in a fixed order over the text split
// into lines plus whole-text passes, then scores the result.
func (e *Extractor) Parse(text string) *domain.ParsedCardData {
	data := &domain.ParsedCardData{
		Source:          domain.SourceLocal,
		FieldConfidence: map[string]float64{},
		ParsedAt:        e.clock().UTC(),
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return data
	}

	lines := splitLines(trimmed)

	e.extractName(lines, data)
	e.extractCompany(lines, data)
	e.extractJobTitle(trimmed, data)
	e.extractEmail(trimmed, data)
	e.extractPhones(trimmed, data)
	e.extractAddress(lines, data)
	e.extractWebsite(lines, data)

	data.Confidence = Score(data)
	return data
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}

// extractName prefers a CJK 2-4 ideograph line starting with a known
// surname, then any CJK name-shaped line that is not a title or a
// company, then a Latin run of capitalized words free of non-name
// tokens.
func (e *Extractor) extractName(lines []string, data *domain.ParsedCardData) {
	var cjkFallback string
	for _, line := range lines {
		if !e.rules.cjkName.MatchString(line) {
			continue
		}
		if e.rules.titleCJK.MatchString(line) || e.rules.companyCJK.MatchString(line) {
			continue
		}
		first, _ := utf8.DecodeRuneInString(line)
		if _, ok := e.rules.surnames[first]; ok {
			data.Name = line
			data.FieldConfidence[domain.FieldName] = confNameSurname
			return
		}
		if cjkFallback == "" {
			cjkFallback = line
		}
	}
	if cjkFallback != "" {
		data.Name = cjkFallback
		data.FieldConfidence[domain.FieldName] = confNameCJK
		return
	}

	for _, line := range lines {
		match := e.rules.latinName.FindString(line)
		if match == "" {
			continue
		}
		if e.containsNonNameToken(match) {
			continue
		}
		data.Name = match
		data.FieldConfidence[domain.FieldName] = confNameLatin
		return
	}
}

func (e *Extractor) containsNonNameToken(candidate string) bool {
	for _, word := range strings.Fields(candidate) {
		if _, ok := e.rules.nonName[strings.ToLower(word)]; ok {
			return true
		}
	}
	return false
}

func (e *Extractor) extractCompany(lines []string, data *domain.ParsedCardData) {
	for _, line := range lines {
		if match := e.rules.companyCJK.FindString(line); match != "" {
			data.Company = match
			data.FieldConfidence[domain.FieldCompany] = confCompany
			return
		}
	}
	for _, line := range lines {
		if match := e.rules.companyLatin.FindString(line); match != "" {
			data.Company = strings.TrimSpace(match)
			data.FieldConfidence[domain.FieldCompany] = confCompany
			return
		}
	}
}

func (e *Extractor) extractJobTitle(text string, data *domain.ParsedCardData) {
	if match := e.rules.titleCJK.FindString(text); match != "" {
		data.JobTitle = match
		data.FieldConfidence[domain.FieldJobTitle] = confTitle
		return
	}
	if match := e.rules.titleLatin.FindString(text); match != "" {
		data.JobTitle = match
		data.FieldConfidence[domain.FieldJobTitle] = confTitle
	}
}

func (e *Extractor) extractEmail(text string, data *domain.ParsedCardData) {
	if match := e.rules.email.FindString(text); match != "" {
		data.Email = match
		data.FieldConfidence[domain.FieldEmail] = confEmail
	}
}

// extractPhones walks the ordered rule list; the first match per target
// field wins, later rules for an already-filled field are skipped.
func (e *Extractor) extractPhones(text string, data *domain.ParsedCardData) {
	for _, rule := range e.rules.phoneRules {
		target, conf := phoneTarget(rule.field, data)
		if target == nil || *target != "" {
			continue
		}
		match := rule.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		value := match[0]
		if len(match) > 1 && match[1] != "" {
			value = match[1]
		}
		*target = strings.TrimSpace(value)
		data.FieldConfidence[rule.field] = conf
	}
}

func phoneTarget(field string, data *domain.ParsedCardData) (*string, float64) {
	switch field {
	case domain.FieldPhone:
		return &data.Phone, confPhone
	case domain.FieldMobile:
		return &data.Mobile, confMobile
	case domain.FieldFax:
		return &data.Fax, confFax
	default:
		return nil, 0
	}
}

// extractAddress wants at least one address-unit token and a plausible
// length; the first qualifying line wins.
func (e *Extractor) extractAddress(lines []string, data *domain.ParsedCardData) {
	for _, line := range lines {
		if utf8.RuneCountInString(line) < minAddressLength {
			continue
		}
		for _, token := range e.rules.addressTokens {
			if strings.Contains(line, token) {
				data.Address = line
				data.FieldConfidence[domain.FieldAddress] = confAddress
				return
			}
		}
	}
}

// extractWebsite skips lines containing '@' so an email domain is never
// mistaken for a site.
func (e *Extractor) extractWebsite(lines []string, data *domain.ParsedCardData) {
	for _, line := range lines {
		if strings.Contains(line, "@") {
			continue
		}
		if match := e.rules.website.FindString(line); match != "" {
			data.Website = match
			data.FieldConfidence[domain.FieldWebsite] = confWebsite
			return
		}
	}
}
