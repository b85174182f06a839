// Package heuristics is the local fallback parser: pattern-table driven
// field extraction over raw OCR text, used whenever the AI collaborator
// is unavailable or untrusted.
package heuristics

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// PatternTable is the immutable configuration behind the extractor:
// vocabulary and pattern sources injected at construction so tests can
// substitute smaller tables. Loaded once; never mutated afterwards.
type PatternTable struct {
	// Surnames holds single-character CJK family names used to prefer
	// name candidates.
	Surnames []string `yaml:"surnames"`
	// NonNameTokens disqualify a Latin capitalized-words match from
	// being a person name.
	NonNameTokens []string `yaml:"non_name_tokens"`
	// TitlesCJK and TitlesLatin are job-title vocabularies.
	TitlesCJK   []string `yaml:"titles_cjk"`
	TitlesLatin []string `yaml:"titles_latin"`
	// Seniority modifiers may precede a Latin title.
	Seniority []string `yaml:"seniority"`
	// CompanySuffixesCJK and CompanySuffixesLatin mark legal-entity
	// names.
	CompanySuffixesCJK   []string `yaml:"company_suffixes_cjk"`
	CompanySuffixesLatin []string `yaml:"company_suffixes_latin"`
	// AddressTokens must appear at least once in an address line.
	AddressTokens []string `yaml:"address_tokens"`
}

// DefaultPatterns returns the built-in table tuned for Taiwanese
// business cards with mixed CJK/Latin text.
func DefaultPatterns() *PatternTable {
	return &PatternTable{
		Surnames: []string{
			"王", "李", "張", "陳", "林", "黃", "吳", "劉", "蔡", "楊",
			"許", "鄭", "謝", "郭", "洪", "曾", "邱", "廖", "賴", "周",
			"徐", "蘇", "葉", "莊", "呂", "江", "何", "蕭", "羅", "高",
			"潘", "簡", "朱", "鍾", "游", "彭", "詹", "胡", "施", "沈",
		},
		NonNameTokens: []string{
			"Road", "Street", "Avenue", "Lane", "Boulevard", "Floor", "Room",
			"Inc", "Ltd", "LLC", "Corp", "Corporation", "Company", "Limited",
			"Manager", "Director", "Engineer", "Designer", "Consultant",
			"President", "Officer", "Taiwan", "Taipei", "Tel", "Fax", "Email",
		},
		TitlesCJK: []string{
			"董事長", "總經理", "副總經理", "執行長", "營運長", "技術長",
			"協理", "副理", "經理", "襄理", "主任", "組長", "課長",
			"專員", "工程師", "設計師", "顧問", "總監", "主管", "業務",
		},
		TitlesLatin: []string{
			"Manager", "Director", "Engineer", "Designer", "Consultant",
			"President", "Officer", "Developer", "Analyst", "Architect",
			"Specialist", "Supervisor", "Partner", "Founder",
		},
		Seniority: []string{
			"Senior", "Lead", "Chief", "Principal", "Executive", "Vice",
			"Assistant", "Deputy", "General", "Associate",
		},
		CompanySuffixesCJK: []string{
			"股份有限公司", "有限公司", "公司", "企業社", "企業", "集團",
			"工作室", "事務所", "商行", "實業",
		},
		CompanySuffixesLatin: []string{
			"Inc", "LLC", "Ltd", "Corp", "Co", "Company", "Corporation", "Limited",
		},
		AddressTokens: []string{
			"路", "街", "大道", "巷", "弄", "號", "樓", "室", "區", "市", "縣",
			"Road", "Rd", "Street", "St", "Lane", "Alley", "Blvd", "No.",
			"Floor", "Fl", "Room",
		},
	}
}

// LoadPatterns reads a YAML override file; absent sections fall back to
// the defaults, so deployments can swap one vocabulary without
// restating the rest.
func LoadPatterns(path string) (*PatternTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern table: %w", err)
	}
	var override PatternTable
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("decode pattern table: %w", err)
	}

	merged := DefaultPatterns()
	if len(override.Surnames) > 0 {
		merged.Surnames = override.Surnames
	}
	if len(override.NonNameTokens) > 0 {
		merged.NonNameTokens = override.NonNameTokens
	}
	if len(override.TitlesCJK) > 0 {
		merged.TitlesCJK = override.TitlesCJK
	}
	if len(override.TitlesLatin) > 0 {
		merged.TitlesLatin = override.TitlesLatin
	}
	if len(override.Seniority) > 0 {
		merged.Seniority = override.Seniority
	}
	if len(override.CompanySuffixesCJK) > 0 {
		merged.CompanySuffixesCJK = override.CompanySuffixesCJK
	}
	if len(override.CompanySuffixesLatin) > 0 {
		merged.CompanySuffixesLatin = override.CompanySuffixesLatin
	}
	if len(override.AddressTokens) > 0 {
		merged.AddressTokens = override.AddressTokens
	}
	return merged, nil
}

// compiled holds the regexes built once from a PatternTable.
type compiled struct {
	surnames map[rune]struct{}

	cjkName   *regexp.Regexp
	latinName *regexp.Regexp
	nonName   map[string]struct{}

	companyCJK   *regexp.Regexp
	companyLatin *regexp.Regexp

	titleCJK   *regexp.Regexp
	titleLatin *regexp.Regexp

	email *regexp.Regexp

	// Ordered first-match-wins phone rules.
	phoneRules []phoneRule

	addressTokens []string
	website       *regexp.Regexp
}

// phoneRule pairs a pattern with the card field it fills. Rules are
// evaluated in order; the first match per field wins.
type phoneRule struct {
	field   string
	pattern *regexp.Regexp
}

func compilePatterns(t *PatternTable) *compiled {
	surnames := make(map[rune]struct{}, len(t.Surnames))
	for _, s := range t.Surnames {
		for _, r := range s {
			surnames[r] = struct{}{}
			break
		}
	}

	nonName := make(map[string]struct{}, len(t.NonNameTokens))
	for _, tok := range t.NonNameTokens {
		nonName[strings.ToLower(tok)] = struct{}{}
	}

	return &compiled{
		surnames: surnames,

		cjkName:   regexp.MustCompile(`^\p{Han}{2,4}$`),
		latinName: regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t][A-Z][a-z]+)+\b`),
		nonName:   nonName,

		companyCJK:   regexp.MustCompile(`\S+(?:` + alternation(t.CompanySuffixesCJK) + `)`),
		companyLatin: regexp.MustCompile(`(?m)^.*\b(?:` + alternation(t.CompanySuffixesLatin) + `)\.?\s*$`),

		titleCJK: regexp.MustCompile(alternation(t.TitlesCJK)),
		titleLatin: regexp.MustCompile(
			`\b(?:(?:` + alternation(t.Seniority) + `)\s+)?(?:` + alternation(t.TitlesLatin) + `)\b`),

		email: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),

		phoneRules: []phoneRule{
			{"phone", regexp.MustCompile(`(?i)(?:tel|phone|電話)[:：\s]*(\+?[\d()\- ]{7,16}\d)`)},
			{"phone", regexp.MustCompile(`\b(0[2-8])[\- ]?(\d{3,4})[\- ]?(\d{4})\b`)},
			{"mobile", regexp.MustCompile(`(?i)(?:mobile|cell|手機)[:：\s]*(09\d{2}[\- ]?\d{3}[\- ]?\d{3})`)},
			{"mobile", regexp.MustCompile(`\b09\d{2}[\- ]?\d{3}[\- ]?\d{3}\b`)},
			{"phone", regexp.MustCompile(`\+886[\- ]?\d{1,2}[\- ]?\d{3,4}[\- ]?\d{3,4}`)},
			{"fax", regexp.MustCompile(`(?i)(?:fax|傳真)[:：\s]*(\+?[\d()\- ]{7,16}\d)`)},
		},

		addressTokens: t.AddressTokens,
		website: regexp.MustCompile(
			`\b(?:https?://)?(?:www\.)?[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?)*\.[A-Za-z]{2,}(?:/\S*)?`),
	}
}

func alternation(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, it := range items {
		quoted = append(quoted, regexp.QuoteMeta(it))
	}
	return strings.Join(quoted, "|")
}
