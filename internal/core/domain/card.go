package domain

import "time"

// ExtractionSource identifies which strategy produced a ParsedCardData.
type ExtractionSource string

const (
	SourceAI     ExtractionSource = "ai"
	SourceLocal  ExtractionSource = "local"
	SourceManual ExtractionSource = "manual"
	SourceHybrid ExtractionSource = "hybrid"
)

// Canonical field names shared by extraction, validation and confidence
// scoring.
const (
	FieldName        = "name"
	FieldNameEnglish = "name_english"
	FieldCompany     = "company"
	FieldJobTitle    = "job_title"
	FieldDepartment  = "department"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldMobile      = "mobile"
	FieldFax         = "fax"
	FieldAddress     = "address"
	FieldWebsite     = "website"
	FieldNotes       = "notes"
)

// ParsedCardData holds candidate structured fields recovered from one
// business card. Empty strings mean the field is absent.
type ParsedCardData struct {
	Name        string `json:"name,omitempty"`
	NameEnglish string `json:"name_english,omitempty"`
	Company     string `json:"company,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`
	Department  string `json:"department,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Mobile      string `json:"mobile,omitempty"`
	Fax         string `json:"fax,omitempty"`
	Address     string `json:"address,omitempty"`
	Website     string `json:"website,omitempty"`
	Notes       string `json:"notes,omitempty"`

	Confidence      float64            `json:"confidence"`
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`
	Source          ExtractionSource   `json:"source"`
	ParsedAt        time.Time          `json:"parsed_at"`
}

// Fields returns pointers to the optional string fields keyed by
// canonical name, so validation and merging can iterate instead of
// switching per field.
func (d *ParsedCardData) Fields() map[string]*string {
	return map[string]*string{
		FieldName:        &d.Name,
		FieldNameEnglish: &d.NameEnglish,
		FieldCompany:     &d.Company,
		FieldJobTitle:    &d.JobTitle,
		FieldDepartment:  &d.Department,
		FieldEmail:       &d.Email,
		FieldPhone:       &d.Phone,
		FieldMobile:      &d.Mobile,
		FieldFax:         &d.Fax,
		FieldAddress:     &d.Address,
		FieldWebsite:     &d.Website,
		FieldNotes:       &d.Notes,
	}
}

func (d *ParsedCardData) IsEmpty() bool {
	for _, v := range d.Fields() {
		if *v != "" {
			return false
		}
	}
	return true
}

// BusinessCard is the persisted record built from a trusted
// ParsedCardData or manual input. Mutations are full-record
// replace-on-save.
type BusinessCard struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	NameEnglish string    `json:"name_english,omitempty"`
	Company     string    `json:"company,omitempty"`
	JobTitle    string    `json:"job_title,omitempty"`
	Department  string    `json:"department,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Mobile      string    `json:"mobile,omitempty"`
	Fax         string    `json:"fax,omitempty"`
	Address     string    `json:"address,omitempty"`
	Website     string    `json:"website,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// FieldWarning records a field dropped during the validation pass.
type FieldWarning struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ExtractionOutcome is the per-request result of the extraction
// pipeline: the chosen card data plus validation warnings.
type ExtractionOutcome struct {
	Card     *ParsedCardData `json:"card"`
	Warnings []FieldWarning  `json:"warnings,omitempty"`
	Rejected bool            `json:"rejected"`
}

// BatchFailure records one failed item of a batch without aborting the
// rest.
type BatchFailure struct {
	Index   int    `json:"index"`
	Err     string `json:"error"`
	RawText string `json:"raw_text,omitempty"`
}

type BatchResult struct {
	Successful   []*ExtractionOutcome `json:"successful"`
	Failed       []BatchFailure       `json:"failed"`
	SuccessCount int                  `json:"success_count"`
	FailureCount int                  `json:"failure_count"`
}
