package models

// CompanyProfile is the applicant record as the surrounding application owns
// it. It is read-only for the duration of one matching call; every derived
// value lives in matching.AnalyzedProfile instead.
type CompanyProfile struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Sector         string        `json:"sector"`
	ActivityCode   string        `json:"activity_code"` // NAF-style, e.g. "01.13Z"
	ActivityLabel  string        `json:"activity_label"`
	Region         string        `json:"region"`
	Department     string        `json:"department"`
	EmployeeBucket string        `json:"employee_bucket"` // e.g. "10-19"
	AnnualTurnover float64       `json:"annual_turnover"`
	FoundingYear   int           `json:"founding_year"`
	LegalForm      string        `json:"legal_form"`
	Certifications []string      `json:"certifications"`
	ProjectTypes   []string      `json:"project_types"`
	Description    string        `json:"description"`
	WebsiteIntel   *WebsiteIntel `json:"website_intel,omitempty"`
}

// WebsiteIntel is the optional enrichment blob produced by the site-analysis
// job upstream. Only the activity tags feed the matcher.
type WebsiteIntel struct {
	ActivityTags []string `json:"activity_tags"`
	DigitalScore float64  `json:"digital_score"`
	ExportScore  float64  `json:"export_score"`
}
