package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/david/subsidy-matcher/internal/models"
)

// LocalizedText decodes feed fields that arrive either as a bare string or
// as a language map such as {"fr": "...", "en": "..."}.
type LocalizedText map[string]string

func (t *LocalizedText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = LocalizedText{"fr": s}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("localized text is neither string nor map: %w", err)
	}
	*t = m
	return nil
}

// Resolve prefers French, then English, then the first non-empty value in
// sorted language order so the pick is stable across runs.
func (t LocalizedText) Resolve() string {
	if v := t["fr"]; v != "" {
		return v
	}
	if v := t["en"]; v != "" {
		return v
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t[k] != "" {
			return t[k]
		}
	}
	return ""
}

// RawSubsidy is one provider feed entry before cleanup.
type RawSubsidy struct {
	ID          string        `json:"id"`
	Title       LocalizedText `json:"title"`
	Description LocalizedText `json:"description"`
	Regions     []string      `json:"regions"`
	Sector      string        `json:"sector"`
	Universal   bool          `json:"universal_sector"`
	AmountMin   float64       `json:"amount_min"`
	AmountMax   float64       `json:"amount_max"`
	Currency    string        `json:"currency"`
	EntityTypes []string      `json:"entity_types"`
	Funder      string        `json:"funder"`
	ExternalURL string        `json:"url"`
	Active      *bool         `json:"active"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Normalize converts a feed entry into a canonical candidate. Feeds omit
// the active flag for live schemes, so absence means active.
func Normalize(raw RawSubsidy) (models.SubsidyCandidate, error) {
	title := CleanText(raw.Title.Resolve())
	id := strings.TrimSpace(raw.ID)
	if id == "" || title == "" {
		return models.SubsidyCandidate{}, fmt.Errorf("feed entry missing id or title (id=%q)", raw.ID)
	}

	c := models.SubsidyCandidate{
		ID:              id,
		Title:           title,
		Description:     CleanText(raw.Description.Resolve()),
		Regions:         cleanList(raw.Regions),
		Sector:          strings.TrimSpace(raw.Sector),
		UniversalSector: raw.Universal,
		AmountMin:       raw.AmountMin,
		AmountMax:       raw.AmountMax,
		Currency:        strings.ToUpper(strings.TrimSpace(raw.Currency)),
		EntityTypes:     cleanList(raw.EntityTypes),
		Funder:          CleanText(raw.Funder),
		ExternalURL:     strings.TrimSpace(raw.ExternalURL),
		Active:          true,
		UpdatedAt:       raw.UpdatedAt,
	}
	if c.Currency == "" {
		c.Currency = "EUR"
	}
	if raw.Active != nil {
		c.Active = *raw.Active
	}
	if c.AmountMax > 0 && c.AmountMax < c.AmountMin {
		c.AmountMin, c.AmountMax = c.AmountMax, c.AmountMin
	}
	return c, nil
}

var sanitizer = bluemonday.UGCPolicy()

// CleanText strips markup from a feed value. Sanitizing first keeps script
// and style bodies out of the extracted text.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = htmlToText(sanitizer.Sanitize(s))
	}
	return normalizeSpace(s)
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return doc.Text()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = normalizeSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
