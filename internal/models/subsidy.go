package models

import "time"

// RegionNational is the sentinel value catalog feeds use for programs open to
// the whole country regardless of the applicant's region.
const RegionNational = "National"

// SubsidyCandidate is one funding program from the catalog, already resolved
// to a single display locale and stripped of HTML at the read boundary.
// Candidates are read-only during scoring.
type SubsidyCandidate struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Regions         []string `json:"regions"` // empty = no restriction
	Sector          string   `json:"sector"`  // empty = none declared
	UniversalSector bool     `json:"universal_sector"`
	AmountMin       float64  `json:"amount_min"`
	AmountMax       float64  `json:"amount_max"`
	Currency        string   `json:"currency"`
	EntityTypes     []string `json:"entity_types"` // e.g. "entreprise", "association"
	Funder          string   `json:"funder"`
	ExternalURL     string   `json:"external_url"`
	Active          bool     `json:"active"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RestrictedToRegion reports whether the candidate carries any region
// restriction at all.
func (s *SubsidyCandidate) RestrictedToRegion() bool {
	return len(s.Regions) > 0
}
