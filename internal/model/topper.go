package model

import (
	"strconv"
	"strings"
	"time"
)

// Topper is a single exam-topper record to be enriched.
//
// Descriptive fields are optional: empty strings and nil pointers mean the
// source document did not carry the value.
type Topper struct {
	ID              string `json:"id" yaml:"id"`
	FirstName       string `json:"firstName,omitempty" yaml:"firstName"`
	LastName        string `json:"lastName,omitempty" yaml:"lastName"`
	Rank            *int   `json:"rank,omitempty" yaml:"rank"`
	Year            *int   `json:"year,omitempty" yaml:"year"`
	OptionalSubject string `json:"optionalSubject,omitempty" yaml:"optionalSubject"`
	Slug            string `json:"slug,omitempty" yaml:"slug"`

	// Enrichment state, owned by the enrichment pipeline.
	Enriched      *bool      `json:"enriched,omitempty" yaml:"enriched"`
	Bio           string     `json:"bio,omitempty" yaml:"bio"`
	Strategy      string     `json:"strategy,omitempty" yaml:"strategy"`
	Insights      []string   `json:"insights,omitempty" yaml:"insights"`
	EnrichedAt    *time.Time `json:"enrichedAt,omitempty" yaml:"enrichedAt"`
	EnrichedRaw   string     `json:"enrichedRaw,omitempty" yaml:"enrichedRaw"`
	EnrichedError *string    `json:"enrichedError,omitempty" yaml:"enrichedError"`
	LastTriedAt   *time.Time `json:"lastTriedAt,omitempty" yaml:"lastTriedAt"`
}

// Eligible reports whether the record still needs enrichment.
func (t Topper) Eligible() bool {
	return t.Enriched == nil || !*t.Enriched
}

// FullName joins first and last name, skipping missing parts.
func (t Topper) FullName() string {
	return strings.TrimSpace(strings.Join(strings.Fields(t.FirstName+" "+t.LastName), " "))
}

// RankString returns the rank as text, or "" when absent.
func (t Topper) RankString() string {
	if t.Rank == nil {
		return ""
	}
	return strconv.Itoa(*t.Rank)
}

// YearString returns the year as text, or "" when absent.
func (t Topper) YearString() string {
	if t.Year == nil {
		return ""
	}
	return strconv.Itoa(*t.Year)
}

// Canonical field names accepted by the store update contract.
const (
	FieldEnriched      = "enriched"
	FieldBio           = "bio"
	FieldStrategy      = "strategy"
	FieldInsights      = "insights"
	FieldEnrichedAt    = "enrichedAt"
	FieldEnrichedRaw   = "enrichedRaw"
	FieldEnrichedError = "enrichedError"
	FieldLastTriedAt   = "lastTriedAt"
)

// EnrichmentFields lists every field the pipeline is allowed to mutate.
var EnrichmentFields = []string{
	FieldEnriched,
	FieldBio,
	FieldStrategy,
	FieldInsights,
	FieldEnrichedAt,
	FieldEnrichedRaw,
	FieldEnrichedError,
	FieldLastTriedAt,
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }
