package model

import (
	"regexp"
	"strings"
	"time"
)

// EntityKind distinguishes graph nodes.
type EntityKind string

const (
	KindPerson       EntityKind = "person"
	KindOrganization EntityKind = "organization"
)

// EnrichmentSource records which analysis strategy produced an entity's profile.
type EnrichmentSource string

const (
	SourceWebScraper      EnrichmentSource = "web_scraper"
	SourcePerplexity      EnrichmentSource = "perplexity"
	SourceGPTFallback     EnrichmentSource = "gpt_fallback"
	SourceLocalFallback   EnrichmentSource = "local_fallback"
	SourceMinimalFallback EnrichmentSource = "minimal_fallback"
)

// Valid reports whether s is one of the defined enrichment sources.
func (s EnrichmentSource) Valid() bool {
	switch s {
	case SourceWebScraper, SourcePerplexity, SourceGPTFallback, SourceLocalFallback, SourceMinimalFallback:
		return true
	}
	return false
}

// UnknownTaxonomyCode is assigned when classification fails.
const UnknownTaxonomyCode = "IFT.UNKNOWN"

var taxonomyCodeRe = regexp.MustCompile(`^IFT(\.[A-Z0-9_]+)+$`)

// ValidTaxonomyCode reports whether code follows the dotted IFT hierarchy.
func ValidTaxonomyCode(code string) bool {
	return taxonomyCodeRe.MatchString(code)
}

// Taxonomy is the classification assigned to an entity.
type Taxonomy struct {
	Primary    string   `json:"primary"`
	Secondary  []string `json:"secondary"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Codes returns the primary code followed by secondary codes, skipping empties.
func (t Taxonomy) Codes() []string {
	var codes []string
	if t.Primary != "" {
		codes = append(codes, t.Primary)
	}
	for _, c := range t.Secondary {
		if c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

// UnknownTaxonomy is the stub returned when classification fails.
func UnknownTaxonomy() Taxonomy {
	return Taxonomy{
		Primary:    UnknownTaxonomyCode,
		Secondary:  []string{},
		Confidence: 0,
		Reasoning:  "Failed to classify",
	}
}

// WebpageCache holds scraped homepage content for an organization.
type WebpageCache struct {
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Fresh reports whether the cache is younger than ttl at now.
func (w *WebpageCache) Fresh(now time.Time, ttl time.Duration) bool {
	if w == nil || w.Content == "" || w.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(w.FetchedAt) < ttl
}

// Employment is one entry of a person's employment history.
type Employment struct {
	Company string `json:"company"`
	Title   string `json:"title"`
	Period  string `json:"period,omitempty"`
}

// Entity is a node in the relationship graph.
type Entity struct {
	ID          string     `json:"id"`
	Kind        EntityKind `json:"kind"`
	Name        string     `json:"name"`
	Domain      string     `json:"domain,omitempty"`
	Description string     `json:"description,omitempty"`
	Industry    string     `json:"industry,omitempty"`
	Importance  float64    `json:"importance"`

	// Person fields.
	Title       string       `json:"title,omitempty"`
	Bio         string       `json:"bio,omitempty"`
	Employer    string       `json:"employer,omitempty"`
	Skills      []string     `json:"skills,omitempty"`
	Employment  []Employment `json:"employment,omitempty"`
	WebSnippets []string     `json:"web_snippets,omitempty"`

	// Enrichment fields, written only by the enrichment pipeline.
	Taxonomy          *Taxonomy        `json:"taxonomy,omitempty"`
	Analysis          *Analysis        `json:"business_analysis,omitempty"`
	AISummary         string           `json:"ai_summary,omitempty"`
	Embedding         []float32        `json:"-"`
	TaxonomyEmbedding []float32        `json:"-"`
	EnrichmentSource  EnrichmentSource `json:"enrichment_source,omitempty"`
	Enriched          bool             `json:"enriched"`
	LastEnrichedAt    *time.Time       `json:"last_enriched_at,omitempty"`
	WebpageCache      *WebpageCache    `json:"webpage_cache,omitempty"`
}

// IsOrganization reports whether the entity is an organization.
func (e *Entity) IsOrganization() bool { return e.Kind == KindOrganization }

// IsPerson reports whether the entity is a person.
func (e *Entity) IsPerson() bool { return e.Kind == KindPerson }

// HasContext reports whether the entity carries any descriptive data a
// ranker or analyst could use.
func (e *Entity) HasContext() bool {
	return strings.TrimSpace(e.AISummary) != "" || strings.TrimSpace(e.Description) != "" ||
		e.HasAnalysis() || e.HasTaxonomy()
}

// HasAnalysis reports whether a stored profile is present.
func (e *Entity) HasAnalysis() bool {
	return e.Analysis != nil && (e.Analysis.Org != nil || e.Analysis.Person != nil)
}

// HasTaxonomy reports whether the entity carries a known primary code.
func (e *Entity) HasTaxonomy() bool {
	return e.Taxonomy != nil && e.Taxonomy.Primary != "" && e.Taxonomy.Primary != UnknownTaxonomyCode
}

// EnrichmentUpdate is the full set of derived fields persisted in one write.
type EnrichmentUpdate struct {
	EntityID          string
	Taxonomy          Taxonomy
	Analysis          Analysis
	AISummary         string
	Embedding         []float32
	TaxonomyEmbedding []float32
	Source            EnrichmentSource
	EnrichedAt        time.Time
}
