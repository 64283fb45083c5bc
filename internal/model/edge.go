package model

import "time"

// DefaultEdgeStrength applies when an edge carries no strength score.
const DefaultEdgeStrength = 0.5

// Edge is a relationship between two entities. Traversal treats edges as
// undirected.
type Edge struct {
	ID       string   `json:"id"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Kind     string   `json:"kind"`
	Strength *float64 `json:"strength_score,omitempty"`
}

// StrengthScore returns the edge strength, defaulting to 0.5.
func (e Edge) StrengthScore() float64 {
	if e.Strength == nil {
		return DefaultEdgeStrength
	}
	return *e.Strength
}

// Other returns the endpoint opposite id.
func (e Edge) Other(id string) string {
	if e.SourceID == id {
		return e.TargetID
	}
	return e.SourceID
}

// StatusValue is the outcome recorded for an enrichment attempt.
type StatusValue string

const (
	StatusCompleted StatusValue = "completed"
	StatusFailed    StatusValue = "failed"
)

// EnrichmentStatus is best-effort telemetry for the latest enrichment attempt.
type EnrichmentStatus struct {
	EntityID     string      `json:"entity_id"`
	Status       StatusValue `json:"status"`
	Attempts     int         `json:"attempts"`
	LastAttempt  time.Time   `json:"last_attempt"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// CrawledPage is a single fetched web page.
type CrawledPage struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Markdown   string `json:"markdown"`
	StatusCode int    `json:"status_code"`
}
