package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnrichmentSourceValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source EnrichmentSource
		want   bool
	}{
		{SourceWebScraper, true},
		{SourcePerplexity, true},
		{SourceGPTFallback, true},
		{SourceLocalFallback, true},
		{SourceMinimalFallback, true},
		{"", false},
		{"openai", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.source.Valid())
		})
	}
}

func TestValidTaxonomyCode(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidTaxonomyCode("IFT.A.B"))
	assert.True(t, ValidTaxonomyCode("IFT.RCI.ID.KYB.BASIC_PROFILE"))
	assert.True(t, ValidTaxonomyCode(UnknownTaxonomyCode))
	assert.False(t, ValidTaxonomyCode("IFT"))
	assert.False(t, ValidTaxonomyCode("ift.a.b"))
	assert.False(t, ValidTaxonomyCode("FIN.A"))
	assert.False(t, ValidTaxonomyCode("IFT..A"))
}

func TestWebpageCacheFresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ttl := 30 * 24 * time.Hour

	var nilCache *WebpageCache
	assert.False(t, nilCache.Fresh(now, ttl))
	assert.False(t, (&WebpageCache{FetchedAt: now}).Fresh(now, ttl), "empty content is never fresh")
	assert.True(t, (&WebpageCache{Content: "x", FetchedAt: now.Add(-10 * 24 * time.Hour)}).Fresh(now, ttl))
	assert.False(t, (&WebpageCache{Content: "x", FetchedAt: now.Add(-31 * 24 * time.Hour)}).Fresh(now, ttl))
}

func TestTaxonomyCodes(t *testing.T) {
	t.Parallel()

	tx := Taxonomy{Primary: "IFT.A", Secondary: []string{"", "IFT.B"}}
	assert.Equal(t, []string{"IFT.A", "IFT.B"}, tx.Codes())
	assert.Empty(t, Taxonomy{}.Codes())
}

func TestEntityHasContext(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Entity{Name: "bare"}).HasContext())
	assert.False(t, (&Entity{Taxonomy: &Taxonomy{Primary: UnknownTaxonomyCode}}).HasContext())
	assert.True(t, (&Entity{Description: "payments"}).HasContext())
	assert.True(t, (&Entity{Taxonomy: &Taxonomy{Primary: "IFT.PAY"}}).HasContext())
	assert.False(t, (&Entity{Description: "  ", Analysis: &Analysis{}}).HasContext())
	assert.True(t, (&Entity{Analysis: &Analysis{Org: &OrgProfile{}}}).HasContext())
}

func TestAnalysisPlaceholder(t *testing.T) {
	t.Parallel()

	var nilAnalysis *Analysis
	assert.True(t, nilAnalysis.Placeholder())
	assert.True(t, (&Analysis{Org: &OrgProfile{Error: true}}).Placeholder())
	assert.False(t, (&Analysis{Org: &OrgProfile{Summary: "ok"}}).Placeholder())
	assert.True(t, (&Analysis{Person: &PersonProfile{SeniorityLevel: SeniorityUnknown}}).Placeholder())
	assert.False(t, (&Analysis{Person: &PersonProfile{SeniorityLevel: SeniorityUnknown, FunctionalExpertise: []string{"Sales"}}}).Placeholder())
}

func TestEdgeStrengthAndOther(t *testing.T) {
	t.Parallel()

	e := Edge{SourceID: "a", TargetID: "b"}
	assert.Equal(t, DefaultEdgeStrength, e.StrengthScore())
	s := 0.9
	e.Strength = &s
	assert.Equal(t, 0.9, e.StrengthScore())
	assert.Equal(t, "b", e.Other("a"))
	assert.Equal(t, "a", e.Other("b"))
}
