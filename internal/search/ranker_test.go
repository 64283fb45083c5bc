package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/store"
)

func kybMarketingEntity() *model.Entity {
	return &model.Entity{
		ID:   "o1",
		Kind: model.KindOrganization,
		Name: "Growthly",
		Taxonomy: &model.Taxonomy{
			Primary: "IFT.RCI.ID.KYB.BASIC_PROFILE",
		},
		Analysis:  &model.Analysis{Org: &model.OrgProfile{Summary: "A digital marketing agency."}, Source: model.SourceWebScraper},
		AISummary: "Growthly is a marketing agency for startups.",
		Enriched:  true,
	}
}

func TestScore_KYBMarketing(t *testing.T) {
	e := kybMarketingEntity()
	terms := ExtractTerms("KYB compliance")

	assert.InDelta(t, exactCodeBoost, TaxonomyBoost(e, terms), 1e-9)
	assert.True(t, isDomainQuery(terms))
	assert.True(t, hasNonDomainIndicator(entitySummary(e)))

	// 0.5 base + 0.3 code + 0.1 domain - 0.3 penalty + 0.05 enriched + 0.05 summary
	assert.InDelta(t, 0.7, Score(0.5, e, terms), 1e-9)
	// high vector similarity clamps at 1
	assert.Equal(t, 1.0, Score(0.95, e, terms))
}

func TestScore_Bounds(t *testing.T) {
	rich := &model.Entity{
		Taxonomy:  &model.Taxonomy{Primary: "IFT.PAY.PROC", Secondary: []string{"IFT.PAY.XB"}},
		Analysis:  &model.Analysis{Org: &model.OrgProfile{Summary: "Payments processor"}},
		AISummary: "Payments processor",
		Enriched:  true,
	}
	bare := &model.Entity{Name: "Unknown LLC"}
	marketing := &model.Entity{AISummary: "marketing and advertising"}

	for _, base := range []float64{0, 0.3, 0.5, 0.99, 1} {
		for _, e := range []*model.Entity{rich, bare, marketing} {
			for _, q := range []string{"payments proc", "KYB compliance", "", "xb pay proc payments"} {
				s := Score(base, e, ExtractTerms(q))
				assert.GreaterOrEqual(t, s, 0.0)
				assert.LessOrEqual(t, s, 1.0)
			}
		}
	}
	assert.InDelta(t, 0.15, Score(0.5, bare, nil), 1e-9)
	assert.Equal(t, 0.0, Score(0.1, marketing, ExtractTerms("fraud")))
}

func TestTaxonomyBoost(t *testing.T) {
	e := &model.Entity{Taxonomy: &model.Taxonomy{Primary: "IFT.PAY.PROC", Secondary: []string{"IFT.LEND.SMB"}}}
	assert.InDelta(t, 0.3, TaxonomyBoost(e, []string{"smb"}), 1e-9)
	assert.InDelta(t, 0.1, TaxonomyBoost(e, []string{"lending"}), 1e-9)
	assert.InDelta(t, 0.4, TaxonomyBoost(e, []string{"pay", "proc", "smb"}), 1e-9)
	assert.Zero(t, TaxonomyBoost(e, []string{"insurance"}))
	assert.Zero(t, TaxonomyBoost(&model.Entity{}, []string{"pay"}))
}

func TestRank_MergesLexicalAndVector(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}

	both := model.Entity{ID: "both", Name: "Both", Description: "payments"}
	lexOnly := model.Entity{ID: "lex", Name: "Lex", Description: "payments"}
	vecOnly := model.Entity{ID: "vec", Name: "Vec", Description: "payments"}

	st.On("SearchLexical", mock.Anything, []string{"payments"}, store.SearchFilter{}, 10).
		Return([]model.Entity{lexOnly, both}, nil)
	emb.On("Embed", mock.Anything, "payments").Return([]float32{1, 0, 0}, nil).Once()
	st.On("MatchEntities", mock.Anything, []float32{1, 0, 0}, 0.3, 10).
		Return([]store.Match{{Entity: both, Similarity: 0.9}, {Entity: vecOnly, Similarity: 0.4}}, nil)

	cache := NewMemoryEmbeddingCache(10)
	r := NewRanker(st, emb, cache, 0.3)

	results, err := r.Rank(context.Background(), "payments", 5, store.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "both", results[0].Entity.ID)
	assert.InDelta(t, 0.9, results[0].Similarity, 1e-9)
	assert.Equal(t, "lex", results[1].Entity.ID)
	assert.Equal(t, "vec", results[2].Entity.ID)

	// second call is served from the embedding cache
	_, err = r.Rank(context.Background(), "payments", 5, store.SearchFilter{})
	require.NoError(t, err)
	emb.AssertNumberOfCalls(t, "Embed", 1)
}

func TestRank_VectorFailureDegradesToLexical(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	st.On("SearchLexical", mock.Anything, mock.Anything, mock.Anything, 4).
		Return([]model.Entity{{ID: "a", Description: "x"}, {ID: "b", Description: "y"}, {ID: "c", Description: "z"}}, nil)
	emb.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("embedding api down"))

	results, err := NewRanker(st, emb, nil, 0).Rank(context.Background(), "fraud detection", 2, store.SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	st.AssertNotCalled(t, "MatchEntities", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRank_VectorFilterAndLexicalError(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	st.On("SearchLexical", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{1, 1, 1}, nil)
	st.On("MatchEntities", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	_, err := NewRanker(st, emb, nil, 0).Rank(context.Background(), "fraud", 5, store.SearchFilter{})
	assert.Error(t, err)

	matches := []store.Match{
		{Entity: model.Entity{ID: "p", Kind: model.KindPerson}, Similarity: 0.8},
		{Entity: model.Entity{ID: "o", Kind: model.KindOrganization, Enriched: true}, Similarity: 0.7},
	}
	st2 := &mockStore{}
	st2.On("MatchEntities", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(matches, nil)
	r := NewRanker(st2, emb, nil, 0)
	got := r.vectorMatches(context.Background(), "q", 10, store.SearchFilter{Kind: model.KindOrganization, EnrichedOnly: true})
	require.Len(t, got, 1)
	assert.Equal(t, "o", got[0].Entity.ID)
}

func TestRank_NoTermsSkipsLexical(t *testing.T) {
	st := &mockStore{}
	r := NewRanker(st, nil, nil, 0)
	results, err := r.Rank(context.Background(), "who is it", 5, store.SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)
	st.AssertNotCalled(t, "SearchLexical", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
