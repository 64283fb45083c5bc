package search

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/store"
	"github.com/sells-group/relgraph/pkg/embed"
)

// Score adjustments applied on top of the base similarity.
const (
	lexicalBaseScore   = 0.5
	exactCodeBoost     = 0.3
	partialCodeBoost   = 0.1
	maxTaxonomyBoost   = 0.4
	domainBoost        = 0.1
	nonDomainPenalty   = 0.3
	noContextDamping   = 0.3
	enrichmentBoost    = 0.05
	aiSummaryBoost     = 0.05
	multiCodeBoost     = 0.05
	defaultMatchCutoff = 0.3
)

// domainTerms mark a query as being about the graph's core (financial
// infrastructure) domain.
var domainTerms = map[string]struct{}{
	"aml": {}, "banking": {}, "bank": {}, "compliance": {}, "credit": {}, "fintech": {},
	"fraud": {}, "identity": {}, "kyb": {}, "kyc": {}, "lending": {}, "payments": {},
	"payment": {}, "regtech": {}, "risk": {}, "underwriting": {}, "verification": {},
	"onboarding": {}, "sanctions": {}, "treasury": {},
}

// nonDomainIndicators in a summary suggest the entity is outside the domain.
var nonDomainIndicators = []string{
	"marketing agency", "marketing", "advertising", "real estate", "restaurant",
	"hospitality", "staffing", "recruiting", "construction", "retail store",
	"event planning", "interior design",
}

// Ranker merges lexical and vector candidates and applies deterministic
// heuristics.
type Ranker struct {
	store     store.Store
	embedder  embed.Embedder
	cache     EmbeddingCache
	threshold float64
}

// NewRanker creates a Ranker. embedder and cache may be nil; without an
// embedder the ranker is lexical only.
func NewRanker(st store.Store, embedder embed.Embedder, cache EmbeddingCache, threshold float64) *Ranker {
	if threshold <= 0 {
		threshold = defaultMatchCutoff
	}
	return &Ranker{store: st, embedder: embedder, cache: cache, threshold: threshold}
}

type candidate struct {
	entity model.Entity
	base   float64
}

// Rank returns up to limit entities for query, scored in [0, 1] and sorted
// by descending score. Vector failures degrade to lexical results.
func (r *Ranker) Rank(ctx context.Context, query string, limit int, filter store.SearchFilter) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := ExtractTerms(query)

	var (
		lexical []model.Entity
		vector  []store.Match
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(terms) == 0 {
			return nil
		}
		res, err := r.store.SearchLexical(gctx, terms, filter, 2*limit)
		if err != nil {
			return eris.Wrap(err, "search: lexical")
		}
		lexical = res
		return nil
	})
	g.Go(func() error {
		vector = r.vectorMatches(gctx, query, 2*limit, filter)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeCandidates(lexical, vector)
	results := make([]model.SearchResult, 0, len(merged))
	for _, c := range merged {
		e := c.entity
		results = append(results, model.SearchResult{
			Entity:     &e,
			Similarity: Score(c.base, &e, terms),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	zap.L().Debug("search: ranked",
		zap.String("query", query),
		zap.Strings("terms", terms),
		zap.Int("lexical", len(lexical)),
		zap.Int("vector", len(vector)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// vectorMatches never fails; any error yields no vector candidates.
func (r *Ranker) vectorMatches(ctx context.Context, query string, count int, filter store.SearchFilter) []store.Match {
	if r.embedder == nil {
		return nil
	}
	vec, err := r.queryEmbedding(ctx, query)
	if err != nil {
		zap.L().Warn("search: query embedding failed, using lexical results only", zap.Error(err))
		return nil
	}
	matches, err := r.store.MatchEntities(ctx, vec, r.threshold, count)
	if err != nil {
		zap.L().Warn("search: vector match failed, using lexical results only", zap.Error(err))
		return nil
	}

	out := matches[:0]
	for _, m := range matches {
		if filter.Kind != "" && m.Entity.Kind != filter.Kind {
			continue
		}
		if filter.EnrichedOnly && !m.Entity.Enriched {
			continue
		}
		if filter.TaxonomyPrefix != "" && (m.Entity.Taxonomy == nil || !strings.HasPrefix(m.Entity.Taxonomy.Primary, filter.TaxonomyPrefix)) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *Ranker) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if r.cache != nil {
		vec, ok, err := r.cache.Get(ctx, query)
		if err != nil {
			zap.L().Debug("search: embedding cache read failed", zap.Error(err))
		}
		if ok && len(vec) == r.embedder.Dimensions() {
			return vec, nil
		}
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vec) != r.embedder.Dimensions() {
		return nil, &embed.DimensionError{Got: len(vec), Want: r.embedder.Dimensions()}
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, query, vec); err != nil {
			zap.L().Debug("search: embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}

// mergeCandidates unions both candidate lists, keeping the higher base score
// for entities found by both. Lexical order comes first.
func mergeCandidates(lexical []model.Entity, vector []store.Match) []candidate {
	index := make(map[string]int, len(lexical)+len(vector))
	var out []candidate
	for _, e := range lexical {
		if _, ok := index[e.ID]; ok {
			continue
		}
		index[e.ID] = len(out)
		out = append(out, candidate{entity: e, base: lexicalBaseScore})
	}
	for _, m := range vector {
		if i, ok := index[m.Entity.ID]; ok {
			out[i].base = max(out[i].base, m.Similarity)
			continue
		}
		index[m.Entity.ID] = len(out)
		out = append(out, candidate{entity: m.Entity, base: m.Similarity})
	}
	return out
}

// Score applies the ranking heuristics to a base similarity and clamps the
// result to [0, 1].
func Score(base float64, e *model.Entity, terms []string) float64 {
	score := base

	taxBoost := TaxonomyBoost(e, terms)
	score += taxBoost

	hasAnalysis := e.HasAnalysis()
	if taxBoost > 0 && hasAnalysis {
		score += domainBoost
	}

	summary := entitySummary(e)
	if isDomainQuery(terms) && hasNonDomainIndicator(summary) {
		score -= nonDomainPenalty
	}

	if !e.HasContext() {
		score *= noContextDamping
	}

	if e.Enriched || hasAnalysis {
		score += enrichmentBoost
	}
	if strings.TrimSpace(e.AISummary) != "" {
		score += aiSummaryBoost
	}
	if e.Taxonomy != nil && len(e.Taxonomy.Codes()) > 1 {
		score += multiCodeBoost
	}

	return min(max(score, 0), 1)
}

// TaxonomyBoost scores query terms against the segments of the entity's
// taxonomy codes: an exact segment match adds 0.3, a partial match 0.1, and
// the total is capped at 0.4.
func TaxonomyBoost(e *model.Entity, terms []string) float64 {
	if e.Taxonomy == nil || len(terms) == 0 {
		return 0
	}
	var segments []string
	for _, code := range e.Taxonomy.Codes() {
		for _, seg := range strings.Split(strings.ToLower(code), ".") {
			if seg != "ift" && seg != "" {
				segments = append(segments, seg)
			}
		}
	}

	boost := 0.0
	for _, t := range terms {
		best := 0.0
		for _, seg := range segments {
			switch {
			case seg == t:
				best = exactCodeBoost
			case len(t) >= minTermLen && len(seg) >= minTermLen && (strings.Contains(seg, t) || strings.Contains(t, seg)):
				best = max(best, partialCodeBoost)
			}
			if best == exactCodeBoost {
				break
			}
		}
		boost += best
	}
	return min(boost, maxTaxonomyBoost)
}

func entitySummary(e *model.Entity) string {
	if s := strings.TrimSpace(e.AISummary); s != "" {
		return s
	}
	return strings.TrimSpace(e.Analysis.Summary())
}

func isDomainQuery(terms []string) bool {
	for _, t := range terms {
		if _, ok := domainTerms[t]; ok {
			return true
		}
	}
	return false
}

func hasNonDomainIndicator(summary string) bool {
	if summary == "" {
		return false
	}
	s := strings.ToLower(summary)
	for _, ind := range nonDomainIndicators {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}
