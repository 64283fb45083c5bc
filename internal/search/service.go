// Package search answers natural-language queries over the relationship
// graph: introduction paths for "who can connect me to X" style queries and
// hybrid lexical/vector ranking for everything else.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/store"
)

var (
	// ErrTimeout is returned when a search exceeds its wall-clock budget.
	ErrTimeout = eris.New("search: timed out")
	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = eris.New("search: query is required")
)

const (
	defaultTimeout = 15 * time.Second
	defaultLimit   = 10
	maxLimit       = 50
	nameCandidates = 5
)

// PathSource finds introduction paths between two entities.
type PathSource interface {
	Find(ctx context.Context, anchorID, targetID string, limit int) ([]model.Path, error)
}

// EntityRanker ranks entities for a free-text query.
type EntityRanker interface {
	Rank(ctx context.Context, query string, limit int, filter store.SearchFilter) ([]model.SearchResult, error)
}

// Config configures a Service.
type Config struct {
	Timeout      time.Duration
	AnchorName   string
	DefaultLimit int
}

// Service is the search entrypoint.
type Service struct {
	store  store.Store
	ranker EntityRanker
	paths  PathSource
	cfg    Config
}

// NewService creates a Service.
func NewService(st store.Store, ranker EntityRanker, paths PathSource, cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultLimit
	}
	return &Service{store: st, ranker: ranker, paths: paths, cfg: cfg}
}

type outcome struct {
	resp *model.SearchResponse
	err  error
}

// Search runs req against the configured timeout. When the timeout wins the
// in-flight search is cancelled and abandoned, and ErrTimeout is returned.
func (s *Service) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	req.Limit = s.clampLimit(req.Limit)

	log := zap.L().With(zap.String("request_id", uuid.NewString()), zap.String("query", req.Query))
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		resp, err := s.search(runCtx, req)
		done <- outcome{resp: resp, err: err}
	}()

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			log.Error("search: failed", zap.Error(out.err))
			return nil, out.err
		}
		log.Info("search: complete",
			zap.String("search_type", out.resp.SearchType),
			zap.Int("total", out.resp.Total),
			zap.Duration("elapsed", time.Since(start)),
		)
		return out.resp, nil
	case <-timer.C:
		log.Warn("search: timed out", zap.Duration("timeout", s.cfg.Timeout))
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "search: cancelled")
	}
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(limit, maxLimit)
}

func (s *Service) search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	if intent := DetectIntent(req.Query); intent.Kind == IntentConnection {
		return s.connection(ctx, req, intent.Target)
	}
	return s.semantic(ctx, req)
}

func (s *Service) semantic(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	results, err := s.ranker.Rank(ctx, req.Query, req.Limit, FilterFromMap(req.Filters))
	if err != nil {
		return nil, err
	}
	return newResponse(req, model.SearchTypeSemantic, results, ""), nil
}

func (s *Service) connection(ctx context.Context, req model.SearchRequest, target string) (*model.SearchResponse, error) {
	matches, err := s.lookupName(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return newResponse(req, model.SearchTypeConnection, nil,
			fmt.Sprintf("No entity found matching %q", target)), nil
	}
	targetEntity := matches[0]

	anchor, err := s.anchor(ctx)
	if err != nil {
		return nil, err
	}
	if anchor.ID == targetEntity.ID {
		return newResponse(req, model.SearchTypeConnection, nil,
			fmt.Sprintf("%q is the search anchor", targetEntity.Name)), nil
	}

	paths, err := s.paths.Find(ctx, anchor.ID, targetEntity.ID, req.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "search: find paths")
	}

	results := make([]model.SearchResult, 0, len(paths))
	for i := range paths {
		p := paths[i]
		if len(p.Nodes) > 0 && p.Nodes[0].Name == "" {
			p.Nodes[0].Name = anchor.Name
		}
		results = append(results, model.SearchResult{Entity: &targetEntity, Similarity: p.Score, Path: &p})
	}

	msg := ""
	if len(results) == 0 {
		msg = fmt.Sprintf("No introduction path found to %q", targetEntity.Name)
	}
	return newResponse(req, model.SearchTypeConnection, results, msg), nil
}

// lookupName tries the name as typed, then its folded form.
func (s *Service) lookupName(ctx context.Context, name string) ([]model.Entity, error) {
	matches, err := s.store.FindByName(ctx, name, nameCandidates)
	if err != nil {
		return nil, eris.Wrap(err, "search: find by name")
	}
	if len(matches) > 0 {
		return matches, nil
	}
	if folded := Fold(name); folded != strings.ToLower(name) {
		matches, err = s.store.FindByName(ctx, folded, nameCandidates)
		if err != nil {
			return nil, eris.Wrap(err, "search: find by name")
		}
	}
	return matches, nil
}

func (s *Service) anchor(ctx context.Context) (*model.Entity, error) {
	if s.cfg.AnchorName == "" {
		return nil, eris.New("search: no anchor configured")
	}
	matches, err := s.store.FindByName(ctx, s.cfg.AnchorName, 1)
	if err != nil {
		return nil, eris.Wrap(err, "search: resolve anchor")
	}
	if len(matches) == 0 {
		return nil, eris.Errorf("search: anchor %q not found", s.cfg.AnchorName)
	}
	return &matches[0], nil
}

func newResponse(req model.SearchRequest, searchType string, results []model.SearchResult, msg string) *model.SearchResponse {
	if results == nil {
		results = []model.SearchResult{}
	}
	filters := req.Filters
	if filters == nil {
		filters = map[string]any{}
	}
	return &model.SearchResponse{
		Success:    true,
		Results:    results,
		Query:      req.Query,
		Filters:    filters,
		Total:      len(results),
		SearchType: searchType,
		Message:    msg,
	}
}

// FilterFromMap reads the recognised request filters: "kind"
// ("person"/"organization"), "taxonomy" (code prefix) and "enriched_only".
func FilterFromMap(m map[string]any) store.SearchFilter {
	var f store.SearchFilter
	if v, ok := m["kind"].(string); ok {
		switch k := model.EntityKind(strings.ToLower(strings.TrimSpace(v))); k {
		case model.KindPerson, model.KindOrganization:
			f.Kind = k
		}
	}
	if v, ok := m["taxonomy"].(string); ok && strings.HasPrefix(strings.TrimSpace(v), "IFT") {
		f.TaxonomyPrefix = strings.TrimSpace(v)
	}
	if v, ok := m["enriched_only"].(bool); ok {
		f.EnrichedOnly = v
	}
	return f
}
