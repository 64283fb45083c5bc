package enrich

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/graph"
	"github.com/sells-group/relgraph/internal/model"
)

// ErrStrategyFailed marks a strategy that declined or produced nothing
// usable. The chain moves on to the next strategy.
var ErrStrategyFailed = eris.New("enrich: strategy failed")

// contextEdgeKinds are the relationship kinds that say something about a
// person's professional role.
var contextEdgeKinds = []string{
	"works_at", "founder", "board_member", "advisor",
	"partner", "deal_team", "owner", "invests_in",
}

// investorEdgeKinds imply the person is likely an investor.
var investorEdgeKinds = []string{"invests_in", "board_member", "deal_team", "owner"}

const maxContextConnections = 10

// AnalysisContext carries the inputs gathered before analysis.
type AnalysisContext struct {
	// Content is the scraped homepage text, empty when unavailable.
	Content string
	// Connections are organizations linked to a person lacking a title,
	// employer and domain.
	Connections    []graph.Neighbor
	LikelyInvestor bool
}

// Strategy produces a structured profile for an entity or returns an error
// so the chain can cascade.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, e *model.Entity, ac *AnalysisContext) (*model.Analysis, error)
}

// Chain runs strategies in order and returns the first profile produced.
// The final strategy is always MinimalStrategy, so Analyze never fails.
type Chain struct {
	strategies []Strategy
	index      graph.Index
}

// NewChain creates an analysis chain. index may be nil, which disables
// person context lookup. A MinimalStrategy is appended when the list does
// not already end with one.
func NewChain(index graph.Index, strategies ...Strategy) *Chain {
	if len(strategies) == 0 {
		strategies = []Strategy{MinimalStrategy{}}
	} else if _, ok := strategies[len(strategies)-1].(MinimalStrategy); !ok {
		strategies = append(strategies, MinimalStrategy{})
	}
	return &Chain{strategies: strategies, index: index}
}

// Analyze returns a profile for e.
func (c *Chain) Analyze(ctx context.Context, e *model.Entity, ac *AnalysisContext) *model.Analysis {
	if ac == nil {
		ac = &AnalysisContext{}
	}
	log := zap.L().With(zap.String("entity", e.ID), zap.String("kind", string(e.Kind)))

	if e.IsPerson() && ac.Connections == nil && needsPersonContext(e) {
		c.loadPersonContext(ctx, e, ac)
	}

	for _, s := range c.strategies {
		a, err := s.Analyze(ctx, e, ac)
		if err == nil && a != nil {
			log.Debug("enrich: analysis complete", zap.String("strategy", s.Name()), zap.String("source", string(a.Source)))
			return a
		}
		if errors.Is(err, ErrStrategyFailed) {
			log.Debug("enrich: strategy declined", zap.String("strategy", s.Name()), zap.Error(err))
		} else {
			log.Warn("enrich: strategy failed, trying next", zap.String("strategy", s.Name()), zap.Error(err))
		}
	}

	// Unreachable while MinimalStrategy terminates the chain.
	a, _ := MinimalStrategy{}.Analyze(ctx, e, ac)
	return a
}

func needsPersonContext(e *model.Entity) bool {
	return e.Title == "" && e.Employer == "" && e.Domain == ""
}

func (c *Chain) loadPersonContext(ctx context.Context, e *model.Entity, ac *AnalysisContext) {
	if c.index == nil {
		return
	}
	conns, err := c.index.Outgoing(ctx, e.ID, contextEdgeKinds, maxContextConnections)
	if err != nil {
		zap.L().Warn("enrich: person context lookup failed", zap.String("entity", e.ID), zap.Error(err))
		return
	}
	ac.Connections = conns
	for _, n := range conns {
		if slices.Contains(investorEdgeKinds, n.Kind) {
			ac.LikelyInvestor = true
			break
		}
	}
}

// decodeProfile parses model output into the profile shape for e's kind.
func decodeProfile(e *model.Entity, text string, source model.EnrichmentSource) (*model.Analysis, error) {
	if e.IsOrganization() {
		var p model.OrgProfile
		if err := ParseJSON(text, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Summary) == "" && strings.TrimSpace(p.CoreBusiness) == "" {
			return nil, eris.Wrap(ErrStrategyFailed, "empty organization profile")
		}
		p.Error = false
		if p.IndustryTags == nil {
			p.IndustryTags = []string{}
		}
		return &model.Analysis{Org: &p, Source: source}, nil
	}

	var p model.PersonProfile
	if err := ParseJSON(text, &p); err != nil {
		return nil, err
	}
	if !model.ValidSeniority(p.SeniorityLevel) {
		p.SeniorityLevel = model.SeniorityUnknown
	}
	if p.FunctionalExpertise == nil {
		p.FunctionalExpertise = []string{}
	}
	if p.DomainExpertise == nil {
		p.DomainExpertise = []string{}
	}
	if len(p.FunctionalExpertise) == 0 && len(p.DomainExpertise) == 0 && strings.TrimSpace(p.Summary) == "" {
		return nil, eris.Wrap(ErrStrategyFailed, "empty person profile")
	}
	if p.YearsExperienceEstimate < 0 {
		p.YearsExperienceEstimate = 0
	}
	return &model.Analysis{Person: &p, Source: source}, nil
}

func schemaFor(e *model.Entity) string {
	if e.IsOrganization() {
		return orgSchema
	}
	return personSchema
}

func domainHint(domain string) string {
	if domain == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", domain)
}
