package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/resilience"
	"github.com/sells-group/relgraph/pkg/anthropic"
	"github.com/sells-group/relgraph/pkg/perplexity"
)

var jsonSystem = []anthropic.SystemBlock{{Text: jsonOnlySystem}}

// ScrapedContentStrategy analyzes an organization from its homepage text.
type ScrapedContentStrategy struct {
	LLM *Completer
}

// Name implements Strategy.
func (s *ScrapedContentStrategy) Name() string { return "scraped_content" }

// Analyze implements Strategy.
func (s *ScrapedContentStrategy) Analyze(ctx context.Context, e *model.Entity, ac *AnalysisContext) (*model.Analysis, error) {
	if !e.IsOrganization() || strings.TrimSpace(ac.Content) == "" {
		return nil, eris.Wrap(ErrStrategyFailed, "no scraped content")
	}
	prompt := fmt.Sprintf(scrapedContentPrompt, e.Name, e.Domain, orgSchema, ac.Content)
	text, err := s.LLM.Complete(ctx, "analysis_scraped", jsonSystem, prompt)
	if err != nil {
		return nil, err
	}
	return decodeProfile(e, text, model.SourceWebScraper)
}

// LiveSearchStrategy researches an entity with a search-augmented model. It
// is the primary strategy for persons and the fallback for organizations
// without homepage content.
type LiveSearchStrategy struct {
	Client  perplexity.Client
	Breaker *resilience.Breaker
	Retry   resilience.Policy
	Limiter *rate.Limiter
}

// searchContextSize widens retrieval for people, whose public footprint is
// scattered across many small pages.
func searchContextSize(e *model.Entity) string {
	if e.IsPerson() {
		return "medium"
	}
	return "low"
}

// Name implements Strategy.
func (s *LiveSearchStrategy) Name() string { return "live_search" }

// Analyze implements Strategy.
func (s *LiveSearchStrategy) Analyze(ctx context.Context, e *model.Entity, ac *AnalysisContext) (*model.Analysis, error) {
	if e.IsOrganization() && strings.TrimSpace(ac.Content) != "" {
		return nil, eris.Wrap(ErrStrategyFailed, "content already available")
	}

	policy := s.Retry
	policy.ShouldRetry = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	temp := defaultTemperature
	req := perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: jsonOnlySystem},
			{Role: "user", Content: liveSearchPrompt(e, ac)},
		},
		Temperature: &temp,
		WebSearch:   &perplexity.WebSearchOptions{SearchContextSize: searchContextSize(e)},
	}
	resp, err := resilience.RetryVal(ctx, policy, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		if err := waitLimiter(ctx, s.Limiter); err != nil {
			return nil, err
		}
		return resilience.Call(ctx, s.Breaker, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
			return s.Client.ChatCompletion(ctx, req)
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "enrich: live search")
	}

	content := resp.Content()
	if !jsonObjectRe.MatchString(content) {
		return nil, eris.Wrap(ErrStrategyFailed, "live search returned no JSON object")
	}
	return decodeProfile(e, content, model.SourcePerplexity)
}

func liveSearchPrompt(e *model.Entity, ac *AnalysisContext) string {
	if e.IsOrganization() {
		return fmt.Sprintf(liveSearchOrgPrompt, e.Name, domainHint(e.Domain), orgSchema)
	}

	hint := ""
	switch {
	case e.Title != "" && e.Employer != "":
		hint = fmt.Sprintf(" (%s at %s)", e.Title, e.Employer)
	case e.Employer != "":
		hint = fmt.Sprintf(" (%s)", e.Employer)
	case e.Title != "":
		hint = fmt.Sprintf(" (%s)", e.Title)
	}

	var extra strings.Builder
	if len(ac.Connections) > 0 {
		extra.WriteString("Known affiliations:\n")
		for _, c := range ac.Connections {
			fmt.Fprintf(&extra, "- %s%s, relationship: %s\n", c.Name, domainHint(c.Domain), c.Kind)
		}
	}
	if ac.LikelyInvestor {
		extra.WriteString("This person is likely an investor; cover investment focus, stage and notable portfolio companies.\n")
	}
	return fmt.Sprintf(liveSearchPersonPrompt, e.Name, hint, extra.String(), personSchema)
}

// LocalDataStrategy builds a profile from fields already stored on the
// entity. It declines when the entity carries no such data.
type LocalDataStrategy struct {
	LLM *Completer
	// Source tags the result; defaults to local_fallback.
	Source model.EnrichmentSource
}

// Name implements Strategy.
func (s *LocalDataStrategy) Name() string { return "local_data" }

// Analyze implements Strategy.
func (s *LocalDataStrategy) Analyze(ctx context.Context, e *model.Entity, _ *AnalysisContext) (*model.Analysis, error) {
	profile := LocalProfile(e)
	if profile == "" {
		return nil, eris.Wrap(ErrStrategyFailed, "no local data")
	}
	source := s.Source
	if source == "" {
		source = model.SourceLocalFallback
	}
	prompt := fmt.Sprintf(localDataPrompt, e.Kind, e.Name, schemaFor(e), profile)
	text, err := s.LLM.Complete(ctx, "analysis_local", jsonSystem, prompt)
	if err != nil {
		return nil, err
	}
	return decodeProfile(e, text, source)
}

// LocalProfile renders an entity's stored descriptive fields, one per line.
// It returns "" when there are none.
func LocalProfile(e *model.Entity) string {
	var b strings.Builder
	line := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	line("Title", e.Title)
	line("Employer", e.Employer)
	line("Bio", e.Bio)
	line("Description", e.Description)
	line("Industry", e.Industry)
	if len(e.Skills) > 0 {
		line("Skills", strings.Join(e.Skills, ", "))
	}
	for _, job := range e.Employment {
		entry := strings.TrimSpace(job.Title + " at " + job.Company)
		if job.Period != "" {
			entry += " (" + job.Period + ")"
		}
		line("Employment", entry)
	}
	for _, s := range e.WebSnippets {
		line("Web snippet", s)
	}
	return b.String()
}

// MinimalStrategy builds a placeholder profile from stored fields. It never
// fails.
type MinimalStrategy struct{}

// Name implements Strategy.
func (MinimalStrategy) Name() string { return "minimal" }

// Analyze implements Strategy.
func (MinimalStrategy) Analyze(_ context.Context, e *model.Entity, _ *AnalysisContext) (*model.Analysis, error) {
	if e.IsOrganization() {
		summary := strings.TrimSpace(e.Description)
		if summary == "" {
			summary = e.Name
		}
		return &model.Analysis{
			Org: &model.OrgProfile{
				Summary:      summary,
				IndustryTags: []string{},
				Error:        true,
			},
			Source: model.SourceMinimalFallback,
		}, nil
	}

	summary := strings.TrimSpace(e.Title)
	if e.Employer != "" {
		summary = strings.TrimSpace(summary + " at " + e.Employer)
	}
	if summary == "" {
		summary = strings.TrimSpace(e.Description)
	}
	return &model.Analysis{
		Person: &model.PersonProfile{
			Summary:             summary,
			FunctionalExpertise: []string{},
			DomainExpertise:     []string{},
			SeniorityLevel:      model.SeniorityUnknown,
		},
		Source: model.SourceMinimalFallback,
	}, nil
}
