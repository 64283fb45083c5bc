package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/resilience"
	"github.com/sells-group/relgraph/pkg/embed"
)

const generalProfessional = "General Professional"

// EmbeddingBuilder derives the rich-profile and taxonomy embeddings.
type EmbeddingBuilder struct {
	embedder embed.Embedder
	retry    resilience.Policy
	limiter  *rate.Limiter
}

// NewEmbeddingBuilder creates an EmbeddingBuilder.
func NewEmbeddingBuilder(embedder embed.Embedder, retry resilience.Policy, limiter *rate.Limiter) *EmbeddingBuilder {
	return &EmbeddingBuilder{embedder: embedder, retry: retry, limiter: limiter}
}

// Build returns the rich and taxonomy embeddings, computed in parallel. An
// embedding that exhausts its retries or has the wrong length fails the
// whole build.
func (b *EmbeddingBuilder) Build(ctx context.Context, e *model.Entity, a *model.Analysis, t model.Taxonomy) (rich, taxonomy []float32, err error) {
	richText := RichText(e, a, t)
	taxText := TaxonomyText(e, a, t)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := b.embed(gctx, richText)
		if err != nil {
			return eris.Wrap(err, "enrich: rich embedding")
		}
		rich = v
		return nil
	})
	g.Go(func() error {
		v, err := b.embed(gctx, taxText)
		if err != nil {
			return eris.Wrap(err, "enrich: taxonomy embedding")
		}
		taxonomy = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return rich, taxonomy, nil
}

func (b *EmbeddingBuilder) embed(ctx context.Context, text string) ([]float32, error) {
	v, err := resilience.RetryVal(ctx, b.retry, func(ctx context.Context) ([]float32, error) {
		if err := waitLimiter(ctx, b.limiter); err != nil {
			return nil, err
		}
		return b.embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	if len(v) != b.embedder.Dimensions() {
		return nil, &embed.DimensionError{Got: len(v), Want: b.embedder.Dimensions()}
	}
	return v, nil
}

// RichText renders the canonical profile block that the main embedding is
// computed from.
func RichText(e *model.Entity, a *model.Analysis, t model.Taxonomy) string {
	var b strings.Builder
	line := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}

	if e.IsOrganization() {
		line("Organization", e.Name)
		line("Domain", e.Domain)
		line("Taxonomy", strings.Join(t.Codes(), ", "))
		if a != nil && a.Org != nil {
			o := a.Org
			line("Core business", o.CoreBusiness)
			line("Business model", o.BusinessModel)
			line("Target market", o.TargetMarket)
			line("Industry", strings.Join(o.IndustryTags, ", "))
			line("Technology", o.Technology)
			line("Position", o.IndustryPosition)
		}
		line("Description", e.Description)
		line("Summary", a.Summary())
		return b.String()
	}

	line("Person", e.Name)
	line("Title", e.Title)
	line("Employer", e.Employer)
	line("Taxonomy", strings.Join(t.Codes(), ", "))
	if a != nil && a.Person != nil {
		p := a.Person
		line("Functional expertise", strings.Join(p.FunctionalExpertise, ", "))
		line("Domain expertise", strings.Join(p.DomainExpertise, ", "))
		line("Seniority", p.SeniorityLevel)
		line("Achievements", p.KeyAchievements)
	}
	line("Summary", a.Summary())
	return b.String()
}

// TaxonomyText is the short text behind the taxonomy embedding: the codes
// for organizations, the expertise tags for persons.
func TaxonomyText(e *model.Entity, a *model.Analysis, t model.Taxonomy) string {
	if e.IsPerson() {
		var tags []string
		if a != nil && a.Person != nil {
			tags = append(tags, a.Person.FunctionalExpertise...)
			tags = append(tags, a.Person.DomainExpertise...)
		}
		if len(tags) == 0 {
			return generalProfessional
		}
		return strings.Join(tags, ", ")
	}

	codes := t.Codes()
	if len(codes) == 0 {
		return model.UnknownTaxonomyCode
	}
	return strings.Join(codes, " ")
}
