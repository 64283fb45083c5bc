package enrich

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/pkg/anthropic"
)

// TaxonomyNode is one code in the reference taxonomy.
type TaxonomyNode struct {
	Code        string         `yaml:"code"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Children    []TaxonomyNode `yaml:"children,omitempty"`
}

// TaxonomyDoc is the reference document the classifier chooses codes from.
type TaxonomyDoc struct {
	Version    string         `yaml:"version"`
	Categories []TaxonomyNode `yaml:"categories"`
}

// ParseTaxonomy decodes a YAML taxonomy document and checks every code.
func ParseTaxonomy(data []byte) (*TaxonomyDoc, error) {
	var doc TaxonomyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "enrich: parse taxonomy")
	}
	if len(doc.Categories) == 0 {
		return nil, eris.New("enrich: taxonomy has no categories")
	}
	var bad []string
	doc.walk(func(n TaxonomyNode, _ int) {
		if !model.ValidTaxonomyCode(n.Code) {
			bad = append(bad, n.Code)
		}
	})
	if len(bad) > 0 {
		return nil, eris.Errorf("enrich: invalid taxonomy codes: %s", strings.Join(bad, ", "))
	}
	return &doc, nil
}

func (d *TaxonomyDoc) walk(fn func(n TaxonomyNode, depth int)) {
	var visit func(nodes []TaxonomyNode, depth int)
	visit = func(nodes []TaxonomyNode, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(d.Categories, 0)
}

// Render formats the taxonomy as an indented code list for prompts.
func (d *TaxonomyDoc) Render() string {
	var b strings.Builder
	d.walk(func(n TaxonomyNode, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Code)
		b.WriteString(": ")
		b.WriteString(n.Name)
		if n.Description != "" {
			b.WriteString(" (")
			b.WriteString(n.Description)
			b.WriteString(")")
		}
		b.WriteByte('\n')
	})
	return b.String()
}

// Has reports whether code appears in the document.
func (d *TaxonomyDoc) Has(code string) bool {
	found := false
	d.walk(func(n TaxonomyNode, _ int) {
		if n.Code == code {
			found = true
		}
	})
	return found
}

// TaxonomySource loads the reference document once per process.
type TaxonomySource struct {
	path string
	once sync.Once
	doc  *TaxonomyDoc
	err  error
}

// NewTaxonomySource reads from path, or the built-in document when path is
// empty.
func NewTaxonomySource(path string) *TaxonomySource {
	return &TaxonomySource{path: path}
}

// Load returns the cached document, reading it on first use.
func (s *TaxonomySource) Load() (*TaxonomyDoc, error) {
	s.once.Do(func() {
		data := []byte(defaultTaxonomy)
		if s.path != "" {
			b, err := os.ReadFile(s.path)
			if err != nil {
				s.err = eris.Wrapf(err, "enrich: read taxonomy %s", s.path)
				return
			}
			data = b
		}
		s.doc, s.err = ParseTaxonomy(data)
		if s.err == nil {
			zap.L().Info("enrich: taxonomy loaded",
				zap.String("path", s.path),
				zap.String("version", s.doc.Version),
			)
		}
	})
	return s.doc, s.err
}

// TaxonomyClassifier assigns IFT codes to an analyzed entity.
type TaxonomyClassifier struct {
	llm    *Completer
	source *TaxonomySource
}

// NewTaxonomyClassifier creates a classifier. llm should use the
// classification model.
func NewTaxonomyClassifier(llm *Completer, source *TaxonomySource) *TaxonomyClassifier {
	return &TaxonomyClassifier{llm: llm, source: source}
}

type classification struct {
	Primary    string   `json:"primary"`
	Secondary  []string `json:"secondary"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Classify returns the entity's taxonomy. Any failure yields the
// IFT.UNKNOWN stub; it never returns an error.
func (c *TaxonomyClassifier) Classify(ctx context.Context, e *model.Entity, a *model.Analysis) model.Taxonomy {
	t, err := c.classify(ctx, e, a)
	if err != nil {
		zap.L().Warn("enrich: classification failed, using unknown taxonomy",
			zap.String("entity", e.ID),
			zap.Error(err),
		)
		return model.UnknownTaxonomy()
	}
	return t
}

func (c *TaxonomyClassifier) classify(ctx context.Context, e *model.Entity, a *model.Analysis) (model.Taxonomy, error) {
	doc, err := c.source.Load()
	if err != nil {
		return model.Taxonomy{}, err
	}

	system := anthropic.BuildCachedSystemBlocks(classifySystemPrefix+doc.Render(), "1h")
	text, err := c.llm.Complete(ctx, "classify", system, classifyPrompt(e, a))
	if err != nil {
		return model.Taxonomy{}, err
	}

	var out classification
	if err := ParseJSON(text, &out); err != nil {
		return model.Taxonomy{}, err
	}
	out.Primary = strings.TrimSpace(out.Primary)
	if !model.ValidTaxonomyCode(out.Primary) {
		return model.Taxonomy{}, eris.Errorf("enrich: invalid primary code %q", out.Primary)
	}

	secondary := make([]string, 0, len(out.Secondary))
	for _, code := range out.Secondary {
		code = strings.TrimSpace(code)
		if model.ValidTaxonomyCode(code) && code != out.Primary {
			secondary = append(secondary, code)
		}
	}
	if !doc.Has(out.Primary) {
		zap.L().Debug("enrich: primary code not in reference taxonomy",
			zap.String("entity", e.ID),
			zap.String("code", out.Primary),
		)
	}

	return model.Taxonomy{
		Primary:    out.Primary,
		Secondary:  secondary,
		Confidence: min(max(out.Confidence, 0), 1),
		Reasoning:  out.Reasoning,
	}, nil
}

func classifyPrompt(e *model.Entity, a *model.Analysis) string {
	if e.IsPerson() {
		var p model.PersonProfile
		if a != nil && a.Person != nil {
			p = *a.Person
		}
		return fmt.Sprintf(classifyPersonPrompt, e.Name,
			joinOr(p.FunctionalExpertise, "unknown"),
			joinOr(p.DomainExpertise, "unknown"),
			orDefault(p.SeniorityLevel, model.SeniorityUnknown),
		)
	}

	var b strings.Builder
	if a != nil && a.Org != nil {
		o := a.Org
		fmt.Fprintf(&b, "Summary: %s\nCore business: %s\nTarget market: %s\nBusiness model: %s\nIndustry tags: %s\nTechnology: %s\n",
			o.Summary, o.CoreBusiness, o.TargetMarket, o.BusinessModel, strings.Join(o.IndustryTags, ", "), o.Technology)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", e.Description)
	}
	return fmt.Sprintf(classifyOrgPrompt, e.Name, orDefault(e.Domain, "unknown"), b.String())
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
