package enrich

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/pkg/anthropic"
)

func TestDefaultTaxonomyParses(t *testing.T) {
	doc, err := ParseTaxonomy([]byte(defaultTaxonomy))
	require.NoError(t, err)
	assert.True(t, doc.Has("IFT.RCI.ID.KYB.BASIC_PROFILE"))
	assert.True(t, doc.Has("IFT.PAY"))
	assert.False(t, doc.Has("IFT.NOPE"))
	assert.Contains(t, doc.Render(), "IFT.PAY: Payments\n  IFT.PAY.PROC:")
}

func TestParseTaxonomy_Invalid(t *testing.T) {
	_, err := ParseTaxonomy([]byte("version: x\ncategories: []\n"))
	assert.Error(t, err)

	_, err = ParseTaxonomy([]byte("categories:\n  - code: pay\n    name: Payments\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pay")

	_, err = ParseTaxonomy([]byte("categories: [unterminated"))
	assert.Error(t, err)
}

func TestTaxonomySource_FileAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"test\"\ncategories:\n  - code: IFT.TEST\n    name: Test\n"), 0o600))

	doc, err := NewTaxonomySource(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "test", doc.Version)

	_, err = NewTaxonomySource(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.Error(t, err)
}

func newTestClassifier(llm *mockAnthropic) *TaxonomyClassifier {
	return NewTaxonomyClassifier(&Completer{Client: llm, Model: "classifier"}, NewTaxonomySource(""))
}

func TestClassify_Valid(t *testing.T) {
	llm := &mockAnthropic{}
	llm.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.System) == 1 && req.System[0].CacheControl != nil
	})).Return(textResponse(`{"primary":"IFT.PAY.PROC","secondary":["IFT.PAY.PROC","IFT.SVC.MKT","garbage"],"confidence":1.7,"reasoning":"processor"}`), nil)

	e := &model.Entity{ID: "o1", Kind: model.KindOrganization, Name: "Acme"}
	got := newTestClassifier(llm).Classify(context.Background(), e, &model.Analysis{Org: &model.OrgProfile{Summary: "x"}})

	assert.Equal(t, "IFT.PAY.PROC", got.Primary)
	assert.Equal(t, []string{"IFT.SVC.MKT"}, got.Secondary)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, "processor", got.Reasoning)
}

func TestClassify_FailuresYieldUnknown(t *testing.T) {
	tests := []struct {
		name string
		resp *anthropic.MessageResponse
		err  error
	}{
		{"llm error", nil, errors.New("overloaded")},
		{"not json", textResponse("cannot classify"), nil},
		{"bad primary", textResponse(`{"primary":"payments","confidence":0.9}`), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockAnthropic{}
			llm.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, tt.err)

			e := &model.Entity{ID: "p1", Kind: model.KindPerson, Name: "Jane"}
			got := newTestClassifier(llm).Classify(context.Background(), e, nil)
			assert.Equal(t, model.UnknownTaxonomy(), got)
		})
	}
}

func TestClassifyPrompt(t *testing.T) {
	person := &model.Entity{Kind: model.KindPerson, Name: "Jane"}
	p := classifyPrompt(person, &model.Analysis{Person: &model.PersonProfile{
		FunctionalExpertise: []string{"Sales"}, SeniorityLevel: model.SenioritySenior,
	}})
	assert.Contains(t, p, "Sales")
	assert.Contains(t, p, model.SenioritySenior)

	p = classifyPrompt(person, nil)
	assert.Contains(t, p, model.SeniorityUnknown)

	org := &model.Entity{Kind: model.KindOrganization, Name: "Acme", Description: "Card issuing"}
	p = classifyPrompt(org, nil)
	assert.Contains(t, p, "Description: Card issuing")
	assert.Contains(t, p, "unknown")
}
