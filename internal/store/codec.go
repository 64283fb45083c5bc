package store

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/relgraph/internal/model"
)

// entityJSON holds the JSON-encoded column values of an entity.
type entityJSON struct {
	skills, employment, snippets []byte
	taxonomy, analysis, webpage  []byte
}

// marshalNullable encodes v, returning nil for nil pointers and empty slices
// so the column is stored as NULL.
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case []model.Employment:
		if len(t) == 0 {
			return nil, nil
		}
	case *model.Taxonomy:
		if t == nil {
			return nil, nil
		}
	case *model.Analysis:
		if t == nil {
			return nil, nil
		}
	case *model.WebpageCache:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal column")
	}
	return b, nil
}

func encodeEntity(e *model.Entity) (entityJSON, error) {
	var out entityJSON
	var err error
	if out.skills, err = marshalNullable(e.Skills); err != nil {
		return out, err
	}
	if out.employment, err = marshalNullable(e.Employment); err != nil {
		return out, err
	}
	if out.snippets, err = marshalNullable(e.WebSnippets); err != nil {
		return out, err
	}
	if out.taxonomy, err = marshalNullable(e.Taxonomy); err != nil {
		return out, err
	}
	if out.analysis, err = marshalNullable(e.Analysis); err != nil {
		return out, err
	}
	if out.webpage, err = marshalNullable(e.WebpageCache); err != nil {
		return out, err
	}
	return out, nil
}

// decodeInto unmarshals the JSON columns onto e. Empty columns are skipped.
func (j entityJSON) decodeInto(e *model.Entity) error {
	fields := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"skills", j.skills, &e.Skills},
		{"employment", j.employment, &e.Employment},
		{"web_snippets", j.snippets, &e.WebSnippets},
		{"taxonomy", j.taxonomy, &e.Taxonomy},
		{"business_analysis", j.analysis, &e.Analysis},
		{"webpage_cache", j.webpage, &e.WebpageCache},
	}
	for _, f := range fields {
		if len(f.raw) == 0 || string(f.raw) == "null" {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return eris.Wrapf(err, "store: unmarshal %s", f.name)
		}
	}
	return nil
}

// cosine returns the cosine similarity of a and b, or 0 when the vectors
// differ in length or either has zero magnitude.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
