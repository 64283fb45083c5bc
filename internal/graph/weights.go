package graph

import "strings"

// defaultKindWeight applies to relationship kinds missing from kindWeights.
const defaultKindWeight = 0.5

var kindWeights = map[string]float64{
	"founder":      0.95,
	"co_founder":   0.95,
	"ceo":          0.90,
	"portfolio":    0.90,
	"owner":        0.90,
	"invests_in":   0.85,
	"board_member": 0.85,
	"partner":      0.80,
	"deal_team":    0.80,
	"advisor":      0.75,
	"works_at":     0.70,
	"employee":     0.70,
	"colleague":    0.65,
}

// KindWeight returns the relationship-kind weight used when scoring paths.
func KindWeight(kind string) float64 {
	if w, ok := kindWeights[strings.ToLower(strings.TrimSpace(kind))]; ok {
		return w
	}
	return defaultKindWeight
}

// EdgeWeight averages an edge's strength with its kind weight.
func EdgeWeight(strength float64, kind string) float64 {
	return (strength + KindWeight(kind)) / 2
}
