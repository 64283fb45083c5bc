package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		query  string
		kind   IntentKind
		target string
	}{
		{"who can connect me to Jane Doe", IntentConnection, "Jane Doe"},
		{"Who could introduce me to Acme Corp?", IntentConnection, "Acme Corp"},
		{"I'd like an introduction to Stripe", IntentConnection, "Stripe"},
		{"intro to  Summit   Capital.", IntentConnection, "Summit Capital"},
		{"connect me with \"Sam Lee\"", IntentConnection, "Sam Lee"},
		{"path to Plaid", IntentConnection, "Plaid"},
		{"how do I meet Ann Smith", IntentConnection, "Ann Smith"},
		{"how can i get to the CEO of Ramp", IntentConnection, "the CEO of Ramp"},
		{"KYB compliance vendors", IntentSemantic, ""},
		{"path to", IntentSemantic, ""},
		{"payments companies in Europe", IntentSemantic, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := DetectIntent(tt.query)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.target, got.Target)
		})
	}
}
