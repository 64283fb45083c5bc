package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"KYB compliance", []string{"kyb", "compliance"}},
		{"show me the payments companies", []string{"payments"}},
		{"AI underwriting for SMB lenders", []string{"ai", "underwriting", "smb", "lenders"}},
		{"Société Générale", []string{"societe", "generale"}},
		{"fraud, fraud & FRAUD", []string{"fraud"}},
		{"who is it", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "jose nunez", Fold("  José   Núñez "))
	assert.Equal(t, "acme", Fold("ACME"))
	assert.Empty(t, Fold("   "))
}
