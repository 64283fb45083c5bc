package search

import (
	"regexp"
	"strings"
)

// IntentKind classifies a query.
type IntentKind string

const (
	IntentSemantic   IntentKind = "semantic"
	IntentConnection IntentKind = "connection"
)

// Intent is the detected purpose of a query.
type Intent struct {
	Kind IntentKind
	// Target is the entity name the user wants an introduction to.
	Target string
}

// connectionRules capture the target name in group 1. Order matters: the
// first match wins.
var connectionRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwho\s+(?:can|could)\s+(?:connect|introduce)\s+me\s+(?:to|with)\s+(.+)`),
	regexp.MustCompile(`(?i)\bconnect\s+me\s+(?:with|to)\s+(.+)`),
	regexp.MustCompile(`(?i)\bintroduction\s+to\s+(.+)`),
	regexp.MustCompile(`(?i)\bintro\s+to\s+(.+)`),
	regexp.MustCompile(`(?i)\bpath\s+to\s+(.+)`),
	regexp.MustCompile(`(?i)\bhow\s+(?:do|can|could)\s+i\s+(?:meet|reach|get\s+to)\s+(.+)`),
}

// DetectIntent returns a connection intent when the query asks for an
// introduction to a named entity, and a semantic intent otherwise.
func DetectIntent(query string) Intent {
	for _, re := range connectionRules {
		m := re.FindStringSubmatch(query)
		if len(m) < 2 {
			continue
		}
		if target := cleanTarget(m[1]); target != "" {
			return Intent{Kind: IntentConnection, Target: target}
		}
	}
	return Intent{Kind: IntentSemantic}
}

func cleanTarget(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "?!.,;: ")
	s = strings.Trim(s, `"'`)
	return strings.Join(strings.Fields(s), " ")
}
