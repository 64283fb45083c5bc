package enrich

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// maxRescueInput caps how much model output the regex rescue scans.
const maxRescueInput = 32 * 1024

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParseError reports model output that is neither valid JSON nor contains a
// rescuable JSON object.
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("enrich: unparseable model output %q: %v", e.Snippet, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseJSON decodes model output into out. The fence-stripped text is
// decoded strictly first; failing that, the outermost {...} span within the
// first maxRescueInput bytes is decoded.
func ParseJSON(text string, out any) error {
	cleaned := stripFences(text)
	strictErr := json.Unmarshal([]byte(cleaned), out)
	if strictErr == nil {
		return nil
	}

	scan := cleaned
	if len(scan) > maxRescueInput {
		scan = scan[:maxRescueInput]
	}
	if m := jsonObjectRe.FindString(scan); m != "" {
		rescueErr := json.Unmarshal([]byte(m), out)
		if rescueErr == nil {
			return nil
		}
		return &ParseError{Snippet: snippet(text), Err: rescueErr}
	}
	return &ParseError{Snippet: snippet(text), Err: strictErr}
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```JSON", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}
	return strings.TrimSpace(text)
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
