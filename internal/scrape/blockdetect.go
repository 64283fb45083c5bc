package scrape

import (
	"fmt"
	"net/http"
	"strings"
)

// BlockType names the anti-bot wall a page sits behind. BlockNone means the
// page looks like real content.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// Blocked reports whether b is an actual block.
func (b BlockType) Blocked() bool { return b != BlockNone }

// BlockedError is returned by scrapers that fetched a wall instead of content.
type BlockedError struct {
	URL  string
	Kind BlockType
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by %s: %s", e.Kind, e.URL)
}

// shellMaxBytes bounds the body size treated as a possible script-only shell.
const shellMaxBytes = 2000

// bodySignatures are checked in order against the lowercased body.
var bodySignatures = []struct {
	kind BlockType
	all  []string // every marker must appear
}{
	{BlockCloudflare, []string{"checking your browser"}},
	{BlockCloudflare, []string{"cf-browser-verification"}},
	{BlockCloudflare, []string{"cf-challenge"}},
	{BlockCloudflare, []string{"cloudflare", "challenge"}},
	{BlockCaptcha, []string{"captcha"}},
}

// DetectBlock inspects a response and its (possibly truncated) body for
// anti-bot walls.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}
	if isCloudflareEdge(resp) {
		return BlockCloudflare
	}

	lower := strings.ToLower(string(body))
	for _, sig := range bodySignatures {
		if containsAll(lower, sig.all) {
			return sig.kind
		}
	}

	if len(body) < shellMaxBytes &&
		(containsAll(lower, []string{"<noscript", "javascript"}) || strings.Contains(lower, `http-equiv="refresh"`)) {
		return BlockJSShell
	}
	return BlockNone
}

func isCloudflareEdge(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}
	h := resp.Header
	return h.Get("Cf-Ray") != "" || h.Get("Cf-Cache-Status") != "" || strings.EqualFold(h.Get("Server"), "cloudflare")
}

func containsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
