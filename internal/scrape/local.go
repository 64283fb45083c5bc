package scrape

import (
	"context"
	"html"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/relgraph/internal/model"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; RelgraphBot/1.0)"
	maxBodyBytes = 512 * 1024
)

var (
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaDescRe = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]*content=["']([^"']*)["']`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	spaceRe    = regexp.MustCompile(`[ \t\r]+`)
	blankRe    = regexp.MustCompile(`\n\s*\n(\s*\n)+`)

	// Blocks dropped entirely before tag stripping.
	chromeRes = func() []*regexp.Regexp {
		var res []*regexp.Regexp
		for _, tag := range []string{"script", "style", "noscript", "svg", "nav", "footer", "header"} {
			res = append(res, regexp.MustCompile(`(?is)<`+tag+`[^>]*>.*?</`+tag+`>`))
		}
		return res
	}()
)

// LocalScraper fetches HTML directly and converts it to plaintext. It makes
// no paid API calls; blocked pages fall through to Jina and Firecrawl.
type LocalScraper struct {
	client *http.Client
}

// LocalOption configures a LocalScraper.
type LocalOption func(*LocalScraper)

// WithLocalHTTPClient overrides the HTTP client.
func WithLocalHTTPClient(hc *http.Client) LocalOption {
	return func(l *LocalScraper) { l.client = hc }
}

// NewLocalScraper creates a LocalScraper with a 15s request timeout.
func NewLocalScraper(opts ...LocalOption) *LocalScraper {
	l := &LocalScraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name implements Scraper.
func (l *LocalScraper) Name() string { return "local_http" }

// Supports accepts http and https URLs.
func (l *LocalScraper) Supports(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Scrape fetches a URL, rejects blocked or error pages, and strips the HTML
// to plaintext prefixed by the page's meta description.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if kind := DetectBlock(resp, body); kind.Blocked() {
		return nil, eris.Wrap(&BlockedError{URL: targetURL, Kind: kind}, "local_http")
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}

	text := stripHTML(string(body))
	if desc := extractMetaDescription(body); desc != "" && !strings.Contains(text, desc) {
		text = desc + "\n\n" + text
	}
	if len(text) < minContentChars {
		return nil, eris.New("local_http: empty page")
	}

	return &Result{
		Page: model.CrawledPage{
			URL:        resp.Request.URL.String(),
			Title:      extractTitle(body),
			Markdown:   text,
			StatusCode: resp.StatusCode,
		},
		Source: "local_http",
	}, nil
}

func extractTitle(body []byte) string {
	if m := titleRe.FindSubmatch(body); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(string(m[1])))
	}
	return ""
}

func extractMetaDescription(body []byte) string {
	if m := metaDescRe.FindSubmatch(body); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(string(m[1])))
	}
	return ""
}

// stripHTML drops page chrome, strips tags, decodes entities, and collapses
// whitespace.
func stripHTML(s string) string {
	for _, re := range chromeRes {
		s = re.ReplaceAllString(s, "")
	}
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
