package scrape

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/resilience"
	"github.com/sells-group/relgraph/pkg/firecrawl"
)

// chromeTags are dropped server-side so Firecrawl bills for body text only.
var chromeTags = []string{"nav", "footer", "header", "aside", "form"}

// FirecrawlAdapter wraps a Firecrawl client as a Scraper for single pages.
type FirecrawlAdapter struct {
	client  firecrawl.Client
	breaker *resilience.Breaker
	maxAge  time.Duration
}

// FirecrawlOption configures a FirecrawlAdapter.
type FirecrawlOption func(*FirecrawlAdapter)

// WithFirecrawlBreaker short-circuits the adapter while Firecrawl is failing.
func WithFirecrawlBreaker(b *resilience.Breaker) FirecrawlOption {
	return func(f *FirecrawlAdapter) { f.breaker = b }
}

// WithFirecrawlMaxAge accepts Firecrawl's cached copy when it is younger than d.
func WithFirecrawlMaxAge(d time.Duration) FirecrawlOption {
	return func(f *FirecrawlAdapter) { f.maxAge = d }
}

// NewFirecrawlAdapter creates a FirecrawlAdapter.
func NewFirecrawlAdapter(client firecrawl.Client, opts ...FirecrawlOption) *FirecrawlAdapter {
	f := &FirecrawlAdapter{client: client}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Name implements Scraper.
func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports returns false while the breaker is open.
func (f *FirecrawlAdapter) Supports(_ string) bool {
	return f.breaker == nil || f.breaker.State() != resilience.CircuitOpen
}

// Scrape fetches the main content of one URL via Firecrawl.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.Call(ctx, f.breaker, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		return f.client.Scrape(ctx, f.request(targetURL))
	})
	if err != nil {
		return nil, err
	}

	meta := resp.Data.Metadata
	switch {
	case !resp.Success && meta.Error != "":
		return nil, eris.Errorf("firecrawl: scrape not successful: %s", meta.Error)
	case !resp.Success:
		return nil, eris.New("firecrawl: scrape not successful")
	case meta.StatusCode >= 400:
		return nil, eris.Errorf("firecrawl: target returned status %d", meta.StatusCode)
	}

	pageURL := meta.SourceURL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &Result{
		Page: model.CrawledPage{
			URL:        pageURL,
			Title:      meta.Title,
			Markdown:   resp.Data.Markdown,
			StatusCode: meta.StatusCode,
		},
		Source: "firecrawl",
	}, nil
}

func (f *FirecrawlAdapter) request(targetURL string) firecrawl.ScrapeRequest {
	return firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
		ExcludeTags:     chromeTags,
		MaxAge:          f.maxAge.Milliseconds(),
	}
}
