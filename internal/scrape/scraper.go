// Package scrape fetches organization homepages through an ordered chain of
// scrapers: plain HTTP first, then Jina Reader, then Firecrawl.
package scrape

import (
	"context"

	"github.com/sells-group/relgraph/internal/model"
)

// Result holds a scraped page with its source.
type Result struct {
	Page   model.CrawledPage
	Source string // e.g. "local_http", "jina", "firecrawl"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
