package scrape

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// minContentChars is the shortest page body treated as a usable scrape.
const minContentChars = 100

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in order; the first result
// with usable content is returned.
func NewChain(scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers}
}

// Scrapers returns the names of the configured scrapers in order.
func (c *Chain) Scrapers() []string {
	names := make([]string, len(c.scrapers))
	for i, s := range c.scrapers {
		names[i] = s.Name()
	}
	return names
}

// Scrape tries each scraper in order for a single URL.
// Returns the first successful result, or an error if all fail.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var lastErr error
	for _, s := range c.scrapers {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scrape: context done")
		}
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil && len(strings.TrimSpace(result.Page.Markdown)) >= minContentChars {
			zap.L().Debug("scrape: page fetched",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Int("chars", len(result.Page.Markdown)),
			)
			return result, nil
		}
		if err == nil {
			err = eris.Errorf("scrape: %s returned too little content", s.Name())
		}
		fields := []zap.Field{zap.String("scraper", s.Name()), zap.String("url", targetURL), zap.Error(err)}
		var blocked *BlockedError
		if errors.As(err, &blocked) {
			fields = append(fields, zap.String("block", string(blocked.Kind)))
		}
		zap.L().Debug("scrape: scraper failed, trying next", fields...)
		lastErr = err
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}
