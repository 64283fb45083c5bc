package enrich

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/resilience"
	"github.com/sells-group/relgraph/internal/scrape"
)

// PageScraper fetches one URL. *scrape.Chain satisfies it.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Result, error)
}

// CacheWriter persists fetched homepage content.
type CacheWriter interface {
	SetWebpageCache(ctx context.Context, entityID string, cache model.WebpageCache) error
}

// ContentConfig controls homepage acquisition.
type ContentConfig struct {
	TTL      time.Duration
	MaxChars int
	Retry    resilience.Policy
	Limiter  *rate.Limiter
}

// ContentFetcher returns an organization's homepage text, served from the
// entity's webpage cache while it is fresh.
type ContentFetcher struct {
	scraper PageScraper
	cache   CacheWriter
	cfg     ContentConfig
	now     func() time.Time
}

// NewContentFetcher creates a ContentFetcher.
func NewContentFetcher(scraper PageScraper, cache CacheWriter, cfg ContentConfig) *ContentFetcher {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 20000
	}
	return &ContentFetcher{scraper: scraper, cache: cache, cfg: cfg, now: time.Now}
}

// Acquire returns homepage content for an organization, or "" when the
// entity is not an organization, has no usable domain, or the scrape fails.
// Fresh content is persisted onto the entity's webpage cache.
func (f *ContentFetcher) Acquire(ctx context.Context, e *model.Entity) string {
	if !e.IsOrganization() {
		return ""
	}
	log := zap.L().With(zap.String("entity", e.ID), zap.String("name", e.Name))

	if e.WebpageCache.Fresh(f.now(), f.cfg.TTL) {
		log.Debug("enrich: using cached webpage content",
			zap.Time("fetched_at", e.WebpageCache.FetchedAt),
		)
		return e.WebpageCache.Content
	}

	target, ok := NormalizeDomain(e.Domain)
	if !ok {
		return ""
	}

	result, err := resilience.RetryVal(ctx, f.cfg.Retry, func(ctx context.Context) (*scrape.Result, error) {
		if f.cfg.Limiter != nil {
			if err := f.cfg.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return f.scraper.Scrape(ctx, target)
	})
	if err != nil {
		log.Warn("enrich: homepage scrape failed, continuing without content",
			zap.String("url", target),
			zap.Error(err),
		)
		return ""
	}

	content := truncateRunes(strings.TrimSpace(result.Page.Markdown), f.cfg.MaxChars)
	if content == "" {
		return ""
	}
	wc := model.WebpageCache{Content: content, FetchedAt: f.now().UTC()}

	if err := resilience.Retry(ctx, f.cfg.Retry, func(ctx context.Context) error {
		return f.cache.SetWebpageCache(ctx, e.ID, wc)
	}); err != nil {
		log.Warn("enrich: failed to persist webpage cache", zap.Error(err))
	}
	e.WebpageCache = &wc

	log.Info("enrich: homepage fetched",
		zap.String("url", target),
		zap.String("scraper", result.Source),
		zap.Int("chars", len(content)),
	)
	return content
}

// NormalizeDomain turns a stored domain ("www.acme.com", "http://acme.com/about",
// "acme.com") into "https://acme.com". It reports false when no host can be
// derived.
func NormalizeDomain(domain string) (string, bool) {
	d := strings.TrimSpace(strings.ToLower(domain))
	if d == "" {
		return "", false
	}
	if !strings.Contains(d, "://") {
		d = "https://" + d
	}
	u, err := url.Parse(d)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	host := u.Hostname()
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}
	if !strings.Contains(host, ".") {
		return "", false
	}
	return "https://" + host, true
}

func truncateRunes(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	r := []rune(s)
	return string(r[:maxChars])
}
