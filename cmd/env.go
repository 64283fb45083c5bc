package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/relgraph/internal/enrich"
	"github.com/sells-group/relgraph/internal/graph"
	"github.com/sells-group/relgraph/internal/resilience"
	"github.com/sells-group/relgraph/internal/scrape"
	"github.com/sells-group/relgraph/internal/search"
	"github.com/sells-group/relgraph/internal/store"
	anthropicpkg "github.com/sells-group/relgraph/pkg/anthropic"
	"github.com/sells-group/relgraph/pkg/embed"
	"github.com/sells-group/relgraph/pkg/firecrawl"
	"github.com/sells-group/relgraph/pkg/jina"
	"github.com/sells-group/relgraph/pkg/perplexity"
)

// appEnv holds the store, graph index and whichever services a command
// initialized. Callers should defer env.Close().
type appEnv struct {
	Store        store.Store
	Index        graph.Index
	Neo4j        *graph.Neo4jIndex // nil unless graph.backend is neo4j
	Orchestrator *enrich.Orchestrator
	Status       *enrich.StatusEmitter
	Usage        *anthropicpkg.Meter
	Search       *search.Service
	embedCache   *search.RedisEmbeddingCache
}

// Close flushes pending status rows and releases connections.
func (e *appEnv) Close() {
	if e.Status != nil {
		e.Status.Close()
	}
	if e.embedCache != nil {
		_ = e.embedCache.Close()
	}
	if e.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = e.Neo4j.Close(ctx)
		cancel()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "relgraph.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			Schema:   cfg.Store.Schema,
		}, cfg.Embedding.Dimensions)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv opens the store and graph index.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Index: graph.NewStoreIndex(st)}

	if cfg.Graph.Backend == "neo4j" {
		n, err := graph.NewNeo4jIndex(ctx, graph.Neo4jConfig{
			URI:      cfg.Graph.Neo4jURI,
			User:     cfg.Graph.Neo4jUser,
			Password: cfg.Graph.Neo4jPassword,
			Database: cfg.Graph.Neo4jDatabase,
		})
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Neo4j = n
		env.Index = n
	}
	return env, nil
}

func retryPolicy(name string) resilience.Policy {
	return resilience.Policy{
		Name:       name,
		MaxRetries: cfg.Enrich.RetryMax,
		BaseDelay:  cfg.Enrich.RetryBase(),
	}
}

func newEmbedder() (embed.Embedder, error) {
	return embed.New(embed.Config{
		APIKey:     cfg.Embedding.Key,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
}

func newBreaker(name string) *resilience.Breaker {
	return resilience.NewBreaker(name, resilience.BreakerConfig{
		FailureThreshold: cfg.Enrich.BreakerTrips,
		Cooldown:         time.Duration(cfg.Enrich.BreakerCoolMs) * time.Millisecond,
	})
}

func newScrapeChain() *scrape.Chain {
	scrapers := []scrape.Scraper{
		scrape.NewLocalScraper(),
		scrape.NewJinaAdapter(jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL)), newBreaker("jina")),
	}
	if cfg.Firecrawl.Key != "" {
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(
			firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL)),
			scrape.WithFirecrawlBreaker(newBreaker("firecrawl")),
			scrape.WithFirecrawlMaxAge(cfg.Enrich.CacheTTL()),
		))
	}
	return scrape.NewChain(scrapers...)
}

// initEnrichment builds the orchestrator and its providers on env.
func initEnrichment(env *appEnv) error {
	if err := cfg.Validate("enrich"); err != nil {
		return err
	}

	env.Usage = &anthropicpkg.Meter{}

	var limiter *rate.Limiter
	if cfg.Enrich.ProviderRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Enrich.ProviderRPS), max(1, cfg.Enrich.Concurrency))
	}

	embedder, err := newEmbedder()
	if err != nil {
		return err
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	analysisLLM := &enrich.Completer{
		Client:    anthropicClient,
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		Retry:     retryPolicy("anthropic"),
		Limiter:   limiter,
		Meter:     env.Usage,
	}
	classifyLLM := *analysisLLM
	classifyLLM.Model = cfg.Anthropic.ClassifierModel

	strategies := []enrich.Strategy{&enrich.ScrapedContentStrategy{LLM: analysisLLM}}
	if cfg.Perplexity.Key != "" {
		strategies = append(strategies, &enrich.LiveSearchStrategy{
			Client: perplexity.NewClient(cfg.Perplexity.Key,
				perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
				perplexity.WithModel(cfg.Perplexity.Model),
			),
			Breaker: newBreaker("perplexity"),
			Retry:   retryPolicy("perplexity"),
			Limiter: limiter,
		})
	} else {
		zap.L().Warn("perplexity key not set, live search strategy disabled")
	}
	strategies = append(strategies, &enrich.LocalDataStrategy{LLM: analysisLLM})

	env.Status = enrich.NewStatusEmitter(env.Store, cfg.Enrich.StatusBuffer)
	env.Orchestrator = enrich.NewOrchestrator(enrich.Deps{
		Store: env.Store,
		Content: enrich.NewContentFetcher(newScrapeChain(), env.Store, enrich.ContentConfig{
			TTL:      cfg.Enrich.CacheTTL(),
			MaxChars: cfg.Enrich.ContentMax,
			Retry:    retryPolicy("scrape"),
			Limiter:  limiter,
		}),
		Analyzer:   enrich.NewChain(env.Index, strategies...),
		Classifier: enrich.NewTaxonomyClassifier(&classifyLLM, enrich.NewTaxonomySource(cfg.Enrich.TaxonomyPath)),
		Embedder:   enrich.NewEmbeddingBuilder(embedder, retryPolicy("embedding"), limiter),
		Status:     env.Status,
	}, enrich.Config{
		BatchSize:   cfg.Enrich.BatchSize,
		Concurrency: cfg.Enrich.Concurrency,
		PageSize:    cfg.Enrich.PageSize,
		BatchPause:  cfg.Enrich.BatchPause(),
		Retry:       retryPolicy("store"),
	})
	return nil
}

// initSearch builds the search service on env.
func initSearch(ctx context.Context, env *appEnv) error {
	var embedder embed.Embedder
	if cfg.Embedding.Key != "" {
		e, err := newEmbedder()
		if err != nil {
			return err
		}
		embedder = e
	} else {
		zap.L().Warn("embedding key not set, search is lexical only")
	}

	var cache search.EmbeddingCache = search.NewMemoryEmbeddingCache(0)
	if cfg.Search.RedisURL != "" {
		rc, err := search.NewRedisEmbeddingCache(ctx, cfg.Search.RedisURL, cfg.Embedding.Model,
			time.Duration(cfg.Search.EmbedCacheTTLMins)*time.Minute)
		if err != nil {
			zap.L().Warn("redis embedding cache unavailable, using in-process cache", zap.Error(err))
		} else {
			env.embedCache = rc
			cache = rc
		}
	}

	finder := graph.NewPathFinder(env.Index, graph.PathConfig{
		MaxDepth: cfg.Graph.MaxDepth,
		MaxNodes: cfg.Graph.MaxNodes,
		FanOut:   cfg.Graph.FanOut,
	})
	env.Search = search.NewService(env.Store,
		search.NewRanker(env.Store, embedder, cache, cfg.Search.MatchThreshold),
		finder,
		search.Config{
			Timeout:      cfg.Search.Timeout(),
			AnchorName:   cfg.Search.AnchorName,
			DefaultLimit: cfg.Search.DefaultLimit,
		},
	)
	return nil
}
