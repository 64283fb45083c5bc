package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Graph      GraphConfig      `yaml:"graph" mapstructure:"graph"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the entity/edge store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AnthropicConfig holds chat-completion settings.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	Model           string `yaml:"model" mapstructure:"model"`
	ClassifierModel string `yaml:"classifier_model" mapstructure:"classifier_model"`
	MaxTokens       int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds search-augmented completion settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (last-resort scraper).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

// EnrichConfig configures the enrichment orchestrator.
type EnrichConfig struct {
	BatchSize     int     `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	BatchPauseMs  int     `yaml:"batch_pause_ms" mapstructure:"batch_pause_ms"`
	PageSize      int     `yaml:"page_size" mapstructure:"page_size"`
	RetryMax      int     `yaml:"retry_max" mapstructure:"retry_max"`
	RetryBaseMs   int     `yaml:"retry_base_ms" mapstructure:"retry_base_ms"`
	CacheTTLDays  int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
	ContentMax    int     `yaml:"content_max_chars" mapstructure:"content_max_chars"`
	ProviderRPS   float64 `yaml:"provider_rps" mapstructure:"provider_rps"`
	TaxonomyPath  string  `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
	Schedule      string  `yaml:"schedule" mapstructure:"schedule"`
	StatusBuffer  int     `yaml:"status_buffer" mapstructure:"status_buffer"`
	BreakerTrips  int     `yaml:"breaker_trips" mapstructure:"breaker_trips"`
	BreakerCoolMs int     `yaml:"breaker_cooldown_ms" mapstructure:"breaker_cooldown_ms"`
}

// BatchPause returns the pause inserted between batches.
func (c EnrichConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMs) * time.Millisecond
}

// RetryBase returns the base retry delay.
func (c EnrichConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

// CacheTTL returns the webpage cache freshness window.
func (c EnrichConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}

// GraphConfig configures the relationship graph index and path search.
type GraphConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"`
	Neo4jURI      string `yaml:"neo4j_uri" mapstructure:"neo4j_uri"`
	Neo4jUser     string `yaml:"neo4j_user" mapstructure:"neo4j_user"`
	Neo4jPassword string `yaml:"neo4j_password" mapstructure:"neo4j_password"`
	Neo4jDatabase string `yaml:"neo4j_database" mapstructure:"neo4j_database"`
	MaxDepth      int    `yaml:"max_depth" mapstructure:"max_depth"`
	MaxNodes      int    `yaml:"max_nodes" mapstructure:"max_nodes"`
	FanOut        int    `yaml:"fan_out" mapstructure:"fan_out"`
}

// SearchConfig configures the search entrypoint.
type SearchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MatchThreshold    float64 `yaml:"match_threshold" mapstructure:"match_threshold"`
	AnchorName        string  `yaml:"anchor_name" mapstructure:"anchor_name"`
	DefaultLimit      int     `yaml:"default_limit" mapstructure:"default_limit"`
	RedisURL          string  `yaml:"redis_url" mapstructure:"redis_url"`
	EmbedCacheTTLMins int     `yaml:"embed_cache_ttl_mins" mapstructure:"embed_cache_ttl_mins"`
}

// Timeout returns the search wall-clock timeout.
func (c SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RELGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.schema", "public")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.classifier_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1500)
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("embedding.key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("enrich.batch_size", 10)
	v.SetDefault("enrich.concurrency", 5)
	v.SetDefault("enrich.batch_pause_ms", 1000)
	v.SetDefault("enrich.page_size", 500)
	v.SetDefault("enrich.retry_max", 3)
	v.SetDefault("enrich.retry_base_ms", 1000)
	v.SetDefault("enrich.cache_ttl_days", 30)
	v.SetDefault("enrich.content_max_chars", 20000)
	v.SetDefault("enrich.provider_rps", 5.0)
	v.SetDefault("enrich.taxonomy_path", "")
	v.SetDefault("enrich.schedule", "")
	v.SetDefault("enrich.status_buffer", 256)
	v.SetDefault("enrich.breaker_trips", 5)
	v.SetDefault("enrich.breaker_cooldown_ms", 30000)
	v.SetDefault("graph.backend", "store")
	v.SetDefault("graph.neo4j_uri", "")
	v.SetDefault("graph.neo4j_user", "neo4j")
	v.SetDefault("graph.neo4j_password", "")
	v.SetDefault("graph.neo4j_database", "")
	v.SetDefault("graph.max_depth", 3)
	v.SetDefault("graph.max_nodes", 50)
	v.SetDefault("graph.fan_out", 25)
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.match_threshold", 0.3)
	v.SetDefault("search.anchor_name", "")
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.redis_url", "")
	v.SetDefault("search.embed_cache_ttl_mins", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required by the given command are set and
// that numeric settings are within range.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, "embedding.dimensions must be > 0")
	}
	if c.Enrich.Concurrency < 1 || c.Enrich.Concurrency > 50 {
		errs = append(errs, "enrich.concurrency must be between 1 and 50")
	}
	if c.Enrich.BatchSize < 1 {
		errs = append(errs, "enrich.batch_size must be > 0")
	}
	if c.Search.MatchThreshold < 0 || c.Search.MatchThreshold > 1 {
		errs = append(errs, "search.match_threshold must be between 0 and 1")
	}
	if c.Graph.Backend != "store" && c.Graph.Backend != "neo4j" {
		errs = append(errs, "graph.backend must be store or neo4j")
	}
	if c.Graph.Backend == "neo4j" && c.Graph.Neo4jURI == "" {
		errs = append(errs, "graph.neo4j_uri is required")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "enrich":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Embedding.Key == "" {
			errs = append(errs, "embedding.key is required")
		}
	case "search":
		if c.Search.AnchorName == "" {
			errs = append(errs, "search.anchor_name is required")
		}
		if c.Embedding.Key == "" {
			errs = append(errs, "embedding.key is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Search.AnchorName == "" {
			errs = append(errs, "search.anchor_name is required")
		}
	case "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
