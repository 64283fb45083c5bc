// Package embed turns text into fixed-length float32 vectors through an
// OpenAI-compatible embeddings endpoint.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// ErrEmptyInput is returned when asked to embed blank text.
var ErrEmptyInput = eris.New("embed: empty input")

// Embedder produces vectors of a fixed dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Config selects the embedding endpoint and model.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// DimensionError reports a vector whose length differs from the configured
// dimensionality.
type DimensionError struct {
	Got, Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embed: dimension mismatch: got %d, want %d", e.Got, e.Want)
}

type client struct {
	embedder embeddings.Embedder
	dims     int
}

// New creates an Embedder backed by the langchaingo OpenAI client.
func New(cfg Config) (Embedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, eris.New("embed: dimensions must be > 0")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, eris.Wrap(err, "embed: create openai client")
	}
	e, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, eris.Wrap(err, "embed: create embedder")
	}
	return Wrap(e, cfg.Dimensions), nil
}

// Wrap adapts any langchaingo embedder, enforcing dims on every result.
func Wrap(e embeddings.Embedder, dims int) Embedder {
	return &client{embedder: e, dims: dims}
}

func (c *client) Dimensions() int { return c.dims }

// Embed returns the vector for text. A result of the wrong length is an
// error, never silently stored.
func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	vecs, err := c.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, eris.Wrap(err, "embed: embed documents")
	}
	if len(vecs) == 0 {
		return nil, eris.New("embed: provider returned no vectors")
	}
	if len(vecs[0]) != c.dims {
		return nil, &DimensionError{Got: len(vecs[0]), Want: c.dims}
	}

	zap.L().Debug("embed: vector generated",
		zap.Int("chars", len(text)),
		zap.Int("dims", c.dims),
	)
	return vecs[0], nil
}
