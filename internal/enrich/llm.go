package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/relgraph/internal/resilience"
	"github.com/sells-group/relgraph/pkg/anthropic"
)

const defaultTemperature = 0.2

// Completer sends single-turn prompts to a chat-completion model through the
// retry policy and the shared provider rate limiter.
type Completer struct {
	Client    anthropic.Client
	Model     string
	MaxTokens int64
	Retry     resilience.Policy
	Limiter   *rate.Limiter
	Meter     *anthropic.Meter // optional; shared across completers of one run
}

// Complete returns the text of the model's reply. phase labels the logs.
func (c *Completer) Complete(ctx context.Context, phase string, system []anthropic.SystemBlock, prompt string) (string, error) {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	temp := defaultTemperature

	resp, err := resilience.RetryVal(ctx, c.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := waitLimiter(ctx, c.Limiter); err != nil {
			return nil, err
		}
		return c.Client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       c.Model,
			MaxTokens:   maxTokens,
			System:      system,
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "enrich: %s completion", phase)
	}

	c.Meter.Add(resp.Usage)
	zap.L().Debug("enrich: completion",
		zap.String("phase", phase),
		zap.String("model", c.Model),
		zap.Object("usage", resp.Usage),
		zap.Bool("truncated", resp.Truncated()),
	)
	return resp.Text(), nil
}

func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
