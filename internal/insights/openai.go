// Package insights produces the narrative layer of a case analysis with an
// OpenAI-compatible chat model. Failures are returned as typed results and
// never as errors, so callers always fall back to deterministic text.
package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/reperto-cdss-server/internal/domain"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 8 * time.Second
	maxTokens      = 800
)

// OpenAIGenerator calls the chat completions API behind a rate limiter and a
// circuit breaker.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	log         *logrus.Logger
}

// NewOpenAIGenerator builds a generator from the insights configuration.
func NewOpenAIGenerator(cfg domain.InsightsConfig, logger *logrus.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("insights API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	if cfg.BreakerFailRatio <= 0 {
		cfg.BreakerFailRatio = 0.6
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	failRatio := cfg.BreakerFailRatio
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "insights",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= failRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		breaker:     breaker,
		log:         logger,
	}, nil
}

// Generate never blocks on the limiter: an exhausted budget is reported as
// rate_limited so the caller can use fallback text immediately.
func (g *OpenAIGenerator) Generate(ctx context.Context, req domain.InsightRequest) domain.InsightResult {
	if !g.limiter.Allow() {
		return domain.InsightFailed(domain.InsightRateLimited, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.complete(ctx, req)
	})
	if err != nil {
		kind := classify(ctx, err)
		g.log.WithFields(logrus.Fields{
			"kind":  kind,
			"model": g.model,
		}).WithError(err).Debug("Insight generation failed")
		return domain.InsightFailed(kind, err)
	}
	return domain.InsightOK(out.(*domain.Insight))
}

func (g *OpenAIGenerator) complete(ctx context.Context, req domain.InsightRequest) (*domain.Insight, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
		Temperature: g.temperature,
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &errMalformed{reason: "no choices"}
	}
	return parseInsight(resp.Choices[0].Message.Content)
}

// State returns the breaker state for health reporting.
func (g *OpenAIGenerator) State() string {
	return g.breaker.State().String()
}

func classify(ctx context.Context, err error) domain.InsightFailureKind {
	var malformed *errMalformed
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.InsightCircuitOpen
	case errors.As(err, &malformed):
		return domain.InsightMalformed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.InsightTimeout
	default:
		return domain.InsightUpstream
	}
}

var _ domain.InsightGenerator = (*OpenAIGenerator)(nil)
