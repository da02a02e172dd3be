package extractor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/pkg/circuit"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/logging"
)

// chatClient is the slice of the OpenAI client the extractor actually uses.
// Tests substitute a canned implementation.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CostTracker tracks provider usage and estimated spend for one process
// lifetime. The nightly report includes its numbers so cost drift is visible
// before the invoice is.
type CostTracker struct {
	mu               sync.RWMutex
	totalTokens      int
	totalRequests    int
	estimatedCostUSD float64
	startTime        time.Time
}

func (c *CostTracker) AddUsage(promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalTokens += promptTokens + completionTokens
	c.totalRequests++

	// gpt-4o-mini pricing (as of 2025): $0.15/1M prompt tokens, $0.60/1M completion tokens
	promptCost := float64(promptTokens) * 0.15 / 1_000_000
	completionCost := float64(completionTokens) * 0.60 / 1_000_000
	c.estimatedCostUSD += promptCost + completionCost
}

func (c *CostTracker) GetStats() (totalTokens, totalRequests int, estimatedCostUSD float64, duration time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.totalTokens, c.totalRequests, c.estimatedCostUSD, time.Since(c.startTime)
}

// Client wraps chat completions behind the provider circuit breaker, with
// bounded backoff for transient failures. One Client is shared by the
// extractor and the confidence reviewer so they draw on the same breaker
// state and the same cost ledger.
type Client struct {
	api         chatClient
	breaker     *circuit.Breaker
	cost        *CostTracker
	model       string
	temperature float32
	maxTokens   int
	backoff     errs.Backoff
	log         *logging.ComponentLogger
}

func NewClient(cfg *config.Config, log *logging.Logger) *Client {
	return newClient(openai.NewClient(cfg.OpenAIAPIKey), cfg, log)
}

func newClient(api chatClient, cfg *config.Config, log *logging.Logger) *Client {
	br := circuit.New(circuit.Config{
		Name:              "openai",
		OperationTimeout:  constants.LLMOperationTimeout,
		OpenFor:           constants.LLMOpenFor,
		MaxConsecFailures: 4,
		WindowSize:        20,
		FailureRate:       constants.LLMCircuitFailureRate,
		SlowCallThreshold: constants.LLMSlowCallThreshold,
		SlowCallRate:      constants.LLMCircuitSlowCallRate,
	}, log)

	return &Client{
		api:         api,
		breaker:     br,
		cost:        &CostTracker{startTime: time.Now()},
		model:       cfg.OpenAIModel,
		temperature: float32(cfg.OpenAITemperature),
		maxTokens:   cfg.OpenAIMaxTokens,
		backoff:     errs.NewBackoff(constants.LLMBackoffBase, constants.LLMBackoffCap, constants.LLMMaxAttempts),
		log:         log.WithComponent("llm"),
	}
}

// CostStats exposes the shared cost ledger.
func (c *Client) CostStats() (totalTokens, totalRequests int, estimatedCostUSD float64, duration time.Duration) {
	return c.cost.GetStats()
}

// Complete sends one system+user exchange and returns the raw response text.
// Transient provider failures are retried with backoff; provider-limit and
// open-circuit conditions come back as ProviderLimitError so the caller can
// stop burning the rest of the work-set.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.backoff.MaxAttempts; attempt++ {
		out, err := c.completeOnce(ctx, system, user)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errs.Retryable(err) || attempt == c.backoff.MaxAttempts {
			break
		}
		c.log.Debug("llm call retrying",
			logging.Int("attempt", attempt),
			logging.String("cause", err.Error()))
		select {
		case <-time.After(c.backoff.Delay(attempt + 1)):
		case <-ctx.Done():
			return "", errs.NewTransient("llm.Complete", "cancelled while backing off", ctx.Err())
		}
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, system, user string) (string, error) {
	var content string
	op := func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature:    c.temperature,
			MaxTokens:      c.maxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		if err != nil {
			return classifyProviderErr(err)
		}
		c.cost.AddUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		if len(resp.Choices) == 0 {
			return errs.NewTransient("llm.completeOnce", "provider returned no choices", nil)
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := c.breaker.Do(ctx, op, nil); err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			return "", errs.NewProviderLimit("llm.completeOnce", "openai", "provider circuit open", err)
		}
		return "", err
	}
	return content, nil
}

// classifyProviderErr maps go-openai failures onto the pipeline taxonomy.
// Quota exhaustion ends the step for the whole run; plain rate limiting and
// 5xx are worth retrying; other 4xx mean the request itself is wrong.
func classifyProviderErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429 && fmt.Sprint(apiErr.Code) == "insufficient_quota":
			return errs.NewProviderLimit("llm.completeOnce", "openai", "quota exhausted", err)
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return errs.NewTransient("llm.completeOnce", "provider busy", err)
		default:
			return errs.NewPermanent("llm.completeOnce", "provider rejected request", err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 && reqErr.HTTPStatusCode != 429 {
		return errs.NewPermanent("llm.completeOnce", "provider rejected request", err)
	}
	// Transport-level failures (timeouts, resets) retry like any network call.
	return errs.NewTransient("llm.completeOnce", "provider unreachable", err)
}
