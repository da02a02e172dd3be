package extractor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"venue-intel-pipeline/pkg/circuit"
	errs "venue-intel-pipeline/pkg/errors"
)

type scriptAPI struct {
	mu sync.Mutex
	n  int
	fn func(n int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (s *scriptAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	n := s.n
	s.n++
	s.mu.Unlock()
	return s.fn(n, req)
}

func (s *scriptAPI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func okResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
		Usage:   openai.Usage{PromptTokens: 100, CompletionTokens: 20},
	}
}

// testChatClient builds a Client with millisecond backoff and a breaker that
// only opens when asked to via maxConsecFailures.
func testChatClient(t *testing.T, api chatClient, maxConsecFailures int) *Client {
	t.Helper()
	log := testLogger(t)
	return &Client{
		api: api,
		breaker: circuit.New(circuit.Config{
			Name:              "openai-test",
			OperationTimeout:  time.Second,
			OpenFor:           time.Minute,
			MaxConsecFailures: maxConsecFailures,
		}, log),
		cost:        &CostTracker{startTime: time.Now()},
		model:       "test-model",
		temperature: 0.2,
		maxTokens:   256,
		backoff:     errs.NewBackoff(time.Millisecond, 4*time.Millisecond, 3),
		log:         log.WithComponent("llm"),
	}
}

func TestCompleteRetriesTransientThenSucceeds(t *testing.T) {
	api := &scriptAPI{fn: func(n int, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if n == 0 {
			return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"}
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != openai.ChatMessageRoleSystem {
			t.Errorf("request messages = %+v", req.Messages)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Error("response format not pinned to JSON")
		}
		return okResponse("ok"), nil
	}}
	c := testChatClient(t, api, 0)

	out, err := c.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "ok" || api.callCount() != 2 {
		t.Fatalf("out = %q, calls = %d", out, api.callCount())
	}

	tokens, requests, cost, _ := c.CostStats()
	if tokens != 120 || requests != 1 {
		t.Errorf("cost stats = %d tokens / %d requests", tokens, requests)
	}
	if cost <= 0 {
		t.Errorf("estimated cost = %v", cost)
	}
}

func TestCompleteDoesNotRetryPermanent(t *testing.T) {
	api := &scriptAPI{fn: func(int, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}
	}}
	c := testChatClient(t, api, 0)

	_, err := c.Complete(context.Background(), "sys", "user")
	var pe *errs.PermanentError
	if !errors.As(err, &pe) {
		t.Fatalf("want PermanentError, got %v", err)
	}
	if api.callCount() != 1 {
		t.Errorf("calls = %d", api.callCount())
	}
}

func TestQuotaExhaustionIsProviderLimit(t *testing.T) {
	api := &scriptAPI{fn: func(int, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota"}
	}}
	c := testChatClient(t, api, 0)

	_, err := c.Complete(context.Background(), "sys", "user")
	var pl *errs.ProviderLimitError
	if !errors.As(err, &pl) {
		t.Fatalf("want ProviderLimitError, got %v", err)
	}
	if pl.System != "openai" {
		t.Errorf("system = %q", pl.System)
	}
	if api.callCount() != 1 {
		t.Errorf("calls = %d", api.callCount())
	}
}

func TestOpenCircuitShortCircuitsCalls(t *testing.T) {
	api := &scriptAPI{fn: func(int, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: 400}
	}}
	c := testChatClient(t, api, 1)

	if _, err := c.Complete(context.Background(), "sys", "user"); err == nil {
		t.Fatal("first call should fail")
	}
	_, err := c.Complete(context.Background(), "sys", "user")
	var pl *errs.ProviderLimitError
	if !errors.As(err, &pl) {
		t.Fatalf("want ProviderLimitError from open circuit, got %v", err)
	}
	if api.callCount() != 1 {
		t.Errorf("provider reached %d times with circuit open", api.callCount())
	}
}

func TestClassifyProviderErr(t *testing.T) {
	cases := []struct {
		name      string
		in        error
		retryable bool
		limit     bool
	}{
		{"plain 429", &openai.APIError{HTTPStatusCode: 429}, true, false},
		{"503", &openai.APIError{HTTPStatusCode: 503}, true, false},
		{"404", &openai.APIError{HTTPStatusCode: 404}, false, false},
		{"quota", &openai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota"}, false, true},
		{"request 401", &openai.RequestError{HTTPStatusCode: 401, Err: errors.New("unauthorized")}, false, false},
		{"transport", errors.New("connection reset by peer"), true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyProviderErr(tc.in)
			if errs.Retryable(got) != tc.retryable {
				t.Errorf("retryable = %v, want %v (%v)", errs.Retryable(got), tc.retryable, got)
			}
			var pl *errs.ProviderLimitError
			if errors.As(got, &pl) != tc.limit {
				t.Errorf("provider-limit = %v, want %v (%v)", !tc.limit, tc.limit, got)
			}
		})
	}
}

func TestCostTrackerAccumulates(t *testing.T) {
	ct := &CostTracker{startTime: time.Now()}
	ct.AddUsage(1_000_000, 0)
	ct.AddUsage(0, 1_000_000)

	tokens, requests, cost, _ := ct.GetStats()
	if tokens != 2_000_000 || requests != 2 {
		t.Fatalf("tokens = %d, requests = %d", tokens, requests)
	}
	// $0.15 prompt + $0.60 completion at one million tokens each.
	if cost < 0.74 || cost > 0.76 {
		t.Errorf("estimated cost = %v", cost)
	}
}
