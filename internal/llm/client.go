// Package llm talks to an OpenAI-compatible chat completion endpoint
// (OpenRouter by default).
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sashabaranov/go-openai"

	"github.com/medinsight/medinsight/internal/observability"
)

var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Prompt is one chat exchange. Operation labels logs and metrics.
type Prompt struct {
	Operation string
	System    string
	User      string
}

type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	// Timeout bounds a single request attempt.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transport failure.
	Retries int
	// BackOff overrides the delay policy between attempts.
	BackOff backoff.BackOff
}

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	retries     int
	newBackOff  func() backoff.BackOff
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	clientConfig.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	newBackOff := func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		return b
	}
	if cfg.BackOff != nil {
		newBackOff = func() backoff.BackOff { return cfg.BackOff }
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
		retries:     retries,
		newBackOff:  newBackOff,
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

// Complete sends the prompt and returns the first choice's content. Rate
// limits, server errors and network failures are retried; other API errors
// and cancellation of ctx are not.
func (c *Client) Complete(ctx context.Context, prompt Prompt) (string, error) {
	operation := prompt.Operation
	if operation == "" {
		operation = "complete"
	}
	request := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
	}

	started := time.Now()
	attempt := 0
	content, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		return c.completeOnce(ctx, request)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.retries+1)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			slog.DebugContext(ctx, "llm request failed, retrying",
				observability.TraceAttr(ctx),
				slog.String("operation", operation),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
		}),
	)
	observability.ObserveLLMRequest(operation, err, time.Since(started))
	if err != nil {
		return "", fmt.Errorf("%s: chat completion failed after %d attempt(s): %w", operation, attempt, err)
	}
	return content, nil
}

func (c *Client) completeOnce(ctx context.Context, request openai.ChatCompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", backoff.Permanent(err)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(attemptCtx, request)
	if err != nil {
		if ctx.Err() != nil || !retryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", backoff.Permanent(ErrEmptyCompletion)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", backoff.Permanent(ErrEmptyCompletion)
	}
	return content, nil
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
