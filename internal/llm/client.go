// Package llm wraps the OpenAI-compatible chat endpoint used for both
// classification stages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"emailmanager/internal/retry"
)

var (
	ErrTimeout       = errors.New("llm call timed out")
	ErrCircuitOpen   = errors.New("llm circuit breaker open")
	ErrEmptyResponse = errors.New("llm returned no content")
)

// Caller is the single operation the classifiers need.
type Caller interface {
	Call(ctx context.Context, system, user string, timeout time.Duration) (string, error)
}

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxRetries  int
	Backoff     retry.Backoff
	HTTPClient  *http.Client
}

type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	policy      retry.Policy
	cb          *gobreaker.CircuitBreaker
	log         zerolog.Logger
}

func NewClient(opts Options, log zerolog.Logger) *Client {
	conf := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		conf.HTTPClient = opts.HTTPClient
	}
	if opts.Temperature == 0 {
		// kimi-k2.5 rejects anything but 1.
		opts.Temperature = 1
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = retry.Exponential(time.Second, 8*time.Second)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	log = log.With().Str("component", "llm").Logger()
	c := &Client{
		api:         openai.NewClientWithConfig(conf),
		model:       opts.Model,
		temperature: opts.Temperature,
		log:         log,
	}
	c.policy = retry.Policy{
		MaxAttempts: opts.MaxRetries + 1,
		Backoff:     backoff,
		Retryable:   isRetryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("llm call failed, retrying")
		},
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return c
}

// Call sends one system+user exchange. Each attempt gets its own timeout;
// ErrTimeout is returned when the last attempt ran out of time.
func (c *Client) Call(ctx context.Context, system, user string, timeout time.Duration) (string, error) {
	var out string
	err := c.policy.Do(ctx, func(attempt int) error {
		res, err := c.cb.Execute(func() (interface{}, error) {
			return c.once(ctx, system, user, timeout)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return retry.Permanent(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
			}
			return err
		}
		out = res.(string)
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) once(ctx context.Context, system, user string, timeout time.Duration) (string, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		if isTimeout(err) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	c.log.Debug().
		Dur("duration", time.Since(start)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("llm call ok")
	return resp.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
