package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/prompt"
	"github.com/sells-group/lifeline/internal/resilience"
)

// DefaultMaxTokens caps the reply length of an Anthropic attempt.
const DefaultMaxTokens = 16384

// AnthropicClient is an Attempter for the Anthropic Messages API. The reply
// text is repackaged as a chat completions body so callers parse one shape.
type AnthropicClient struct {
	http        *http.Client
	timeout     time.Duration
	temperature float64
	maxTokens   int64
}

// AnthropicOption configures an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithAnthropicHTTPClient overrides the underlying HTTP client.
func WithAnthropicHTTPClient(hc *http.Client) AnthropicOption {
	return func(c *AnthropicClient) { c.http = hc }
}

// WithAnthropicTimeout sets the absolute per-attempt timeout.
func WithAnthropicTimeout(d time.Duration) AnthropicOption {
	return func(c *AnthropicClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAnthropicTemperature sets the sampling temperature.
func WithAnthropicTemperature(t float64) AnthropicOption {
	return func(c *AnthropicClient) { c.temperature = t }
}

// WithMaxTokens sets the reply token cap.
func WithMaxTokens(n int64) AnthropicOption {
	return func(c *AnthropicClient) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewAnthropicClient creates an AnthropicClient.
func NewAnthropicClient(opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		http:        &http.Client{},
		timeout:     DefaultTimeout,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Attempt sends one Messages request with SDK retries disabled.
func (c *AnthropicClient) Attempt(ctx context.Context, cand Candidate, inst prompt.Instruction) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := []option.RequestOption{
		option.WithAPIKey(cand.APIKey),
		option.WithHTTPClient(c.http),
		option.WithMaxRetries(0),
	}
	if cand.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cand.BaseURL, "/")+"/"))
	}
	client := sdk.NewClient(opts...)

	params := sdk.MessageNewParams{
		Model:       sdk.Model(cand.Model),
		MaxTokens:   c.maxTokens,
		System:      []sdk.TextBlockParam{{Text: inst.System}},
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(inst.User))},
		Temperature: sdk.Float(c.temperature),
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return c.statusOutcome(cand, apiErr.StatusCode, err)
		}
		return retryable(ctx, eris.Wrap(err, "anthropic: create message"))
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	zap.L().Info("upstream: anthropic usage",
		zap.String("model", string(msg.Model)),
		zap.String("stop_reason", string(msg.StopReason)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	body, err := json.Marshal(map[string]any{
		"id":    msg.ID,
		"model": string(msg.Model),
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": string(msg.StopReason),
			"message":       map[string]any{"role": "assistant", "content": text.String()},
		}},
	})
	if err != nil {
		return retryable(ctx, eris.Wrap(err, "anthropic: encode reply"))
	}
	return Outcome{Kind: Success, StatusCode: http.StatusOK, Body: body}
}

func (c *AnthropicClient) statusOutcome(cand Candidate, status int, err error) Outcome {
	if resilience.IsAuthStatus(status) {
		zap.L().Warn("upstream: credentials rejected",
			zap.String("model", cand.Model),
			zap.Int("status", status),
		)
		return Outcome{
			Kind:       FatalAuth,
			StatusCode: status,
			Reason:     fmt.Sprintf("status %d", status),
			Err:        resilience.NewAuthError(status),
		}
	}
	reason := fmt.Sprintf("status %d: %s", status, preview([]byte(err.Error())))
	zap.L().Warn("upstream: non-2xx response",
		zap.String("model", cand.Model),
		zap.Int("status", status),
		zap.Bool("transient_status", resilience.IsTransientHTTPStatus(status)),
	)
	return Outcome{
		Kind:       Retryable,
		StatusCode: status,
		Reason:     reason,
		Err:        resilience.NewTransientError(errors.New(reason), status),
	}
}
