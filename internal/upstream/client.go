// Package upstream performs single completion attempts against an
// OpenAI-compatible chat completions endpoint or the Anthropic Messages API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/prompt"
	"github.com/sells-group/lifeline/internal/resilience"
)

const (
	// DefaultTimeout bounds one streaming attempt.
	DefaultTimeout = 300 * time.Second
	// DefaultTemperature is the sampling temperature sent with every request.
	DefaultTemperature = 0.7

	maxBodyBytes   = 32 << 20
	reasonBodySize = 200
)

// Protocol is the wire API a candidate speaks.
type Protocol string

const (
	// ProtocolOpenAI is the OpenAI-compatible chat completions API. It is
	// also what the zero value means.
	ProtocolOpenAI    Protocol = "openai"
	ProtocolAnthropic Protocol = "anthropic"
)

// Candidate is one endpoint, credential and model eligible for an attempt.
type Candidate struct {
	BaseURL  string
	APIKey   string
	Model    string
	Protocol Protocol
}

// Kind classifies the outcome of one attempt.
type Kind int

const (
	Success Kind = iota
	Retryable
	FatalAuth
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case FatalAuth:
		return "fatal_auth"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one attempt. Body is set only on Success and is
// always a chat completions response; it is not interpreted here.
type Outcome struct {
	Kind       Kind
	Body       []byte
	Reason     string
	StatusCode int
	Err        error
}

// Attempter performs one completion attempt.
type Attempter interface {
	Attempt(ctx context.Context, c Candidate, inst prompt.Instruction) Outcome
}

// Client is an Attempter backed by net/http.
type Client struct {
	http        *http.Client
	timeout     time.Duration
	temperature float64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the absolute per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{},
		timeout:     DefaultTimeout,
		temperature: DefaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// Attempt POSTs one chat completion request and classifies the result.
// 401 and 403 are FatalAuth; any other failure is Retryable.
func (c *Client) Attempt(ctx context.Context, cand Candidate, inst prompt.Instruction) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{
		Model: cand.Model,
		Messages: []chatMessage{
			{Role: "system", Content: inst.System},
			{Role: "user", Content: inst.User},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return retryable(ctx, eris.Wrap(err, "upstream: marshal request"))
	}

	url := strings.TrimRight(cand.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return retryable(ctx, eris.Wrap(err, "upstream: create request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cand.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return retryable(ctx, eris.Wrap(err, "upstream: send request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return retryable(ctx, eris.Wrap(err, "upstream: read body"))
	}

	if resilience.IsAuthStatus(resp.StatusCode) {
		zap.L().Warn("upstream: credentials rejected",
			zap.String("model", cand.Model),
			zap.Int("status", resp.StatusCode),
		)
		return Outcome{
			Kind:       FatalAuth,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("status %d", resp.StatusCode),
			Err:        resilience.NewAuthError(resp.StatusCode),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := fmt.Sprintf("status %d: %s", resp.StatusCode, preview(body))
		zap.L().Warn("upstream: non-2xx response",
			zap.String("model", cand.Model),
			zap.Int("status", resp.StatusCode),
			zap.Bool("transient_status", resilience.IsTransientHTTPStatus(resp.StatusCode)),
		)
		return Outcome{
			Kind:       Retryable,
			StatusCode: resp.StatusCode,
			Reason:     reason,
			Err:        resilience.NewTransientError(errors.New(reason), resp.StatusCode),
		}
	}

	return Outcome{Kind: Success, StatusCode: resp.StatusCode, Body: body}
}

// retryable classifies a transport-level failure. A deadline on the
// attempt context is reported as "timeout".
func retryable(ctx context.Context, err error) Outcome {
	reason := err.Error()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = "timeout"
	}
	zap.L().Warn("upstream: attempt failed",
		zap.String("reason", reason),
		zap.Bool("transient", resilience.IsTransient(err)),
	)
	return Outcome{
		Kind:   Retryable,
		Reason: reason,
		Err:    resilience.NewTransientError(err, 0),
	}
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	r := []rune(s)
	if len(r) > reasonBodySize {
		return string(r[:reasonBodySize])
	}
	return s
}
