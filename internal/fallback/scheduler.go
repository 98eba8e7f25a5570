package fallback

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/prompt"
	"github.com/sells-group/lifeline/internal/resilience"
	"github.com/sells-group/lifeline/internal/upstream"
)

const (
	// DefaultMaxRetries is the number of extra attempts per candidate.
	DefaultMaxRetries = 1
	// DefaultRetryDelay separates attempts on the same candidate.
	DefaultRetryDelay = 2 * time.Second

	tracerName = "github.com/sells-group/lifeline/internal/fallback"
)

// Progress stages reported by the scheduler.
const (
	StageAttempt       = "attempt"
	StageAttemptFailed = "attempt_failed"
)

// Reporter receives progress messages.
type Reporter interface {
	Progress(stage, message string)
}

// Config controls retry behavior.
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns one retry per candidate with a two second delay.
func DefaultConfig() Config {
	return Config{MaxRetries: DefaultMaxRetries, RetryDelay: DefaultRetryDelay}
}

// Result is the terminal state of a scheduled run.
type Result struct {
	State     State
	Candidate upstream.Candidate
	Outcome   upstream.Outcome
	Tried     []string
	Attempts  int
}

// Scheduler drives the attempt state machine. It keeps no state between runs.
type Scheduler struct {
	attempter upstream.Attempter
	cfg       Config
	sleep     func(context.Context, time.Duration) error
	tracer    trace.Tracer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSleep replaces the delay function, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = fn }
}

// WithTracer sets the tracer used for run and attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}

// NewScheduler creates a Scheduler. Negative retry settings fall back to zero.
func NewScheduler(a upstream.Attempter, cfg Config, opts ...Option) *Scheduler {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	s := &Scheduler{
		attempter: a,
		cfg:       cfg,
		sleep:     resilience.Sleep,
		tracer:    otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run attempts candidates in order until one succeeds, credentials are
// rejected, or every candidate has used its retry budget. A progress event
// is reported before each attempt and after each failed attempt. Run
// returns ctx.Err() if the context ends before a terminal state.
func (s *Scheduler) Run(ctx context.Context, candidates []upstream.Candidate, inst prompt.Instruction, rep Reporter) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "fallback.run",
		trace.WithAttributes(attribute.Int("fallback.candidates", len(candidates))))
	defer span.End()

	res := &Result{}
	state := Start(len(candidates))

	for !state.Terminal() {
		cand := candidates[state.Candidate]
		if state.Retry == 0 {
			res.Tried = append(res.Tried, cand.Model)
		}
		res.Attempts++

		rep.Progress(StageAttempt, attemptMessage(cand.Model, state.Retry, s.cfg.MaxRetries))
		out := s.attempt(ctx, cand, inst, state)

		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return nil, err
		}

		next, wait := state.Next(out.Kind, len(candidates), s.cfg.MaxRetries)
		if out.Kind != upstream.Success {
			rep.Progress(StageAttemptFailed, fmt.Sprintf("model %s attempt %d failed: %s", cand.Model, state.Retry+1, out.Reason))
			zap.L().Warn("fallback: attempt failed",
				zap.String("model", cand.Model),
				zap.Int("attempt", state.Retry+1),
				zap.String("outcome", out.Kind.String()),
				zap.String("reason", out.Reason),
			)
		}

		res.Candidate = cand
		res.Outcome = out
		state = next

		if wait {
			if err := s.sleep(ctx, s.cfg.RetryDelay); err != nil {
				span.SetStatus(codes.Error, "canceled")
				return nil, err
			}
		}
	}

	res.State = state
	span.SetAttributes(
		attribute.String("fallback.phase", state.Phase.String()),
		attribute.Int("fallback.attempts", res.Attempts),
	)
	if state.Phase != Succeeded {
		span.SetStatus(codes.Error, state.Phase.String())
	}
	return res, nil
}

func (s *Scheduler) attempt(ctx context.Context, cand upstream.Candidate, inst prompt.Instruction, st State) upstream.Outcome {
	ctx, span := s.tracer.Start(ctx, "fallback.attempt", trace.WithAttributes(
		attribute.String("llm.model", cand.Model),
		attribute.Int("fallback.candidate", st.Candidate),
		attribute.Int("fallback.retry", st.Retry),
	))
	defer span.End()

	start := time.Now()
	out := s.attempter.Attempt(ctx, cand, inst)

	span.SetAttributes(
		attribute.String("fallback.outcome", out.Kind.String()),
		attribute.Int("http.status_code", out.StatusCode),
	)
	if out.Kind != upstream.Success {
		span.SetStatus(codes.Error, out.Reason)
	}
	zap.L().Debug("fallback: attempt finished",
		zap.String("model", cand.Model),
		zap.String("outcome", out.Kind.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out
}

func attemptMessage(model string, retry, maxRetries int) string {
	if retry == 0 {
		return fmt.Sprintf("using model %s (attempt 1/%d)", model, maxRetries+1)
	}
	return fmt.Sprintf("retrying model %s (attempt %d/%d)", model, retry+1, maxRetries+1)
}
