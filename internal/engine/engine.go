// Package engine runs one analysis from request to settled result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/chart"
	"github.com/sells-group/lifeline/internal/fallback"
	"github.com/sells-group/lifeline/internal/model"
	"github.com/sells-group/lifeline/internal/normalize"
	"github.com/sells-group/lifeline/internal/prompt"
	"github.com/sells-group/lifeline/internal/settle"
	"github.com/sells-group/lifeline/internal/stream"
	"github.com/sells-group/lifeline/internal/upstream"
)

const tracerName = "github.com/sells-group/lifeline/internal/engine"

// Progress stages emitted by the engine itself.
const (
	StageInit    = "init"
	StageParse   = "parse"
	StageChart   = "chart"
	StageSave    = "save"
	StageSuccess = "model_ok"
)

// Run is one analysis invocation.
type Run struct {
	Request model.AnalysisRequest
	Caller  *model.Caller
	Origin  model.Origin
}

// Engine wires the prompt builder, scheduler, normalizer and settler.
// It holds no per-run state and is safe for concurrent use.
type Engine struct {
	defaults  upstream.Defaults
	builder   *prompt.Builder
	scheduler *fallback.Scheduler
	settler   *settle.Settler
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithBuilder replaces the prompt builder.
func WithBuilder(b *prompt.Builder) Option {
	return func(e *Engine) { e.builder = b }
}

// WithTracer sets the tracer used for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock replaces the clock used to measure processing time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(defaults upstream.Defaults, scheduler *fallback.Scheduler, settler *settle.Settler, opts ...Option) *Engine {
	e := &Engine{
		defaults:  defaults,
		builder:   prompt.NewBuilder(),
		scheduler: scheduler,
		settler:   settler,
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes one analysis, reporting through ch. Exactly one of
// ch.Complete or ch.Fail is called unless ctx ends first, in which case
// nothing further is sent and ctx.Err() is returned. ch is always closed
// before Run returns.
func (e *Engine) Run(ctx context.Context, r Run, ch stream.Channel) (*model.CompletePayload, error) {
	defer ch.Close()

	ctx, span := e.tracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.Bool("lifeline.custom_api", r.Request.UseCustomAPI),
		attribute.Bool("lifeline.guest", r.Caller == nil),
	))
	defer span.End()

	start := e.now()
	payload, err := e.run(ctx, r, ch, start)
	if err == nil {
		ch.Complete(payload)
		return payload, nil
	}

	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "canceled")
		zap.L().Info("engine: run canceled by consumer", zap.Duration("elapsed", e.now().Sub(start)))
		return nil, ctx.Err()
	}

	var ee *Error
	if !errors.As(err, &ee) {
		ee = &Error{Kind: KindInternal, Message: "internal error", Err: err}
	}
	span.SetStatus(codes.Error, string(ee.Kind))
	span.RecordError(ee)
	zap.L().Warn("engine: run failed",
		zap.String("kind", string(ee.Kind)),
		zap.Strings("tried_models", ee.TriedModels),
		zap.Error(ee.Err),
	)
	ch.Fail(model.ErrorPayload{Error: string(ee.Kind), Message: ee.Message, TriedModels: ee.TriedModels})
	return nil, ee
}

func (e *Engine) run(ctx context.Context, r Run, ch stream.Channel, start time.Time) (*model.CompletePayload, error) {
	req := r.Request.Sanitized()

	candidates, err := upstream.Candidates(req, e.defaults)
	if err != nil {
		return nil, candidateError(err)
	}
	inst, err := e.builder.Build(req)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: "invalid chart input", Err: err}
	}

	ch.Progress(StageInit, "initializing analysis")

	res, err := e.scheduler.Run(ctx, candidates, inst, ch)
	if err != nil {
		return nil, err
	}
	switch res.State.Phase {
	case fallback.Succeeded:
	case fallback.Aborted:
		return nil, &Error{Kind: KindAPIAuthFailed, Message: "upstream rejected the API key", Err: res.Outcome.Err}
	default:
		return nil, &Error{
			Kind:        KindAllModelsFailed,
			Message:     "no model could produce a reply, please try again later",
			TriedModels: upstream.Models(candidates),
			Err:         res.Outcome.Err,
		}
	}
	used := res.Candidate
	ch.Progress(StageSuccess, fmt.Sprintf("model %s responded", used.Model))

	ch.Progress(StageParse, "parsing model reply")
	content, err := normalize.ExtractContent(res.Outcome.Body)
	if err != nil {
		return nil, normalizeError(err)
	}
	result, err := normalize.Normalize(content)
	if err != nil {
		return nil, normalizeError(err)
	}

	ch.Progress(StageChart, "building life chart")
	if len(result.Analysis.Bazi) == 0 {
		pillars := req.Pillars()
		result.Analysis.Bazi = pillars[:]
	}
	chart.Fill(result.ChartData, chart.NewPlan(req), req.BirthYear)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch.Progress(StageSave, "saving analysis")
	out, err := e.settler.Settle(ctx, settle.Input{
		Request:        req,
		Caller:         r.Caller,
		Origin:         r.Origin,
		Model:          used.Model,
		BaseURL:        used.BaseURL,
		Result:         *result,
		ProcessingTime: e.now().Sub(start),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindSettlementFailed, Message: "could not save the analysis", Err: err}
	}

	zap.L().Info("engine: run complete",
		zap.String("model", used.Model),
		zap.String("disposition", out.Disposition.String()),
		zap.Int("attempts", res.Attempts),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return &model.CompletePayload{
		Result:  *result,
		User:    out.Account,
		Cost:    out.Effect.CostCharged,
		IsGuest: r.Caller == nil,
		Model:   used.Model,
	}, nil
}
