package main

import (
	"context"
	"time"

	"github.com/sells-group/lifeline/internal/auth"
	"github.com/sells-group/lifeline/internal/cost"
	"github.com/sells-group/lifeline/internal/engine"
	"github.com/sells-group/lifeline/internal/fallback"
	"github.com/sells-group/lifeline/internal/resilience"
	"github.com/sells-group/lifeline/internal/server"
	"github.com/sells-group/lifeline/internal/settle"
	"github.com/sells-group/lifeline/internal/store"
	"github.com/sells-group/lifeline/internal/upstream"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	pool := cfg.Store.Pool
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &pool)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func newCalculator() *cost.Calculator {
	return cost.NewCalculator(cfg.Billing)
}

func newSettler(st store.Store) *settle.Settler {
	retry := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	return settle.New(st, newCalculator(), settle.WithRetry(retry))
}

// newEngine builds an engine whose upstream attempts time out after timeout.
func newEngine(st store.Store, timeout time.Duration) *engine.Engine {
	client := upstream.NewClient(
		upstream.WithTimeout(timeout),
		upstream.WithTemperature(cfg.Upstream.Temperature),
	)
	anthropic := upstream.NewAnthropicClient(
		upstream.WithAnthropicTimeout(timeout),
		upstream.WithAnthropicTemperature(cfg.Upstream.Temperature),
		upstream.WithMaxTokens(cfg.Upstream.MaxTokens),
	)
	router := upstream.NewRouter(client).Handle(upstream.ProtocolAnthropic, anthropic)
	sched := fallback.NewScheduler(router, cfg.Upstream.Scheduler())
	return engine.New(cfg.Upstream.Defaults(), sched, newSettler(st))
}

func newResolver(st store.Store) *auth.Resolver {
	return auth.NewResolver(cfg.Auth.JWTSecret, st,
		auth.WithCookieName(cfg.Auth.CookieName),
		auth.WithTTL(cfg.Auth.TokenTTL()),
	)
}

func newServer(st store.Store) *server.Server {
	return server.New(server.Config{
		CORSOrigins:  cfg.Server.CORSOrigins,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		KeepAlive:    cfg.Stream.KeepAlive(),
	}, server.Deps{
		Stream:   newEngine(st, cfg.Upstream.StreamTimeout()),
		Sync:     newEngine(st, cfg.Upstream.SyncTimeout()),
		Resolver: newResolver(st),
		Store:    st,
		Calc:     newCalculator(),
	})
}
