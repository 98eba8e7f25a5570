package settle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lifeline/internal/cost"
	"github.com/sells-group/lifeline/internal/model"
	"github.com/sells-group/lifeline/internal/resilience"
	"github.com/sells-group/lifeline/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	st, _ := newTestStoreAt(t)
	return st
}

// newTestStoreAt also returns the database path so tests can inspect rows
// the Store interface does not expose.
func newTestStoreAt(t *testing.T) (*store.SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settle.db")
	st, err := store.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st, path
}

func inputOwners(t *testing.T, path string) []sql.NullString {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	rows, err := db.Query(`SELECT user_id FROM user_inputs`)
	require.NoError(t, err)
	defer rows.Close() //nolint:errcheck

	var out []sql.NullString
	for rows.Next() {
		var owner sql.NullString
		require.NoError(t, rows.Scan(&owner))
		out = append(out, owner)
	}
	require.NoError(t, rows.Err())
	return out
}

func sampleInput(caller *model.Caller) Input {
	return Input{
		Request: model.AnalysisRequest{
			Name: "张三", Gender: model.GenderMale, BirthYear: 1990,
			YearPillar: "庚午", MonthPillar: "戊寅", DayPillar: "甲子", HourPillar: "丙寅",
			StartAge: 3, FirstDaYun: "己卯",
		},
		Caller:  caller,
		Origin:  model.Origin{IP: "10.0.0.9", UserAgent: "test"},
		Model:   "gemini-3-pro-preview",
		BaseURL: "https://api.example.com/v1",
		Result: model.NormalizedResult{
			ChartData: []model.ChartPoint{{Age: 1, Year: 1990, DaYun: "童限", GanZhi: "庚午"}},
			Analysis:  model.Analysis{Summary: "总评", SummaryScore: 8},
		},
		ProcessingTime: 1500 * time.Millisecond,
	}
}

func noWait() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestDispositionFor(t *testing.T) {
	caller := &model.Caller{AccountID: "a"}
	assert.Equal(t, Charged, DispositionFor(model.AnalysisRequest{}, caller))
	assert.Equal(t, Guest, DispositionFor(model.AnalysisRequest{}, nil))
	assert.Equal(t, Custom, DispositionFor(model.AnalysisRequest{UseCustomAPI: true}, caller))
	assert.Equal(t, Custom, DispositionFor(model.AnalysisRequest{UseCustomAPI: true}, nil))
	assert.Equal(t, "charged", Charged.String())
}

func TestSettle_Charged(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct, err := st.CreateAccount(ctx, "u@example.com", 100)
	require.NoError(t, err)

	s := New(st, cost.NewCalculator(cost.DefaultRates()))
	out, err := s.Settle(ctx, sampleInput(&model.Caller{AccountID: acct.ID, Email: acct.Email, Balance: 100}))
	require.NoError(t, err)

	assert.Equal(t, Charged, out.Disposition)
	assert.Equal(t, 50, out.Effect.CostCharged)
	assert.Equal(t, -50, out.Effect.PointsDelta)
	assert.Equal(t, 50, out.Effect.Balance)
	require.NotNil(t, out.Account)
	assert.Equal(t, 50, out.Account.Points)

	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Points)

	history, err := st.ListAnalyses(ctx, store.HistoryFilter{AccountID: acct.ID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, out.AnalysisID, history[0].ID)
	assert.Equal(t, 50, history[0].Cost)

	rec, err := st.GetAnalysis(ctx, acct.ID, out.AnalysisID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1500), rec.ProcessingTimeMs)
	assert.False(t, rec.Guest)

	logs, err := st.RecentLogs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, AuditCharged, logs[0].Message)
	assert.Equal(t, "10.0.0.9", logs[0].IPAddress)
	var details map[string]any
	require.NoError(t, json.Unmarshal(logs[0].Details, &details))
	assert.Equal(t, out.AnalysisID, details["analysisId"])
	assert.EqualValues(t, 50, details["cost"])
	assert.Equal(t, "gemini-3-pro-preview", details["model"])
}

func TestSettle_ChargedFloorsAtZero(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct, err := st.CreateAccount(ctx, "low@example.com", 20)
	require.NoError(t, err)

	s := New(st, cost.NewCalculator(cost.DefaultRates()))
	out, err := s.Settle(ctx, sampleInput(&model.Caller{AccountID: acct.ID, Email: acct.Email, Balance: 20}))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Effect.Balance)
	assert.Equal(t, -20, out.Effect.PointsDelta)
	assert.Equal(t, 50, out.Effect.CostCharged)
}

func TestSettle_Guest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	s := New(st, cost.NewCalculator(cost.DefaultRates()))
	out, err := s.Settle(ctx, sampleInput(nil))
	require.NoError(t, err)

	assert.Equal(t, Guest, out.Disposition)
	assert.Nil(t, out.Account)
	assert.Nil(t, out.Effect.AccountID)
	assert.Zero(t, out.Effect.CostCharged)
	assert.NotEmpty(t, out.AnalysisID)

	stats, err := st.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Analyses)
	assert.Equal(t, 1, stats.GuestAnalyses)
	assert.Equal(t, 0, stats.PointsCharged)

	logs, err := st.RecentLogs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, AuditGuest, logs[0].Message)
	assert.Nil(t, logs[0].AccountID)
}

func TestSettle_CustomSavesInputOnly(t *testing.T) {
	st, path := newTestStoreAt(t)
	ctx := context.Background()
	acct, err := st.CreateAccount(ctx, "c@example.com", 100)
	require.NoError(t, err)

	in := sampleInput(&model.Caller{AccountID: acct.ID, Email: acct.Email, Balance: 100})
	in.Request.UseCustomAPI = true

	s := New(st, cost.NewCalculator(cost.DefaultRates()))
	out, err := s.Settle(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, Custom, out.Disposition)
	assert.Empty(t, out.AnalysisID)
	assert.Zero(t, out.Effect.CostCharged)
	require.NotNil(t, out.Account)
	assert.Equal(t, 100, out.Account.Points)

	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Points)

	stats, err := st.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Analyses)
	assert.Equal(t, 1, stats.CustomInputs)

	logs, err := st.RecentLogs(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, logs)

	owners := inputOwners(t, path)
	require.Len(t, owners, 1)
	assert.False(t, owners[0].Valid, "custom input must not belong to an account")
	assert.Nil(t, out.Effect.AccountID)
}

func TestSettle_ConcurrentChargesOnOneAccount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct, err := st.CreateAccount(ctx, "many@example.com", 200)
	require.NoError(t, err)

	s := New(st, cost.NewCalculator(cost.DefaultRates()))
	caller := &model.Caller{AccountID: acct.ID, Email: acct.Email, Balance: 200}

	const runs = 3
	g, gctx := errgroup.WithContext(ctx)
	for range runs {
		g.Go(func() error {
			_, err := s.Settle(gctx, sampleInput(caller))
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Points)

	items, err := st.ListAnalyses(ctx, store.HistoryFilter{AccountID: acct.ID})
	require.NoError(t, err)
	assert.Len(t, items, runs)
	for _, it := range items {
		assert.Equal(t, 50, it.Cost)
	}
}

func TestSettle_UnknownAccountRollsBack(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	s := New(st, cost.NewCalculator(cost.DefaultRates()), WithRetry(noWait()))
	_, err := s.Settle(ctx, sampleInput(&model.Caller{AccountID: "ghost", Balance: 100}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrAccountNotFound))

	stats, err := st.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Analyses)
	assert.Equal(t, 0, stats.CustomInputs)
}

// flakyStore fails the first n transactions with a transient error.
type flakyStore struct {
	store.Store
	failures int
	calls    int
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("database is locked")
	}
	return f.Store.WithTx(ctx, fn)
}

func TestSettle_RetriesTransientErrors(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct, err := st.CreateAccount(ctx, "r@example.com", 100)
	require.NoError(t, err)

	flaky := &flakyStore{Store: st, failures: 2}
	s := New(flaky, cost.NewCalculator(cost.DefaultRates()), WithRetry(noWait()))
	out, err := s.Settle(ctx, sampleInput(&model.Caller{AccountID: acct.ID, Balance: 100}))
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, 50, out.Effect.Balance)

	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Points)
}

func TestSettle_GivesUpAfterRetries(t *testing.T) {
	st := newTestStore(t)
	flaky := &flakyStore{Store: st, failures: 10}

	s := New(flaky, cost.NewCalculator(cost.DefaultRates()), WithRetry(noWait()))
	_, err := s.Settle(context.Background(), sampleInput(nil))
	require.Error(t, err)
	assert.Equal(t, 3, flaky.calls)
	assert.Contains(t, err.Error(), "settle: guest run")
}

// skewedTx reports a post-debit balance that disagrees with the calculator.
type skewedTx struct {
	store.Tx
}

func (s skewedTx) DebitBalance(ctx context.Context, id string, amount int) (int, int, error) {
	before, after, err := s.Tx.DebitBalance(ctx, id, amount)
	return before, after + 1, err
}

type skewedStore struct {
	store.Store
}

func (s skewedStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error { return fn(skewedTx{tx}) })
}

func TestSettle_LedgerMismatchRollsBack(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	acct, err := st.CreateAccount(ctx, "m@example.com", 100)
	require.NoError(t, err)

	s := New(skewedStore{st}, cost.NewCalculator(cost.DefaultRates()), WithRetry(noWait()))
	_, err = s.Settle(ctx, sampleInput(&model.Caller{AccountID: acct.ID, Balance: 100}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger mismatch")

	got, err := st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Points)
}
