// Package settle persists a finished reading and applies its ledger effect.
package settle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/cost"
	"github.com/sells-group/lifeline/internal/model"
	"github.com/sells-group/lifeline/internal/resilience"
	"github.com/sells-group/lifeline/internal/store"
)

// Audit messages written to the system log.
const (
	AuditCharged = "生成分析"
	AuditGuest   = "游客体验"
)

// Disposition selects how a successful run is persisted and billed.
type Disposition int

const (
	// Charged runs belong to an authenticated caller on default credentials.
	Charged Disposition = iota
	// Guest runs have no caller and use default credentials.
	Guest
	// Custom runs use caller-supplied credentials and are never billed.
	Custom
)

func (d Disposition) String() string {
	switch d {
	case Charged:
		return "charged"
	case Guest:
		return "guest"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// DispositionFor picks the disposition for a request and caller.
func DispositionFor(req model.AnalysisRequest, caller *model.Caller) Disposition {
	switch {
	case req.UseCustomAPI:
		return Custom
	case caller == nil:
		return Guest
	default:
		return Charged
	}
}

// Input is everything settlement needs from a completed run.
type Input struct {
	Request        model.AnalysisRequest
	Caller         *model.Caller
	Origin         model.Origin
	Model          string
	BaseURL        string
	Result         model.NormalizedResult
	ProcessingTime time.Duration
}

// Outcome reports what was written.
type Outcome struct {
	Disposition Disposition
	InputID     string
	AnalysisID  string
	Effect      model.LedgerEffect
	Account     *model.AccountView
}

// Settler writes settled runs through a store.
type Settler struct {
	store store.Store
	calc  *cost.Calculator
	retry resilience.RetryConfig
	newID func() string
}

// Option configures a Settler.
type Option func(*Settler)

// WithRetry overrides the retry policy around the settlement transaction.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Settler) { s.retry = cfg }
}

// WithIDFunc overrides record ID generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Settler) { s.newID = fn }
}

// New creates a Settler.
func New(st store.Store, calc *cost.Calculator, opts ...Option) *Settler {
	s := &Settler{
		store: st,
		calc:  calc,
		retry: resilience.DefaultRetryConfig(),
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(s)
	}
	if s.retry.OnRetry == nil {
		s.retry.OnRetry = resilience.RetryLogger("settle")
	}
	return s
}

// Settle persists the run according to its disposition. All writes of one
// run commit together or not at all. Transient storage errors are retried.
func (s *Settler) Settle(ctx context.Context, in Input) (*Outcome, error) {
	d := DispositionFor(in.Request, in.Caller)
	inputID := s.newID()
	analysisID := ""
	if d != Custom {
		analysisID = s.newID()
	}

	out, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*Outcome, error) {
		o := &Outcome{Disposition: d, InputID: inputID, AnalysisID: analysisID}
		err := s.store.WithTx(ctx, func(tx store.Tx) error {
			switch d {
			case Charged:
				return s.charged(ctx, tx, in, o)
			case Guest:
				return s.guest(ctx, tx, in, o)
			default:
				return s.custom(ctx, tx, in, o)
			}
		})
		if err != nil {
			return nil, err
		}
		return o, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "settle: %s run", d)
	}

	zap.L().Info("settle: run persisted",
		zap.String("disposition", d.String()),
		zap.String("input_id", out.InputID),
		zap.String("analysis_id", out.AnalysisID),
		zap.Int("cost", out.Effect.CostCharged),
	)
	return out, nil
}

func (s *Settler) charged(ctx context.Context, tx store.Tx, in Input, o *Outcome) error {
	accountID := in.Caller.AccountID
	if err := tx.SaveInput(ctx, s.inputRecord(o.InputID, &accountID, in)); err != nil {
		return err
	}

	before, after, err := tx.DebitBalance(ctx, accountID, s.calc.PerAnalysis())
	if err != nil {
		return err
	}
	effect := s.calc.Charge(accountID, before)
	if effect.Balance != after {
		return eris.Errorf("settle: ledger mismatch for %s: expected balance %d, store reported %d", accountID, effect.Balance, after)
	}
	o.Effect = effect

	if err := tx.SaveAnalysis(ctx, s.analysisRecord(o.AnalysisID, &accountID, o.InputID, effect.CostCharged, false, in)); err != nil {
		return err
	}

	o.Account = &model.AccountView{ID: accountID, Email: in.Caller.Email, Points: after}
	return tx.LogEvent(ctx, auditEvent(AuditCharged, &accountID, in.Origin, map[string]any{
		"analysisId": o.AnalysisID,
		"cost":       effect.CostCharged,
		"model":      in.Model,
	}))
}

func (s *Settler) guest(ctx context.Context, tx store.Tx, in Input, o *Outcome) error {
	if err := tx.SaveInput(ctx, s.inputRecord(o.InputID, nil, in)); err != nil {
		return err
	}
	if err := tx.SaveAnalysis(ctx, s.analysisRecord(o.AnalysisID, nil, o.InputID, 0, true, in)); err != nil {
		return err
	}
	o.Effect = cost.Free()
	return tx.LogEvent(ctx, auditEvent(AuditGuest, nil, in.Origin, map[string]any{
		"analysisId": o.AnalysisID,
		"model":      in.Model,
	}))
}

// custom records the input without an owner. The caller's balance is
// reported back unchanged.
func (s *Settler) custom(ctx context.Context, tx store.Tx, in Input, o *Outcome) error {
	if in.Caller != nil {
		o.Account = &model.AccountView{ID: in.Caller.AccountID, Email: in.Caller.Email, Points: in.Caller.Balance}
	}
	o.Effect = cost.Free()
	return tx.SaveInput(ctx, s.inputRecord(o.InputID, nil, in))
}

func (s *Settler) inputRecord(id string, accountID *string, in Input) model.InputRecord {
	return model.NewInputRecord(id, accountID, in.Request, in.Model, in.BaseURL, in.Origin)
}

func (s *Settler) analysisRecord(id string, accountID *string, inputID string, charged int, guest bool, in Input) model.AnalysisRecord {
	return model.AnalysisRecord{
		ID:               id,
		AccountID:        accountID,
		InputID:          inputID,
		Cost:             charged,
		ModelUsed:        in.Model,
		Guest:            guest,
		Result:           in.Result,
		ProcessingTimeMs: in.ProcessingTime.Milliseconds(),
		Status:           model.AnalysisStatusCompleted,
		CreatedAt:        time.Now().UTC(),
	}
}

func auditEvent(msg string, accountID *string, origin model.Origin, details map[string]any) model.LogEvent {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = nil
	}
	return model.LogEvent{
		Level:     model.LogLevelInfo,
		Message:   msg,
		Details:   raw,
		AccountID: accountID,
		IPAddress: origin.IP,
		CreatedAt: time.Now().UTC(),
	}
}
