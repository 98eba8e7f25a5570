package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lifeline/internal/model"
)

// ErrAccountNotFound is returned when a debit targets an unknown account.
var ErrAccountNotFound = eris.New("store: account not found")

// HistoryFilter specifies criteria for listing analyses.
type HistoryFilter struct {
	AccountID string `json:"account_id"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for accounts, inputs, analyses
// and audit events.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, email string, points int) (*model.Account, error)
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)

	// Settlement runs fn in a single transaction. Nothing fn wrote is
	// visible unless fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// History
	ListAnalyses(ctx context.Context, filter HistoryFilter) ([]model.AnalysisSummary, error)
	GetAnalysis(ctx context.Context, accountID, id string) (*model.AnalysisRecord, error)

	// Audit
	LogEvent(ctx context.Context, ev model.LogEvent) error
	// RecentLogs returns the newest audit events, newest first.
	RecentLogs(ctx context.Context, limit int) ([]model.LogEvent, error)

	// Stats
	Stats(ctx context.Context, since time.Time) (*model.Stats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Tx is the write surface available inside WithTx.
type Tx interface {
	SaveInput(ctx context.Context, rec model.InputRecord) error
	SaveAnalysis(ctx context.Context, rec model.AnalysisRecord) error
	// DebitBalance subtracts cost from the account balance, flooring at
	// zero, as one atomic statement. It returns the balance before and
	// after the debit.
	DebitBalance(ctx context.Context, accountID string, cost int) (before, after int, err error)
	LogEvent(ctx context.Context, ev model.LogEvent) error
}

const defaultHistoryLimit = 50

func historyLimit(f HistoryFilter) int {
	if f.Limit <= 0 || f.Limit > 500 {
		return defaultHistoryLimit
	}
	return f.Limit
}

const defaultLogLimit = 20

func logLimit(n int) int {
	if n <= 0 || n > 500 {
		return defaultLogLimit
	}
	return n
}

// rowScanner is implemented by pgx.Row and *sql.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Email, &a.Points, &a.CreatedAt, &a.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan account")
	}
	return &a, nil
}

func encodeResult(r model.NormalizedResult) ([]byte, []byte, error) {
	chartJSON, err := json.Marshal(r.ChartData)
	if err != nil {
		return nil, nil, err
	}
	analysisJSON, err := json.Marshal(r.Analysis)
	if err != nil {
		return nil, nil, err
	}
	return chartJSON, analysisJSON, nil
}

func decodeResult(chartJSON, analysisJSON []byte, out *model.NormalizedResult) error {
	if err := json.Unmarshal(chartJSON, &out.ChartData); err != nil {
		return err
	}
	return json.Unmarshal(analysisJSON, &out.Analysis)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// Open constructs the store for the configured driver.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "", "sqlite":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, dsn, poolCfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
