package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lifeline/internal/db"
	"github.com/sells-group/lifeline/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_account":          `SELECT id, email, points, created_at, updated_at FROM users WHERE id = $1`,
	"get_account_by_email": `SELECT id, email, points, created_at, updated_at FROM users WHERE email = $1`,
	"insert_log":           `INSERT INTO system_logs (level, message, details, user_id, ip_address, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	email      TEXT NOT NULL UNIQUE,
	points     INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_inputs (
	id             TEXT PRIMARY KEY,
	user_id        TEXT REFERENCES users(id),
	name           TEXT NOT NULL DEFAULT '',
	gender         TEXT NOT NULL,
	birth_year     INTEGER NOT NULL,
	year_pillar    TEXT NOT NULL,
	month_pillar   TEXT NOT NULL,
	day_pillar     TEXT NOT NULL,
	hour_pillar    TEXT NOT NULL,
	start_age      INTEGER NOT NULL,
	first_da_yun   TEXT NOT NULL,
	model_name     TEXT NOT NULL DEFAULT '',
	api_base_url   TEXT NOT NULL DEFAULT '',
	use_custom_api BOOLEAN NOT NULL DEFAULT false,
	ip_address     TEXT NOT NULL DEFAULT '',
	user_agent     TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analyses (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT REFERENCES users(id),
	input_id           TEXT NOT NULL REFERENCES user_inputs(id),
	cost               INTEGER NOT NULL DEFAULT 0,
	model_used         TEXT NOT NULL DEFAULT '',
	is_guest           BOOLEAN NOT NULL DEFAULT false,
	chart_data         JSONB NOT NULL,
	analysis_data      JSONB NOT NULL,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'completed',
	error_message      TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS system_logs (
	id         BIGSERIAL PRIMARY KEY,
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    JSONB,
	user_id    TEXT,
	ip_address TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_user_inputs_user_id ON user_inputs(user_id);
CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_system_logs_created_at ON system_logs(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, email string, points int) (*model.Account, error) {
	now := time.Now().UTC()
	a := &model.Account{
		ID:        uuid.New().String(),
		Email:     email,
		Points:    points,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, points, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Email, a.Points, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert account %s", email)
	}
	return a, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT id, email, points, created_at, updated_at FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT id, email, points, created_at, updated_at FROM users WHERE email = $1`, email))
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&postgresTx{tx: tx})
	})
}

func (s *PostgresStore) LogEvent(ctx context.Context, ev model.LogEvent) error {
	return insertLogPG(ctx, s.pool, ev)
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter HistoryFilter) ([]model.AnalysisSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.input_id, i.name, i.gender, i.birth_year, a.cost, a.model_used,
		        COALESCE(a.analysis_data->>'summary', ''), a.created_at
		 FROM analyses a JOIN user_inputs i ON i.id = a.input_id
		 WHERE a.user_id = $1
		 ORDER BY a.created_at DESC LIMIT $2 OFFSET $3`,
		filter.AccountID, historyLimit(filter), filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	out := []model.AnalysisSummary{}
	for rows.Next() {
		var a model.AnalysisSummary
		var gender string
		if err := rows.Scan(&a.ID, &a.InputID, &a.Name, &gender, &a.BirthYear, &a.Cost, &a.ModelUsed, &a.Summary, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis summary")
		}
		a.Gender = model.Gender(gender)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate analyses")
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, accountID, id string) (*model.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, input_id, cost, model_used, is_guest, chart_data, analysis_data,
		        processing_time_ms, status, error_message, created_at
		 FROM analyses WHERE id = $1 AND user_id = $2`,
		id, accountID,
	)

	var rec model.AnalysisRecord
	var chartJSON, analysisJSON []byte
	var status string
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.InputID, &rec.Cost, &rec.ModelUsed, &rec.Guest,
		&chartJSON, &analysisJSON, &rec.ProcessingTimeMs, &status, &rec.ErrorMessage, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", id)
	}
	rec.Status = model.AnalysisStatus(status)
	if err := decodeResult(chartJSON, analysisJSON, &rec.Result); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode analysis %s", id)
	}
	return &rec, nil
}

func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (*model.Stats, error) {
	st := &model.Stats{Since: since, CollectedAt: time.Now().UTC()}
	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM analyses WHERE created_at >= $1),
			(SELECT count(*) FROM analyses WHERE is_guest AND created_at >= $1),
			(SELECT count(*) FROM user_inputs WHERE use_custom_api AND created_at >= $1),
			(SELECT COALESCE(sum(cost), 0) FROM analyses WHERE created_at >= $1),
			(SELECT COALESCE(sum(points), 0) FROM users)`,
		since,
	).Scan(&st.Accounts, &st.Analyses, &st.GuestAnalyses, &st.CustomInputs, &st.PointsCharged, &st.PointsBalance)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return st, nil
}

// postgresTx implements Tx on a pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) SaveInput(ctx context.Context, rec model.InputRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO user_inputs (id, user_id, name, gender, birth_year, year_pillar, month_pillar, day_pillar,
			hour_pillar, start_age, first_da_yun, model_name, api_base_url, use_custom_api, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID, rec.AccountID, rec.Name, string(rec.Gender), rec.BirthYear, rec.YearPillar, rec.MonthPillar, rec.DayPillar,
		rec.HourPillar, rec.StartAge, rec.FirstDaYun, rec.ModelName, rec.APIBaseURL, rec.UseCustomAPI, rec.IPAddress, rec.UserAgent, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert input %s", rec.ID)
}

func (t *postgresTx) SaveAnalysis(ctx context.Context, rec model.AnalysisRecord) error {
	chartJSON, analysisJSON, err := encodeResult(rec.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO analyses (id, user_id, input_id, cost, model_used, is_guest, chart_data, analysis_data,
			processing_time_ms, status, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.AccountID, rec.InputID, rec.Cost, rec.ModelUsed, rec.Guest, chartJSON, analysisJSON,
		rec.ProcessingTimeMs, string(rec.Status), rec.ErrorMessage, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert analysis %s", rec.ID)
}

func (t *postgresTx) DebitBalance(ctx context.Context, accountID string, cost int) (int, int, error) {
	var before, after int
	err := t.tx.QueryRow(ctx,
		`UPDATE users u SET points = GREATEST(u.points - $2, 0), updated_at = now()
		 FROM (SELECT id, points FROM users WHERE id = $1 FOR UPDATE) old
		 WHERE u.id = old.id
		 RETURNING old.points, u.points`,
		accountID, cost,
	).Scan(&before, &after)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, eris.Wrapf(ErrAccountNotFound, "postgres: debit %s", accountID)
	}
	if err != nil {
		return 0, 0, eris.Wrapf(err, "postgres: debit %s", accountID)
	}
	return before, after, nil
}

func (t *postgresTx) LogEvent(ctx context.Context, ev model.LogEvent) error {
	return insertLogPG(ctx, t.tx, ev)
}

// pgExecer is satisfied by db.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLogPG(ctx context.Context, ex pgExecer, ev model.LogEvent) error {
	var details any
	if len(ev.Details) > 0 {
		details = []byte(ev.Details)
	}
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := ex.Exec(ctx,
		`INSERT INTO system_logs (level, message, details, user_id, ip_address, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(ev.Level), ev.Message, details, ev.AccountID, ev.IPAddress, created,
	)
	return eris.Wrap(err, "postgres: insert log")
}

func (s *PostgresStore) RecentLogs(ctx context.Context, limit int) ([]model.LogEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT level, message, details, user_id, ip_address, created_at
		 FROM system_logs ORDER BY id DESC LIMIT $1`, logLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list logs")
	}
	defer rows.Close()

	var out []model.LogEvent
	for rows.Next() {
		var ev model.LogEvent
		var level string
		var details []byte
		if err := rows.Scan(&level, &ev.Message, &details, &ev.AccountID, &ev.IPAddress, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log")
		}
		ev.Level = model.LogLevel(level)
		if len(details) > 0 {
			ev.Details = details
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate logs")
}
