package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lifeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Debits read then write inside one transaction; a single connection
	// serializes them.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	points     INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
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
	use_custom_api INTEGER NOT NULL DEFAULT 0,
	ip_address     TEXT NOT NULL DEFAULT '',
	user_agent     TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analyses (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT REFERENCES users(id),
	input_id           TEXT NOT NULL REFERENCES user_inputs(id),
	cost               INTEGER NOT NULL DEFAULT 0,
	model_used         TEXT NOT NULL DEFAULT '',
	is_guest           INTEGER NOT NULL DEFAULT 0,
	chart_data         TEXT NOT NULL,
	analysis_data      TEXT NOT NULL,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'completed',
	error_message      TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS system_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    TEXT,
	user_id    TEXT,
	ip_address TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_user_inputs_user_id ON user_inputs(user_id);
CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_system_logs_created_at ON system_logs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, email string, points int) (*model.Account, error) {
	now := time.Now().UTC()
	a := &model.Account{
		ID:        uuid.New().String(),
		Email:     email,
		Points:    points,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, points, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.Points, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert account %s", email)
	}
	return a, nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, email, points, created_at, updated_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, email, points, created_at, updated_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !eris.Is(rbErr, sql.ErrTxDone) {
			return eris.Wrapf(err, "sqlite: rollback failed: %v", rbErr)
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) LogEvent(ctx context.Context, ev model.LogEvent) error {
	return insertLogSQLite(ctx, s.db, ev)
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter HistoryFilter) ([]model.AnalysisSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.input_id, i.name, i.gender, i.birth_year, a.cost, a.model_used,
		        COALESCE(json_extract(a.analysis_data, '$.summary'), ''), a.created_at
		 FROM analyses a JOIN user_inputs i ON i.id = a.input_id
		 WHERE a.user_id = ?
		 ORDER BY a.created_at DESC LIMIT ? OFFSET ?`,
		filter.AccountID, historyLimit(filter), filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.AnalysisSummary{}
	for rows.Next() {
		var a model.AnalysisSummary
		var gender string
		if err := rows.Scan(&a.ID, &a.InputID, &a.Name, &gender, &a.BirthYear, &a.Cost, &a.ModelUsed, &a.Summary, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis summary")
		}
		a.Gender = model.Gender(gender)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate analyses")
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, accountID, id string) (*model.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, input_id, cost, model_used, is_guest, chart_data, analysis_data,
		        processing_time_ms, status, error_message, created_at
		 FROM analyses WHERE id = ? AND user_id = ?`,
		id, accountID,
	)

	var rec model.AnalysisRecord
	var userID sql.NullString
	var chartJSON, analysisJSON, status string
	err := row.Scan(&rec.ID, &userID, &rec.InputID, &rec.Cost, &rec.ModelUsed, &rec.Guest,
		&chartJSON, &analysisJSON, &rec.ProcessingTimeMs, &status, &rec.ErrorMessage, &rec.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", id)
	}
	if userID.Valid {
		rec.AccountID = &userID.String
	}
	rec.Status = model.AnalysisStatus(status)
	if err := decodeResult([]byte(chartJSON), []byte(analysisJSON), &rec.Result); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode analysis %s", id)
	}
	return &rec, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (*model.Stats, error) {
	st := &model.Stats{Since: since, CollectedAt: time.Now().UTC()}
	since = since.UTC()
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM analyses WHERE created_at >= ?),
			(SELECT count(*) FROM analyses WHERE is_guest = 1 AND created_at >= ?),
			(SELECT count(*) FROM user_inputs WHERE use_custom_api = 1 AND created_at >= ?),
			(SELECT COALESCE(sum(cost), 0) FROM analyses WHERE created_at >= ?),
			(SELECT COALESCE(sum(points), 0) FROM users)`,
		since, since, since, since,
	).Scan(&st.Accounts, &st.Analyses, &st.GuestAnalyses, &st.CustomInputs, &st.PointsCharged, &st.PointsBalance)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return st, nil
}

// sqliteTx implements Tx on a database/sql transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) SaveInput(ctx context.Context, rec model.InputRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO user_inputs (id, user_id, name, gender, birth_year, year_pillar, month_pillar, day_pillar,
			hour_pillar, start_age, first_da_yun, model_name, api_base_url, use_custom_api, ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AccountID, rec.Name, string(rec.Gender), rec.BirthYear, rec.YearPillar, rec.MonthPillar, rec.DayPillar,
		rec.HourPillar, rec.StartAge, rec.FirstDaYun, rec.ModelName, rec.APIBaseURL, rec.UseCustomAPI, rec.IPAddress, rec.UserAgent, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert input %s", rec.ID)
}

func (t *sqliteTx) SaveAnalysis(ctx context.Context, rec model.AnalysisRecord) error {
	chartJSON, analysisJSON, err := encodeResult(rec.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO analyses (id, user_id, input_id, cost, model_used, is_guest, chart_data, analysis_data,
			processing_time_ms, status, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AccountID, rec.InputID, rec.Cost, rec.ModelUsed, rec.Guest, string(chartJSON), string(analysisJSON),
		rec.ProcessingTimeMs, string(rec.Status), rec.ErrorMessage, rec.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert analysis %s", rec.ID)
}

func (t *sqliteTx) DebitBalance(ctx context.Context, accountID string, cost int) (int, int, error) {
	var before int
	err := t.tx.QueryRowContext(ctx, `SELECT points FROM users WHERE id = ?`, accountID).Scan(&before)
	if isNoRows(err) {
		return 0, 0, eris.Wrapf(ErrAccountNotFound, "sqlite: debit %s", accountID)
	}
	if err != nil {
		return 0, 0, eris.Wrapf(err, "sqlite: read balance %s", accountID)
	}

	var after int
	err = t.tx.QueryRowContext(ctx,
		`UPDATE users SET points = MAX(points - ?, 0), updated_at = ? WHERE id = ? RETURNING points`,
		cost, time.Now().UTC(), accountID,
	).Scan(&after)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "sqlite: debit %s", accountID)
	}
	return before, after, nil
}

func (t *sqliteTx) LogEvent(ctx context.Context, ev model.LogEvent) error {
	return insertLogSQLite(ctx, t.tx, ev)
}

// sqlExecer is satisfied by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLogSQLite(ctx context.Context, ex sqlExecer, ev model.LogEvent) error {
	var details any
	if len(ev.Details) > 0 {
		details = string(ev.Details)
	}
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO system_logs (level, message, details, user_id, ip_address, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Level), ev.Message, details, ev.AccountID, ev.IPAddress, created,
	)
	return eris.Wrap(err, "sqlite: insert log")
}

// RecentLogs returns the newest audit events, newest first.
func (s *SQLiteStore) RecentLogs(ctx context.Context, limit int) ([]model.LogEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT level, message, details, user_id, ip_address, created_at
		 FROM system_logs ORDER BY id DESC LIMIT ?`, logLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list logs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LogEvent
	for rows.Next() {
		var ev model.LogEvent
		var level string
		var details, userID sql.NullString
		if err := rows.Scan(&level, &ev.Message, &details, &userID, &ev.IPAddress, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log")
		}
		ev.Level = model.LogLevel(level)
		if details.Valid {
			ev.Details = []byte(details.String)
		}
		if userID.Valid {
			ev.AccountID = &userID.String
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate logs")
}
