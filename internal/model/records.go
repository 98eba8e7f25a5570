package model

import (
	"encoding/json"
	"time"
)

// AnalysisStatus is the lifecycle state of a persisted analysis.
type AnalysisStatus string

const (
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// LogLevel is the severity of an audit event.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Account is a ledger-bearing user account.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InputRecord is the persisted copy of an analysis request.
type InputRecord struct {
	ID           string    `json:"id"`
	AccountID    *string   `json:"account_id"`
	Name         string    `json:"name"`
	Gender       Gender    `json:"gender"`
	BirthYear    int       `json:"birth_year"`
	YearPillar   string    `json:"year_pillar"`
	MonthPillar  string    `json:"month_pillar"`
	DayPillar    string    `json:"day_pillar"`
	HourPillar   string    `json:"hour_pillar"`
	StartAge     int       `json:"start_age"`
	FirstDaYun   string    `json:"first_da_yun"`
	ModelName    string    `json:"model_name"`
	APIBaseURL   string    `json:"api_base_url"`
	UseCustomAPI bool      `json:"use_custom_api"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewInputRecord builds an InputRecord from a request.
func NewInputRecord(id string, accountID *string, req AnalysisRequest, modelName, baseURL string, origin Origin) InputRecord {
	return InputRecord{
		ID:           id,
		AccountID:    accountID,
		Name:         req.Name,
		Gender:       req.Gender,
		BirthYear:    req.BirthYear,
		YearPillar:   req.YearPillar,
		MonthPillar:  req.MonthPillar,
		DayPillar:    req.DayPillar,
		HourPillar:   req.HourPillar,
		StartAge:     req.StartAge,
		FirstDaYun:   req.FirstDaYun,
		ModelName:    modelName,
		APIBaseURL:   baseURL,
		UseCustomAPI: req.UseCustomAPI,
		IPAddress:    origin.IP,
		UserAgent:    origin.UserAgent,
		CreatedAt:    time.Now().UTC(),
	}
}

// AnalysisRecord is a persisted reading. AccountID is nil for guest runs.
type AnalysisRecord struct {
	ID               string           `json:"id"`
	AccountID        *string          `json:"account_id"`
	InputID          string           `json:"input_id"`
	Cost             int              `json:"cost"`
	ModelUsed        string           `json:"model_used"`
	Guest            bool             `json:"guest"`
	Result           NormalizedResult `json:"result"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	Status           AnalysisStatus   `json:"status"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// AnalysisSummary is a history listing row.
type AnalysisSummary struct {
	ID        string    `json:"id"`
	InputID   string    `json:"input_id"`
	Name      string    `json:"name"`
	Gender    Gender    `json:"gender"`
	BirthYear int       `json:"birth_year"`
	Cost      int       `json:"cost"`
	ModelUsed string    `json:"model_used"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// LogEvent is an audit log entry.
type LogEvent struct {
	Level     LogLevel        `json:"level"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	AccountID *string         `json:"account_id"`
	IPAddress string          `json:"ip_address"`
	CreatedAt time.Time       `json:"created_at"`
}

// Stats is a point-in-time count of accounts and analyses.
type Stats struct {
	Accounts      int       `json:"accounts"`
	Analyses      int       `json:"analyses"`
	GuestAnalyses int       `json:"guest_analyses"`
	CustomInputs  int       `json:"custom_inputs"`
	PointsCharged int       `json:"points_charged"`
	PointsBalance int       `json:"points_balance"`
	Since         time.Time `json:"since"`
	CollectedAt   time.Time `json:"collected_at"`
}
