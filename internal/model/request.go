package model

import "strings"

// Gender is the chart subject's gender as submitted by the caller.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Valid reports whether g is one of the recognized genders.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// AnalysisRequest holds the caller-supplied chart facts for one analysis.
type AnalysisRequest struct {
	Name        string `json:"name"`
	Gender      Gender `json:"gender"`
	BirthYear   int    `json:"birthYear"`
	YearPillar  string `json:"yearPillar"`
	MonthPillar string `json:"monthPillar"`
	DayPillar   string `json:"dayPillar"`
	HourPillar  string `json:"hourPillar"`
	StartAge    int    `json:"startAge"`
	FirstDaYun  string `json:"firstDaYun"`

	// UseCustomAPI selects caller-supplied upstream credentials instead of
	// the server defaults. When set, APIBaseURL, APIKey and ModelName are required.
	UseCustomAPI bool   `json:"useCustomApi"`
	APIBaseURL   string `json:"apiBaseUrl,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	ModelName    string `json:"modelName,omitempty"`

	// UserPrompt replaces the generated user instruction when non-empty.
	UserPrompt string `json:"userPrompt,omitempty"`
}

// Pillars returns the four pillars in year, month, day, hour order.
func (r AnalysisRequest) Pillars() [4]string {
	return [4]string{r.YearPillar, r.MonthPillar, r.DayPillar, r.HourPillar}
}

// Sanitized returns a copy with whitespace trimmed from every string field
// and trailing slashes removed from the custom base URL.
func (r AnalysisRequest) Sanitized() AnalysisRequest {
	out := r
	out.Name = strings.TrimSpace(r.Name)
	out.Gender = Gender(strings.TrimSpace(string(r.Gender)))
	out.YearPillar = strings.TrimSpace(r.YearPillar)
	out.MonthPillar = strings.TrimSpace(r.MonthPillar)
	out.DayPillar = strings.TrimSpace(r.DayPillar)
	out.HourPillar = strings.TrimSpace(r.HourPillar)
	out.FirstDaYun = strings.TrimSpace(r.FirstDaYun)
	out.APIBaseURL = strings.TrimRight(strings.TrimSpace(r.APIBaseURL), "/")
	out.APIKey = strings.TrimSpace(r.APIKey)
	out.ModelName = strings.TrimSpace(r.ModelName)
	out.UserPrompt = strings.TrimSpace(r.UserPrompt)
	return out
}

// HasCustomCredentials reports whether all three custom upstream fields are set.
func (r AnalysisRequest) HasCustomCredentials() bool {
	return r.APIBaseURL != "" && r.APIKey != "" && r.ModelName != ""
}

// Caller is the resolved identity of an authenticated requester.
type Caller struct {
	AccountID string `json:"id"`
	Email     string `json:"email"`
	Balance   int    `json:"points"`
}

// Origin describes where a request came from, for audit records.
type Origin struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}
