package model

// ChartPoint is one age on the life timeline chart.
type ChartPoint struct {
	Age    int     `json:"age"`
	Year   int     `json:"year"`
	DaYun  string  `json:"daYun"`
	GanZhi string  `json:"ganZhi"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Analysis holds the narrative dimensions of a reading, each with a 0-10 score.
type Analysis struct {
	Bazi             []string `json:"bazi"`
	Summary          string   `json:"summary"`
	SummaryScore     int      `json:"summaryScore"`
	Personality      string   `json:"personality"`
	PersonalityScore int      `json:"personalityScore"`
	Industry         string   `json:"industry"`
	IndustryScore    int      `json:"industryScore"`
	FengShui         string   `json:"fengShui"`
	FengShuiScore    int      `json:"fengShuiScore"`
	Wealth           string   `json:"wealth"`
	WealthScore      int      `json:"wealthScore"`
	Marriage         string   `json:"marriage"`
	MarriageScore    int      `json:"marriageScore"`
	Health           string   `json:"health"`
	HealthScore      int      `json:"healthScore"`
	Family           string   `json:"family"`
	FamilyScore      int      `json:"familyScore"`
	Crypto           string   `json:"crypto"`
	CryptoScore      int      `json:"cryptoScore"`
	CryptoYear       string   `json:"cryptoYear"`
	CryptoStyle      string   `json:"cryptoStyle"`
}

// NormalizedResult is the typed reading produced from a model reply.
type NormalizedResult struct {
	ChartData []ChartPoint `json:"chartData"`
	Analysis  Analysis     `json:"analysis"`
}

// LedgerEffect describes the balance change applied by one settled run.
// AccountID is nil for guest and custom-credential runs.
type LedgerEffect struct {
	AccountID   *string `json:"accountId"`
	PointsDelta int     `json:"pointsDelta"`
	CostCharged int     `json:"costCharged"`
	Balance     int     `json:"balance"`
}

// AccountView is the account summary returned to the caller after a run.
type AccountView struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Points int    `json:"points"`
}

// CompletePayload is the body of the terminal success event.
type CompletePayload struct {
	Result  NormalizedResult `json:"result"`
	User    *AccountView     `json:"user"`
	Cost    int              `json:"cost"`
	IsGuest bool             `json:"isGuest"`
	Model   string           `json:"model,omitempty"`
}

// ErrorPayload is the body of the terminal error event.
type ErrorPayload struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	TriedModels []string `json:"triedModels,omitempty"`
	// Points is the caller's balance, set only for INSUFFICIENT_POINTS.
	Points *int `json:"points,omitempty"`
}

// ProgressPayload is the body of a progress event.
type ProgressPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}
