package core

import (
	"strings"
	"time"
)

const (
	// ActionAdd accumulates the submitted amount into spent_amount.
	ActionAdd = "add"
	// ActionSet overwrites target_amount.
	ActionSet = "set"
)

type (
	Date struct {
		time.Time
	}

	// Month is a calendar month in YYYY-MM form.
	Month string

	// Transaction is one expense pulled from an external account.
	Transaction struct {
		UserID        string `json:"user_id"`
		AccountID     string `json:"account_id"`
		TransactionID string `json:"transaction_id"`
		Amount        Money  `json:"amount"`
		Description   string `json:"description"`
		Merchant      string `json:"merchant"`
		AccountName   string `json:"account_name"`
		Category      string `json:"category"`
		Date          Date   `json:"date"`
	}

	// BudgetCategory aggregates the spend of one user, category and month.
	BudgetCategory struct {
		UserID       string    `json:"user_id"`
		Name         string    `json:"name"`
		Month        Month     `json:"month"`
		TargetAmount Money     `json:"target_amount"`
		SpentAmount  Money     `json:"spent_amount"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	// BudgetSubmission is the payload accepted by the ingest endpoint.
	BudgetSubmission struct {
		Category string `json:"category"`
		Amount   *Money `json:"amount"`
		Month    string `json:"month"`
		Action   string `json:"action"`
	}

	// HealthMetrics is one day of health data. Nil fields are unknown and
	// never overwrite a stored value.
	HealthMetrics struct {
		UserID     string    `json:"user_id"`
		Date       Date      `json:"date"`
		SleepHours *float64  `json:"sleep_hours"`
		Steps      *int64    `json:"steps"`
		Glucose    *float64  `json:"glucose"`
		Calories   *int64    `json:"calories"`
		Protein    *float64  `json:"protein"`
		UpdatedAt  time.Time `json:"updated_at"`
	}

	// GlucoseReading is a single CGM estimated glucose value.
	GlucoseReading struct {
		UserID     string    `json:"user_id"`
		RecordedAt time.Time `json:"recorded_at"`
		Value      float64   `json:"value"`
		Trend      string    `json:"trend"`
		TrendRate  *float64  `json:"trend_rate"`
	}

	// ProviderToken is the persisted OAuth grant for one user and provider.
	ProviderToken struct {
		UserID       string
		Provider     string
		AccessToken  string
		RefreshToken string
		TokenType    string
		Expiry       time.Time
		RealmID      string
		UpdatedAt    time.Time
	}

	// SyncRun records the outcome of one provider sync.
	SyncRun struct {
		ID         int64     `json:"id"`
		UserID     string    `json:"user_id"`
		Provider   string    `json:"provider"`
		Status     string    `json:"status"`
		Records    int       `json:"records"`
		Error      string    `json:"error,omitempty"`
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at"`
	}
)

const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, NewValidationError("date", "must be YYYY-MM-DD")
	}
	return Date{Time: t}, nil
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), int(u.Month()), u.Day())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// Month returns the calendar month the date belongs to.
func (d Date) Month() Month {
	return Month(d.Format("2006-01"))
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Providers sometimes send full timestamps; only the day matters.
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseMonth validates a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse("2006-01", s); err != nil {
		return "", NewValidationError("month", "must be YYYY-MM")
	}
	return Month(s), nil
}

// CurrentMonth returns the UTC month of t.
func CurrentMonth(t time.Time) Month {
	return DateOf(t).Month()
}

func (m Month) String() string { return string(m) }

// Bounds returns the first day of the month and the first day of the next.
func (m Month) Bounds() (Date, Date) {
	t, err := time.Parse("2006-01", string(m))
	if err != nil {
		return Date{}, Date{}
	}
	return Date{Time: t}, Date{Time: t.AddDate(0, 1, 0)}
}

// Validate checks the fields the recorder relies on.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return NewValidationError("user_id", "is required")
	}
	if strings.TrimSpace(t.TransactionID) == "" {
		return NewValidationError("transaction_id", "is required")
	}
	if t.Amount.Cents < 0 {
		return NewValidationError("amount", "must not be negative")
	}
	if t.Date.IsZero() {
		return NewValidationError("date", "is required")
	}
	if strings.TrimSpace(t.Category) == "" {
		return NewValidationError("category", "is required")
	}
	return nil
}

// Validate reports the first missing or malformed field of the submission.
func (b BudgetSubmission) Validate() error {
	var missing []string
	if strings.TrimSpace(b.Category) == "" {
		missing = append(missing, "category")
	}
	if b.Amount == nil {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(b.Month) == "" {
		missing = append(missing, "month")
	}
	if len(missing) > 0 {
		return NewValidationError(strings.Join(missing, ","), "budget data requires: category, amount, month")
	}
	if _, err := ParseMonth(b.Month); err != nil {
		return err
	}
	if b.Action == ActionSet && b.Amount.Cents < 0 {
		return NewValidationError("amount", "target must not be negative")
	}
	return nil
}

// IsSet reports whether the submission overwrites the target.
func (b BudgetSubmission) IsSet() bool {
	return b.Action == ActionSet
}

// Validate rejects negative metrics.
func (h HealthMetrics) Validate() error {
	if strings.TrimSpace(h.UserID) == "" {
		return NewValidationError("user_id", "is required")
	}
	if h.SleepHours != nil && (*h.SleepHours < 0 || *h.SleepHours > 24) {
		return NewValidationError("sleep_hours", "must be between 0 and 24")
	}
	if h.Steps != nil && *h.Steps < 0 {
		return NewValidationError("steps", "must not be negative")
	}
	if h.Glucose != nil && *h.Glucose < 0 {
		return NewValidationError("glucose", "must not be negative")
	}
	if h.Calories != nil && *h.Calories < 0 {
		return NewValidationError("calories", "must not be negative")
	}
	if h.Protein != nil && *h.Protein < 0 {
		return NewValidationError("protein", "must not be negative")
	}
	return nil
}
