package core

import (
	"encoding/json"
	"testing"
	"time"
)

func ptrF(f float64) *float64 { return &f }
func ptrI(i int64) *int64     { return &i }

func TestParseMonth(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-06", true},
		{" 2024-12 ", true},
		{"2024-6", false},
		{"2024-13", false},
		{"2024-06-01", false},
		{"", false},
	}
	for _, tc := range cases {
		_, err := ParseMonth(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("%q expected ok, got %v", tc.in, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !IsValidation(err) {
				t.Fatalf("%q expected validation error, got %T", tc.in, err)
			}
		}
	}
}

func TestDateMonthAndJSON(t *testing.T) {
	d := NewDate(2024, 6, 15)
	if d.Month() != "2024-06" {
		t.Fatalf("month = %q", d.Month())
	}

	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2024-06-15"` {
		t.Fatalf("marshal = %s", b)
	}

	var got Date
	if err := json.Unmarshal([]byte(`"2024-06-15T13:45:00Z"`), &got); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if !got.Equal(d.Time) {
		t.Fatalf("got %v want %v", got, d)
	}
}

func TestMonthBounds(t *testing.T) {
	from, to := Month("2024-12").Bounds()
	if from.String() != "2024-12-01" || to.String() != "2025-01-01" {
		t.Fatalf("bounds = %s..%s", from, to)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		UserID:        "u1",
		TransactionID: "t1",
		Amount:        Cents(100),
		Category:      CategoryOther,
		Date:          NewDate(2024, 6, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	zero := good
	zero.Amount = Cents(0)
	if err := zero.Validate(); err != nil {
		t.Fatalf("zero amount should be accepted, got %v", err)
	}

	bads := []Transaction{
		{TransactionID: "t1", Amount: Cents(1), Category: "c", Date: NewDate(2024, 6, 1)},
		{UserID: "u1", Amount: Cents(1), Category: "c", Date: NewDate(2024, 6, 1)},
		{UserID: "u1", TransactionID: "t1", Amount: Cents(-1), Category: "c", Date: NewDate(2024, 6, 1)},
		{UserID: "u1", TransactionID: "t1", Amount: Cents(1), Category: "c"},
		{UserID: "u1", TransactionID: "t1", Amount: Cents(1), Date: NewDate(2024, 6, 1)},
	}
	for i, tx := range bads {
		if err := tx.Validate(); !IsValidation(err) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestBudgetSubmissionValidate(t *testing.T) {
	amount := Cents(4550)
	negative := Cents(-100)

	tests := []struct {
		name    string
		sub     BudgetSubmission
		wantErr bool
	}{
		{"add", BudgetSubmission{Category: "Food & Groceries", Amount: &amount, Month: "2024-06", Action: "add"}, false},
		{"no action", BudgetSubmission{Category: "Food & Groceries", Amount: &amount, Month: "2024-06"}, false},
		{"negative add is a refund", BudgetSubmission{Category: "Food & Groceries", Amount: &negative, Month: "2024-06"}, false},
		{"missing amount and category", BudgetSubmission{Month: "2024-06"}, true},
		{"missing month", BudgetSubmission{Category: "x", Amount: &amount}, true},
		{"bad month", BudgetSubmission{Category: "x", Amount: &amount, Month: "June"}, true},
		{"negative target", BudgetSubmission{Category: "x", Amount: &negative, Month: "2024-06", Action: "set"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v got %v", tt.wantErr, err)
			}
			if err != nil && !IsValidation(err) {
				t.Fatalf("expected validation error, got %T", err)
			}
		})
	}
}

func TestBudgetSubmissionJSON(t *testing.T) {
	var sub BudgetSubmission
	if err := json.Unmarshal([]byte(`{"category":"Food","amount":45.5,"month":"2024-06","action":"set"}`), &sub); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sub.Amount == nil || sub.Amount.Cents != 4550 {
		t.Fatalf("amount = %v", sub.Amount)
	}
	if !sub.IsSet() {
		t.Fatal("expected set action")
	}

	var missing BudgetSubmission
	if err := json.Unmarshal([]byte(`{"month":"2024-06"}`), &missing); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if missing.Amount != nil {
		t.Fatal("absent amount should stay nil")
	}
}

func TestHealthMetricsValidate(t *testing.T) {
	ok := HealthMetrics{UserID: "u1", Date: DateOf(time.Now()), Steps: ptrI(9000), SleepHours: ptrF(7.5)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []HealthMetrics{
		{Steps: ptrI(1)},
		{UserID: "u1", Steps: ptrI(-1)},
		{UserID: "u1", SleepHours: ptrF(25)},
		{UserID: "u1", Glucose: ptrF(-3)},
	}
	for i, h := range bads {
		if err := h.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
