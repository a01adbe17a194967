package core

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true},
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"-1", -100, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"92233720368547758.07", 9223372036854775807, true},
		{"-92233720368547758.07", -9223372036854775807, true},
		{"92233720368547758.08", 0, false},
		{"-92233720368547758.08", 0, false},
		{"1e17", 0, false},
		{"184467440737095516.17", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFromFloat(t *testing.T) {
	cases := map[float64]int64{
		45.50:  4550,
		10:     1000,
		0.1:    10,
		19.99:  1999,
		-12.34: -1234,
	}
	for in, want := range cases {
		got, err := FromFloat(in)
		if err != nil || got.Cents != want {
			t.Fatalf("FromFloat(%v) = %d (err=%v), want %d", in, got.Cents, err, want)
		}
	}
}

func TestFromDecimal_OutOfRange(t *testing.T) {
	for _, in := range []float64{1e17, -1e17, 1e300} {
		_, err := FromFloat(in)
		if !IsValidation(err) || err.Error() != "invalid amount: is out of range" {
			t.Fatalf("FromFloat(%v) error = %v, want out of range", in, err)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Money `json:"a"`
	}{Cents(5550)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":55.50}` {
		t.Fatalf("got %s", b)
	}

	var m Money
	if err := json.Unmarshal([]byte(`"12.5"`), &m); err != nil || m.Cents != 1250 {
		t.Fatalf("string amount: %v %d", err, m.Cents)
	}
	if err := json.Unmarshal([]byte(`true`), &m); err == nil {
		t.Fatal("expected error for bool")
	}
	if err := json.Unmarshal([]byte(`1e17`), &m); !IsValidation(err) {
		t.Fatalf("1e17 cents must be rejected, got %v", err)
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := Cents(-250)
	if a.Abs().Cents != 250 {
		t.Fatalf("abs = %d", a.Abs().Cents)
	}
	if got := Cents(100).Add(Cents(50)).Sub(Cents(25)); got.Cents != 125 {
		t.Fatalf("arith = %d", got.Cents)
	}
	if Cents(1999).String() != "19.99" {
		t.Fatalf("string = %s", Cents(1999).String())
	}
}
