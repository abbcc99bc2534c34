package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2024-02-15"`), &d); err != nil {
		t.Fatalf("unmarshal day: %v", err)
	}
	if !d.Equal(NewDate(2024, 2, 15).Time) {
		t.Fatalf("unexpected date %v", d)
	}
	if err := json.Unmarshal([]byte(`"2024-02-15T12:00:00Z"`), &d); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if d.Hour() != 12 {
		t.Fatalf("expected hour 12, got %d", d.Hour())
	}
	if err := json.Unmarshal([]byte(`"15.02.2024"`), &d); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}

	out, err := json.Marshal(NewDate(2024, 1, 1))
	if err != nil || string(out) != `"2024-01-01"` {
		t.Fatalf("marshal: %s (err=%v)", out, err)
	}
}

func TestDaysBetween(t *testing.T) {
	a, b := NewDate(2024, 1, 1), NewDate(2024, 1, 11)
	if got := DaysBetween(a, b); got != 10 {
		t.Fatalf("expected 10, got %v", got)
	}
	if got := DaysBetween(b, a); got != -10 {
		t.Fatalf("expected -10, got %v", got)
	}
	half := Date{Time: a.Add(12 * time.Hour)}
	if got := DaysBetween(a, half); got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

func TestBillIDAcceptsNumbers(t *testing.T) {
	var p MeterPayment
	if err := json.Unmarshal([]byte(`{"meter":"m1","date":"2024-01-01","value":{"amount":10,"currency":"EUR"},"bill":4711}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Bill != "4711" {
		t.Fatalf("expected bill 4711, got %q", p.Bill)
	}
	if err := json.Unmarshal([]byte(`{"bill":"B1"}`), &p); err != nil || p.Bill != "B1" {
		t.Fatalf("expected bill B1, got %q (err=%v)", p.Bill, err)
	}
}

func TestHousingJSON(t *testing.T) {
	var h Housing
	raw := `{"area":72.5,"rent":{"amount":800,"currency":"EUR"},"electricity":{"amount":60,"currency":"EUR"}}`
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.Area != 72.5 || len(h.Costs) != 2 || h.Costs["rent"] != Euro(800) {
		t.Fatalf("unexpected housing %+v", h)
	}

	out, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Housing
	if err := json.Unmarshal(out, &back); err != nil || back.Area != 72.5 || back.Costs["electricity"] != Euro(60) {
		t.Fatalf("unexpected round trip %+v (err=%v)", back, err)
	}
}

func TestActivityValidate(t *testing.T) {
	good := Activity{Date: NewDate(2025, 1, 1), Source: "Employer", Value: Euro(100), Account: "giro"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Activity{
		{Date: Date{}, Value: Euro(1), Account: "giro"},
		{Date: NewDate(2025, 1, 1), Value: Euro(1)},
		{Date: NewDate(2025, 1, 1), Value: Euro(1), Account: "giro", Transfer: true},
		{Date: NewDate(2025, 1, 1), Value: Money{Amount: 1}, Account: "giro"},
	}
	for i, a := range bads {
		if err := a.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMissingPriceErrorIs(t *testing.T) {
	var err error = &MissingPriceError{Meter: "m1", Date: NewDate(2023, 12, 1)}
	if !errors.Is(err, ErrMissingPrice) {
		t.Fatalf("expected errors.Is to match ErrMissingPrice")
	}
	if err.Error() != `missing price for meter "m1" at 2023-12-01` {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestUpkeepHalfValidate(t *testing.T) {
	valid := func() UpkeepHalf {
		return UpkeepHalf{
			Year:    2024,
			Period:  1,
			Salary:  Euro(2000),
			Housing: Housing{Area: 80, Costs: map[string]Money{"rent": Euro(700)}},
			Car:     &Car{Maintenance: Euro(100)}, // insurance left out
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid upkeep rejected: %v", err)
	}

	cases := map[string]func(*UpkeepHalf){
		"period":        func(u *UpkeepHalf) { u.Period = 3 },
		"salary":        func(u *UpkeepHalf) { u.Salary = Money{Amount: 2000, Currency: "GBP"} },
		"housing":       func(u *UpkeepHalf) { u.Housing.Costs["rent"] = Money{Amount: 700, Currency: "USD"} },
		"pet":           func(u *UpkeepHalf) { u.Pet = map[string]Money{"food": {Amount: 30, Currency: "USD"}} },
		"car insurance": func(u *UpkeepHalf) { u.Car.Insurance = Money{Amount: 50, Currency: "CHF"} },
	}
	for name, mutate := range cases {
		u := valid()
		mutate(&u)
		if err := u.Validate(); !errors.Is(err, ErrMalformedInput) {
			t.Errorf("%s: Validate() = %v, want ErrMalformedInput", name, err)
		}
	}
}
