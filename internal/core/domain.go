package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day form dates are written in.
const DateLayout = "2006-01-02"

const (
	Loan       AccountType = "Loan"
	CreditCard AccountType = "CreditCard"
	Checking   AccountType = "Checking"
	Saving     AccountType = "Saving"
	Cash       AccountType = "Cash"
)

type (
	AccountType string

	// Date is a point in time read from the log. It accepts both
	// "2006-01-02" and RFC 3339 timestamps.
	Date struct {
		time.Time
	}

	Account struct {
		ID   string      `json:"id"`
		Name string      `json:"name"`
		Type AccountType `json:"type"`
	}

	// Activity is one bank movement. Expenses carry negative values.
	// For transfers Source holds the counter account id, otherwise it is
	// free text (payee, employer, shop).
	Activity struct {
		Date        Date   `json:"date"`
		Source      string `json:"source"`
		Description string `json:"description"`
		Value       Money  `json:"value"`
		Account     string `json:"account"`
		Transfer    bool   `json:"transfer,omitempty"`
		Category    string `json:"category"`
	}
)

// NewDate creates a new Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DaysBetween returns the fractional number of days from a to b.
// It is negative when b is before a.
func DaysBetween(a, b Date) float64 {
	return b.Sub(a.Time).Hours() / 24
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrMalformedInput)
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	if d.Equal(d.Truncate(24 * time.Hour)) {
		return json.Marshal(d.Format(DateLayout))
	}
	return json.Marshal(d.Format(time.RFC3339))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: date must be a string: %v", ErrMalformedInput, err)
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("%w: unparseable date %q", ErrMalformedInput, s)
}

func (t AccountType) Valid() bool {
	switch t {
	case Loan, CreditCard, Checking, Saving, Cash:
		return true
	}
	return false
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyID
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: account %s has unknown type %q", ErrMalformedInput, a.ID, a.Type)
	}
	return nil
}

func (a Activity) Validate() error {
	if err := a.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(a.Account) == "" {
		return fmt.Errorf("%w: activity without account", ErrMalformedInput)
	}
	if a.Transfer && strings.TrimSpace(a.Source) == "" {
		return fmt.Errorf("%w: transfer without source account", ErrMalformedInput)
	}
	return a.Value.Validate()
}
