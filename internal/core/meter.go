package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	Electricity MeterKind = "electricity"
	Gas         MeterKind = "gas"
	ColdWater   MeterKind = "cold-water"
	WarmWater   MeterKind = "warm-water"
	Heating     MeterKind = "heating"
)

type (
	MeterKind string

	// Meter is a metering point. Area is the dwelling (water) or heater
	// (heating) factor applied to the base rate; Combustion and Condition
	// convert gas volume into energy.
	Meter struct {
		ID         string    `json:"id"`
		Kind       MeterKind `json:"kind"`
		Location   string    `json:"location,omitempty"`
		Area       float64   `json:"area,omitempty"`
		Combustion float64   `json:"combustion,omitempty"`
		Condition  float64   `json:"condition,omitempty"`
	}

	// MeterMeasurement is a cumulative reading. Billable marks the end of
	// a billing interval.
	MeterMeasurement struct {
		Meter       string  `json:"meter"`
		Date        Date    `json:"date"`
		Measurement float64 `json:"measurement"`
		Billable    bool    `json:"billable,omitempty"`
	}

	// MeterPrice is a tariff effective from Date until the next later one.
	MeterPrice struct {
		Meter string `json:"meter"`
		Date  Date   `json:"date"`
		Unit  Money  `json:"unit"`
		Base  Money  `json:"base"`
	}

	MeterPayment struct {
		Meter string `json:"meter"`
		Date  Date   `json:"date"`
		Value Money  `json:"value"`
		Bill  BillID `json:"bill"`
	}

	// BillID identifies the bill a payment belongs to. The log stores it
	// either as a string or as a bare number.
	BillID string
)

func (k MeterKind) Valid() bool {
	switch k {
	case Electricity, Gas, ColdWater, WarmWater, Heating:
		return true
	}
	return false
}

// YearBucketed reports whether bills for this kind are grouped per
// calendar year instead of per billable reading.
func (k MeterKind) YearBucketed() bool {
	return k == ColdWater || k == WarmWater || k == Heating
}

func (m Meter) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrEmptyID
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMeterKind, m.Kind)
	}
	return nil
}

func (b *BillID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = BillID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: bill id: %v", ErrMalformedInput, err)
	}
	*b = BillID(n.String())
	return nil
}

func (m MeterMeasurement) Validate() error {
	if strings.TrimSpace(m.Meter) == "" {
		return ErrEmptyID
	}
	return m.Date.Validate()
}

func (p MeterPrice) Validate() error {
	if strings.TrimSpace(p.Meter) == "" {
		return ErrEmptyID
	}
	if err := p.Date.Validate(); err != nil {
		return err
	}
	if err := p.Unit.Validate(); err != nil {
		return fmt.Errorf("unit: %w", err)
	}
	if err := p.Base.Validate(); err != nil {
		return fmt.Errorf("base: %w", err)
	}
	return nil
}

func (p MeterPayment) Validate() error {
	if strings.TrimSpace(p.Meter) == "" || strings.TrimSpace(string(p.Bill)) == "" {
		return ErrEmptyID
	}
	if err := p.Date.Validate(); err != nil {
		return err
	}
	return p.Value.Validate()
}
