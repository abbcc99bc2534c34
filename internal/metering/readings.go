package metering

import (
	"fmt"

	"bilancio/internal/core"
)

// Reading is a measurement enriched with the delta to its predecessor and
// the cost of that delta.
type Reading struct {
	Date        core.Date       `json:"date"`
	Measurement float64         `json:"measurement"`
	Price       core.MeterPrice `json:"price"`
	Consumption float64         `json:"consumption"`
	Energy      float64         `json:"energy,omitempty"`
	Days        float64         `json:"days"`
	Billable    bool            `json:"billable"`
	UnitCost    core.Money      `json:"unitCost"`
	BaseCost    core.Money      `json:"baseCost"`
	Cost        core.Money      `json:"cost"`
}

// Readings computes one Reading per measurement, in input order.
//
// The first reading has zero consumption and zero days. Every measurement
// needs a tariff: if none is in effect at its date a *core.MissingPriceError
// is returned and no readings are produced for the meter. A tariff whose
// unit and base rates differ in currency fails with core.ErrCurrencyMismatch.
func Readings(m core.Meter, measurements []core.MeterMeasurement, prices []core.MeterPrice) ([]Reading, error) {
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("meter %s: %w: %q", m.ID, core.ErrUnknownMeterKind, m.Kind)
	}

	out := make([]Reading, 0, len(measurements))
	for i, cur := range measurements {
		price, ok := CurrentPrice(cur.Date, prices)
		if !ok {
			return nil, &core.MissingPriceError{Meter: m.ID, Date: cur.Date}
		}

		r := Reading{
			Date:        cur.Date,
			Measurement: cur.Measurement,
			Price:       price,
			Billable:    cur.Billable,
		}
		if i > 0 {
			prev := measurements[i-1]
			r.Consumption = cur.Measurement - prev.Measurement
			r.Days = core.DaysBetween(prev.Date, cur.Date)
		}
		if m.Kind == core.Gas {
			r.Energy = r.Consumption * m.Combustion * m.Condition
		}

		r.UnitCost, r.BaseCost = costs(m, price, r.Consumption, r.Days)
		cost, err := r.UnitCost.Add(r.BaseCost)
		if err != nil {
			return nil, fmt.Errorf("meter %s tariff of %s: %w", m.ID, price.Date.Format(core.DateLayout), err)
		}
		r.Cost = cost
		out = append(out, r)
	}
	return out, nil
}

// costs splits the cost of one reading into its consumption-dependent and
// its fixed part.
func costs(m core.Meter, p core.MeterPrice, consumption, days float64) (unit, base core.Money) {
	switch m.Kind {
	case core.Electricity:
		// The fixed part is billed at the unit rate per day, not at the base rate.
		return p.Unit.Scale(consumption), p.Unit.Scale(days)
	case core.Gas:
		return p.Unit.Scale(consumption * m.Combustion * m.Condition), p.Base.Scale(days)
	default:
		// water and heating: the base rate scales with area, not with time
		return p.Unit.Scale(consumption), p.Base.Scale(m.Area)
	}
}

// consumptionFactor converts a measurement delta into billed consumption.
func consumptionFactor(m core.Meter) float64 {
	if m.Kind == core.Gas {
		return m.Combustion * m.Condition
	}
	return 1
}
