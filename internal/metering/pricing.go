// Package metering turns cumulative meter readings into consumption,
// costs and billing periods.
//
// Nothing in this package sorts its inputs. Measurements must be in
// ascending date order and prices in descending date order; use
// SortMeasurements and SortPrices to establish that before calling in.
package metering

import (
	"sort"

	"bilancio/internal/core"
)

// CurrentPrice returns the tariff in effect at date: the first price in
// prices whose date is at or before date. prices must be sorted by date,
// newest first. ok is false when no tariff had started yet.
func CurrentPrice(date core.Date, prices []core.MeterPrice) (price core.MeterPrice, ok bool) {
	for _, p := range prices {
		if !p.Date.After(date.Time) {
			return p, true
		}
	}
	return core.MeterPrice{}, false
}

// SortPrices returns a copy of prices ordered newest first.
func SortPrices(prices []core.MeterPrice) []core.MeterPrice {
	out := append([]core.MeterPrice(nil), prices...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	return out
}

// SortMeasurements returns a copy of measurements ordered oldest first.
func SortMeasurements(measurements []core.MeterMeasurement) []core.MeterMeasurement {
	out := append([]core.MeterMeasurement(nil), measurements...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date.Time)
	})
	return out
}
