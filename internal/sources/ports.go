// Package sources defines how reports read the append-only collections of
// accounts, activities, meter data and upkeep records.
package sources

import (
	"context"
	"errors"
	"fmt"

	"bilancio/internal/core"
)

// Collection names one append-only log.
type Collection string

const (
	Accounts     Collection = "accounts"
	Activities   Collection = "activities"
	Meters       Collection = "meters"
	Measurements Collection = "measurements"
	Prices       Collection = "prices"
	Payments     Collection = "payments"
	Upkeep       Collection = "upkeep"
)

// Collections lists every collection.
var Collections = []Collection{Accounts, Activities, Meters, Measurements, Prices, Payments, Upkeep}

func (c Collection) Valid() bool {
	for _, v := range Collections {
		if v == c {
			return true
		}
	}
	return false
}

// ErrUnknownCollection is returned for a collection name outside Collections.
var ErrUnknownCollection = errors.New("unknown collection")

// ErrCorrupt marks records in storage that cannot be decoded or fail
// validation. It is a data problem, not a caller problem.
var ErrCorrupt = errors.New("corrupt record")

// Ports for outbound adapters.
type (
	AccountReader interface {
		Accounts(ctx context.Context) ([]core.Account, error)
	}

	ActivityReader interface {
		Activities(ctx context.Context) ([]core.Activity, error)
	}

	// MeterReader returns meters and, per meter, their readings, tariffs
	// and payments in storage order.
	MeterReader interface {
		Meters(ctx context.Context) ([]core.Meter, error)
		Measurements(ctx context.Context, meterID string) ([]core.MeterMeasurement, error)
		Prices(ctx context.Context, meterID string) ([]core.MeterPrice, error)
		Payments(ctx context.Context, meterID string) ([]core.MeterPayment, error)
	}

	UpkeepReader interface {
		UpkeepHalves(ctx context.Context) ([]core.UpkeepHalf, error)
	}

	// Source is everything the report service reads.
	Source interface {
		AccountReader
		ActivityReader
		MeterReader
		UpkeepReader
	}

	// Appender adds one validated record to a collection.
	Appender interface {
		Append(ctx context.Context, collection Collection, record any) error
	}

	// Store is a Source that also accepts new records.
	Store interface {
		Source
		Appender
	}
)

// Validator is implemented by records that check their own invariants.
type Validator interface {
	Validate() error
}

// ValidateRecord checks that record belongs to collection and is valid.
func ValidateRecord(collection Collection, record any) error {
	if !collection.Valid() {
		return ErrUnknownCollection
	}
	ok := false
	switch record.(type) {
	case core.Account, *core.Account:
		ok = collection == Accounts
	case core.Activity, *core.Activity:
		ok = collection == Activities
	case core.Meter, *core.Meter:
		ok = collection == Meters
	case core.MeterMeasurement, *core.MeterMeasurement:
		ok = collection == Measurements
	case core.MeterPrice, *core.MeterPrice:
		ok = collection == Prices
	case core.MeterPayment, *core.MeterPayment:
		ok = collection == Payments
	case core.UpkeepHalf, *core.UpkeepHalf:
		ok = collection == Upkeep
	}
	if !ok {
		return fmt.Errorf("%w: %T does not belong to %s", core.ErrMalformedInput, record, collection)
	}
	if v, ok := record.(Validator); ok {
		return v.Validate()
	}
	return nil
}
