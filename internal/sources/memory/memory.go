// Package memory keeps every collection in process memory. It backs tests
// and DATA_BACKEND=memory, optionally seeded from another source.
package memory

import (
	"context"
	"fmt"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/sources"
)

// Data is the content of every collection.
type Data struct {
	Accounts     []core.Account
	Activities   []core.Activity
	Meters       []core.Meter
	Measurements []core.MeterMeasurement
	Prices       []core.MeterPrice
	Payments     []core.MeterPayment
	Upkeep       []core.UpkeepHalf
}

type Store struct {
	mu   sync.RWMutex
	data Data
}

var _ sources.Store = (*Store)(nil)

// New copies data into a new store.
func New(data Data) *Store {
	return &Store{data: Data{
		Accounts:     clone(data.Accounts),
		Activities:   clone(data.Activities),
		Meters:       clone(data.Meters),
		Measurements: clone(data.Measurements),
		Prices:       clone(data.Prices),
		Payments:     clone(data.Payments),
		Upkeep:       clone(data.Upkeep),
	}}
}

// Snapshot loads every collection of src into a new store.
func Snapshot(ctx context.Context, src sources.Source) (*Store, error) {
	var d Data
	var err error
	if d.Accounts, err = src.Accounts(ctx); err != nil {
		return nil, fmt.Errorf("snapshot accounts: %w", err)
	}
	if d.Activities, err = src.Activities(ctx); err != nil {
		return nil, fmt.Errorf("snapshot activities: %w", err)
	}
	if d.Meters, err = src.Meters(ctx); err != nil {
		return nil, fmt.Errorf("snapshot meters: %w", err)
	}
	for _, m := range d.Meters {
		ms, err := src.Measurements(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot measurements of %s: %w", m.ID, err)
		}
		ps, err := src.Prices(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot prices of %s: %w", m.ID, err)
		}
		pays, err := src.Payments(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot payments of %s: %w", m.ID, err)
		}
		d.Measurements = append(d.Measurements, ms...)
		d.Prices = append(d.Prices, ps...)
		d.Payments = append(d.Payments, pays...)
	}
	if d.Upkeep, err = src.UpkeepHalves(ctx); err != nil {
		return nil, fmt.Errorf("snapshot upkeep: %w", err)
	}
	return New(d), nil
}

func (s *Store) Accounts(_ context.Context) ([]core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.data.Accounts), nil
}

func (s *Store) Activities(_ context.Context) ([]core.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.data.Activities), nil
}

func (s *Store) Meters(_ context.Context) ([]core.Meter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.data.Meters), nil
}

func (s *Store) Measurements(_ context.Context, meterID string) ([]core.MeterMeasurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.data.Measurements, func(m core.MeterMeasurement) bool { return m.Meter == meterID }), nil
}

func (s *Store) Prices(_ context.Context, meterID string) ([]core.MeterPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.data.Prices, func(p core.MeterPrice) bool { return p.Meter == meterID }), nil
}

func (s *Store) Payments(_ context.Context, meterID string) ([]core.MeterPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(s.data.Payments, func(p core.MeterPayment) bool { return p.Meter == meterID }), nil
}

func (s *Store) UpkeepHalves(_ context.Context) ([]core.UpkeepHalf, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.data.Upkeep), nil
}

// Append validates and stores record.
func (s *Store) Append(_ context.Context, collection sources.Collection, record any) error {
	if err := sources.ValidateRecord(collection, record); err != nil {
		return fmt.Errorf("append to %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch r := deref(record).(type) {
	case core.Account:
		s.data.Accounts = append(s.data.Accounts, r)
	case core.Activity:
		s.data.Activities = append(s.data.Activities, r)
	case core.Meter:
		s.data.Meters = append(s.data.Meters, r)
	case core.MeterMeasurement:
		s.data.Measurements = append(s.data.Measurements, r)
	case core.MeterPrice:
		s.data.Prices = append(s.data.Prices, r)
	case core.MeterPayment:
		s.data.Payments = append(s.data.Payments, r)
	case core.UpkeepHalf:
		s.data.Upkeep = append(s.data.Upkeep, r)
	}
	return nil
}

func deref(record any) any {
	switch r := record.(type) {
	case *core.Account:
		return *r
	case *core.Activity:
		return *r
	case *core.Meter:
		return *r
	case *core.MeterMeasurement:
		return *r
	case *core.MeterPrice:
		return *r
	case *core.MeterPayment:
		return *r
	case *core.UpkeepHalf:
		return *r
	}
	return record
}

func clone[T any](in []T) []T {
	return append(make([]T, 0, len(in)), in...)
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0)
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
