// Package jsonl reads and appends the newline-delimited JSON logs stored as
// <dir>/<collection>.jsonl.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/sources"
)

const maxLineSize = 1 << 20

type Store struct {
	dir string
	mu  sync.RWMutex
}

var _ sources.Store = (*Store)(nil)

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the file backing collection.
func (s *Store) Path(c sources.Collection) string {
	return filepath.Join(s.dir, string(c)+".jsonl")
}

func (s *Store) Accounts(ctx context.Context) ([]core.Account, error) {
	return read[core.Account](ctx, s, sources.Accounts, nil)
}

func (s *Store) Activities(ctx context.Context) ([]core.Activity, error) {
	return read[core.Activity](ctx, s, sources.Activities, nil)
}

func (s *Store) Meters(ctx context.Context) ([]core.Meter, error) {
	return read[core.Meter](ctx, s, sources.Meters, nil)
}

func (s *Store) Measurements(ctx context.Context, meterID string) ([]core.MeterMeasurement, error) {
	return read(ctx, s, sources.Measurements, func(m core.MeterMeasurement) bool { return m.Meter == meterID })
}

func (s *Store) Prices(ctx context.Context, meterID string) ([]core.MeterPrice, error) {
	return read(ctx, s, sources.Prices, func(p core.MeterPrice) bool { return p.Meter == meterID })
}

func (s *Store) Payments(ctx context.Context, meterID string) ([]core.MeterPayment, error) {
	return read(ctx, s, sources.Payments, func(p core.MeterPayment) bool { return p.Meter == meterID })
}

func (s *Store) UpkeepHalves(ctx context.Context) ([]core.UpkeepHalf, error) {
	return read[core.UpkeepHalf](ctx, s, sources.Upkeep, nil)
}

// Append validates record and writes it as one line at the end of the
// collection file, creating the file and directory when needed.
func (s *Store) Append(ctx context.Context, collection sources.Collection, record any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sources.ValidateRecord(collection, record); err != nil {
		return fmt.Errorf("append to %s: %w", collection, err)
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(s.Path(collection), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", collection, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return f.Close()
}

// read decodes and validates every line of a collection. Blank lines are
// skipped and a missing file is an empty collection. Bad lines fail with
// sources.ErrCorrupt. keep filters records when non-nil.
func read[T any](ctx context.Context, s *Store, c sources.Collection, keep func(T) bool) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.Path(c)
	out := make([]T, 0)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%s:%d: %w: %w: %v", path, line, sources.ErrCorrupt, core.ErrMalformedInput, err)
		}
		if rec, ok := any(v).(sources.Validator); ok {
			if err := rec.Validate(); err != nil {
				return nil, fmt.Errorf("%s:%d: %w: %w", path, line, sources.ErrCorrupt, err)
			}
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
