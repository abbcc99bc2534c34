// Package memory is an in-process RowWriter for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bilancio/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	sheets map[string][][]any
}

var _ sheets.RowWriter = (*Store)(nil)

func New() *Store {
	return &Store{sheets: make(map[string][][]any)}
}

// WriteRows replaces the sheet content and returns a synthetic reference.
func (s *Store) WriteRows(_ context.Context, sheet string, rows [][]any) (string, error) {
	if sheet == "" {
		return "", errors.New("sheet name cannot be empty")
	}
	copied := make([][]any, len(rows))
	for i, r := range rows {
		copied[i] = append([]any(nil), r...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheet] = copied
	return fmt.Sprintf("mem:%s!A1:%d", sheet, len(rows)), nil
}

// Rows returns the rows last written to sheet.
func (s *Store) Rows(sheet string) [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheets[sheet]
}
