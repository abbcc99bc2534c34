package backend

import (
	"context"
	"slices"

	"bilancio/internal/sources"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the data store and optional cleanup function
type BackendResult struct {
	Store   sources.Store
	Cleanup CleanupFunc
}

// Factory creates data stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// DataDirectory holds the jsonl logs. The memory backend seeds itself
	// from it when it exists.
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	JSONLBackend  BackendType = "jsonl"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), bt)
}
