package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	applog "bilancio/internal/log"
	"bilancio/internal/sources/jsonl"
	"bilancio/internal/sources/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case JSONLBackend:
		return f.createJSONLBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createJSONLBackend(config Config) (*BackendResult, error) {
	if _, err := os.Stat(config.DataDirectory); errors.Is(err, fs.ErrNotExist) {
		f.logger.Warn("Data directory does not exist, every collection is empty", "data_directory", config.DataDirectory)
	}

	f.logger.Info("Initialized jsonl backend", "data_directory", config.DataDirectory)

	return &BackendResult{Store: jsonl.New(config.DataDirectory)}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if config.DataDirectory == "" {
		f.logger.Info("Initialized empty memory backend")
		return &BackendResult{Store: memory.New(memory.Data{})}, nil
	}

	store, err := memory.Snapshot(ctx, jsonl.New(config.DataDirectory))
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", config.DataDirectory)

	return &BackendResult{Store: store}, nil
}
