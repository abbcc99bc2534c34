package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bilancio/internal/config"
	"bilancio/internal/sources/jsonl"
	"bilancio/internal/sources/memory"
)

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{DataBackend: "memory", DataDir: "x"})
	if err != nil || cfg.Type != MemoryBackend || cfg.DataDirectory != "x" {
		t.Fatalf("unexpected config %+v err=%v", cfg, err)
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatalf("expected invalid backend error")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatalf("expected nil config error")
	}
}

func TestBackendTypes(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s.IsValid() = false", bt)
		}
	}
	if BackendType("sheets").IsValid() {
		t.Errorf("sheets.IsValid() = true")
	}

	err := Config{Type: "sheets"}.Validate()
	if err == nil || !strings.Contains(err.Error(), "[jsonl memory]") {
		t.Fatalf("Validate() error = %v, want the list of backend types", err)
	}
}

func TestCreateBackend(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "meters.jsonl"), []byte(`{"id":"e1","kind":"electricity"}`+"\n"), 0o644); err != nil {
		t.Fatalf("write meters: %v", err)
	}
	f := NewFactory(nil)
	ctx := context.Background()

	res, err := f.CreateBackend(ctx, Config{Type: JSONLBackend, DataDirectory: dir})
	if err != nil {
		t.Fatalf("CreateBackend(jsonl) error = %v", err)
	}
	if _, ok := res.Store.(*jsonl.Store); !ok {
		t.Fatalf("expected jsonl store, got %T", res.Store)
	}

	res, err = f.CreateBackend(ctx, Config{Type: MemoryBackend, DataDirectory: dir})
	if err != nil {
		t.Fatalf("CreateBackend(memory) error = %v", err)
	}
	if _, ok := res.Store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", res.Store)
	}
	meters, _ := res.Store.Meters(ctx)
	if len(meters) != 1 {
		t.Fatalf("memory backend should be seeded from the data directory, got %v", meters)
	}

	if _, err := f.CreateBackend(ctx, Config{Type: JSONLBackend}); err == nil {
		t.Fatalf("expected missing directory error")
	}
}
