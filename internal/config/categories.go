package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bilancio/internal/bookkeeping"
)

// categoriesFile is the YAML layout of CATEGORIES_FILE:
//
//	base: [Rent, Groceries]
//	disposable: [Restaurants, Travel]
type categoriesFile struct {
	Base       []string `yaml:"base"`
	Disposable []string `yaml:"disposable"`
}

// LoadBuckets reads the category bucket table. An empty path returns the
// built-in table.
func LoadBuckets(path string) (bookkeeping.BucketTable, error) {
	if path == "" {
		return bookkeeping.DefaultBuckets(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return ParseBuckets(data)
}

// ParseBuckets decodes a YAML bucket table. A category listed in both
// buckets is rejected.
func ParseBuckets(data []byte) (bookkeeping.BucketTable, error) {
	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse categories file: %w", err)
	}

	table := make(bookkeeping.BucketTable, len(f.Base)+len(f.Disposable))
	for _, c := range f.Base {
		table[c] = bookkeeping.BucketBase
	}
	for _, c := range f.Disposable {
		if table[c] == bookkeeping.BucketBase {
			return nil, fmt.Errorf("category %q is both base and disposable", c)
		}
		table[c] = bookkeeping.BucketDisposable
	}
	return table, nil
}
