package bookkeeping

import "bilancio/internal/core"

type Bucket string

const (
	BucketBase       Bucket = "Base"
	BucketDisposable Bucket = "Disposable"
	BucketOther      Bucket = "Other"
)

// Buckets lists every bucket in display order.
var Buckets = []Bucket{BucketBase, BucketDisposable, BucketOther}

// BucketTable maps a category name to its bucket. Unknown categories fall
// into BucketOther.
type BucketTable map[string]Bucket

// DefaultBuckets returns the built-in category classification.
func DefaultBuckets() BucketTable {
	return BucketTable{
		"Rent":        BucketBase,
		"Mortgage":    BucketBase,
		"Utilities":   BucketBase,
		"Groceries":   BucketBase,
		"Insurance":   BucketBase,
		"Health":      BucketBase,
		"Transport":   BucketBase,
		"Taxes":       BucketBase,
		"Education":   BucketBase,
		"Restaurants": BucketDisposable,
		"Food":        BucketDisposable,
		"Leisure":     BucketDisposable,
		"Travel":      BucketDisposable,
		"Shopping":    BucketDisposable,
		"Hobbies":     BucketDisposable,
		"Gifts":       BucketDisposable,
		"Electronics": BucketDisposable,
	}
}

func (t BucketTable) Lookup(category string) Bucket {
	if b, ok := t[category]; ok && b.Valid() {
		return b
	}
	return BucketOther
}

func (b Bucket) Valid() bool {
	switch b {
	case BucketBase, BucketDisposable, BucketOther:
		return true
	}
	return false
}

// CategorySources aggregates the expenses of year per bucket and source.
func CategorySources(activities []core.Activity, year int, table BucketTable) map[Bucket]map[string]ChartSeries {
	return byBucket(activities, year, table, func(a core.Activity) string { return a.Source })
}

// CategoryDescriptions aggregates the expenses of year per bucket and
// description.
func CategoryDescriptions(activities []core.Activity, year int, table BucketTable) map[Bucket]map[string]ChartSeries {
	return byBucket(activities, year, table, func(a core.Activity) string { return a.Description })
}

func byBucket(activities []core.Activity, year int, table BucketTable, key func(core.Activity) string) map[Bucket]map[string]ChartSeries {
	if table == nil {
		table = DefaultBuckets()
	}
	out := make(map[Bucket]map[string]ChartSeries, len(Buckets))
	for _, b := range Buckets {
		out[b] = make(map[string]ChartSeries)
	}
	for _, a := range activities {
		amount, ok := expense(a)
		if !ok || a.Date.Year() != year {
			continue
		}
		add(out[table.Lookup(a.Category)], label(key(a)), int(a.Date.Month())-1, amount)
	}
	return out
}
