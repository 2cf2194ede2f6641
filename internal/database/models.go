package database

import (
	"time"
)

// RecordFilter holds optional filters for listing stored records.
type RecordFilter struct {
	Benchmark string // ILIKE filter on result names
	Since     time.Time
	Limit     int
	Offset    int
}

// RecordSummary is one row of the records list.
type RecordSummary struct {
	Run        string    `json:"run"`
	CreatedAt  time.Time `json:"created_at"`
	Benchmarks int       `json:"benchmarks"`
	Failed     int       `json:"failed"`
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (f RecordFilter) limit() int {
	if f.Limit > 0 && f.Limit <= maxLimit {
		return f.Limit
	}
	return defaultLimit
}
