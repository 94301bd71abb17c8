package uplink

import (
	"fmt"
	"time"

	"github.com/nerrad567/logix-uplink/internal/reading"
)

// Batch is a set of readings sharing one calendar-hour bucket.
//
// Start and End are the earliest and latest reading timestamps, not the
// hour boundaries. They scope every write-back for the batch.
type Batch struct {
	Key      string
	Start    time.Time
	End      time.Time
	Readings []reading.Reading
}

// BucketKey labels the hour a timestamp falls in, e.g. "2024-01-01 9:00".
// The hour is not zero padded.
func BucketKey(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return fmt.Sprintf("%s %d:00", t.Format("2006-01-02"), t.Hour())
}

// NewBatch builds a batch over readings with the tightest enclosing range.
func NewBatch(key string, readings []reading.Reading) Batch {
	b := Batch{Key: key, Readings: readings}
	for i, r := range readings {
		if i == 0 || r.Date.Before(b.Start) {
			b.Start = r.Date
		}
		if i == 0 || r.Date.After(b.End) {
			b.End = r.Date
		}
	}
	return b
}

// GroupByHour buckets readings by BucketKey in loc. Batches are returned
// in order of first appearance, so time-ordered input gives time-ordered
// batches. Gaps inside an hour never split a batch.
func GroupByHour(readings []reading.Reading, loc *time.Location) []Batch {
	if loc == nil {
		loc = time.UTC
	}

	var order []string
	groups := make(map[string][]reading.Reading)
	for _, r := range readings {
		key := BucketKey(r.Date, loc)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	batches := make([]Batch, 0, len(order))
	for _, key := range order {
		batches = append(batches, NewBatch(key, groups[key]))
	}
	return batches
}
