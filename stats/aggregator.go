// Package stats turns the backend summary payload into display counters.
package stats

import (
	"bytes"
	"encoding/json"
	"errors"

	"reliefdesk/models"
)

var ErrNotAnObject = errors.New("stats body is not a JSON object")

// Aggregate reads each counter with a default of zero. Negative values are
// clamped to zero.
func Aggregate(src models.StatsSource) models.StatsRecord {
	return models.StatsRecord{
		Total:  src.TotalPosts.NonNegative(),
		High:   src.HighPriorityPosts.NonNegative(),
		Medium: src.MediumPriorityPosts.NonNegative(),
		Low:    src.LowPriorityPosts.NonNegative(),
	}
}

// Decode parses a stats payload. Anything other than a JSON object is a
// protocol failure; callers keep their previous record in that case.
func Decode(body []byte) (models.StatsSource, error) {
	var src models.StatsSource
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return src, ErrNotAnObject
	}
	if err := json.Unmarshal(trimmed, &src); err != nil {
		return models.StatsSource{}, err
	}
	return src, nil
}

// Tracker keeps the last good record. Failed fetches leave it unchanged.
type Tracker struct {
	current models.StatsRecord
}

// Apply folds a fetch outcome into the tracker and returns the current record.
func (t *Tracker) Apply(src models.StatsSource, fetchErr error) models.StatsRecord {
	if fetchErr == nil {
		t.current = Aggregate(src)
	}
	return t.current
}

// Current returns the last good record, zeroed before the first success.
func (t *Tracker) Current() models.StatsRecord {
	return t.current
}
