// Package record holds the backend-agnostic shape of a persisted entity.
package record

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownRecord is returned when an id does not match any loaded record.
var ErrUnknownRecord = errors.New("record not found in collection")

// Fields maps attribute names to scalar values or reference URLs.
type Fields map[string]any

// Record is one persisted entity instance.
type Record struct {
	ID        string     `json:"record_id"`
	CreatedAt time.Time  `json:"createdat"`
	UpdatedAt *time.Time `json:"updatedat"`
	Fields    Fields     `json:"fields"`
}

// Has reports whether the field is present and non-null.
func (f Fields) Has(name string) bool {
	v, ok := f[name]
	return ok && v != nil
}

// String returns the field as a string, or "" when absent.
// PRE: none
// POST: Never panics; numbers and bools are formatted
func (f Fields) String(name string) string {
	switch v := f[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// Number returns the field as a float64, or 0 when absent or not numeric.
func (f Fields) Number(name string) float64 {
	var n float64
	switch v := f[name].(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		n, _ = v.Float64()
	case string:
		n, _ = strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// Int returns the field truncated to an int, or 0 when absent.
func (f Fields) Int(name string) int {
	return int(f.Number(name))
}

// Bool returns the field as a bool, or false when absent.
func (f Fields) Bool(name string) bool {
	switch v := f[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Clone returns a shallow copy of the fields.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Find returns the record with the given id.
// PRE: none
// POST: Returns (record, true) on a match by ID equality
func Find(items []Record, id string) (Record, bool) {
	for _, r := range items {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Remove returns a new slice without the records whose ID equals id.
// INVARIANT: items is not mutated; relative order of the rest is kept
func Remove(items []Record, id string) []Record {
	out := make([]Record, 0, len(items))
	for _, r := range items {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// timestampLayouts are tried in order when parsing backend timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a backend timestamp, returning the zero time when
// s is empty or in no known layout.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
