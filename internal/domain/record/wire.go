package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire is the backend's JSON representation of a record. Collection
// listings omit ID; single-record responses carry it under "id".
type Wire struct {
	ID        string  `json:"id,omitempty"`
	CreatedAt string  `json:"createdat"`
	UpdatedAt *string `json:"updatedat"`
	Fields    Fields  `json:"fields"`
}

// Record converts the wire form to a Record, using id when the wire form
// carries none.
func (w Wire) Record(id string) Record {
	if w.ID != "" {
		id = w.ID
	}
	rec := Record{
		ID:        id,
		CreatedAt: ParseTimestamp(w.CreatedAt),
		Fields:    w.Fields,
	}
	if w.UpdatedAt != nil {
		if t := ParseTimestamp(*w.UpdatedAt); !t.IsZero() {
			rec.UpdatedAt = &t
		}
	}
	if rec.Fields == nil {
		rec.Fields = Fields{}
	}
	return rec
}

// DecodeCollection decodes an id → record JSON object into a slice that
// keeps the object's key order.
// PRE: data is a JSON object, null or an empty array
// POST: Returns records in document order with ID taken from the key
func DecodeCollection(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	if tok == nil {
		return nil, nil
	}
	// An empty collection may arrive as [] instead of {}
	if d, ok := tok.(json.Delim); ok && d == '[' {
		if end, err := dec.Token(); err != nil || end != json.Delim(']') {
			return nil, fmt.Errorf("decode collection: expected object, got non-empty array")
		}
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode collection: expected object, got %v", tok)
	}

	var out []Record
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode collection key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("decode collection: non-string key %v", keyTok)
		}
		var w Wire
		if err := dec.Decode(&w); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", key, err)
		}
		out = append(out, w.Record(key))
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode collection end: %w", err)
	}
	return out, nil
}

// DecodeOne decodes a single-record response.
func DecodeOne(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var w Wire
	if err := dec.Decode(&w); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return w.Record(""), nil
}
