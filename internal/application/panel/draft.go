package panel

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"coursedesk/internal/domain/record"
	"coursedesk/internal/domain/reference"
	"coursedesk/internal/domain/schema"
)

// Draft holds the form values of the dialog, one string per field.
// Reference fields hold bare record ids, not URLs.
type Draft map[string]string

var (
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloat = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// CoerceInt converts form input to an integer. Leading digits are used
// when the rest is garbage ("12 Plätze" is 12); anything else is 0.
func CoerceInt(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if m := leadingInt.FindString(s); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	return 0
}

// CoerceDecimal converts form input to a float64. A decimal comma is
// accepted; NaN, infinities and non-numeric input become 0.
func CoerceDecimal(s string) float64 {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		m := leadingFloat.FindString(s)
		if m == "" {
			return 0
		}
		if n, err = strconv.ParseFloat(m, 64); err != nil {
			return 0
		}
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

// CoerceBool reads checkbox-style input.
func CoerceBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// NewDraft returns the create-mode draft of an entity.
func NewDraft(entity schema.Entity, now time.Time) Draft {
	d := make(Draft, len(entity.Fields))
	for _, f := range entity.Fields {
		d[f.Name] = f.DraftDefault(now)
	}
	return d
}

// DraftFromRecord populates a draft for editing rec. Absent fields take
// their create-mode default and references are decoded to bare ids.
// PRE: rec belongs to entity
// POST: Returns a draft with one entry per entity field
func DraftFromRecord(entity schema.Entity, rec record.Record, now time.Time) Draft {
	d := make(Draft, len(entity.Fields))
	for _, f := range entity.Fields {
		if !rec.Fields.Has(f.Name) {
			d[f.Name] = f.DraftDefault(now)
			continue
		}
		switch f.Type {
		case schema.Integer:
			d[f.Name] = strconv.Itoa(rec.Fields.Int(f.Name))
		case schema.Decimal:
			d[f.Name] = strconv.FormatFloat(rec.Fields.Number(f.Name), 'f', -1, 64)
		case schema.Bool:
			if rec.Fields.Bool(f.Name) {
				d[f.Name] = "true"
			} else {
				d[f.Name] = ""
			}
		case schema.Reference:
			id, _ := reference.Decode(rec.Fields.String(f.Name))
			d[f.Name] = id
		default:
			d[f.Name] = rec.Fields.String(f.Name)
		}
	}
	return d
}

// BuildFields converts a draft to the field mapping sent to the backend.
// Empty references are omitted rather than sent as empty strings.
// PRE: appIDs has an entry for every referenced kind
// POST: Numeric fields are never NaN; every non-reference field is present
func BuildFields(entity schema.Entity, d Draft, codec reference.Codec, appIDs map[schema.Kind]string) record.Fields {
	fields := make(record.Fields, len(entity.Fields))
	for _, f := range entity.Fields {
		v := d[f.Name]
		switch f.Type {
		case schema.Integer:
			fields[f.Name] = CoerceInt(v)
		case schema.Decimal:
			fields[f.Name] = CoerceDecimal(v)
		case schema.Bool:
			fields[f.Name] = CoerceBool(v)
		case schema.Reference:
			id := strings.TrimSpace(v)
			if decoded, ok := reference.Decode(id); ok {
				id = decoded
			}
			if id == "" {
				continue
			}
			fields[f.Name] = codec.Encode(appIDs[f.Ref], id)
		default:
			fields[f.Name] = v
		}
	}
	return fields
}
