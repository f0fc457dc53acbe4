package temporal

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/model"
)

// Record is one stored row keyed by column name.
type Record map[string]any

// ID returns the record id.
func (r Record) ID() uuid.UUID {
	id, _ := uuidOf(r[model.FieldID])
	return id
}

// Version returns the SCD2 version, or 0 when the record has none.
func (r Record) Version() int {
	v, _ := intOf(r[model.FieldVersion])
	return v
}

// Deleted reports whether the record is soft-deleted.
func (r Record) Deleted() bool {
	return r[model.FieldDeletedAt] != nil
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() (Record, error) {
	if r == nil {
		return nil, nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		var err error
		switch v := v.(type) {
		case map[string]any:
			out[k], err = copyValue(v)
		case []any:
			out[k], err = copyValue(v)
		case []string:
			out[k], err = copyValue(v)
		case []int64:
			out[k], err = copyValue(v)
		case []float64:
			out[k], err = copyValue(v)
		case []byte:
			out[k] = bytes.Clone(v)
		default:
			// scalars and time.Time are values
			out[k] = v
		}
		if err != nil {
			return nil, fmt.Errorf("failed to copy field %s: %w", k, err)
		}
	}
	return out, nil
}

func copyValue[T any](v T) (T, error) {
	var dst T
	err := deepcopy.Copy(&dst, v)
	return dst, err
}

func fromRow(row db.Row) Record {
	if row == nil {
		return nil
	}
	return Record(row)
}

// uuidOf accepts the spellings drivers return for UUID columns.
func uuidOf(v any) (uuid.UUID, bool) {
	switch v := v.(type) {
	case uuid.UUID:
		return v, true
	case [16]byte:
		return uuid.UUID(v), true
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil
	case []byte:
		if len(v) == 16 {
			id, err := uuid.FromBytes(v)
			return id, err == nil
		}
		id, err := uuid.ParseBytes(v)
		return id, err == nil
	}
	return uuid.Nil, false
}

func intOf(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		var n int
		_, err := fmt.Sscan(v, &n)
		return n, err == nil
	case []byte:
		var n int
		_, err := fmt.Sscan(string(v), &n)
		return n, err == nil
	}
	return 0, false
}

func timeOf(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// sameValue compares a stored value with a caller-supplied one. Drivers
// return NUMERIC as text and UUIDs in several forms, so values that print
// the same are equal.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	if ta, ok := timeOf(a); ok {
		tb, ok := timeOf(b)
		return ok && ta.Equal(tb)
	}
	if ua, ok := uuidOf(a); ok {
		if ub, ok := uuidOf(b); ok {
			return ua == ub
		}
	}
	switch a.(type) {
	case map[string]any, []any:
		return sameJSON(a, b)
	}
	switch b.(type) {
	case map[string]any, []any:
		return sameJSON(a, b)
	}
	if fa, ok := floatOf(a); ok {
		if fb, ok := floatOf(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// floatOf reads numbers, including NUMERIC columns returned as text.
func floatOf(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		return f, err == nil
	}
	return 0, false
}

func sameJSON(a, b any) bool {
	ja, err := normalizeJSON(a)
	if err != nil {
		return false
	}
	jb, err := normalizeJSON(b)
	if err != nil {
		return false
	}
	return ja == jb
}

// normalizeJSON re-encodes v so that key order and whitespace do not matter.
func normalizeJSON(v any) (string, error) {
	switch s := v.(type) {
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return "", err
		}
		v = decoded
	case []byte:
		var decoded any
		if err := json.Unmarshal(s, &decoded); err != nil {
			return "", err
		}
		v = decoded
	}
	out, err := json.Marshal(v)
	return string(out), err
}

// encodeJSON renders an audit or JSON column value. nil stays NULL.
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v := v.(type) {
	case time.Time:
		v = v.UTC()
		out, err := json.Marshal(v)
		return string(out), err
	case []byte:
		out, err := json.Marshal(string(v))
		return string(out), err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

// decodeJSON parses a JSON column value as read from the driver.
func decodeJSON(v any) (any, error) {
	var raw []byte
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return v, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
