package temporal

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/fenixflow/ff-storage-sub000/model"
)

func TestRecordClone(t *testing.T) {
	orig := Record{
		"name":  "Widget",
		"attrs": map[string]any{"color": "red", "sizes": []any{"s", "m"}},
		"tags":  []string{"a", "b"},
		"blob":  []byte{1, 2, 3},
		"at":    t0,
	}
	c, err := orig.Clone()
	require.NoError(t, err)
	if diff := cmp.Diff(orig, c); diff != "" {
		t.Fatalf("Clone() mismatch (-orig +clone):\n%s", diff)
	}

	c["name"] = "Gadget"
	c["attrs"].(map[string]any)["color"] = "blue"
	c["attrs"].(map[string]any)["sizes"].([]any)[0] = "xl"
	c["tags"].([]string)[0] = "z"
	c["blob"].([]byte)[0] = 9

	require.Equal(t, "Widget", orig["name"])
	require.Equal(t, "red", orig["attrs"].(map[string]any)["color"])
	require.Equal(t, "s", orig["attrs"].(map[string]any)["sizes"].([]any)[0])
	require.Equal(t, "a", orig["tags"].([]string)[0])
	require.Equal(t, byte(1), orig["blob"].([]byte)[0])
}

func TestRecordAccessors(t *testing.T) {
	r := Record{model.FieldID: recID.String(), model.FieldVersion: int64(3)}
	require.Equal(t, recID, r.ID())
	require.Equal(t, 3, r.Version())
	require.False(t, r.Deleted())

	r[model.FieldDeletedAt] = t0
	require.True(t, r.Deleted())
}

func TestSameValue(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"nil and nil", nil, nil, true},
		{"nil and empty string", nil, "", false},
		{"numeric text and float", "99.99", 99.99, true},
		{"numeric text and other float", "99.99", 149.99, false},
		{"int64 and int", int64(3), 3, true},
		{"uuid text and uuid", recID.String(), recID, true},
		{"same instant in two zones", t0, t0.In(time.FixedZone("CET", 3600)), true},
		{"different instants", t0, t1, false},
		{"json text and map", `{"b": 2, "a": 1}`, map[string]any{"a": 1, "b": 2}, true},
		{"different maps", map[string]any{"a": 1}, map[string]any{"a": 2}, false},
		{"strings", "Widget", "Widget", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, sameValue(tt.a, tt.b))
		})
	}
}

func TestEncodeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil stays null", nil, nil},
		{"string", "Widget", `"Widget"`},
		{"number", 149.99, `149.99`},
		{"time in utc", t0.In(time.FixedZone("CET", 3600)), `"2026-03-01T09:00:00Z"`},
		{"bytes as text", []byte("abc"), `"abc"`},
		{"map", map[string]any{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeJSON(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	decoded, err := decodeJSON(`{"a":1}`)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": float64(1)}, decoded)
}
