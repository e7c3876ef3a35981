package stream

import (
	"reflect"
	"testing"
)

func TestNormalizeJSON(t *testing.T) {
	got := Normalize(`{"status":"created","count":2}`)
	want := map[string]any{"status": "created", "count": float64(2)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %#v, want %#v", got, want)
	}
}

func TestNormalizePythonLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{
			name: "dict with single quotes",
			in:   `{'status': 'created', 'ok': True}`,
			want: map[string]any{"status": "created", "ok": true},
		},
		{
			name: "nested dict",
			in:   `{'artifact': {'filename': 'a.md', 'size_bytes': 12}}`,
			want: map[string]any{"artifact": map[string]any{"filename": "a.md", "size_bytes": float64(12)}},
		},
		{
			name: "none and false",
			in:   `{'output': None, 'error': False}`,
			want: map[string]any{"output": nil, "error": false},
		},
		{
			name: "list",
			in:   `['a', 'b', 3]`,
			want: []any{"a", "b", float64(3)},
		},
		{
			name: "tuple decodes as list",
			in:   `('x', 1)`,
			want: []any{"x", float64(1)},
		},
		{
			name: "escaped quote",
			in:   `{'msg': 'it\'s done'}`,
			want: map[string]any{"msg": "it's done"},
		},
		{
			name: "float",
			in:   `{'ratio': 0.5}`,
			want: map[string]any{"ratio": 0.5},
		},
		{
			name: "trailing comma",
			in:   `{'a': 1,}`,
			want: map[string]any{"a": float64(1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizePassthrough(t *testing.T) {
	tests := []string{
		"plain text result",
		"",
		"{'broken': ",
		"not {a dict}",
		"[1, 2,, 3]",
	}
	for _, in := range tests {
		if got := Normalize(in); got != in {
			t.Errorf("Normalize(%q) = %#v, want the input back", in, got)
		}
	}
}

func TestNormalizeJSONString(t *testing.T) {
	// A JSON-encoded string decodes to its contents.
	if got := Normalize(`"quoted"`); got != "quoted" {
		t.Errorf("Normalize = %#v, want %q", got, "quoted")
	}
}
