package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		partial map[string]any
		want    string
	}{
		{"overwrite", `{"a":1,"b":"x"}`, map[string]any{"a": 2}, `{"a":2,"b":"x"}`},
		{"add", `{"a":1}`, map[string]any{"c": true}, `{"a":1,"c":true}`},
		{"empty source", ``, map[string]any{"a": "v"}, `{"a":"v"}`},
		{"nil value", `{"a":1}`, map[string]any{"a": nil}, `{"a":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge([]byte(tt.data), tt.partial)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestMergeInvalid(t *testing.T) {
	_, err := Merge([]byte(`[1,2]`), map[string]any{"a": 1})
	assert.Error(t, err)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
