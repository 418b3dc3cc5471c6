package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionalFloat(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *float64
	}{
		{name: "number", raw: `-3.5`, want: Float64(-3.5)},
		{name: "integer", raw: `980`, want: Float64(980)},
		{name: "dot string", raw: `"12.25"`, want: Float64(12.25)},
		{name: "comma string", raw: `"-1,5"`, want: Float64(-1.5)},
		{name: "null", raw: `null`, want: nil},
		{name: "empty string", raw: `""`, want: nil},
		{name: "garbage", raw: `"n/a"`, want: nil},
		{name: "object", raw: `{"v":1}`, want: nil},
		{name: "missing", raw: ``, want: nil},
		{name: "nan string", raw: `"NaN"`, want: nil},
		{name: "inf string", raw: `"inf"`, want: nil},
		{name: "negative infinity string", raw: `"-Infinity"`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseOptionalFloat(json.RawMessage(tt.raw))
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestHasAny(t *testing.T) {
	assert.True(t, HasAny("iso-8859-15", "8859", "latin"))
	assert.False(t, HasAny("utf-8", "8859", "latin"))
	assert.False(t, HasAny("anything"))
}
