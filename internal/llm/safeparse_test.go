package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"upper tag", "```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"no tag", "```\n[1,2]\n```", `[1,2]`},
		{"other tag", "```javascript\n{\"a\":1}```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json {\"a\":1} ```\n ", `{"a":1}`},
		{"unterminated", "```json\n{\"a\":1}", `{"a":1}`},
		{"text untouched", "just words", "just words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestDecodeJSON_Object(t *testing.T) {
	d := DecodeJSON("```json\n{\"summary\": \"x\", \"topics\": [\"legal\"]}\n```")
	require.True(t, d.OK)
	obj, ok := d.Object()
	require.True(t, ok)
	assert.Equal(t, "x", obj["summary"])
	assert.Equal(t, []any{"legal"}, obj["topics"])
}

func TestDecodeJSON_NonObject(t *testing.T) {
	d := DecodeJSON(`["a","b"]`)
	require.True(t, d.OK)
	_, ok := d.Object()
	assert.False(t, ok)
}

func TestDecodeJSON_Malformed(t *testing.T) {
	for _, raw := range []string{"not json", `{"a":1} trailing`, "", "```json\n{broken\n```"} {
		d := DecodeJSON(raw)
		assert.False(t, d.OK, raw)
		assert.Nil(t, d.Value, raw)
		_, ok := d.Object()
		assert.False(t, ok, raw)
	}
	assert.Equal(t, "{broken", DecodeJSON("```json\n{broken\n```").Cleaned)
}
