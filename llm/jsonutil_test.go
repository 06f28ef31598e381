package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare object",
			content: `{"process_name": "Orders"}`,
			want:    `{"process_name": "Orders"}`,
		},
		{
			name:    "markdown code block",
			content: "Here is the document:\n```json\n{\"elements\": []}\n```\nDone.",
			want:    `{"elements": []}`,
		},
		{
			name:    "code block without language tag",
			content: "```\n{\"a\": 1}\n```",
			want:    `{"a": 1}`,
		},
		{
			name:    "prose around bare object",
			content: "Sure! {\"a\": 1} Hope that helps.",
			want:    `{"a": 1}`,
		},
		{
			name:    "trailing comma removed",
			content: `{"elements": [1, 2,],}`,
			want:    `{"elements": [1, 2]}`,
		},
		{
			name:    "no json at all",
			content: "I cannot produce a diagram for that.",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.content))
		})
	}
}

func TestExtractJSONStripsCommentsOutsideStrings(t *testing.T) {
	content := `{
	"url": "http://example.com/path", // keep the URL intact
	"name": "x" // trailing comment
}`

	got := ExtractJSON(content)
	var parsed map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &parsed))
	assert.Equal(t, "http://example.com/path", parsed["url"])
	assert.Equal(t, "x", parsed["name"])
}

func TestStripLineCommentRespectsEscapes(t *testing.T) {
	line := `"quote \" inside", // gone`
	assert.Equal(t, `"quote \" inside",`, stripLineComment(line))
}
