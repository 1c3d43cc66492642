package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

func TestNewRejectsEmptyContent(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := New(content, nil)
		require.Error(t, err, "content %q", content)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	}
}

func TestNewKeepsMetadata(t *testing.T) {
	e, err := New("eco-friendly lifestyle tips", Metadata{"platform": "instagram"})
	require.NoError(t, err)
	assert.Equal(t, "eco-friendly lifestyle tips", e.Content)
	assert.Equal(t, "instagram", e.Metadata["platform"])
}

func TestCloneDoesNotShareMetadata(t *testing.T) {
	e := Entry{Content: "x", Metadata: Metadata{"a": 1}}
	c := e.Clone()
	c.Metadata["a"] = 2
	assert.Equal(t, 1, e.Metadata["a"])
}

func TestCloneCopiesNestedMetadata(t *testing.T) {
	e := Entry{Content: "x", Metadata: Metadata{
		"author": map[string]any{"handle": "@eco"},
		"tags":   []any{"green", map[string]any{"weight": 1.0}},
	}}
	c := e.Clone()
	c.Metadata["author"].(map[string]any)["handle"] = "@other"
	c.Metadata["tags"].([]any)[0] = "brown"
	c.Metadata["tags"].([]any)[1].(map[string]any)["weight"] = 2.0

	assert.Equal(t, "@eco", e.Metadata["author"].(map[string]any)["handle"])
	assert.Equal(t, "green", e.Metadata["tags"].([]any)[0])
	assert.Equal(t, 1.0, e.Metadata["tags"].([]any)[1].(map[string]any)["weight"])

	e.Metadata["author"].(map[string]any)["handle"] = "@source"
	assert.Equal(t, "@other", c.Metadata["author"].(map[string]any)["handle"])
}

func TestDetectPlatform(t *testing.T) {
	cases := []struct {
		content string
		want    string
	}{
		{"new drop today #Instagram #ootd", "Instagram"},
		{"thanks @bob for the tip", "Twitter/X"},
		{"dance challenge #fyp", "TikTok"},
		{"discussion over at /r/golang", "Reddit"},
		{"read the post https://example.com/post", "Web/Blog"},
		{"quiet morning coffee", "Social Media"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectPlatform(tc.content), tc.content)
	}
}

func TestExtractDate(t *testing.T) {
	assert.Equal(t, "2024-05-01", ExtractDate(Entry{Content: "x", Metadata: Metadata{"date": "2024-05-01"}}))
	assert.Equal(t, "1714521600", ExtractDate(Entry{Content: "x", Metadata: Metadata{"timestamp": 1714521600}}))
	assert.Equal(t, "1700000000", ExtractDate(Entry{Content: "x", Metadata: Metadata{"timestamp": float64(1700000000)}}))
	assert.Equal(t, "1700000000.5", ExtractDate(Entry{Content: "x", Metadata: Metadata{"created_at": 1700000000.5}}))
	assert.Equal(t, "2023-12-24", ExtractDate(Entry{Content: "posted 2023-12-24 at noon"}))
	assert.Equal(t, "12/24/2023", ExtractDate(Entry{Content: "posted 12/24/2023"}))
	assert.Equal(t, "1/2/24", ExtractDate(Entry{Content: "posted 1/2/24"}))
	assert.Equal(t, "", ExtractDate(Entry{Content: "no date here"}))
}
