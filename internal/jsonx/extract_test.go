package jsonx

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBareObject(t *testing.T) {
	v, ok := Extract(`{"category": "PAPER", "id": 1}`, false)
	require.True(t, ok)
	m := v.(map[string]any)
	assert.Equal(t, "PAPER", m["category"])
	assert.Equal(t, float64(1), m["id"])
}

func TestExtractBareArray(t *testing.T) {
	v, ok := Extract(`[{"id": 1, "category": "PAPER"}, {"id": 2, "category": "TRASH"}]`, true)
	require.True(t, ok)
	assert.Len(t, v.([]any), 2)
}

func TestExtractFencedBlock(t *testing.T) {
	text := "Here is the result:\n```json\n{\"category\": \"BILLING\", \"importance\": 3}\n```\n"
	v, ok := Extract(text, false)
	require.True(t, ok)
	assert.Equal(t, "BILLING", v.(map[string]any)["category"])
}

func TestExtractSecondFenceWhenFirstInvalid(t *testing.T) {
	text := "```\nnot json\n```\nthen\n```python\n[1, 2]\n```"
	v, ok := Extract(text, true)
	require.True(t, ok)
	assert.Equal(t, []any{float64(1), float64(2)}, v)
}

func TestExtractSurroundingProse(t *testing.T) {
	v, ok := Extract(`Based on my analysis, the result is {"category": "NOTICE"} and that is my conclusion.`, false)
	require.True(t, ok)
	assert.Equal(t, "NOTICE", v.(map[string]any)["category"])
}

func TestExtractArraySpanWithProse(t *testing.T) {
	v, ok := Extract("分类结果如下：[{\"id\":1,\"category\":\"EXAM\"}] 以上。", true)
	require.True(t, ok)
	arr := v.([]any)
	require.Len(t, arr, 1)
	assert.Equal(t, "EXAM", arr[0].(map[string]any)["category"])
}

func TestExtractNested(t *testing.T) {
	v, ok := Extract(`{"item": {"title": "Test", "status": "pending"}, "classification": {"category": "PAPER"}}`, false)
	require.True(t, ok)
	m := v.(map[string]any)
	assert.Equal(t, "Test", m["item"].(map[string]any)["title"])
}

func TestExtractNoResult(t *testing.T) {
	for _, text := range []string{"", "   ", "This is not JSON at all", "{broken", "] backwards ["} {
		_, ok := Extract(text, true)
		assert.False(t, ok, text)
		_, ok = Extract(text, false)
		assert.False(t, ok, text)
	}
}

func TestExtractRoundTrip(t *testing.T) {
	values := []any{
		map[string]any{"id": float64(1), "category": "PAPER"},
		[]any{map[string]any{"id": float64(2), "category": "TRASH"}, map[string]any{"id": float64(3)}},
		map[string]any{"item": map[string]any{"title": "审稿邀请", "source_emails": []any{float64(1)}}, "classification": nil},
		[]any{},
	}

	for _, v := range values {
		blob, err := json.Marshal(v)
		require.NoError(t, err)
		_, isArray := v.([]any)

		wrappers := []string{
			"```json\n" + string(blob) + "\n```",
			"```\n" + string(blob) + "\n```",
			"Sure! Here you go: " + string(blob) + " Let me know if you need more.",
			"分析完成。\n" + string(blob) + "\n谢谢",
		}
		for _, w := range wrappers {
			got, ok := Extract(w, isArray)
			require.True(t, ok, w)
			assert.Equal(t, v, got, w)
		}
	}
}

func TestExtractInto(t *testing.T) {
	var out []struct {
		ID       int    `json:"id"`
		Category string `json:"category"`
	}
	ok := ExtractInto("```json\n[{\"id\": 4, \"category\": \"review\"}]\n```", true, &out)
	require.True(t, ok)
	require.Len(t, out, 1)
	assert.Equal(t, 4, out[0].ID)
}
