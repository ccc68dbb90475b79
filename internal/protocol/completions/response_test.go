package completions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"meterwire/internal/protocol"
)

func TestParseResponse_Full(t *testing.T) {
	body := `{
		"id": "cmpl-1",
		"object": "text_completion",
		"created": 1700000000,
		"model": "stub-small",
		"choices": [{"index": 0, "text": "hello", "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
	}`
	r, err := ParseResponse([]byte(body))
	require.NoError(t, err)
	require.Equal(t, "cmpl-1", r.ID)
	require.Len(t, r.Choices, 1)
	require.Equal(t, "hello", r.Choices[0].Text)
	require.Equal(t, protocol.FinishReasonStop, r.Choices[0].FinishReason)
	require.Equal(t, 5, r.Usage.TotalTokens)
}

func TestParseResponse_WrongObjectTag(t *testing.T) {
	_, err := ParseResponse([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	require.Error(t, err)
}

func TestParseResponse_FinishReasonRequired(t *testing.T) {
	_, err := ParseResponse([]byte(`{"id":"x","object":"text_completion","created":1,"model":"m","choices":[{"index":0,"text":"t"}]}`))
	require.Error(t, err)
}

func TestParseChunk_NullFinishReason(t *testing.T) {
	body := `{
		"id": "cmpl-1",
		"object": "text_completion",
		"created": 1700000000,
		"model": "stub-small",
		"choices": [{"index": 0, "text": "he", "finish_reason": null}]
	}`
	c, err := ParseChunk([]byte(body))
	require.NoError(t, err)
	require.Len(t, c.Choices, 1)
	require.Nil(t, c.Choices[0].FinishReason)
	require.Nil(t, c.Usage)
}

func TestParseChunk_FinalChunkCarriesUsage(t *testing.T) {
	body := `{
		"id": "cmpl-1",
		"object": "text_completion",
		"created": 1700000000,
		"model": "stub-small",
		"choices": [{"index": 0, "text": "", "finish_reason": "length"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
	}`
	c, err := ParseChunk([]byte(body))
	require.NoError(t, err)
	require.Equal(t, protocol.FinishReasonLength, *c.Choices[0].FinishReason)
	require.Equal(t, 30, c.Usage.TotalTokens)
}

func TestParseChunk_FinishReasonKeyRequired(t *testing.T) {
	_, err := ParseChunk([]byte(`{"id":"x","object":"text_completion","created":1,"model":"m","choices":[{"index":0,"text":"t"}]}`))
	require.Error(t, err)
}

func TestParseResponse_RoundTripIdempotent(t *testing.T) {
	body := `{
		"id": "cmpl-1",
		"object": "text_completion",
		"created": 1700000000,
		"model": "stub-small",
		"choices": [{"index": 0, "text": "hello", "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
	}`
	first, err := ParseResponse([]byte(body))
	require.NoError(t, err)

	data, err := json.Marshal(first)
	require.NoError(t, err)

	second, err := ParseResponse(data)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
