package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"meterwire/internal/protocol"
)

func TestNewPublicPayload_ExcludesMessagesAndTools(t *testing.T) {
	r, err := ParseRequest([]byte(`{
		"model": "stub-small",
		"messages": [{"role":"user","content":"a private question"}],
		"tools": [{"type":"function","function":{"name":"secret_tool"}}],
		"temperature": 0.5
	}`))
	require.NoError(t, err)

	usage := protocol.Usage{PromptTokens: 9, CompletionTokens: 4, TotalTokens: 13}
	encoded, err := NewPublicPayload(r, usage).Encode()
	require.NoError(t, err)

	require.NotContains(t, encoded, "a private question")
	require.NotContains(t, encoded, "secret_tool")
	require.NotContains(t, encoded, "messages")
	require.Contains(t, encoded, `"temperature":0.5`)
}

func TestNewPublicPayload_CarriesSamplingParameters(t *testing.T) {
	r, err := ParseRequest([]byte(`{
		"model": "stub-small",
		"messages": [{"role":"user","content":"x"}],
		"max_completion_tokens": 256,
		"reasoning_effort": "low",
		"response_format": {"type":"text"},
		"stream": true
	}`))
	require.NoError(t, err)

	usage := protocol.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}
	encoded, err := NewPublicPayload(r, usage).Encode()
	require.NoError(t, err)

	var p PublicPayload
	require.NoError(t, json.Unmarshal([]byte(encoded), &p))
	require.Equal(t, 256, *p.Request.MaxCompletionTokens)
	require.Equal(t, "low", *p.Request.ReasoningEffort)
	require.Equal(t, "text", p.Request.ResponseFormat.Type)
	require.True(t, *p.Request.Stream)
	require.Equal(t, usage, p.Response.Usage)
}
