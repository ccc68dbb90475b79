package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"meterwire/internal/protocol"
)

func decodeOneMessage(t *testing.T, body string) (Message, protocol.Violations) {
	t.Helper()
	var v protocol.Violations
	m, _ := DecodeMessage(json.RawMessage(body), "messages[0]", &v)
	return m, v
}

func TestDecodeMessage_UserStringContent(t *testing.T) {
	m, v := decodeOneMessage(t, `{"role":"user","content":"hello"}`)
	require.NoError(t, v.OrNil())
	require.Equal(t, RoleUser, m.Role)
	require.True(t, m.Content.IsText())
	require.Equal(t, "hello", m.Content.Text())
}

func TestDecodeMessage_UserPartsContent(t *testing.T) {
	m, v := decodeOneMessage(t, `{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`)
	require.NoError(t, v.OrNil())
	require.False(t, m.Content.IsText())
	require.Len(t, m.Content.Parts(), 2)
	require.Equal(t, "ab", m.Content.Text())
}

func TestDecodeMessage_UnknownRole(t *testing.T) {
	_, v := decodeOneMessage(t, `{"role":"narrator","content":"x"}`)
	require.Error(t, v.OrNil())
	require.Equal(t, "messages[0].role", v[0].Path)
}

func TestDecodeMessage_ToolRequiresToolCallID(t *testing.T) {
	m, v := decodeOneMessage(t, `{"role":"tool","content":"result","tool_call_id":"call_1"}`)
	require.NoError(t, v.OrNil())
	require.Equal(t, "call_1", m.ToolCallID)

	_, v = decodeOneMessage(t, `{"role":"tool","content":"result"}`)
	require.Error(t, v.OrNil())
}

func TestDecodeMessage_FieldsOfOtherVariantsRejected(t *testing.T) {
	// tool_call_id belongs to the tool variant only.
	_, v := decodeOneMessage(t, `{"role":"assistant","content":"x","tool_call_id":"call_1"}`)
	require.Error(t, v.OrNil())

	// tool_calls belongs to the assistant variant only.
	_, v = decodeOneMessage(t, `{"role":"user","content":"x","tool_calls":[]}`)
	require.Error(t, v.OrNil())

	// name is not part of the tool variant.
	_, v = decodeOneMessage(t, `{"role":"tool","content":"x","tool_call_id":"c","name":"n"}`)
	require.Error(t, v.OrNil())
}

func TestDecodeMessage_TrueUnknownFieldsTolerated(t *testing.T) {
	// Keys outside every variant's field set pass through untouched.
	_, v := decodeOneMessage(t, `{"role":"user","content":"x","audio_hint":"fast"}`)
	require.NoError(t, v.OrNil())
}

func TestDecodeMessage_AssistantToolCalls(t *testing.T) {
	body := `{
		"role": "assistant",
		"content": null,
		"tool_calls": [{
			"id": "call_1",
			"type": "function",
			"function": {"name": "get_weather", "arguments": "{\"city\":\"Oslo\"}"}
		}]
	}`
	m, v := decodeOneMessage(t, body)
	require.NoError(t, v.OrNil())
	require.Len(t, m.ToolCalls, 1)
	require.Equal(t, "get_weather", m.ToolCalls[0].Function.Name)
}

func TestDecodeMessage_FunctionRoleStringContentOnly(t *testing.T) {
	m, v := decodeOneMessage(t, `{"role":"function","content":"result","name":"fn"}`)
	require.NoError(t, v.OrNil())
	require.Equal(t, "fn", *m.Name)

	_, v = decodeOneMessage(t, `{"role":"function","content":[{"type":"text","text":"x"}],"name":"fn"}`)
	require.Error(t, v.OrNil())
}

func TestDecodeMessage_RefusalPartsAssistantOnly(t *testing.T) {
	_, v := decodeOneMessage(t, `{"role":"assistant","content":[{"type":"refusal","refusal":"no"}]}`)
	require.NoError(t, v.OrNil())

	_, v = decodeOneMessage(t, `{"role":"user","content":[{"type":"refusal","refusal":"no"}]}`)
	require.Error(t, v.OrNil())
}

func TestDecodeMessage_SharedAccumulator(t *testing.T) {
	// A message is only reported valid when it added nothing to an
	// accumulator that already held earlier violations.
	v := protocol.Violations{{Path: "messages[0].role", Constraint: "unknown role"}}
	_, ok := DecodeMessage(json.RawMessage(`{"role":"user","content":"fine"}`), "messages[1]", &v)
	require.True(t, ok)
	require.Len(t, v, 1)
}

func TestContent_MarshalPreservesShape(t *testing.T) {
	data, err := json.Marshal(TextContent("hi"))
	require.NoError(t, err)
	require.JSONEq(t, `"hi"`, string(data))

	data, err = json.Marshal(PartsContent(ContentPart{Type: PartText, Text: "hi"}))
	require.NoError(t, err)
	require.JSONEq(t, `[{"type":"text","text":"hi"}]`, string(data))
}
