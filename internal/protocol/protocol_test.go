package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeTestObject(t *testing.T, payload string, v *Violations) Object {
	t.Helper()
	o, ok := DecodeObject([]byte(payload), "", v)
	require.True(t, ok)
	return o
}

func TestDecodeStop_PreservesWireShape(t *testing.T) {
	var v Violations
	o := decodeTestObject(t, `{"single":"\n","list":["a","b"]}`, &v)

	single := DecodeStop(o, "single")
	require.Equal(t, []string{"\n"}, single.Values())
	data, err := json.Marshal(single)
	require.NoError(t, err)
	require.JSONEq(t, `"\n"`, string(data))

	list := DecodeStop(o, "list")
	require.Equal(t, []string{"a", "b"}, list.Values())
	data, err = json.Marshal(list)
	require.NoError(t, err)
	require.JSONEq(t, `["a","b"]`, string(data))

	require.NoError(t, v.OrNil())
}

func TestDecodeStop_RejectsOtherShapes(t *testing.T) {
	var v Violations
	o := decodeTestObject(t, `{"stop":5}`, &v)

	require.Nil(t, DecodeStop(o, "stop"))
	require.Error(t, v.OrNil())
}

func TestDecodeStreamOptions_IncludeUsageRequired(t *testing.T) {
	var v Violations
	o := decodeTestObject(t, `{"good":{"include_usage":true},"bad":{}}`, &v)

	so := DecodeStreamOptions(o, "good")
	require.NotNil(t, so)
	require.True(t, so.IncludeUsage)
	require.NoError(t, v.OrNil())

	require.Nil(t, DecodeStreamOptions(o, "bad"))
	require.Error(t, v.OrNil())
}

func TestDecodeNullableFinishReason_NullIsLegal(t *testing.T) {
	var v Violations
	o := decodeTestObject(t, `{"finish_reason":null}`, &v)

	f, ok := DecodeNullableFinishReason(o, "finish_reason")
	require.True(t, ok)
	require.Nil(t, f)
	require.NoError(t, v.OrNil())
}

func TestDecodeFinishReason_ClosedSet(t *testing.T) {
	var v Violations
	o := decodeTestObject(t, `{"finish_reason":"ran_out_of_ideas"}`, &v)

	_, ok := DecodeFinishReason(o, "finish_reason")
	require.False(t, ok)
	require.Error(t, v.OrNil())
}

func TestDecodeUsage_EnumeratesNegativeCounts(t *testing.T) {
	var v Violations
	_, ok := DecodeUsage([]byte(`{"prompt_tokens":-1,"completion_tokens":-2,"total_tokens":-3}`), "usage", &v)
	require.True(t, ok)
	require.Len(t, v, 3)
	require.Equal(t, "usage.prompt_tokens", v[0].Path)
}

func TestDecodeUsage_RejectsFractionalCounts(t *testing.T) {
	var v Violations
	DecodeUsage([]byte(`{"prompt_tokens":1.5,"completion_tokens":2,"total_tokens":3}`), "", &v)
	require.Error(t, v.OrNil())
}

func TestDecodeObject_ExplicitNullEqualsAbsent(t *testing.T) {
	var v Violations
	o := decodeTestObject(t, `{"temperature":null}`, &v)

	require.Nil(t, o.OptFloat("temperature"))
	require.NoError(t, v.OrNil())
	require.True(t, o.Has("temperature"))
}
