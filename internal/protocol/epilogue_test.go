package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEpilogue_WithCharge(t *testing.T) {
	e, err := ParseEpilogue([]byte(`{"public_payload":"{}","balance_delta":"1125000000","completed_at_sync":7}`))
	require.NoError(t, err)
	require.Equal(t, "{}", e.PublicPayload)
	require.NotNil(t, e.BalanceDelta)
	require.Equal(t, "1125000000", *e.BalanceDelta)
	require.Equal(t, int64(7), e.CompletedAtSync)
}

func TestParseEpilogue_NullBalanceDelta(t *testing.T) {
	e, err := ParseEpilogue([]byte(`{"public_payload":"{}","balance_delta":null,"completed_at_sync":7}`))
	require.NoError(t, err)
	require.Nil(t, e.BalanceDelta)
}

func TestParseEpilogue_BalanceDeltaKeyRequired(t *testing.T) {
	// The key must be present even though its value may be null.
	_, err := ParseEpilogue([]byte(`{"public_payload":"{}","completed_at_sync":7}`))
	require.Error(t, err)
}

func TestParseEpilogue_BalanceDeltaMustBeIntegerString(t *testing.T) {
	for _, bad := range []string{`"1.5"`, `"abc"`, `125`, `""`} {
		_, err := ParseEpilogue([]byte(`{"public_payload":"{}","balance_delta":` + bad + `,"completed_at_sync":7}`))
		require.Error(t, err, "balance_delta %s", bad)
	}

	// A negative delta (a refund) is a legal integer string.
	e, err := ParseEpilogue([]byte(`{"public_payload":"{}","balance_delta":"-10","completed_at_sync":7}`))
	require.NoError(t, err)
	require.Equal(t, "-10", *e.BalanceDelta)
}

func TestParseEpilogueChunk_RequiresObjectTag(t *testing.T) {
	c, err := ParseEpilogueChunk([]byte(`{"object":"derouter.epilogue","public_payload":"{}","balance_delta":"5","completed_at_sync":9}`))
	require.NoError(t, err)
	require.Equal(t, EpilogueObject, c.Object)
	require.Equal(t, "5", *c.Epilogue().BalanceDelta)

	_, err = ParseEpilogueChunk([]byte(`{"object":"something.else","public_payload":"{}","balance_delta":"5","completed_at_sync":9}`))
	require.Error(t, err)
}

func TestEpilogueChunk_RoundTrip(t *testing.T) {
	delta := "42"
	chunk := NewEpilogueChunk(Epilogue{PublicPayload: "{}", BalanceDelta: &delta, CompletedAtSync: 3})

	data, err := json.Marshal(chunk)
	require.NoError(t, err)

	parsed, err := ParseEpilogueChunk(data)
	require.NoError(t, err)
	require.Equal(t, chunk, *parsed)
}
