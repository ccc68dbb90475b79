package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"meterwire/internal/config"
	"meterwire/internal/engine"
	"meterwire/internal/protocol"
	"meterwire/internal/requester"
)

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Offers: []config.OfferConfig{
			{
				ModelID:          "stub-small",
				ContextSize:      8192,
				InputTokenPrice:  config.PriceConfig{Pol: "500000000000"},
				OutputTokenPrice: config.PriceConfig{Pol: "1500000000000"},
			},
			{
				ModelID:          "stub-trial",
				ContextSize:      8192,
				InputTokenPrice:  config.PriceConfig{Pol: "500000000000"},
				OutputTokenPrice: config.PriceConfig{Pol: "1500000000000"},
				Trial:            &config.PriceConfig{Pol: "999999999999999999"},
			},
		},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, config.Config) {
	t.Helper()
	cfg := testConfig()

	registry := engine.NewRegistry()
	stub := engine.NewStub()
	for _, oc := range cfg.Offers {
		require.NoError(t, registry.Register(oc.Offer(), stub))
	}

	srv, err := New(cfg, registry)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, cfg
}

func TestGateway_Health(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, protocol.ProtocolID, body["protocol"])
}

func TestGateway_CompletionsVerifiedExchange(t *testing.T) {
	ts, cfg := newTestServer(t)
	client := requester.New(ts.URL)

	result, err := client.Do(context.Background(), cfg.Offers[0].Offer(),
		[]byte(`{"model":"stub-small","prompt":"say hi"}`))
	require.NoError(t, err)

	require.False(t, result.Rejected)
	require.True(t, result.Prologue.Ok())
	require.NotEmpty(t, result.Prologue.ProviderJobID)
	require.Equal(t, "stub completion for stub-small", result.Text)
	require.NotNil(t, result.Usage)
	require.NotNil(t, result.Epilogue)
	require.NotNil(t, result.Epilogue.BalanceDelta)
	require.Equal(t, result.LocalCost, *result.Epilogue.BalanceDelta)
}

func TestGateway_ChatStreamingVerifiedExchange(t *testing.T) {
	ts, cfg := newTestServer(t)
	client := requester.New(ts.URL)

	body := `{"model":"stub-small","messages":[{"role":"user","content":"hi"}],"stream":true}`
	result, err := client.Do(context.Background(), cfg.Offers[0].Offer(), []byte(body))
	require.NoError(t, err)

	require.False(t, result.Rejected)
	require.Equal(t, "stub reply from stub-small", result.Text)
	require.NotNil(t, result.Epilogue)
	require.Equal(t, result.LocalCost, *result.Epilogue.BalanceDelta)
}

func TestGateway_CompletionsStreaming(t *testing.T) {
	ts, cfg := newTestServer(t)
	client := requester.New(ts.URL)

	body := `{"model":"stub-small","prompt":"say hi","stream":true,"stream_options":{"include_usage":true}}`
	result, err := client.Do(context.Background(), cfg.Offers[0].Offer(), []byte(body))
	require.NoError(t, err)
	require.Equal(t, "stub completion for stub-small", result.Text)
}

func TestGateway_ChatNonStreaming(t *testing.T) {
	ts, cfg := newTestServer(t)
	client := requester.New(ts.URL)

	body := `{"model":"stub-small","messages":[{"role":"user","content":"hi"}]}`
	result, err := client.Do(context.Background(), cfg.Offers[0].Offer(), []byte(body))
	require.NoError(t, err)
	require.Equal(t, "stub reply from stub-small", result.Text)
	require.NotNil(t, result.Usage)
}

func TestGateway_TrialCoversCharge(t *testing.T) {
	ts, cfg := newTestServer(t)
	client := requester.New(ts.URL)

	result, err := client.Do(context.Background(), cfg.Offers[1].Offer(),
		[]byte(`{"model":"stub-trial","prompt":"p"}`))
	require.NoError(t, err)
	require.NotNil(t, result.Epilogue)
	require.Nil(t, result.Epilogue.BalanceDelta)
	require.NotEmpty(t, result.LocalCost)
}

func TestGateway_UnknownModelRejected(t *testing.T) {
	ts, cfg := newTestServer(t)
	client := requester.New(ts.URL)

	result, err := client.Do(context.Background(), cfg.Offers[0].Offer(),
		[]byte(`{"model":"ghost","prompt":"p"}`))
	require.NoError(t, err)
	require.True(t, result.Rejected)
	require.Equal(t, protocol.StatusProtocolViolation, result.Prologue.Status)
	require.Nil(t, result.Epilogue)
}

func TestGateway_SchemaViolationRejectedInBand(t *testing.T) {
	ts, _ := newTestServer(t)

	// A body that fails validation still gets HTTP 200; the rejection
	// travels as a prologue frame.
	resp, err := http.Post(ts.URL+"/v1/completions", "application/json",
		strings.NewReader(`{"model":"stub-small"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var frame protocol.ResponsePrologue
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&frame))
	require.Equal(t, protocol.StatusProtocolViolation, frame.Status)
	require.Contains(t, frame.Message, "prompt")
}

func TestGateway_StreamingRejectionUsesSSE(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"stub-small","stream":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
}

func TestGateway_EmptyBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/completions", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSplitDeltas_CoversWholeText(t *testing.T) {
	text := "one two three four five six seven"
	var joined string
	pieces := splitDeltas(text)
	require.Greater(t, len(pieces), 1)
	for _, p := range pieces {
		joined += p
	}
	require.Equal(t, text, joined)
}

func TestNewID_PrefixedAndUnique(t *testing.T) {
	a := newID("job")
	b := newID("job")
	require.True(t, strings.HasPrefix(a, "job_"))
	require.NotEqual(t, a, b)
}
