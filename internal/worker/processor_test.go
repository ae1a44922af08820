package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Gather/internal/domain"
)

// --- NormalizePayload ---

func TestNormalizePayload_ObjectFieldsCopied(t *testing.T) {
	out, err := NormalizePayload("a", json.RawMessage(`{"repo":"gather","depth":2}`))
	require.NoError(t, err)

	assert.Equal(t, "gather", out["repo"])
	assert.Equal(t, json.Number("2"), out["depth"])
	assert.Equal(t, "a", out["serviceName"])
	assert.Len(t, out, 3)
}

func TestNormalizePayload_NonObjectWrapped(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"string", `"hello"`, "hello"},
		{"number", `42`, json.Number("42")},
		{"array", `[1,"x"]`, []any{json.Number("1"), "x"}},
		{"bool", `true`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NormalizePayload("b", json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out["payload"])
			assert.Equal(t, "b", out["serviceName"])
		})
	}
}

func TestNormalizePayload_NullGivesOnlyServiceName(t *testing.T) {
	for _, raw := range []string{`null`, ``} {
		out, err := NormalizePayload("a", json.RawMessage(raw))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"serviceName": "a"}, out)
	}
}

func TestNormalizePayload_ServiceNameOverridesPayloadField(t *testing.T) {
	out, err := NormalizePayload("a", json.RawMessage(`{"serviceName":"spoofed"}`))
	require.NoError(t, err)
	assert.Equal(t, "a", out["serviceName"])
}

func TestNormalizePayload_Invalid(t *testing.T) {
	_, err := NormalizePayload("a", json.RawMessage(`{"broken"`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestNormalizePayload_PreservesLargeNumbers(t *testing.T) {
	out, err := NormalizePayload("a", json.RawMessage(`{"id":12345678901234567890}`))
	require.NoError(t, err)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":12345678901234567890,"serviceName":"a"}`, string(data))
}

// --- DelayProcessor ---

func TestDelayProcessor_ZeroDelay(t *testing.T) {
	env := domain.Envelope{RequestID: "r1", Payload: json.RawMessage(`{"k":"v"}`)}

	out, err := DelayProcessor{}.Process(context.Background(), "a", env)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v", "serviceName": "a"}, out)
}

func TestDelayProcessor_DelayWithinRange(t *testing.T) {
	p := DelayProcessor{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := p.delay()
		assert.GreaterOrEqual(t, d, p.Min)
		assert.LessOrEqual(t, d, p.Max)
	}

	assert.Equal(t, 5*time.Millisecond, DelayProcessor{Min: 5 * time.Millisecond}.delay())
	assert.Zero(t, DelayProcessor{Min: -time.Second}.delay())
}

func TestDelayProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := DelayProcessor{Min: time.Hour, Max: time.Hour}
	_, err := p.Process(ctx, "a", domain.Envelope{RequestID: "r1"})
	assert.ErrorIs(t, err, context.Canceled)
}

// --- HTTPProcessor ---

func TestHTTPProcessor_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "r1", r.Header.Get("X-Request-Id"))

		var req analysisRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "r1", req.RequestID)
		assert.Equal(t, "sca", req.ServiceName)
		assert.JSONEq(t, `{"repo":"gather"}`, string(req.Payload))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"findings":["CVE-1"]}`))
	}))
	defer server.Close()

	p := &HTTPProcessor{Endpoint: server.URL}
	out, err := p.Process(context.Background(), "sca", domain.Envelope{
		RequestID: "r1",
		Payload:   json.RawMessage(`{"repo":"gather"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"CVE-1"}, out["findings"])
	assert.Equal(t, "sca", out["serviceName"])
}

func TestHTTPProcessor_NonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("no findings"))
	}))
	defer server.Close()

	p := &HTTPProcessor{Endpoint: server.URL}
	out, err := p.Process(context.Background(), "sca", domain.Envelope{RequestID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "no findings", out["payload"])
}

func TestHTTPProcessor_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	p := &HTTPProcessor{Endpoint: server.URL}
	_, err := p.Process(context.Background(), "sca", domain.Envelope{RequestID: "r1"})
	require.ErrorIs(t, err, ErrHTTPRequest)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestHTTPProcessor_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := &HTTPProcessor{Endpoint: server.URL, Timeout: 50 * time.Millisecond}
	_, err := p.Process(context.Background(), "sca", domain.Envelope{RequestID: "r1"})
	assert.ErrorIs(t, err, ErrHTTPRequest)
}

func TestHTTPProcessor_RequiresEndpoint(t *testing.T) {
	_, err := (&HTTPProcessor{}).Process(context.Background(), "sca", domain.Envelope{RequestID: "r1"})
	assert.ErrorIs(t, err, ErrHTTPRequest)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "hello...", truncate("hello world", 5))
}
