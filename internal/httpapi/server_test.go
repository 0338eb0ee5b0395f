package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/shardline/pkg/shard"
	"github.com/bft-labs/shardline/pkg/shardline"
)

type fakeSource struct {
	state shardline.State
	info  []shard.Info
}

func (f fakeSource) Status() shardline.State { return f.state }
func (f fakeSource) Info() []shard.Info      { return f.info }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		state shardline.State
		code  int
	}{
		{shardline.StateRunning, http.StatusOK},
		{shardline.StateStarting, http.StatusServiceUnavailable},
		{shardline.StateStopped, http.StatusServiceUnavailable},
		{shardline.StateCrashed, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			rec := get(t, Router(fakeSource{state: tt.state}, nil), "/healthz")
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.state.String())
		})
	}
}

func TestShards(t *testing.T) {
	src := fakeSource{
		state: shardline.StateRunning,
		info: []shard.Info{
			{Index: 0, Total: 2, Phase: "Ready", SessionID: "abc", Sequence: 7, Resumable: true},
			{Index: 1, Total: 2, Phase: "Connecting"},
		},
	}
	h := Router(src, nil)

	rec := get(t, h, "/shards")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "Ready", all[0]["phase"])
	assert.Equal(t, "abc", all[0]["session_id"])

	rec = get(t, h, "/shards/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var one map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "Connecting", one["phase"])

	assert.Equal(t, http.StatusNotFound, get(t, h, "/shards/9").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/shards/x").Code)
}

func TestShards_EmptyIsArray(t *testing.T) {
	rec := get(t, Router(fakeSource{state: shardline.StateStopped}, nil), "/shards")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "shardline", Name: "test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec := get(t, Router(fakeSource{}, reg), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shardline_test_total 1")

	assert.Equal(t, http.StatusNotFound, get(t, Router(fakeSource{}, nil), "/metrics").Code)
}
