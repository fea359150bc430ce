package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwwdict/internal/lww"
	"lwwdict/internal/payload"
)

func newAdminNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(testConfig("n1", "n2"), log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(n.Stop)
	return n
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestAdmin_Health(t *testing.T) {
	n := newAdminNode(t)

	rr := doRequest(t, n.AdminHandler(), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "n1", body["node"])
}

func TestAdmin_StateAndKeys(t *testing.T) {
	n := newAdminNode(t)
	ctx := context.Background()

	attrs, err := payload.FromMap(map[string]any{"name": "alice"})
	require.NoError(t, err)

	require.NoError(t, n.Service().Add(ctx, "user", lww.NewRecord(attrs, 1)))
	require.NoError(t, n.Service().Add(ctx, "raw", lww.NewRecord([]byte{0xff, 0x00}, 1)))
	require.NoError(t, n.Service().Add(ctx, "gone", lww.NewRecord(nil, 1)))
	require.NoError(t, n.Service().Remove(ctx, "gone", 2))

	h := n.AdminHandler()

	rr := doRequest(t, h, http.MethodGet, "/state")
	require.Equal(t, http.StatusOK, rr.Code)

	var st stateJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.Equal(t, "n1", st.Node)
	assert.Len(t, st.Add, 3)
	require.Len(t, st.Remove, 1)
	assert.Equal(t, "gone", st.Remove[0].Key)
	assert.Equal(t, int64(2), st.Remove[0].Timestamp)

	rr = doRequest(t, h, http.MethodGet, "/keys/user")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"alice"`)

	rr = doRequest(t, h, http.MethodGet, "/keys/raw")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"payload":"/wA="`)

	rr = doRequest(t, h, http.MethodGet, "/keys/gone")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdmin_Peers(t *testing.T) {
	n := newAdminNode(t)

	rr := doRequest(t, n.AdminHandler(), http.MethodGet, "/peers")
	require.Equal(t, http.StatusOK, rr.Code)

	var peers []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &peers))
	require.Len(t, peers, 1)
	assert.Equal(t, "n2", peers[0]["id"])
	assert.Equal(t, "ALIVE", peers[0]["status"])
}

func TestAdmin_Metrics(t *testing.T) {
	n := newAdminNode(t)
	ctx := context.Background()

	require.NoError(t, n.Service().Add(ctx, "k", lww.NewRecord(nil, 1)))
	_, _ = n.Service().Lookup(ctx, "k")
	_ = n.Service().Add(ctx, "", lww.NewRecord(nil, 1))

	rr := doRequest(t, n.AdminHandler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, `lwwdict_service_requests_total{error="false",method="add"} 1`)
	assert.Contains(t, body, `lwwdict_service_requests_total{error="true",method="add"} 1`)
	assert.Contains(t, body, `lwwdict_service_requests_total{error="false",method="lookup"} 1`)
	assert.Contains(t, body, "lwwdict_replica_visible_keys 1")
	assert.True(t, strings.Contains(body, "go_goroutines"), "runtime collectors should be registered")
}

func TestAdmin_SyncWithoutReachablePeers(t *testing.T) {
	n := newAdminNode(t)

	rr := doRequest(t, n.AdminHandler(), http.MethodPost, "/sync")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body["failed"], "n2")
}
