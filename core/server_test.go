package mortar

import (
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	s, err := NewServer(NewInterpreter(testParser), filepath.Join(dir, "mortar.sock"), "", filepath.Join(dir, "session"))
	require.NoError(t, err)
	return s
}

func request(t *testing.T, s *Server, msg map[string]any) map[string]any {
	t.Helper()
	resp := s.handleRequest(msg)
	require.Equal(t, msg["id"], resp["id"])
	return resp
}

func TestServerManual(t *testing.T) {
	s := newTestServer(t)
	defer s.Shutdown()

	resp := request(t, s, map[string]any{"id": "m"})
	assert.Equal(t, true, resp["ok"])
	manual := resp["value"].(map[string]any)
	assert.Contains(t, manual["ops"], "eval")
	assert.Contains(t, manual["builtins"], "len")
}

func TestServerEvalAndDefine(t *testing.T) {
	s := newTestServer(t)
	defer s.Shutdown()

	resp := request(t, s, map[string]any{"id": "1", "op": "define", "name": "sq", "expr": "x -> x * x"})
	require.Equal(t, true, resp["ok"], resp["error"])
	assert.Equal(t, map[string]any{"name": "sq", "value": "<fn(x)>"}, resp["value"])

	resp = request(t, s, map[string]any{"id": "2", "op": "eval", "expr": "[1, 2, 3] each sq"})
	require.Equal(t, true, resp["ok"], resp["error"])
	assert.Equal(t, []any{int64(1), int64(4), int64(9)}, resp["value"])

	resp = request(t, s, map[string]any{"id": "3", "op": "symbols"})
	assert.Equal(t, map[string]any{"sq": "x -> x * x"}, resp["value"])

	resp = request(t, s, map[string]any{"id": "4", "op": "eval", "expr": "sq(1"})
	assert.Equal(t, false, resp["ok"])
	assert.Contains(t, resp["error"], "unbalanced construct")

	resp = request(t, s, map[string]any{"id": "5", "op": "eval"})
	assert.Equal(t, "eval: missing 'expr' string", resp["error"])
}

func TestServerTreeAndTraces(t *testing.T) {
	s := newTestServer(t)
	defer s.Shutdown()

	resp := request(t, s, map[string]any{"id": "t", "op": "tree", "expr": "1 + 2"})
	assert.Equal(t, "E + E\n  num 1\n  num 2\n", resp["value"])

	request(t, s, map[string]any{"id": "a", "op": "eval", "expr": "1"})
	request(t, s, map[string]any{"id": "b", "op": "eval", "expr": "2"})

	resp = request(t, s, map[string]any{"id": "c", "op": "traces", "n": float64(1)})
	traces := resp["value"].([]any)
	require.Len(t, traces, 1)
	assert.Equal(t, "2", traces[0].(map[string]any)["source"])

	resp = request(t, s, map[string]any{"id": "d", "op": "traces", "n": "many"})
	assert.Equal(t, false, resp["ok"])

	resp = request(t, s, map[string]any{"id": "e", "op": "clear"})
	assert.Equal(t, true, resp["ok"])
	resp = request(t, s, map[string]any{"id": "f", "op": "traces"})
	assert.Empty(t, resp["value"])
}

func TestServerCountsRequests(t *testing.T) {
	s := newTestServer(t)
	defer s.Shutdown()

	request(t, s, map[string]any{"id": "1", "op": "eval", "expr": "1"})
	request(t, s, map[string]any{"id": "2", "op": "eval", "expr": "nope"})
	request(t, s, map[string]any{"id": "3", "op": "frobnicate"})

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.requests.WithLabelValues("eval", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.requests.WithLabelValues("eval", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.requests.WithLabelValues("unknown", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.metrics.evalSeconds))
}

func TestServerSocketRoundTrip(t *testing.T) {
	s := newTestServer(t)
	go s.Run()
	defer s.Shutdown()

	conn, err := net.Dial("unix", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	for _, tc := range []struct {
		msg  map[string]any
		want any
	}{
		{map[string]any{"id": "1", "op": "define", "name": "n", "expr": "6 * 7"}, map[string]any{"name": "n", "value": "42"}},
		{map[string]any{"id": "2", "op": "eval", "expr": "n / 2"}, float64(21)},
		{map[string]any{"id": "3", "op": "eval", "expr": `"a" + "b"`}, "ab"},
	} {
		require.NoError(t, WriteMsg(conn, tc.msg))
		resp, err := ReadMsg(conn)
		require.NoError(t, err)
		assert.Equal(t, tc.msg["id"], resp["id"])
		assert.Equal(t, true, resp["ok"], resp["error"])
		assert.Equal(t, tc.want, resp["value"])
	}
}

func TestServerRequestAfterShutdown(t *testing.T) {
	s := newTestServer(t)
	go s.Run()

	resp := s.sendToActor(map[string]any{"id": "1", "op": "eval", "expr": "1 + 1"})
	require.Equal(t, true, resp["ok"], resp["error"])

	s.Shutdown()
	assert.NotPanics(t, func() {
		resp = s.sendToActor(map[string]any{"id": "2", "op": "eval", "expr": "1"})
	})
	assert.Equal(t, map[string]any{"id": "2", "ok": false, "error": "server shutting down"}, resp)
}

func TestServerShutdownWhileClientsSend(t *testing.T) {
	s := newTestServer(t)
	go s.Run()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.sendToActor(map[string]any{"id": "x", "op": "eval", "expr": "1"})
			}
		}()
	}
	s.Shutdown()
	wg.Wait()
}
