package main

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mortar "github.com/rphilander/mortar/core"
)

const feb28 = 1709078400 // 2024-02-28T00:00:00Z

func TestHandleNow(t *testing.T) {
	clock = func() time.Time { return time.Unix(feb28, 0) }
	defer func() { clock = time.Now }()

	v, err := handleNow(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"unix": int64(feb28), "iso": "2024-02-28T00:00:00Z"}, v)
}

func TestHandlers(t *testing.T) {
	for _, tc := range []struct {
		name    string
		op      string
		req     map[string]any
		want    any
		wantErr string
	}{
		{"format date", "format", map[string]any{"time": float64(feb28), "layout": "2006-01-02"}, "2024-02-28", ""},
		{"format zone", "format", map[string]any{"time": float64(feb28), "layout": "15:04", "zone": "Asia/Tokyo"}, "09:00", ""},
		{"format bad zone", "format", map[string]any{"time": float64(feb28), "layout": "15:04", "zone": "Nowhere/Atlantis"}, nil, "zone"},
		{"format missing layout", "format", map[string]any{"time": float64(feb28)}, nil, "missing string field: layout"},
		{"parse", "parse", map[string]any{"value": "2024-02-28", "layout": "2006-01-02"}, int64(feb28), ""},
		{"parse bad value", "parse", map[string]any{"value": "February", "layout": "2006-01-02"}, nil, "parse"},
		{"add", "add", map[string]any{"time": float64(feb28), "duration": "2h30m"},
			map[string]any{"unix": int64(feb28 + 9000), "iso": "2024-02-28T02:30:00Z"}, ""},
		{"add bad duration", "add", map[string]any{"time": float64(feb28), "duration": "soon"}, nil, "duration"},
		{"diff", "diff", map[string]any{"from": float64(feb28), "to": float64(feb28 + 86400)},
			map[string]any{"duration": "24h0m0s", "seconds": int64(86400)}, ""},
		{"diff missing", "diff", map[string]any{"from": float64(feb28)}, nil, "missing number field: to"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := handlers[tc.op](tc.req)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRespond(t *testing.T) {
	resp := respond(map[string]any{"id": "1"})
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, manual(), resp["value"])

	resp = respond(map[string]any{"id": "2", "op": "tick"})
	assert.Equal(t, false, resp["ok"])
	assert.Equal(t, "unknown op: tick", resp["error"])

	resp = respond(map[string]any{"id": "3", "op": "parse"})
	assert.Equal(t, "parse: missing string field: value", resp["error"])
}

// The module attaches to a host and is usable from mortar programs.
func TestClockThroughHost(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "mod.sock")
	host, err := mortar.NewModuleHost(sock)
	require.NoError(t, err)
	go host.Serve()
	defer host.Close()

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	go serve(conn)
	defer conn.Close()
	require.Eventually(t, func() bool { return len(host.Modules()) == 1 }, 2*time.Second, 5*time.Millisecond)

	interp := mortar.NewInterpreter(mortar.MustParser(mortar.DefaultGrammar()))
	host.Bind(interp.Base)
	v, err := interp.Evaluate(`send("mod:0", "format", "time", 1709078400, "layout", "2006-01-02")`)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-28", v.String())

	v, err = interp.Evaluate(`send("mod:0", "diff", "from", 0, "to", 90)[1][1]`)
	require.NoError(t, err)
	assert.True(t, mortar.ValuesEqual(v, mortar.IntVal(90)))
}
