// mortar-clock is a module that gives mortar programs the wall clock. It
// connects to the server's module socket and answers requests until the
// server hangs up.
//
//	send("mod:0", "now")[1][1]   # unix seconds
package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"
	_ "time/tzdata"

	mortar "github.com/rphilander/mortar/core"
)

// clock is overridden in tests.
var clock = time.Now

type handler func(req map[string]any) (any, error)

var handlers = map[string]handler{
	"now":    handleNow,
	"format": handleFormat,
	"parse":  handleParse,
	"add":    handleAdd,
	"diff":   handleDiff,
}

func stamp(t time.Time) map[string]any {
	return map[string]any{"unix": t.Unix(), "iso": t.UTC().Format(time.RFC3339)}
}

func handleNow(map[string]any) (any, error) {
	return stamp(clock()), nil
}

// handleFormat formats a unix time with a Go layout, in UTC unless a zone
// name is given.
func handleFormat(req map[string]any) (any, error) {
	unix, err := intField(req, "time")
	if err != nil {
		return nil, err
	}
	layout, err := stringField(req, "layout")
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if _, ok := req["zone"]; ok {
		name, err := stringField(req, "zone")
		if err != nil {
			return nil, err
		}
		if loc, err = time.LoadLocation(name); err != nil {
			return nil, fmt.Errorf("zone: %w", err)
		}
	}
	return time.Unix(unix, 0).In(loc).Format(layout), nil
}

func handleParse(req map[string]any) (any, error) {
	value, err := stringField(req, "value")
	if err != nil {
		return nil, err
	}
	layout, err := stringField(req, "layout")
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return t.Unix(), nil
}

func handleAdd(req map[string]any) (any, error) {
	unix, err := intField(req, "time")
	if err != nil {
		return nil, err
	}
	s, err := stringField(req, "duration")
	if err != nil {
		return nil, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}
	return stamp(time.Unix(unix, 0).Add(d)), nil
}

func handleDiff(req map[string]any) (any, error) {
	from, err := intField(req, "from")
	if err != nil {
		return nil, err
	}
	to, err := intField(req, "to")
	if err != nil {
		return nil, err
	}
	d := time.Unix(to, 0).Sub(time.Unix(from, 0))
	return map[string]any{"duration": d.String(), "seconds": int64(d.Seconds())}, nil
}

// JSON numbers arrive as float64.
func intField(req map[string]any, key string) (int64, error) {
	f, ok := req[key].(float64)
	if !ok {
		return 0, fmt.Errorf("missing number field: %s", key)
	}
	return int64(f), nil
}

func stringField(req map[string]any, key string) (string, error) {
	s, ok := req[key].(string)
	if !ok {
		return "", fmt.Errorf("missing string field: %s", key)
	}
	return s, nil
}

func manual() map[string]any {
	return map[string]any{
		"name": "clock",
		"ops": map[string]any{
			"now":    "Current time. Fields: none. Value: {iso, unix}",
			"format": "Format a unix time. Fields: time, layout (Go layout), zone (optional, e.g. Europe/Paris)",
			"parse":  "Parse a time string into unix seconds. Fields: value, layout",
			"add":    "Add a Go duration such as 2h30m to a unix time. Fields: time, duration",
			"diff":   "Difference between two unix times. Fields: from, to",
		},
	}
}

func respond(req map[string]any) map[string]any {
	resp := map[string]any{"id": req["id"]}
	op, _ := req["op"].(string)
	if op == "" {
		resp["ok"] = true
		resp["value"] = manual()
		return resp
	}
	h, ok := handlers[op]
	if !ok {
		resp["ok"] = false
		resp["error"] = fmt.Sprintf("unknown op: %s", op)
		return resp
	}
	value, err := h(req)
	if err != nil {
		resp["ok"] = false
		resp["error"] = fmt.Sprintf("%s: %v", op, err)
		return resp
	}
	resp["ok"] = true
	resp["value"] = value
	return resp
}

// serve answers requests on conn until it is closed.
func serve(conn net.Conn) error {
	for {
		req, err := mortar.ReadMsg(conn)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := mortar.WriteMsg(conn, respond(req)); err != nil {
			return err
		}
	}
}

func main() {
	sock := os.Getenv("MORTAR_MOD_SOCK")
	if sock == "" {
		sock = "/tmp/mortar-mod.sock"
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		log.Fatalf("mortar-clock: dial %s: %v", sock, err)
	}
	defer conn.Close()

	if err := serve(conn); err != nil {
		log.Fatalf("mortar-clock: %v", err)
	}
}
