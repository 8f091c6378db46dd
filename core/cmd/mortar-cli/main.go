package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	mortar "github.com/rphilander/mortar/core"
)

// mortar-cli sends one JSON request read from stdin to the server and prints
// the response. With arguments, it sends them as an eval request instead.
func main() {
	sockPath := os.Getenv("MORTAR_SOCK")
	if sockPath == "" {
		sockPath = "/tmp/mortar.sock"
	}

	var msg map[string]any
	if len(os.Args) > 1 {
		msg = map[string]any{"op": "eval", "expr": strings.Join(os.Args[1:], " ")}
	} else {
		// Read JSON from stdin
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Fprintf(os.Stderr, "parse JSON: %v\n", err)
			os.Exit(1)
		}
		if msg == nil {
			msg = map[string]any{}
		}
	}

	// Add id if missing
	if _, ok := msg["id"]; !ok {
		msg["id"] = mortar.NextID()
	}

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := mortar.WriteMsg(conn, msg); err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
		os.Exit(1)
	}

	resp, err := mortar.ReadMsg(conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "receive: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "format response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
	if ok, _ := resp["ok"].(bool); !ok {
		os.Exit(1)
	}
}
