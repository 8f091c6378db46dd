package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	mortar "github.com/rphilander/mortar/core"
)

var (
	conn   net.Conn
	connMu sync.Mutex
)

// send sends a request to the mortar server and returns the response.
func send(req map[string]any) (map[string]any, error) {
	req["id"] = mortar.NextID()
	connMu.Lock()
	defer connMu.Unlock()
	if err := mortar.WriteMsg(conn, req); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	resp, err := mortar.ReadMsg(conn)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return resp, nil
}

// formatResult turns a server response into an MCP tool result. Strings are
// returned verbatim so parse trees stay readable.
func formatResult(resp map[string]any) (*mcp.CallToolResult, error) {
	ok, _ := resp["ok"].(bool)
	if !ok {
		errMsg, _ := resp["error"].(string)
		if errMsg == "" {
			errMsg = "unknown error"
		}
		return mcp.NewToolResultError(errMsg), nil
	}
	if s, isString := resp["value"].(string); isString {
		return mcp.NewToolResultText(s), nil
	}
	out, err := json.MarshalIndent(resp["value"], "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func forward(req map[string]any) (*mcp.CallToolResult, error) {
	resp, err := send(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return formatResult(resp)
}

func handleEval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := request.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return forward(map[string]any{"op": "eval", "expr": expr})
}

func handleDefine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	expr, err := request.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return forward(map[string]any{"op": "define", "name": name, "expr": expr})
}

func handleTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := request.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return forward(map[string]any{"op": "tree", "expr": expr})
}

func handleTraces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := map[string]any{"op": "traces"}
	if n := request.GetInt("n", 0); n > 0 {
		req["n"] = n
	}
	return forward(req)
}

func handleSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return forward(map[string]any{"op": "symbols"})
}

func handleModules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return forward(map[string]any{"op": "modules"})
}

func handleClear(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return forward(map[string]any{"op": "clear"})
}

func main() {
	sockPath := os.Getenv("MORTAR_SOCK")
	if sockPath == "" {
		sockPath = "/tmp/mortar.sock"
	}

	var err error
	conn, err = net.Dial("unix", sockPath)
	if err != nil {
		log.Fatalf("connect to %s: %v", sockPath, err)
	}
	defer conn.Close()
	log.Printf("connected to mortar server: %s", sockPath)

	s := server.NewMCPServer(
		"mortar",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(
		mcp.NewTool("mortar_eval",
			mcp.WithDescription("Evaluate an expression in the mortar session. Returns the result value."),
			mcp.WithString("expr",
				mcp.Required(),
				mcp.Description("Expression to evaluate, e.g. let sq(x) = x * x in [1, 2, 3] each x -> sq(x) end"),
			),
		),
		handleEval,
	)

	s.AddTool(
		mcp.NewTool("mortar_define",
			mcp.WithDescription("Evaluate an expression and bind its value to a name in the session. Definitions persist across restarts when the server has a session dir."),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Identifier to bind"),
			),
			mcp.WithString("expr",
				mcp.Required(),
				mcp.Description("Expression for the value, e.g. x -> x + 1"),
			),
		),
		handleDefine,
	)

	s.AddTool(
		mcp.NewTool("mortar_tree",
			mcp.WithDescription("Show the parse tree of an expression: one node per line, inner nodes by signature."),
			mcp.WithString("expr",
				mcp.Required(),
				mcp.Description("Expression to parse"),
			),
		),
		handleTree,
	)

	s.AddTool(
		mcp.NewTool("mortar_traces",
			mcp.WithDescription("List recent evaluations with their results, errors and durations, oldest first."),
			mcp.WithNumber("n",
				mcp.Description("Maximum number of traces; all retained traces if omitted"),
			),
		),
		handleTraces,
	)

	s.AddTool(
		mcp.NewTool("mortar_symbols",
			mcp.WithDescription("List the session's definitions and their source."),
		),
		handleSymbols,
	)

	s.AddTool(
		mcp.NewTool("mortar_modules",
			mcp.WithDescription("List connected modules and their manuals. Call one from an expression with send(id, op, key, value, ...)."),
		),
		handleModules,
	)

	s.AddTool(
		mcp.NewTool("mortar_clear",
			mcp.WithDescription("Clear the session: drop all definitions, truncate the log and clear traces."),
		),
		handleClear,
	)

	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
