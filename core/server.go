package mortar

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// parseCacheSize is the number of parsed sources the server keeps.
const parseCacheSize = 256

// Server is the central actor that owns the session and handles requests
// from socket clients one at a time.
type Server struct {
	interp   *Interpreter
	session  *Session
	requests chan serverRequest
	done     chan struct{} // closed by Shutdown
	stopped  chan struct{} // closed when the actor exits
	listener net.Listener
	modules  *ModuleHost // nil when module hosting is disabled
	metrics  *serverMetrics
}

type serverRequest struct {
	msg      map[string]any
	response chan map[string]any
}

type serverMetrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	evalSeconds prometheus.Histogram
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mortar_requests_total",
			Help: "Socket requests handled, by op and outcome.",
		}, []string{"op", "outcome"}),
		evalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mortar_eval_seconds",
			Help:    "Time spent evaluating eval and define requests.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	m.registry.MustRegister(m.requests, m.evalSeconds)
	return m
}

// NewServer creates a server evaluating with interp. Definitions persist in
// dir unless it is empty. Modules connect on modSockPath unless it is empty;
// their builtins are bound before the session log is replayed.
func NewServer(interp *Interpreter, sockPath, modSockPath, dir string) (*Server, error) {
	// Clean up stale socket
	os.Remove(sockPath)

	if interp.Recorder == nil {
		interp.Recorder = NewRecorder(DefaultMaxTraces)
	}
	if interp.trees == nil {
		if err := interp.EnableParseCache(parseCacheSize); err != nil {
			return nil, err
		}
	}

	var host *ModuleHost
	if modSockPath != "" {
		var err error
		if host, err = NewModuleHost(modSockPath); err != nil {
			return nil, err
		}
		host.Bind(interp.Base)
	}

	session, err := NewSession(interp, dir)
	if err != nil {
		if host != nil {
			host.Close()
		}
		return nil, fmt.Errorf("init session: %w", err)
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		if host != nil {
			host.Close()
		}
		session.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{
		interp:   interp,
		session:  session,
		requests: make(chan serverRequest, 64),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		listener: listener,
		modules:  host,
		metrics:  newServerMetrics(),
	}
	go s.actorLoop()
	return s, nil
}

// Registry holds the server's metrics, for serving on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.metrics.registry
}

// ModuleAddr is the module socket, or nil when module hosting is disabled.
func (s *Server) ModuleAddr() net.Addr {
	if s.modules == nil {
		return nil
	}
	return s.modules.Addr()
}

// Addr is the socket the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run accepts connections and modules. Blocks until Shutdown.
func (s *Server) Run() {
	if s.modules != nil {
		go s.modules.Serve()
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConnection(conn)
	}
}

// Shutdown stops accepting connections, waits for the actor to finish its
// current request and closes the session. Later requests are answered with
// an error. Call it once.
func (s *Server) Shutdown() {
	s.listener.Close()
	if s.modules != nil {
		s.modules.Close()
	}
	close(s.done)
	<-s.stopped
	if err := s.session.Close(); err != nil {
		log.Printf("close session: %v", err)
	}
}

// actorLoop is the single goroutine that owns the session.
func (s *Server) actorLoop() {
	defer close(s.stopped)
	for {
		select {
		case req := <-s.requests:
			req.response <- s.handleRequest(req.msg)
		case <-s.done:
			return
		}
	}
}

// sendToActor sends a request to the actor and waits for the response.
func (s *Server) sendToActor(msg map[string]any) map[string]any {
	id, _ := msg["id"].(string)
	resp := make(chan map[string]any, 1)
	select {
	case s.requests <- serverRequest{msg: msg, response: resp}:
	case <-s.done:
		return errorResponse(id, "server shutting down")
	}
	select {
	case r := <-resp:
		return r
	case <-s.done:
		return errorResponse(id, "server shutting down")
	}
}

func (s *Server) handleRequest(msg map[string]any) map[string]any {
	id, _ := msg["id"].(string)

	op, _ := msg["op"].(string)
	if op == "" {
		// Empty request or no op: return manual
		return s.manual(id)
	}

	var resp map[string]any
	switch op {
	case "eval":
		resp = s.handleEval(id, msg)
	case "define":
		resp = s.handleDefine(id, msg)
	case "tree":
		resp = s.handleTree(id, msg)
	case "traces":
		resp = s.handleTraces(id, msg)
	case "symbols":
		resp = s.handleSymbols(id)
	case "clear":
		resp = s.handleClear(id)
	case "modules":
		resp = s.handleModules(id)
	default:
		op = "unknown"
		resp = errorResponse(id, fmt.Sprintf("unknown op: %s", msg["op"]))
	}
	outcome := "ok"
	if ok, _ := resp["ok"].(bool); !ok {
		outcome = "error"
	}
	s.metrics.requests.WithLabelValues(op, outcome).Inc()
	return resp
}

func (s *Server) manual(id string) map[string]any {
	names := make([]any, 0)
	s.interp.Base.eachName(func(name string) { names = append(names, name) })
	return map[string]any{
		"id": id,
		"ok": true,
		"value": map[string]any{
			"name":    "mortar",
			"version": "1.0.0",
			"ops": map[string]any{
				"eval":    "Evaluate an expression in the session. Params: expr (string)",
				"define":  "Evaluate expr and bind it in the session. Params: name (string), expr (string)",
				"tree":    "Show the parse tree of an expression. Params: expr (string)",
				"traces":  "Recent evaluations, oldest first. Params: n (int, optional)",
				"symbols": "List the session's definitions.",
				"clear":   "Drop all definitions and traces.",
				"modules": "List connected modules and their manuals.",
			},
			"builtins": names,
		},
	}
}

func (s *Server) handleEval(id string, msg map[string]any) map[string]any {
	expr, ok := msg["expr"].(string)
	if !ok {
		return errorResponse(id, "eval: missing 'expr' string")
	}
	start := time.Now()
	val, err := s.session.Eval(expr)
	s.metrics.evalSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return errorResponse(id, err.Error())
	}
	return valueResponse(id, val)
}

func (s *Server) handleDefine(id string, msg map[string]any) map[string]any {
	name, ok := msg["name"].(string)
	if !ok {
		return errorResponse(id, "define: missing 'name' string")
	}
	expr, ok := msg["expr"].(string)
	if !ok {
		return errorResponse(id, "define: missing 'expr' string")
	}
	start := time.Now()
	val, err := s.session.Define(name, expr)
	s.metrics.evalSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return errorResponse(id, err.Error())
	}
	return map[string]any{
		"id":    id,
		"ok":    true,
		"value": map[string]any{"name": name, "value": val.String()},
	}
}

func (s *Server) handleTree(id string, msg map[string]any) map[string]any {
	expr, ok := msg["expr"].(string)
	if !ok {
		return errorResponse(id, "tree: missing 'expr' string")
	}
	tree, err := s.interp.Parse(expr)
	if err != nil {
		return errorResponse(id, err.Error())
	}
	return map[string]any{"id": id, "ok": true, "value": FormatTree(tree)}
}

func (s *Server) handleTraces(id string, msg map[string]any) map[string]any {
	n := 0
	if raw, ok := msg["n"]; ok {
		// JSON numbers decode as float64
		f, ok := raw.(float64)
		if !ok {
			return errorResponse(id, "traces: 'n' must be a number")
		}
		n = int(f)
	}
	traces := s.interp.Recorder.Recent(n)
	result := make([]any, len(traces))
	for i := range traces {
		result[i] = traces[i].ToGo()
	}
	return map[string]any{"id": id, "ok": true, "value": result}
}

func (s *Server) handleSymbols(id string) map[string]any {
	names := s.session.Names()
	result := make(map[string]any, len(names))
	for _, name := range names {
		result[name], _ = s.session.Source(name)
	}
	return map[string]any{"id": id, "ok": true, "value": result}
}

func (s *Server) handleClear(id string) map[string]any {
	if err := s.session.Clear(); err != nil {
		return errorResponse(id, err.Error())
	}
	s.interp.Recorder.Clear()
	return map[string]any{"id": id, "ok": true, "value": "cleared"}
}

func (s *Server) handleModules(id string) map[string]any {
	result := make([]any, 0)
	if s.modules != nil {
		for _, m := range s.modules.Modules() {
			result = append(result, map[string]any{"id": m.ID, "manual": m.Manual})
		}
	}
	return map[string]any{"id": id, "ok": true, "value": result}
}

func valueResponse(id string, val Value) map[string]any {
	goVal, err := ValueToGo(val)
	if err != nil {
		return errorResponse(id, fmt.Sprintf("serialize result: %s", err))
	}
	return map[string]any{"id": id, "ok": true, "value": goVal}
}

func errorResponse(id, errMsg string) map[string]any {
	return map[string]any{"id": id, "ok": false, "error": errMsg}
}

// --- Connection handling ---

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	for {
		msg, err := ReadMsg(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("read client message: %v", err)
			}
			return
		}

		resp := s.sendToActor(msg)
		if err := WriteMsg(conn, resp); err != nil {
			log.Printf("write client response: %v", err)
			return
		}
	}
}
