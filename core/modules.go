package mortar

import (
	"fmt"
	"log"
	"net"
	"os"
	"sync"
)

// Module is an external process connected to the module socket. It answers
// requests of the form {"id", "op", fields...} with {"id", "ok", "value"}.
type Module struct {
	ID     string
	Manual any // whatever the module answered to the empty request

	conn net.Conn
	mu   sync.Mutex // serializes round trips on conn
}

// ModuleHost accepts module connections and exposes them to the language
// through the modules and send builtins.
type ModuleHost struct {
	listener net.Listener

	mu      sync.Mutex // protects modules and count
	modules []*Module
	count   int
}

func NewModuleHost(sockPath string) (*ModuleHost, error) {
	os.Remove(sockPath)
	l, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen module: %w", err)
	}
	return &ModuleHost{listener: l}, nil
}

func (h *ModuleHost) Addr() net.Addr {
	return h.listener.Addr()
}

// Serve accepts modules until Close.
func (h *ModuleHost) Serve() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			return
		}
		go h.attach(conn)
	}
}

func (h *ModuleHost) Close() {
	h.listener.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.modules {
		m.conn.Close()
	}
	h.modules = nil
}

// attach asks a new module for its manual and then makes it available.
func (h *ModuleHost) attach(conn net.Conn) {
	h.mu.Lock()
	mod := &Module{ID: fmt.Sprintf("mod:%d", h.count), conn: conn}
	h.count++
	h.mu.Unlock()

	if err := WriteMsg(conn, map[string]any{"id": NextID()}); err != nil {
		log.Printf("module %s: write discovery: %v", mod.ID, err)
		conn.Close()
		return
	}
	resp, err := ReadMsg(conn)
	if err != nil {
		log.Printf("module %s: read manual: %v", mod.ID, err)
		conn.Close()
		return
	}
	if v, ok := resp["value"]; ok {
		mod.Manual = v
	} else {
		mod.Manual = resp
	}

	h.mu.Lock()
	h.modules = append(h.modules, mod)
	h.mu.Unlock()
	log.Printf("module %s connected", mod.ID)
}

func (h *ModuleHost) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, m := range h.modules {
		if m.ID == id {
			m.conn.Close()
			h.modules = append(h.modules[:i], h.modules[i+1:]...)
			return
		}
	}
}

func (h *ModuleHost) find(id string) *Module {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.modules {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Modules returns the connected modules in connection order.
func (h *ModuleHost) Modules() []*Module {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Module(nil), h.modules...)
}

// Send performs one request/response round trip with a module. A module that
// fails mid-exchange is dropped.
func (h *ModuleHost) Send(id, op string, fields map[string]any) (any, error) {
	mod := h.find(id)
	if mod == nil {
		return nil, fmt.Errorf("send: unknown module: %s", id)
	}
	req := map[string]any{}
	for k, v := range fields {
		req[k] = v
	}
	req["id"] = NextID()
	req["op"] = op

	mod.mu.Lock()
	defer mod.mu.Unlock()
	if err := WriteMsg(mod.conn, req); err != nil {
		h.remove(id)
		return nil, fmt.Errorf("send: write to %s: %w", id, err)
	}
	resp, err := ReadMsg(mod.conn)
	if err != nil {
		h.remove(id)
		return nil, fmt.Errorf("send: read from %s: %w", id, err)
	}
	if ok, _ := resp["ok"].(bool); !ok {
		errStr, _ := resp["error"].(string)
		return nil, fmt.Errorf("send: %s returned error: %s", id, errStr)
	}
	return resp["value"], nil
}

// Bind defines the module builtins in env:
//
//	modules()                     list of connected module ids
//	send(id, op, key, value, ...) one request; the reply is converted with GoToValue
func (h *ModuleHost) Bind(env *Env) {
	env.Define("modules", NativeVal("modules", h.builtinModules))
	env.Define("send", NativeVal("send", h.builtinSend))
}

func (h *ModuleHost) builtinModules(args []Value) (Value, error) {
	if len(args) != 0 {
		return Value{}, fmt.Errorf("modules: expected 0 args, got %d", len(args))
	}
	mods := h.Modules()
	ids := make([]Value, len(mods))
	for i, m := range mods {
		ids[i] = StringVal(m.ID)
	}
	return ListVal(ids), nil
}

func (h *ModuleHost) builtinSend(args []Value) (Value, error) {
	if len(args) < 2 || len(args)%2 != 0 {
		return Value{}, fmt.Errorf("send: expected module, op and key/value pairs, got %d args", len(args))
	}
	if args[0].Kind != ValString || args[1].Kind != ValString {
		return Value{}, fmt.Errorf("send: module and op must be String, got %s and %s", args[0].KindName(), args[1].KindName())
	}
	fields := map[string]any{}
	for i := 2; i < len(args); i += 2 {
		if args[i].Kind != ValString {
			return Value{}, fmt.Errorf("send: field name must be String, got %s", args[i].KindName())
		}
		v, err := ValueToGo(args[i+1])
		if err != nil {
			return Value{}, fmt.Errorf("send: field %s: %w", args[i].Str, err)
		}
		fields[args[i].Str] = v
	}
	resp, err := h.Send(args[0].Str, args[1].Str, fields)
	if err != nil {
		return Value{}, err
	}
	return GoToValue(resp), nil
}
