package mortar

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// sessionLogName is the append-only definition log inside a session dir.
const sessionLogName = "session.jsonl"

// Session is a long-lived scope under the base environment. Definitions made
// through it are logged and replayed when a session is reopened on the same
// directory.
type Session struct {
	interp  *Interpreter
	env     *Env
	defs    map[string]string // name -> source
	dir     string
	logFile *os.File
}

type logEntry struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// NewSession opens a session. An empty dir keeps everything in memory. A log
// line that is not valid JSON fails the open; one that no longer evaluates is
// logged and skipped.
func NewSession(interp *Interpreter, dir string) (*Session, error) {
	s := &Session{interp: interp, dir: dir}
	s.reset()
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("session dir: %w", err)
	}
	if err := s.replay(); err != nil {
		return nil, fmt.Errorf("replay session: %w", err)
	}
	if err := s.openLog(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) reset() {
	s.env = s.interp.Base.Child()
	s.defs = map[string]string{}
}

func (s *Session) logPath() string {
	return filepath.Join(s.dir, sessionLogName)
}

func (s *Session) openLog() error {
	f, err := os.OpenFile(s.logPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	s.logFile = f
	return nil
}

func (s *Session) replay() error {
	f, err := os.Open(s.logPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxMsgSize)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e logEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		// A definition whose dependencies are gone is skipped but kept in
		// the log, so it comes back once they are available again.
		if _, err := s.define(e.Name, e.Expr); err != nil {
			log.Printf("replay session: line %d: skipped: %v", line, err)
		}
	}
	return sc.Err()
}

// Env is the session scope. Evaluations see every definition made so far.
func (s *Session) Env() *Env {
	return s.env
}

func (s *Session) Eval(expr string) (Value, error) {
	return s.interp.EvaluateIn(s.env, expr)
}

// Define evaluates expr in the session scope and binds the result to name.
func (s *Session) Define(name, expr string) (Value, error) {
	v, err := s.define(name, expr)
	if err != nil {
		return Value{}, err
	}
	if s.logFile != nil {
		data, err := json.Marshal(logEntry{Name: name, Expr: expr})
		if err != nil {
			return Value{}, fmt.Errorf("write log: %w", err)
		}
		if _, err := fmt.Fprintf(s.logFile, "%s\n", data); err != nil {
			return Value{}, fmt.Errorf("write log: %w", err)
		}
	}
	return v, nil
}

func (s *Session) define(name, expr string) (Value, error) {
	if err := s.checkName(name); err != nil {
		return Value{}, err
	}
	v, err := s.Eval(expr)
	if err != nil {
		return Value{}, fmt.Errorf("define %s: %w", name, err)
	}
	s.env.Define(name, v)
	s.defs[name] = expr
	return v, nil
}

// checkName accepts a single identifier that does not shadow a base binding.
func (s *Session) checkName(name string) error {
	tokens, err := s.interp.Parser.Tokenize(name)
	if err != nil {
		return fmt.Errorf("define: %w", err)
	}
	if len(tokens) != 3 || tokens[1].Kind != KindIdentifier {
		return fmt.Errorf("define: invalid name %q", name)
	}
	if _, ok := s.interp.Base.Lookup(name); ok {
		return fmt.Errorf("define: cannot redefine builtin: %s", name)
	}
	return nil
}

// Names returns the defined names in sorted order.
func (s *Session) Names() []string {
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source returns the expression name was last defined with.
func (s *Session) Source(name string) (string, bool) {
	src, ok := s.defs[name]
	return src, ok
}

// Clear drops every definition and truncates the log.
func (s *Session) Clear() error {
	s.reset()
	if s.dir == "" {
		return nil
	}
	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}
	if err := os.Remove(s.logPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear: remove log: %w", err)
	}
	if err := s.openLog(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func (s *Session) Close() error {
	if s.logFile != nil {
		return s.logFile.Close()
	}
	return nil
}
