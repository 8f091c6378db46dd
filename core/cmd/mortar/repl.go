package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	mortar "github.com/rphilander/mortar/core"
)

const (
	historyFile = ".mortar_history"
	promptMain  = "mortar> "
	promptCont  = "   ...> "
)

func replCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session. Non-terminal input is evaluated once as a whole.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				return g.evalSource(cmd.OutOrStdout(), string(data))
			}
			interp, done, err := g.interpreter()
			if err != nil {
				return err
			}
			defer done()
			return repl(interp)
		},
	}
}

// repl evaluates entries in an in-memory session until :quit or EOF.
// Let bindings last for one entry; :define binds a name for the rest of the
// session.
func repl(interp *mortar.Interpreter) error {
	session, err := mortar.NewSession(interp, "")
	if err != nil {
		return err
	}
	defer session.Close()

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	for {
		src, ok := readEntry(ln, interp.Parser)
		if !ok {
			fmt.Println()
			return nil
		}
		trimmed := strings.TrimSpace(src)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		if strings.HasPrefix(trimmed, ":") {
			out, quit, err := command(session, trimmed)
			if quit {
				return nil
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, red(err.Error()))
			} else if out != "" {
				fmt.Println(blue(out))
			}
			continue
		}

		v, err := session.Eval(src)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			continue
		}
		fmt.Println(blue(v.String()))
	}
}

// command runs a colon command and reports whether the repl should exit.
func command(s *mortar.Session, line string) (string, bool, error) {
	word, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(word) {
	case ":quit", ":q":
		return "", true, nil
	case ":define", ":d":
		name, expr, _ := strings.Cut(strings.TrimSpace(rest), " ")
		expr = strings.TrimSpace(expr)
		if name == "" || expr == "" {
			return "", false, errors.New("usage: :define name expr")
		}
		v, err := s.Define(name, expr)
		if err != nil {
			return "", false, err
		}
		return name + " = " + v.String(), false, nil
	case ":symbols":
		var b strings.Builder
		for _, name := range s.Names() {
			src, _ := s.Source(name)
			fmt.Fprintf(&b, "%s = %s\n", name, src)
		}
		return strings.TrimSuffix(b.String(), "\n"), false, nil
	default:
		return "", false, fmt.Errorf("unknown command %s. Commands: :define name expr, :symbols, :quit", word)
	}
}

// readEntry keeps prompting while the input so far is an unclosed construct.
// An empty continuation line submits the entry as is.
func readEntry(ln *liner.State, p *mortar.Parser) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			if strings.TrimSpace(line) == "" {
				return b.String(), true
			}
			b.WriteByte('\n')
		}
		b.WriteString(line)

		_, perr := p.ParseTree(b.String())
		if !errors.Is(perr, mortar.ErrUnbalancedConstruct) {
			return b.String(), true
		}
	}
}
