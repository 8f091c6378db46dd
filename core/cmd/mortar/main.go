package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	mortar "github.com/rphilander/mortar/core"
	"github.com/rphilander/mortar/tracedb"
)

var (
	red  = color.New(color.FgRed).SprintFunc()
	blue = color.New(color.FgBlue).SprintFunc()
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	grammar     string
	strictArity bool
	traceDB     string
	noColor     bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "mortar",
		Short:         "Evaluate expressions of a grammar-driven operator-precedence language.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().StringVar(&g.grammar, "grammar", os.Getenv("MORTAR_GRAMMAR"), "Grammar file (.yaml, .yml or .toml); the built-in grammar if empty")
	root.PersistentFlags().BoolVar(&g.strictArity, "strict-arity", false, "Fail when a function gets the wrong number of arguments")
	root.PersistentFlags().StringVar(&g.traceDB, "trace-db", os.Getenv("MORTAR_TRACE_DB"), "SQLite file that records every evaluation")
	root.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		evalCmd(g),
		runCmd(g),
		replCmd(g),
		treeCmd(g),
		serveCmd(g),
	)
	return root
}

// interpreter builds an interpreter from the global flags. The returned
// func releases the trace database, if any.
func (g *globalFlags) interpreter() (*mortar.Interpreter, func(), error) {
	grammar := mortar.DefaultGrammar()
	if g.grammar != "" {
		loaded, err := mortar.LoadGrammar(g.grammar)
		if err != nil {
			return nil, nil, err
		}
		grammar = loaded
	}
	parser, err := mortar.NewParser(grammar)
	if err != nil {
		return nil, nil, err
	}
	interp := mortar.NewInterpreter(parser)
	interp.Base.SetStrictArity(g.strictArity)

	if g.traceDB == "" {
		return interp, func() {}, nil
	}
	db, err := tracedb.Open(g.traceDB)
	if err != nil {
		return nil, nil, err
	}
	interp.OnTrace = func(t mortar.Trace) {
		if err := db.Save(t); err != nil {
			log.Printf("trace db: %v", err)
		}
	}
	return interp, func() {
		if err := db.Close(); err != nil {
			log.Printf("close trace db: %v", err)
		}
	}, nil
}

func evalCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "eval EXPR...",
		Short: "Print the value of an expression.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.evalSource(cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}
}

func runCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE",
		Short: "Evaluate a source file; - reads standard input.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}
			return g.evalSource(cmd.OutOrStdout(), string(data))
		},
	}
}

func (g *globalFlags) evalSource(out io.Writer, src string) error {
	interp, done, err := g.interpreter()
	if err != nil {
		return err
	}
	defer done()
	v, err := interp.Evaluate(src)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, blue(v.String()))
	return nil
}

func treeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tree EXPR...",
		Short: "Print the parse tree of an expression.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interp, done, err := g.interpreter()
			if err != nil {
				return err
			}
			defer done()
			tree, err := interp.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), mortar.FormatTree(tree))
			return nil
		},
	}
}
