// cmd/nyx drives the lexer -> parser -> compiler -> vm pipeline over a
// single script file. End-user CLI argument parsing (subcommands, flag
// frameworks, a REPL, an LSP server) is explicitly out of scope for this
// engine; this binary is the thin plumbing the spec calls out as
// everything around the core pipeline, not a product of its own.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"nyx/internal/bytecode"
	"nyx/internal/compiler"
	"nyx/internal/diag"
	"nyx/internal/lexer"
	"nyx/internal/parser"
	"nyx/internal/report"
	"nyx/internal/stdlib/dbmodule"
	"nyx/internal/stdlib/netmodule"
	"nyx/internal/vm"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: nyx [--stats] <script.nyx>")
		os.Exit(2)
	}

	showStats := false
	path := args[0]
	if path == "--stats" {
		showStats = true
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: nyx [--stats] <script.nyx>")
			os.Exit(2)
		}
		path = args[1]
	}

	if err := run(path, showStats); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, showStats bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read script")
	}

	sc := lexer.NewScanner(string(data))
	tokens := sc.ScanTokens()
	if len(sc.Errors) > 0 {
		return sc.Errors[0]
	}

	p := parser.NewWithFile(tokens, path)
	prog := p.Parse()
	if len(p.Errors) > 0 {
		return p.Errors[0]
	}

	c := compiler.New(path)
	chunk := c.Compile(prog)
	if len(c.Errors) > 0 {
		return c.Errors[0]
	}

	bprog := bytecode.NewProgram()
	entry := bprog.Append(chunk)

	runID := report.RunID()
	machine := vm.New(vm.DefaultConfig(), path)
	machine.RunID = runID
	dbmodule.Install(machine)
	netmodule.Install(machine)

	if _, err := machine.Run(bprog, entry); err != nil {
		if d, ok := err.(*diag.Diagnostic); ok {
			return d
		}
		return err
	}

	if showStats {
		report.NewRenderer(os.Stdout).Render(machine.Stats(runID))
	}
	return nil
}
