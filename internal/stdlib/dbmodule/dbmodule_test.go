package dbmodule_test

import (
	"strings"
	"testing"

	"nyx/internal/bytecode"
	"nyx/internal/compiler"
	"nyx/internal/lexer"
	"nyx/internal/parser"
	"nyx/internal/stdlib/dbmodule"
	"nyx/internal/vm"
)

// runSource lexes, parses, compiles, and runs src against a VM with
// dbmodule installed, mirroring internal/vm/vm_test.go's runSource helper
// one layer up.
func runSource(t *testing.T, src string) []string {
	t.Helper()
	tokens := lexer.NewScanner(src).ScanTokens()
	p := parser.New(tokens)
	prog := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("parse errors: %v", p.Errors)
	}
	c := compiler.New("test.nyx")
	chunk := c.Compile(prog)
	if len(c.Errors) > 0 {
		t.Fatalf("compile errors: %v", c.Errors)
	}
	bprog := bytecode.NewProgram()
	entry := bprog.Append(chunk)

	machine := vm.New(vm.DefaultConfig(), "test.nyx")
	dbmodule.Install(machine)
	var logs []string
	machine.Stdout = func(s string) { logs = append(logs, s) }

	if _, err := machine.Run(bprog, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return logs
}

func TestDBOpenQueryExecRoundTrip(t *testing.T) {
	logs := runSource(t, `
		async fn main() {
			let conn = await db.open("sqlite", ":memory:");
			await conn.exec("CREATE TABLE items (id INTEGER, name TEXT)");
			let inserted = await conn.exec("INSERT INTO items (id, name) VALUES (1, 'widget')");
			log inserted.rowsAffected;

			let rows = await conn.query("SELECT id, name FROM items");
			log rows.length;
			log rows[0].name;

			await conn.close();
		}
		main();
	`)
	want := []string{"1", "1", "widget"}
	if strings.Join(logs, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, logs)
	}
}

func TestDBOpenRejectsBadDriver(t *testing.T) {
	logs := runSource(t, `
		async fn main() {
			try {
				await db.open("not-a-real-driver", "whatever");
				log "unreachable";
			} catch (e) {
				log "caught";
			}
		}
		main();
	`)
	if len(logs) != 1 || logs[0] != "caught" {
		t.Fatalf("expected db.open with an unknown driver to reject, got %v", logs)
	}
}
