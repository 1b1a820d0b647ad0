package vm_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nyx/internal/bytecode"
	"nyx/internal/compiler"
	"nyx/internal/lexer"
	"nyx/internal/parser"
	"nyx/internal/vm"
)

// runSource lexes, parses, and compiles src, then runs it to completion
// (including draining the event loop) and returns every `log` line it
// produced, in order, along with Run's error. Parse and compile errors
// fail the test immediately, matching internal/compiler's compileSource
// helper one layer down; a runtime error is returned to the caller.
func runSource(t *testing.T, src string) ([]string, error) {
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
	var logs []string
	machine.Stdout = func(s string) { logs = append(logs, s) }

	_, err := machine.Run(bprog, entry)
	return logs, err
}

func runSourceOK(t *testing.T, src string) []string {
	t.Helper()
	logs, err := runSource(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return logs
}

func TestArithmeticAndControlFlow(t *testing.T) {
	logs := runSourceOK(t, `
		let total = 0;
		for (let i = 0; i < 5; i = i + 1) {
			if (i == 3) { continue; }
			total = total + i;
		}
		log total;
	`)
	if len(logs) != 1 || logs[0] != "7" {
		t.Fatalf("expected [7], got %v", logs)
	}
}

func TestWhileLoopBreak(t *testing.T) {
	logs := runSourceOK(t, `
		let i = 0;
		while (true) {
			i = i + 1;
			if (i == 4) { break; }
		}
		log i;
	`)
	if len(logs) != 1 || logs[0] != "4" {
		t.Fatalf("expected [4], got %v", logs)
	}
}

func TestClosureCapturesByValue(t *testing.T) {
	logs := runSourceOK(t, `
		fn makeCounter() {
			let n = 0;
			return fn() {
				n = n + 1;
				return n;
			};
		}
		let counter = makeCounter();
		log counter();
		log counter();
		log counter();
	`)
	if strings.Join(logs, ",") != "1,1,1" {
		t.Fatalf("expected each call to see its own captured n (no shared parent frame), got %v", logs)
	}
}

func TestClassInheritanceAndSuper(t *testing.T) {
	logs := runSourceOK(t, `
		class Animal {
			constructor(name) {
				this.name = name;
			}
			speak() {
				return this.name + " makes a sound";
			}
		}
		class Dog extends Animal {
			constructor(name) {
				super(name);
			}
			speak() {
				return super.speak() + ", specifically barking";
			}
		}
		let d = new Dog("Rex");
		log d.speak();
		log d instanceof Animal;
	`)
	if len(logs) != 2 {
		t.Fatalf("expected 2 log lines, got %v", logs)
	}
	if logs[0] != "Rex makes a sound, specifically barking" {
		t.Fatalf("unexpected super call result: %q", logs[0])
	}
	if logs[1] != "true" {
		t.Fatalf("expected d instanceof Animal to be true, got %q", logs[1])
	}
}

func TestTryCatchFinallyRunsInOrder(t *testing.T) {
	logs := runSourceOK(t, `
		try {
			log "try";
			throw "boom";
			log "unreachable";
		} catch (e) {
			log "catch " + e;
		} finally {
			log "finally";
		}
		log "after";
	`)
	want := []string{"try", "catch boom", "finally", "after"}
	if strings.Join(logs, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, logs)
	}
}

func TestUncaughtThrowPropagatesAsError(t *testing.T) {
	_, err := runSource(t, `throw "fatal";`)
	if err == nil {
		t.Fatalf("expected an uncaught throw to surface as an error")
	}
}

func TestForOfIteratesArrayElements(t *testing.T) {
	logs := runSourceOK(t, `
		let items = [10, 20, 30];
		let total = 0;
		for (const item of items) {
			total = total + item;
		}
		log total;
	`)
	if len(logs) != 1 || logs[0] != "60" {
		t.Fatalf("expected [60], got %v", logs)
	}
}

func TestForInIteratesObjectKeys(t *testing.T) {
	logs := runSourceOK(t, `
		let counts = 0;
		for (const key in {a: 1, b: 2, c: 3}) {
			counts = counts + 1;
		}
		log counts;
	`)
	if len(logs) != 1 || logs[0] != "3" {
		t.Fatalf("expected [3], got %v", logs)
	}
}

func TestAsyncAwaitUnwrapsResolvedPromise(t *testing.T) {
	logs := runSourceOK(t, `
		async fn fetchValue() {
			let v = await Promise.resolve(42);
			return v + 1;
		}
		async fn main() {
			let result = await fetchValue();
			log result;
		}
		main();
	`)
	if len(logs) != 1 || logs[0] != "43" {
		t.Fatalf("expected [43], got %v", logs)
	}
}

func TestPromiseThenCatchFinallyChain(t *testing.T) {
	logs := runSourceOK(t, `
		Promise.resolve(1)
			.then(fn(v) { return v + 1; })
			.then(fn(v) { log "then " + v; return v; })
			.catch(fn(e) { log "caught " + e; })
			.finally(fn() { log "settled"; });
	`)
	want := []string{"then 2", "settled"}
	if strings.Join(logs, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, logs)
	}
}

func TestPromiseRejectionFlowsToCatch(t *testing.T) {
	logs := runSourceOK(t, `
		Promise.reject("nope")
			.then(fn(v) { log "unreachable"; return v; })
			.catch(fn(e) { log "caught " + e; })
			.finally(fn() { log "settled"; });
	`)
	want := []string{"caught nope", "settled"}
	if strings.Join(logs, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, logs)
	}
}

func TestSetTimeoutFiresAfterSynchronousCode(t *testing.T) {
	logs := runSourceOK(t, `
		log "start";
		setTimeout(fn() { log "timer"; }, 0);
		log "end";
	`)
	want := []string{"start", "end", "timer"}
	if strings.Join(logs, "|") != strings.Join(want, "|") {
		t.Fatalf("expected timer to fire only after synchronous code drains, got %v", logs)
	}
}

// runModuleEntry compiles and runs the .nyx file at entryPath (written to
// a real temp directory, since the module loader resolves specifiers
// against sibling files on disk).
func runModuleEntry(t *testing.T, entryPath string) []string {
	t.Helper()
	data, err := os.ReadFile(entryPath)
	if err != nil {
		t.Fatalf("read entry file: %v", err)
	}
	tokens := lexer.NewScanner(string(data)).ScanTokens()
	p := parser.NewWithFile(tokens, entryPath)
	prog := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("parse errors: %v", p.Errors)
	}
	c := compiler.New(entryPath)
	chunk := c.Compile(prog)
	if len(c.Errors) > 0 {
		t.Fatalf("compile errors: %v", c.Errors)
	}
	bprog := bytecode.NewProgram()
	entry := bprog.Append(chunk)

	machine := vm.New(vm.DefaultConfig(), entryPath)
	var logs []string
	machine.Stdout = func(s string) { logs = append(logs, s) }

	if _, err := machine.Run(bprog, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return logs
}

func TestModuleImportNamedAndDefaultExports(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "math.nyx"), `
		export fn square(x) { return x * x; }
		export default "math-module";
	`)
	mustWrite(t, filepath.Join(dir, "main.nyx"), `
		import defaultName from "./math";
		import { square } from "./math";
		log defaultName;
		log square(6);
	`)
	logs := runModuleEntry(t, filepath.Join(dir, "main.nyx"))
	want := []string{"math-module", "36"}
	if strings.Join(logs, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, logs)
	}
}

func TestModuleCircularImportSeesPartialNamespace(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.nyx"), `
		export let ready = false;
		import { ready as bReady } from "./b";
		log "a loaded, b.ready=" + bReady;
	`)
	mustWrite(t, filepath.Join(dir, "b.nyx"), `
		export let ready = true;
		import { ready as aReady } from "./a";
		log "b loaded, a.ready=" + aReady;
	`)
	logs := runModuleEntry(t, filepath.Join(dir, "a.nyx"))
	// b is fully evaluated (nested) while resolving a's import of b, so
	// b's log line always lands first; at that point a has already
	// declared (but not finished) its own export, so b observes
	// b.ready=true and a.ready=false. a then observes b's completed
	// export, b.ready=true.
	want := []string{"b loaded, a.ready=false", "a loaded, b.ready=true"}
	if strings.Join(logs, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, logs)
	}
}

func mustWrite(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
