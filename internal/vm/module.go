// Package vm's module loader implements spec §4.5.1/§6.3/§6.7: resolve a
// specifier relative to its importer, consult a content-hash + mtime
// cache, and on a miss parse/compile/append the module into the running
// Program before running its top level to collect exports. It lives
// inside internal/vm rather than a separate package because ImportAsync
// needs tight coupling with Call/frame mechanics to run a module's top
// level and with Await to turn the result into a Promise.
package vm

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"nyx/internal/compiler"
	"nyx/internal/diag"
	"nyx/internal/lexer"
	"nyx/internal/parser"
	"nyx/internal/vmvalue"
)

var moduleExtensions = []string{".nyx", ".nyxt", ".nyxu"}

type moduleCacheEntry struct {
	hash    string
	modTime time.Time
	ns      vmvalue.Value
}

// ModuleLoader owns the process-lifetime module cache (spec §6.7) and
// the currently-executing module's path, used to resolve relative
// specifiers encountered while running that module's body.
type ModuleLoader struct {
	vm          *VM
	entryDir    string
	currentPath string

	cache   map[string]*moduleCacheEntry
	loading map[string]bool // resolved path -> "body still executing" (cycle detector)

	hits, misses int

	sf singleflight.Group
}

func NewModuleLoader(vm *VM, entryFile string) *ModuleLoader {
	dir := filepath.Dir(entryFile)
	if entryFile == "" {
		dir = "."
	}
	return &ModuleLoader{
		vm: vm, entryDir: dir, currentPath: entryFile,
		cache:   make(map[string]*moduleCacheEntry),
		loading: make(map[string]bool),
	}
}

// resolve implements spec §6.3: join the specifier against the
// importer's directory, then try it as-is, with each configured
// extension appended, and finally as a directory's index file. fromPath
// empty means the entry script's own top level is importing, so the
// loader's configured entryDir stands in for "the importer's directory".
func (ml *ModuleLoader) resolve(fromPath, specifier string) (string, error) {
	dir := ml.entryDir
	if fromPath != "" {
		dir = filepath.Dir(fromPath)
	}
	joined := specifier
	if strings.HasPrefix(specifier, ".") {
		joined = filepath.Join(dir, specifier)
	}
	candidates := []string{joined}
	for _, ext := range moduleExtensions {
		candidates = append(candidates, joined+ext)
	}
	for _, ext := range moduleExtensions {
		candidates = append(candidates, filepath.Join(joined, "index"+ext))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", diag.NewModuleError(diag.ModuleNotFound, specifier, nil)
}

// Import implements ImportAsync/Require: it always returns a Promise
// value (resolved with the module's namespace object, or rejected with
// a ModuleError), matching the compiler's unconditional `Await` right
// after every ImportAsync.
func (ml *ModuleLoader) Import(specifier, fromPath string) (vmvalue.Value, error) {
	vm := ml.vm
	p := vm.heap.NewPromise()

	resolved, err := ml.resolve(fromPath, specifier)
	if err != nil {
		if rerr := vm.rejectPromise(p, vm.errorToValue(err)); rerr != nil {
			return vmvalue.Undefined(), rerr
		}
		return p, nil
	}

	if ml.loading[resolved] {
		// circular import: hand back the namespace object already
		// registered for this path, partially populated so far.
		entry := ml.cache[resolved]
		if rerr := vm.resolvePromise(p, entry.ns); rerr != nil {
			return vmvalue.Undefined(), rerr
		}
		return p, nil
	}

	ns, loadErr, _ := ml.sf.Do(resolved, func() (interface{}, error) {
		return ml.load(resolved)
	})
	if loadErr != nil {
		if rerr := vm.rejectPromise(p, vm.errorToValue(loadErr)); rerr != nil {
			return vmvalue.Undefined(), rerr
		}
		return p, nil
	}
	if rerr := vm.resolvePromise(p, ns.(vmvalue.Value)); rerr != nil {
		return vmvalue.Undefined(), rerr
	}
	return p, nil
}

func hashFile(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (ml *ModuleLoader) load(resolved string) (vmvalue.Value, error) {
	vm := ml.vm

	info, err := os.Stat(resolved)
	if err != nil {
		return vmvalue.Undefined(), diag.NewModuleError(diag.ModuleNotFound, resolved, nil).Wrap(err, "stat module")
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return vmvalue.Undefined(), diag.NewModuleError(diag.ModuleNotFound, resolved, nil).Wrap(err, "read module")
	}
	hash := hashFile(data)

	if entry, ok := ml.cache[resolved]; ok {
		if entry.hash == hash && entry.modTime.Equal(info.ModTime()) {
			ml.hits++
			return entry.ns, nil
		}
	}
	ml.misses++

	tokens := lexer.NewScanner(string(data)).ScanTokens()
	pr := parser.NewWithFile(tokens, resolved)
	prog := pr.Parse()
	if len(pr.Errors) > 0 {
		return vmvalue.Undefined(), diag.NewModuleError(diag.ModuleParseFailure, resolved, nil).Wrap(pr.Errors[0], "parse module")
	}

	c := compiler.New(resolved)
	chunk := c.Compile(prog)
	if len(c.Errors) > 0 {
		return vmvalue.Undefined(), diag.NewModuleError(diag.ModuleParseFailure, resolved, nil).Wrap(c.Errors[0], "compile module")
	}

	ns := vm.heap.NewObject(&vmvalue.ObjectRec{Props: map[string]vmvalue.Value{}})
	ml.cache[resolved] = &moduleCacheEntry{hash: hash, modTime: info.ModTime(), ns: ns}
	ml.loading[resolved] = true
	defer delete(ml.loading, resolved)

	entryAddr := vm.prog.Append(chunk)

	prevPath := ml.currentPath
	ml.currentPath = resolved
	defer func() { ml.currentPath = prevPath }()

	f := vm.runModuleFrame(entryAddr, ns)
	if vmErr := vm.runUntilFrameReturns(f); vmErr != nil {
		return vmvalue.Undefined(), vmErr
	}

	// Final sync, covering exports reassigned after their declaring
	// OpLet: step()'s OpLet case already mirrored each "__export_"
	// binding into ns as it was declared, so a circular importer sees
	// exports as they're produced instead of all-or-nothing.
	nsObj := vm.heap.Object(ns)
	for name, slots := range f.vars {
		if strings.HasPrefix(name, "__export_") && strings.HasSuffix(name, "__") {
			exported := strings.TrimSuffix(strings.TrimPrefix(name, "__export_"), "__")
			nsObj.Props[exported] = slots[len(slots)-1]
		}
	}
	return ns, nil
}

// runModuleFrame pushes a bare top-level frame (no captured env, no
// `this`) at entryAddr, tagging it with ns so each "__export_" OpLet
// mirrors into the namespace object as the module runs, and returns the
// frame so the caller can both drive it to completion and read its
// bindings afterward for a final export sync.
func (vm *VM) runModuleFrame(entryAddr int, ns vmvalue.Value) *frame {
	f := newFrame(len(vm.stack))
	vm.seedGlobals(f)
	f.moduleNS = ns
	f.retIP = vm.ip
	vm.frames = append(vm.frames, f)
	vm.ip = entryAddr
	return f
}

// runUntilFrameReturns drives the flat instruction loop until f has been
// popped off vm.frames, restoring vm.ip to whatever it was before f was
// pushed. A module chunk ends in Halt rather than Return (the same
// Compile path used for the entry script); step() treats Halt as an
// implicit Return whenever it isn't the outermost frame, so this loop
// terminates the same way invokeCallable's does.
func (vm *VM) runUntilFrameReturns(f *frame) error {
	savedIP := f.retIP
	target := len(vm.frames) - 1
	for len(vm.frames) > target {
		halted, err := vm.step()
		if err != nil {
			return err
		}
		if halted {
			break
		}
	}
	vm.ip = savedIP
	return nil
}
