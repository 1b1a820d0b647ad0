// Package vm executes a compiled Nyx bytecode.Program (spec §4.5),
// generalizing the teacher's EnhancedVM: a flat instruction loop over a
// growable value stack and a name-keyed frame stack (rather than the
// teacher's preallocated fixed-size arrays and slot-indexed locals),
// since the compiler (internal/compiler) only ever emits Let/Store/Load
// against named bindings, never StoreLocal/LoadLocal.
package vm

import (
	"fmt"
	"path/filepath"
	"strings"

	"nyx/internal/bytecode"
	"nyx/internal/diag"
	"nyx/internal/report"
	"nyx/internal/vmvalue"
)

// Config are the VM's tunable resource limits, mirroring the teacher's
// EnhancedVM constants (maxStackSize, maxFrames) as an explicit,
// testable struct instead of hard-coded fields.
type Config struct {
	MaxFrames int // recursion limit (spec §4.5 "recommended 1000")
	MaxStack  int
	// SearchPath is the module resolution root used when the entry
	// script's own directory isn't otherwise known (spec §6.3).
	SearchPath string
	// TimersEnabled gates whether setTimeout actually defers; disabling
	// it (for deterministic tests) runs timer callbacks inline in
	// registration order instead of via the event loop's timer list.
	TimersEnabled bool
}

// DefaultConfig matches the teacher's EnhancedVM defaults.
func DefaultConfig() Config {
	return Config{MaxFrames: 1000, MaxStack: 1 << 20, TimersEnabled: true}
}

// VM is one execution agent: single-threaded, cooperative (spec §5). It
// owns the value stack, the frame stack, the heap, and the module
// loader's cache for the lifetime of one Run.
type VM struct {
	Config Config
	RunID  string

	heap *vmvalue.Heap

	// globals holds stdlib-module surface objects (db, net, ...)
	// registered via RegisterGlobal; seedGlobals seeds them into every
	// top-level and module frame alongside the built-in Math/console/
	// Promise bindings.
	globals map[string]vmvalue.Value

	stack  []vmvalue.Value
	frames []*frame
	tries  []*tryFrame

	prog *bytecode.Program
	ip   int

	natives map[string]nativeFn

	loader *ModuleLoader

	eventLoop *eventLoop

	Stdout func(string) // log sink; defaults to writing to stdout in New

	instrCount    uint64
	microtasksRun int
	timersFired   int

	// finallyTaps backs Promise.prototype.finally: each entry is a thunk
	// closing over one call's user callback and target promise, indexed
	// by a NativeFnRec.Index since the callback itself can't be named in
	// the flat vm.natives table (see callNativeRec).
	finallyTaps []func(vm *VM, args []vmvalue.Value) (vmvalue.Value, error)
}

// New builds a VM ready to Run a Program. entryFile is the resolved path
// of the top-level script, used to seed module-relative resolution for
// its own ImportAsync calls.
func New(cfg Config, entryFile string) *VM {
	vm := &VM{
		Config:  cfg,
		heap:    vmvalue.NewHeap(),
		globals: make(map[string]vmvalue.Value),
		Stdout:  func(s string) { fmt.Println(s) },
	}
	vm.eventLoop = newEventLoop()
	vm.loader = NewModuleLoader(vm, entryFile)
	if entryFile == "" && cfg.SearchPath != "" {
		vm.loader.entryDir = cfg.SearchPath
	}
	vm.natives = vm.buildNatives()
	return vm
}

func (vm *VM) Heap() *vmvalue.Heap { return vm.heap }

// AsString renders v the way `log`/string concatenation do (spec §4.3's
// coercion rule), exported for stdlib modules formatting native results.
func (vm *VM) AsString(v vmvalue.Value) string { return vm.asString(v) }

// NewResolvedPromise and NewRejectedPromise let a stdlib native settle a
// Promise synchronously, the same shape Promise.resolve/reject use, for
// a native backed by a blocking Go call (internal/stdlib/dbmodule,
// internal/stdlib/netmodule) rather than one that suspends on the event
// loop.
func (vm *VM) NewResolvedPromise(v vmvalue.Value) vmvalue.Value {
	p := vm.heap.NewPromise()
	_ = vm.resolvePromise(p, v)
	return p
}

func (vm *VM) NewRejectedPromise(v vmvalue.Value) vmvalue.Value {
	p := vm.heap.NewPromise()
	_ = vm.rejectPromise(p, v)
	return p
}

// RegisterGlobal installs name as a binding `seedGlobals` seeds into
// every top-level/module frame, the same mechanism that seeds `Math`/
// `console`/`Promise`. Stdlib modules (internal/stdlib/dbmodule,
// internal/stdlib/netmodule) use it to expose their `db`/`net` surface
// objects without vm needing to import them back (that would cycle).
func (vm *VM) RegisterGlobal(name string, v vmvalue.Value) { vm.globals[name] = v }

// RegisterNative installs fn under name in the native dispatch table
// buildNatives populates, for a stdlib module's OpCallMethod-reached
// NativeFn handles (see seedGlobals) to resolve against.
func (vm *VM) RegisterNative(name string, fn func(vm *VM, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error)) {
	vm.natives[name] = fn
}

// Stats snapshots this run's resource usage for internal/report.
func (vm *VM) Stats(runID string) report.Stats {
	return report.Stats{
		RunID:           runID,
		HeapLive:        vm.heap.Live(),
		ModuleHits:      vm.loader.hits,
		ModuleMisses:    vm.loader.misses,
		MicrotasksRun:   vm.microtasksRun,
		TimersFired:     vm.timersFired,
		InstructionsRun: vm.instrCount,
	}
}

// Run executes prog starting at entry (normally 0, the module's own
// top-level code) until Halt, returning whatever value was last left on
// the stack (conventionally unused by the top level, but handy in
// tests), then drains the event loop to completion (spec §5: "the loop
// terminates normally when empty").
func (vm *VM) Run(prog *bytecode.Program, entry int) (vmvalue.Value, error) {
	vm.prog = prog
	vm.ip = entry
	f := newFrame(0)
	vm.seedGlobals(f)
	if path := vm.loader.currentPath; path != "" {
		ns := vm.heap.NewObject(&vmvalue.ObjectRec{Props: map[string]vmvalue.Value{}})
		f.moduleNS = ns
		key := filepath.Clean(path)
		vm.loader.cache[key] = &moduleCacheEntry{ns: ns}
		vm.loader.loading[key] = true
	}
	vm.frames = append(vm.frames, f)

	for {
		halted, err := vm.step()
		if err != nil {
			return vmvalue.Undefined(), err
		}
		if halted {
			break
		}
	}
	if err := vm.eventLoop.drainFully(vm); err != nil {
		return vmvalue.Undefined(), err
	}
	if len(vm.stack) == 0 {
		return vmvalue.Undefined(), nil
	}
	return vm.stack[len(vm.stack)-1], nil
}

func (vm *VM) push(v vmvalue.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() vmvalue.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) popN(n int) []vmvalue.Value {
	start := len(vm.stack) - n
	out := make([]vmvalue.Value, n)
	copy(out, vm.stack[start:])
	vm.stack = vm.stack[:start]
	return out
}

func (vm *VM) curFrame() *frame { return vm.frames[len(vm.frames)-1] }

// step executes exactly one instruction, reporting halted=true on Halt.
func (vm *VM) step() (halted bool, err error) {
	if vm.ip < 0 || vm.ip >= len(vm.prog.Code) {
		return false, fmt.Errorf("vm: instruction pointer %d out of range", vm.ip)
	}
	in := vm.prog.Code[vm.ip]
	vm.ip++
	vm.instrCount++

	switch in.Op {
	case bytecode.OpPush:
		vm.push(vm.constant(in.ConstIndex))
	case bytecode.OpPop:
		vm.pop()
	case bytecode.OpDup:
		vm.push(vm.stack[len(vm.stack)-1])
	case bytecode.OpSwap:
		n := len(vm.stack)
		vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]

	case bytecode.OpLet:
		v := vm.pop()
		f := vm.curFrame()
		f.let(in.Name, v)
		if f.moduleNS.IsKind(vmvalue.KindObject) && strings.HasPrefix(in.Name, "__export_") && strings.HasSuffix(in.Name, "__") {
			exported := strings.TrimSuffix(strings.TrimPrefix(in.Name, "__export_"), "__")
			vm.heap.Object(f.moduleNS).Props[exported] = v
		}
	case bytecode.OpStore:
		v := vm.pop()
		if !vm.curFrame().store(in.Name, v) {
			return false, diag.NewReferenceError(diag.RefNotFound, in.Name)
		}
	case bytecode.OpLoad:
		v, ok := vm.curFrame().load(in.Name)
		if !ok {
			return false, diag.NewReferenceError(diag.RefNotFound, in.Name)
		}
		vm.push(v)
	case bytecode.OpDrop:
		vm.curFrame().drop(in.Name)
	case bytecode.OpLoadThis:
		f := vm.curFrame()
		if f.hasThis {
			vm.push(f.this)
		} else {
			vm.push(vmvalue.Undefined())
		}

	case bytecode.OpStoreLocal, bytecode.OpLoadLocal:
		return false, fmt.Errorf("vm: slot-indexed locals are not used by this compiler")

	case bytecode.OpNewObject:
		vm.push(vm.heap.NewObject(&vmvalue.ObjectRec{Proto: vmvalue.Nil(), Super: vmvalue.Nil()}))
	case bytecode.OpNewArray:
		elems := vm.popN(in.A)
		vm.push(vm.heap.NewArray(flattenSpreads(vm.heap, elems)))
	case bytecode.OpSetProp:
		val := vm.pop()
		obj := vm.stack[len(vm.stack)-1]
		if err := vm.setProp(obj, in.Name, val); err != nil {
			return false, err
		}
	case bytecode.OpGetProp:
		obj := vm.pop()
		v, err := vm.getProp(obj, in.Name)
		if err != nil {
			return false, err
		}
		vm.push(v)
	case bytecode.OpStoreElement:
		val := vm.pop()
		idx := vm.pop()
		obj := vm.stack[len(vm.stack)-1]
		if err := vm.storeElement(obj, idx, val); err != nil {
			return false, err
		}
	case bytecode.OpLoadElement:
		idx := vm.pop()
		obj := vm.pop()
		v, err := vm.loadElement(obj, idx)
		if err != nil {
			return false, err
		}
		vm.push(v)

	case bytecode.OpCall:
		if err := vm.execCall(in); err != nil {
			return false, vm.handleThrow(err)
		}
	case bytecode.OpCallMethod:
		if err := vm.execCallMethod(in); err != nil {
			return false, vm.handleThrow(err)
		}
	case bytecode.OpConstruct:
		if err := vm.execConstruct(in); err != nil {
			return false, vm.handleThrow(err)
		}
	case bytecode.OpReturn:
		vm.execReturn()

	case bytecode.OpJump:
		vm.ip = in.A
	case bytecode.OpJumpIfFalse:
		if !vm.pop().Truthy() {
			vm.ip = in.A
		}
	case bytecode.OpMakeClosure:
		env := vm.pop()
		vm.push(vm.heap.NewClosure(&vmvalue.ClosureRec{
			EntryAddr: in.A, Env: env, Arity: in.B, Name: in.Name, IsAsync: in.Flag,
		}))

	case bytecode.OpAdd:
		b, a := vm.pop(), vm.pop()
		vm.push(vm.add(a, b))
	case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		b, a := vm.pop(), vm.pop()
		r, err := vm.numericBinary(opSymbol(in.Op), a, b)
		if err != nil {
			return false, vm.handleThrow(err)
		}
		vm.push(r)
	case bytecode.OpNeg:
		a := vm.pop()
		vm.push(vmvalue.Number(-a.AsNumber()))
	case bytecode.OpNot:
		vm.push(vmvalue.Bool(!vm.pop().Truthy()))
	case bytecode.OpAnd:
		b, a := vm.pop(), vm.pop()
		vm.push(vmvalue.Bool(a.Truthy() && b.Truthy()))
	case bytecode.OpOr:
		b, a := vm.pop(), vm.pop()
		vm.push(vmvalue.Bool(a.Truthy() || b.Truthy()))

	case bytecode.OpEq:
		b, a := vm.pop(), vm.pop()
		vm.push(vmvalue.Bool(vm.equals(a, b)))
	case bytecode.OpNotEq:
		b, a := vm.pop(), vm.pop()
		vm.push(vmvalue.Bool(!vm.equals(a, b)))
	case bytecode.OpLt, bytecode.OpLtEq, bytecode.OpGt, bytecode.OpGtEq:
		b, a := vm.pop(), vm.pop()
		r, err := vm.compare(opSymbol(in.Op), a, b)
		if err != nil {
			return false, vm.handleThrow(err)
		}
		vm.push(vmvalue.Bool(r))

	case bytecode.OpThrow:
		v := vm.pop()
		return false, vm.handleThrow(&thrownValue{v: v})

	case bytecode.OpSetupTry:
		vm.tries = append(vm.tries, &tryFrame{
			catchAddr: in.A, stackDepth: len(vm.stack), frameDepth: len(vm.frames),
		})
	case bytecode.OpPopTry:
		vm.tries = vm.tries[:len(vm.tries)-1]
	case bytecode.OpEnterFinally:
		// no VM-side bookkeeping needed: the compiler inlines finally
		// code at both the normal-exit and catch-exit sites (see
		// DESIGN.md), so EnterFinally is purely a marker instruction.

	case bytecode.OpSetProto:
		val := vm.pop()
		obj := vm.stack[len(vm.stack)-1]
		if obj.IsKind(vmvalue.KindObject) {
			vm.heap.Object(obj).Proto = val
		}
	case bytecode.OpLoadSuper:
		vm.push(vm.curFrame().super)
	case bytecode.OpCallSuper:
		if err := vm.execCallSuper(in); err != nil {
			return false, vm.handleThrow(err)
		}
	case bytecode.OpGetSuperProp:
		v, err := vm.getSuperProp(in.Name)
		if err != nil {
			return false, err
		}
		vm.push(v)
	case bytecode.OpApplyDecorator:
		if err := vm.execApplyDecorator(in); err != nil {
			return false, vm.handleThrow(err)
		}

	case bytecode.OpImportAsync:
		p, err := vm.loader.Import(in.Name, vm.currentModulePath())
		if err != nil {
			return false, vm.handleThrow(err)
		}
		vm.push(p)
	case bytecode.OpGetExport:
		ns := vm.pop()
		v, err := vm.getExport(ns, in.Name, in.Flag)
		if err != nil {
			return false, vm.handleThrow(err)
		}
		vm.push(v)
	case bytecode.OpAwait:
		v, err := vm.execAwait(vm.pop())
		if err != nil {
			return false, vm.handleThrow(err)
		}
		vm.push(v)
	case bytecode.OpRequire:
		p, err := vm.loader.Import(in.Name, vm.currentModulePath())
		if err != nil {
			return false, vm.handleThrow(err)
		}
		vm.push(p)

	case bytecode.OpHalt:
		// A module chunk (internal/vm/module.go) shares Compile's Halt
		// terminator with the entry script, since the compiler has only
		// one notion of "end of top-level code". Only the outermost Run
		// frame turns that into a real VM halt; a nested module frame
		// (pushed by runModuleFrame) just pops and hands control back.
		if len(vm.frames) > 1 {
			vm.frames = vm.frames[:len(vm.frames)-1]
			return false, nil
		}
		return true, nil

	default:
		return false, fmt.Errorf("vm: unhandled opcode %s", in.Op)
	}
	return false, nil
}

func (vm *VM) constant(idx int) vmvalue.Value {
	c := vm.prog.Constants[idx]
	switch val := c.(type) {
	case nil:
		return vmvalue.Nil()
	case bool:
		return vmvalue.Bool(val)
	case float64:
		return vmvalue.Number(val)
	case string:
		return vm.heap.NewString(val)
	default:
		return vmvalue.Undefined()
	}
}

func opSymbol(op bytecode.Op) string {
	switch op {
	case bytecode.OpSub:
		return "-"
	case bytecode.OpMul:
		return "*"
	case bytecode.OpDiv:
		return "/"
	case bytecode.OpMod:
		return "%"
	case bytecode.OpLt:
		return "<"
	case bytecode.OpLtEq:
		return "<="
	case bytecode.OpGt:
		return ">"
	case bytecode.OpGtEq:
		return ">="
	}
	return ""
}

// currentModulePath reports which module the executing code belongs to,
// used to resolve relative import specifiers; the entry script's own
// path until a module frame is active.
func (vm *VM) currentModulePath() string {
	return vm.loader.currentPath
}

// thrownValue wraps a bytecode-level `throw expr` value so handleThrow
// can distinguish it from a Go-native diag.Diagnostic.
type thrownValue struct{ v vmvalue.Value }

func (t *thrownValue) Error() string { return "uncaught exception" }
