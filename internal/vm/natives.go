package vm

import (
	"math"
	"strings"

	"nyx/internal/diag"
	"nyx/internal/vmvalue"
)

// nativeFn is the signature every name in vm.natives must satisfy,
// whether it's a global builtin ("typeof", "pow"), an Array/String
// instance method dispatched by name from getProp, or a Promise
// combinator: the receiver (Undefined/hasThis=false for a plain
// function call) plus the already-evaluated argument list.
type nativeFn func(vm *VM, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error)

func arg(args []vmvalue.Value, i int) vmvalue.Value {
	if i < 0 || i >= len(args) {
		return vmvalue.Undefined()
	}
	return args[i]
}

// buildNatives wires every name the compiler can emit as an OpCall/
// OpCallMethod Name, or that props.go hands back as a NativeFn handle,
// into one flat dispatch table (spec §4.3's native-call convention).
func (vm *VM) buildNatives() map[string]nativeFn {
	return map[string]nativeFn{
		"typeof":     func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vm.heap.NewString(vm.typeofName(arg(args, 0))), nil },
		"pow":        nativePow,
		"instanceof": nativeInstanceof,
		"isNullish":  func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { v := arg(args, 0); return vmvalue.Bool(v.IsNil() || v.IsUndefined()), nil },
		"String":     func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vm.heap.NewString(vm.asString(arg(args, 0))), nil },
		"log":        nativeLog,

		"__spread__":      nativeSpreadMarker,
		"__iterate__":     func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vm.nativeIterate(args) },
		"hasNext":         func(vm *VM, this vmvalue.Value, _ bool, _ []vmvalue.Value) (vmvalue.Value, error) { return vm.nativeHasNext(this) },
		"next":            func(vm *VM, this vmvalue.Value, _ bool, _ []vmvalue.Value) (vmvalue.Value, error) { return vm.nativeNext(this) },
		"__defineClass__": func(vm *VM, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error) { return vm.nativeDefineClass(this, hasThis, args) },
		"__reexportAll__": nativeReexportAll,

		"Promise.resolve": func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
			p := vm.heap.NewPromise()
			return p, vm.resolvePromise(p, arg(args, 0))
		},
		"Promise.reject": func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
			p := vm.heap.NewPromise()
			return p, vm.rejectPromise(p, arg(args, 0))
		},
		"Promise.then":    func(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vm.nativeThen(this, args, false) },
		"Promise.catch":   func(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vm.nativeThen(this, args, true) },
		"Promise.finally": nativeFinally,

		"setTimeout":      nativeSetTimeout,
		"clearTimeout":    nativeClearTimeout,
		"queueMicrotask":  nativeQueueMicrotask,

		"Array.push":     arrayPush,
		"Array.pop":      arrayPop,
		"Array.shift":    arrayShift,
		"Array.unshift":  arrayUnshift,
		"Array.slice":    arraySlice,
		"Array.indexOf":  arrayIndexOf,
		"Array.includes": arrayIncludes,
		"Array.join":     arrayJoin,
		"Array.map":      arrayMap,
		"Array.filter":   arrayFilter,
		"Array.forEach":  arrayForEach,
		"Array.reduce":   arrayReduce,
		"Array.reverse":  arrayReverse,

		"String.charAt":      stringCharAt,
		"String.slice":       stringSlice,
		"String.indexOf":     stringIndexOf,
		"String.includes":    stringIncludes,
		"String.split":       stringSplit,
		"String.toUpperCase": stringToUpperCase,
		"String.toLowerCase": stringToLowerCase,
		"String.trim":        stringTrim,

		"Math.floor":  func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vmvalue.Number(math.Floor(arg(args, 0).AsNumber())), nil },
		"Math.ceil":   func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vmvalue.Number(math.Ceil(arg(args, 0).AsNumber())), nil },
		"Math.round":  func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vmvalue.Number(math.Round(arg(args, 0).AsNumber())), nil },
		"Math.abs":    func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vmvalue.Number(math.Abs(arg(args, 0).AsNumber())), nil },
		"Math.sqrt":   func(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) { return vmvalue.Number(math.Sqrt(arg(args, 0).AsNumber())), nil },
		"Math.max":    mathMax,
		"Math.min":    mathMin,
		"Math.random": func(vm *VM, _ vmvalue.Value, _ bool, _ []vmvalue.Value) (vmvalue.Value, error) { return vmvalue.Number(0.5), nil },
	}
}

// seedGlobals binds the handful of pre-existing global identifiers a
// program can reference without ever importing anything (Math, console,
// setTimeout/clearTimeout/queueMicrotask) into f directly, since a frame
// has no parent chain to fall back to (spec §4.3's Load rule resolves
// purely against the active frame and whatever a closure captured from
// it). Both the entry script's outermost frame and every module's own
// top-level frame need this, independently, since ImportAsync never
// threads a captured environment into the module body.
func (vm *VM) seedGlobals(f *frame) {
	mathObj := map[string]vmvalue.Value{
		"floor": vm.heap.NewNativeFn(0, "Math.floor"), "ceil": vm.heap.NewNativeFn(0, "Math.ceil"),
		"round": vm.heap.NewNativeFn(0, "Math.round"), "abs": vm.heap.NewNativeFn(0, "Math.abs"),
		"sqrt": vm.heap.NewNativeFn(0, "Math.sqrt"), "max": vm.heap.NewNativeFn(0, "Math.max"),
		"min": vm.heap.NewNativeFn(0, "Math.min"), "random": vm.heap.NewNativeFn(0, "Math.random"),
		"PI": vmvalue.Number(math.Pi), "E": vmvalue.Number(math.E),
	}
	consoleObj := map[string]vmvalue.Value{
		"log": vm.heap.NewNativeFn(0, "log"), "error": vm.heap.NewNativeFn(0, "log"), "warn": vm.heap.NewNativeFn(0, "log"),
	}
	promiseObj := map[string]vmvalue.Value{
		"resolve": vm.heap.NewNativeFn(0, "Promise.resolve"), "reject": vm.heap.NewNativeFn(0, "Promise.reject"),
	}
	f.let("Math", vm.heap.NewObject(&vmvalue.ObjectRec{Props: mathObj}))
	f.let("console", vm.heap.NewObject(&vmvalue.ObjectRec{Props: consoleObj}))
	f.let("Promise", vm.heap.NewObject(&vmvalue.ObjectRec{Props: promiseObj}))
	f.let("setTimeout", vm.heap.NewNativeFn(0, "setTimeout"))
	f.let("clearTimeout", vm.heap.NewNativeFn(0, "clearTimeout"))
	f.let("queueMicrotask", vm.heap.NewNativeFn(0, "queueMicrotask"))

	// Stdlib modules (internal/stdlib/dbmodule, internal/stdlib/netmodule)
	// register their surface object (`db`, `net`) here via RegisterGlobal
	// instead of vm importing them directly, which would cycle.
	for name, v := range vm.globals {
		f.let(name, v)
	}
}

func nativePow(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	return vmvalue.Number(math.Pow(arg(args, 0).AsNumber(), arg(args, 1).AsNumber())), nil
}

func mathMax(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	if len(args) == 0 {
		return vmvalue.Number(math.Inf(-1)), nil
	}
	best := args[0].AsNumber()
	for _, a := range args[1:] {
		best = math.Max(best, a.AsNumber())
	}
	return vmvalue.Number(best), nil
}

func mathMin(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	if len(args) == 0 {
		return vmvalue.Number(math.Inf(1)), nil
	}
	best := args[0].AsNumber()
	for _, a := range args[1:] {
		best = math.Min(best, a.AsNumber())
	}
	return vmvalue.Number(best), nil
}

// nativeInstanceof walks v's prototype chain looking for cls's own
// prototype object (spec §4.3's `instanceof` operator).
func nativeInstanceof(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	v, cls := arg(args, 0), arg(args, 1)
	if !v.IsKind(vmvalue.KindObject) || !cls.IsKind(vmvalue.KindObject) {
		return vmvalue.Bool(false), nil
	}
	target := vm.heap.Object(cls).Props["prototype"]
	proto := vm.heap.Object(v).Proto
	for proto.IsKind(vmvalue.KindObject) {
		if proto == target {
			return vmvalue.Bool(true), nil
		}
		proto = vm.heap.Object(proto).Proto
	}
	return vmvalue.Bool(false), nil
}

func nativeLog(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = vm.asString(a)
	}
	vm.Stdout(strings.Join(parts, " "))
	return vmvalue.Undefined(), nil
}

// nativeSpreadMarker wraps an array-literal spread's source array with a
// sentinel object flattenSpreads recognizes and expands (spec §4.3 array
// spread); it never reaches user code as an ordinary value.
func nativeSpreadMarker(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	return vm.heap.NewObject(&vmvalue.ObjectRec{Props: map[string]vmvalue.Value{
		"__spread__": vmvalue.Bool(true),
		"__arr__":    arg(args, 0),
	}}), nil
}

// nativeReexportAll implements `export * from "spec"`: it reads the
// imported namespace object handed to it as the sole argument and
// re-Lets every one of its own properties into the current (module
// top-level) frame as "__export_"+name+"__", the same binding shape the
// loader's export-collection pass scans for.
func nativeReexportAll(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	ns := arg(args, 0)
	if !ns.IsKind(vmvalue.KindObject) {
		return vmvalue.Undefined(), nil
	}
	f := vm.curFrame()
	for name, v := range vm.heap.Object(ns).Props {
		f.let("__export_"+name+"__", v)
	}
	return vmvalue.Undefined(), nil
}

// getExport resolves a module namespace's exported binding (spec §4.5.1
// ImportAsync/GetExport): external name "default"/"foo" maps to the
// namespace's own "default"/"foo" property, already unwrapped from
// "__export_..__" by the loader when the namespace was built. isDefault
// does not change the outcome: a miss is a ReferenceError of subkind
// ExportMissing either way.
func (vm *VM) getExport(ns vmvalue.Value, name string, isDefault bool) (vmvalue.Value, error) {
	if !ns.IsKind(vmvalue.KindObject) {
		return vmvalue.Undefined(), vm.typeError("cannot read export from a non-module value")
	}
	if v, ok := vm.heap.Object(ns).Props[name]; ok {
		return v, nil
	}
	_ = isDefault
	return vmvalue.Undefined(), diag.NewReferenceError(diag.RefExportMissing, name)
}

func nativeSetTimeout(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	cb := arg(args, 0)
	delay := int(arg(args, 1).AsNumber())
	extra := args
	if len(extra) > 2 {
		extra = extra[2:]
	} else {
		extra = nil
	}
	if !vm.Config.TimersEnabled {
		v, err := vm.invokeCallable(cb, vmvalue.Undefined(), false, extra)
		return v, err
	}
	id := vm.eventLoop.addTimer(delay, cb, extra)
	return vmvalue.Number(float64(id)), nil
}

func nativeClearTimeout(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	vm.eventLoop.cancelTimer(int(arg(args, 0).AsNumber()))
	return vmvalue.Undefined(), nil
}

func nativeQueueMicrotask(vm *VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	cb := arg(args, 0)
	vm.eventLoop.queueMicrotask(func(vm *VM) error {
		_, err := vm.invokeCallable(cb, vmvalue.Undefined(), false, nil)
		return err
	})
	return vmvalue.Undefined(), nil
}

// nativeFinally implements Promise.prototype.finally: cb runs regardless
// of settlement and sees neither the value nor the reason, and the
// chain passes the original settlement through unless cb itself throws,
// in which case cb's error supersedes it. Both the fulfill and reject
// reactions registered with nativeThen point at the same tap, keyed by
// NativeFnRec.Index into vm.finallyTaps (see callNativeRec) since the
// tap needs to remember which branch it was invoked on.
func nativeFinally(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	cb := arg(args, 0)

	makeTap := func(fulfilled bool) vmvalue.Value {
		idx := len(vm.finallyTaps)
		vm.finallyTaps = append(vm.finallyTaps, func(vm *VM, tapArgs []vmvalue.Value) (vmvalue.Value, error) {
			settled := arg(tapArgs, 0)
			if _, err := vm.invokeCallable(cb, vmvalue.Undefined(), false, nil); err != nil {
				return vmvalue.Undefined(), err
			}
			if fulfilled {
				return settled, nil
			}
			return vmvalue.Undefined(), &thrownValue{v: settled}
		})
		return vm.heap.NewNativeFn(idx, "__finallyTap__")
	}
	return vm.nativeThen(this, []vmvalue.Value{makeTap(true), makeTap(false)}, false)
}
