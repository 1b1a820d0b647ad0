package vm

import (
	"fmt"

	"nyx/internal/bytecode"
	"nyx/internal/diag"
	"nyx/internal/vmvalue"
)

// pushClosureFrame seeds a new frame from cl's captured environment and
// jumps execution to its entry point; the frame's own Return pops it and
// resumes the caller (spec §4.5). retIP is always the VM's current ip,
// i.e. the instruction right after whichever Call/CallMethod/Construct/
// CallSuper triggered this.
func (vm *VM) pushClosureFrame(cl *vmvalue.ClosureRec, this vmvalue.Value, hasThis bool, args []vmvalue.Value, isConstructor bool, instanceVal, classWrapper vmvalue.Value) {
	f := newFrame(len(vm.stack))
	if cl.Env.IsKind(vmvalue.KindObject) {
		env := vm.heap.Object(cl.Env)
		for k, v := range env.Props {
			f.vars[k] = []vmvalue.Value{v}
		}
	}
	f.this = this
	f.hasThis = hasThis
	f.super = cl.OwnerSuper
	f.isConstructor = isConstructor
	f.instanceVal = instanceVal
	f.classWrapper = classWrapper
	f.retIP = vm.ip

	vm.frames = append(vm.frames, f)
	for _, a := range args {
		vm.push(a)
	}
	vm.ip = cl.EntryAddr
}

// dispatchCall resolves callee to either a synchronous native (result
// pushed immediately) or a closure (a new frame is pushed; its Return
// supplies the result later to the same flat instruction loop).
func (vm *VM) dispatchCall(callee, this vmvalue.Value, hasThis bool, args []vmvalue.Value, isConstructor bool, instanceVal, classWrapper vmvalue.Value) error {
	if callee.IsKind(vmvalue.KindNativeFn) {
		rec := vm.heap.NativeFn(callee)
		v, err := vm.callNativeRec(rec, this, hasThis, args)
		if err != nil {
			return err
		}
		vm.push(v)
		return nil
	}
	if !callee.IsKind(vmvalue.KindClosure) {
		return vm.typeError("value is not callable")
	}
	cl := vm.heap.Closure(callee)
	effThis, effHasThis := this, hasThis
	if cl.HasThis {
		effThis, effHasThis = cl.BoundThis, true
	}
	if vm.Config.MaxFrames > 0 && len(vm.frames) >= vm.Config.MaxFrames {
		return diag.NewStackOverflow(vm.Config.MaxFrames)
	}
	vm.pushClosureFrame(cl, effThis, effHasThis, args, isConstructor, instanceVal, classWrapper)
	return nil
}

func (vm *VM) callNative(name string, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error) {
	fn, ok := vm.natives[name]
	if !ok {
		return vmvalue.Undefined(), fmt.Errorf("vm: unknown native function %q", name)
	}
	return fn(vm, this, hasThis, args)
}

// callNativeRec dispatches a heap-stored NativeFn handle, special-casing
// "__finallyTap__" (Promise.finally's per-call thunk, keyed by
// NativeFnRec.Index into vm.finallyTaps since its callback closure can't
// be named in the flat vm.natives table) ahead of the ordinary by-name
// lookup every other native uses.
func (vm *VM) callNativeRec(rec *vmvalue.NativeFnRec, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error) {
	if rec.Name == "__finallyTap__" {
		return vm.finallyTaps[rec.Index](vm, args)
	}
	return vm.callNative(rec.Name, this, hasThis, args)
}

// invokeCallable runs callee to completion before returning, nesting a
// second instruction loop inside the current step() call. It is used
// wherever VM-internal code needs a call's result inline before it can
// continue: ApplyDecorator, class field-initializer thunks, getters and
// setters, timer callbacks, microtasks, promise reactions and
// Promise.finally taps. Ordinary user-level calls go through dispatchCall instead,
// which lets the outer flat loop process the matching Return.
func (vm *VM) invokeCallable(callee, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error) {
	if callee.IsKind(vmvalue.KindNativeFn) {
		rec := vm.heap.NativeFn(callee)
		return vm.callNativeRec(rec, this, hasThis, args)
	}
	if !callee.IsKind(vmvalue.KindClosure) {
		return vmvalue.Undefined(), vm.typeError("value is not callable")
	}
	cl := vm.heap.Closure(callee)
	effThis, effHasThis := this, hasThis
	if cl.HasThis {
		effThis, effHasThis = cl.BoundThis, true
	}
	target := len(vm.frames)
	vm.pushClosureFrame(cl, effThis, effHasThis, args, false, vmvalue.Undefined(), vmvalue.Undefined())
	for len(vm.frames) > target {
		halted, err := vm.step()
		if err != nil {
			return vmvalue.Undefined(), err
		}
		if halted {
			break
		}
	}
	if len(vm.stack) == 0 {
		return vmvalue.Undefined(), nil
	}
	return vm.pop(), nil
}

func (vm *VM) execCall(in bytecode.Instruction) error {
	if in.Name != "" {
		args := vm.popN(in.A)
		v, err := vm.callNative(in.Name, vmvalue.Undefined(), false, args)
		if err != nil {
			return err
		}
		vm.push(v)
		return nil
	}
	callee := vm.pop()
	args := vm.popN(in.A)
	return vm.dispatchCall(callee, vmvalue.Undefined(), false, args, false, vmvalue.Undefined(), vmvalue.Undefined())
}

func (vm *VM) execCallMethod(in bytecode.Instruction) error {
	args := vm.popN(in.A)
	receiver := vm.pop()
	if in.Name == "__mergeSpread__" {
		v, err := vm.nativeMergeSpread(receiver, args)
		if err != nil {
			return err
		}
		vm.push(v)
		return nil
	}
	callee, err := vm.getProp(receiver, in.Name)
	if err != nil {
		return err
	}
	if callee.IsUndefined() {
		return diag.NewReferenceError(diag.RefNotFound, in.Name)
	}
	return vm.dispatchCall(callee, receiver, true, args, false, vmvalue.Undefined(), vmvalue.Undefined())
}

func (vm *VM) execReturn() {
	f := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	retVal := vm.pop()
	if f.isConstructor {
		retVal = f.instanceVal
	}
	if len(vm.stack) > f.stackMark {
		vm.stack = vm.stack[:f.stackMark]
	}
	vm.push(retVal)
	vm.ip = f.retIP
}

// handleThrow converts err into a Nyx exception value and transfers
// control to the innermost active try region, unwinding call frames and
// the value stack to the point SetupTry recorded (spec §4.5 Throw). It
// returns nil once handled, or the original error if nothing catches it
// (propagated out of Run as a hard failure).
func (vm *VM) handleThrow(err error) error {
	if err == nil {
		return nil
	}
	v := vm.errorToValue(err)
	for len(vm.tries) > 0 {
		tf := vm.tries[len(vm.tries)-1]
		vm.tries = vm.tries[:len(vm.tries)-1]
		if tf.frameDepth > len(vm.frames) {
			continue
		}
		vm.frames = vm.frames[:tf.frameDepth]
		if tf.stackDepth > len(vm.stack) {
			tf.stackDepth = len(vm.stack)
		}
		vm.stack = vm.stack[:tf.stackDepth]
		vm.push(v)
		vm.ip = tf.catchAddr
		return nil
	}
	return err
}

func (vm *VM) errorToValue(err error) vmvalue.Value {
	if tv, ok := err.(*thrownValue); ok {
		return tv.v
	}
	obj := &vmvalue.ObjectRec{Props: map[string]vmvalue.Value{
		"message": vm.heap.NewString(err.Error()),
	}}
	if d, ok := err.(*diag.Diagnostic); ok {
		obj.Props["name"] = vm.heap.NewString(string(d.Kind))
		if d.Subkind != "" {
			obj.Props["kind"] = vm.heap.NewString(d.Subkind)
		}
	} else {
		obj.Props["name"] = vm.heap.NewString("Error")
	}
	return vm.heap.NewObject(obj)
}

func (vm *VM) execConstruct(in bytecode.Instruction) error {
	classVal := vm.pop()
	args := vm.popN(in.A)
	if !classVal.IsKind(vmvalue.KindObject) {
		return vm.typeError("value is not a constructor")
	}
	classObj := vm.heap.Object(classVal)
	protoVal := classObj.Props["prototype"]
	instVal := vm.heap.NewObject(&vmvalue.ObjectRec{Proto: protoVal})
	if err := vm.initFields(classVal, instVal); err != nil {
		return err
	}
	ctor, ok := classObj.Props["__ctor__"]
	if !ok || !ctor.IsKind(vmvalue.KindClosure) {
		return vm.typeError("class has no constructor")
	}
	cl := vm.heap.Closure(ctor)
	vm.pushClosureFrame(cl, instVal, true, args, true, instVal, classVal)
	return nil
}

// initFields runs every ancestor's instance field-initializer thunks
// against instVal, base class first, so a derived field initializer
// that reads an inherited field sees it already set.
func (vm *VM) initFields(classVal, instVal vmvalue.Value) error {
	classObj := vm.heap.Object(classVal)
	if classObj.Super.IsKind(vmvalue.KindObject) {
		if err := vm.initFields(classObj.Super, instVal); err != nil {
			return err
		}
	}
	fieldsVal, ok := classObj.Props["__fields__"]
	if !ok || !fieldsVal.IsKind(vmvalue.KindArray) {
		return nil
	}
	for _, pair := range vm.heap.Array(fieldsVal).Elements {
		p := vm.heap.Array(pair).Elements
		name := vm.asString(p[0])
		val, err := vm.invokeCallable(p[1], instVal, true, nil)
		if err != nil {
			return err
		}
		vm.heap.Object(instVal).Props[name] = val
	}
	return nil
}

func (vm *VM) execCallSuper(in bytecode.Instruction) error {
	superVal := vm.pop()
	args := vm.popN(in.A)
	if !superVal.IsKind(vmvalue.KindObject) {
		return vm.typeError("'super' called outside a subclass constructor")
	}
	superObj := vm.heap.Object(superVal)
	ctor, ok := superObj.Props["__ctor__"]
	if !ok || !ctor.IsKind(vmvalue.KindClosure) {
		return vm.typeError("superclass has no constructor")
	}
	f := vm.curFrame()
	cl := vm.heap.Closure(ctor)
	vm.pushClosureFrame(cl, f.this, true, args, true, f.this, superVal)
	return nil
}

// getSuperProp resolves `super.name` against the current method's
// defining class's superclass prototype (spec §4.3), binding any
// resolved method/getter to the current instance via BoundThis since a
// plain Call that follows has no receiver of its own to supply `this`.
func (vm *VM) getSuperProp(name string) (vmvalue.Value, error) {
	f := vm.curFrame()
	if !f.super.IsKind(vmvalue.KindObject) {
		return vmvalue.Undefined(), vm.typeError("'super' used outside a subclass method")
	}
	superObj := vm.heap.Object(f.super)
	protoVal := superObj.Props["prototype"]
	if getter, ok := vm.lookupProp(protoVal, "__get_"+name); ok {
		return vm.invokeCallable(getter, f.this, true, nil)
	}
	v, ok := vm.lookupProp(protoVal, name)
	if !ok {
		return vmvalue.Undefined(), diag.NewReferenceError(diag.RefNotFound, "super."+name)
	}
	if v.IsKind(vmvalue.KindClosure) {
		bound := *vm.heap.Closure(v)
		bound.BoundThis = f.this
		bound.HasThis = true
		return vm.heap.NewClosure(&bound), nil
	}
	return v, nil
}

func (vm *VM) execApplyDecorator(in bytecode.Instruction) error {
	args := vm.popN(in.A)
	decorator := vm.pop()
	target := vm.pop()
	callArgs := append([]vmvalue.Value{target}, args...)
	result, err := vm.invokeCallable(decorator, vmvalue.Undefined(), false, callArgs)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}
