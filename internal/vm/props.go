package vm

import (
	"fmt"

	"nyx/internal/vmvalue"
)

// lookupProp walks start's own Props then its Proto chain, stopping at
// the first object that defines name. It never invokes a getter; callers
// that want accessor semantics check for "__get_"+name themselves.
func (vm *VM) lookupProp(start vmvalue.Value, name string) (vmvalue.Value, bool) {
	cur := start
	for cur.IsKind(vmvalue.KindObject) {
		rec := vm.heap.Object(cur)
		if v, ok := rec.Props[name]; ok {
			return v, true
		}
		cur = rec.Proto
	}
	return vmvalue.Undefined(), false
}

// getProp implements GetProp/MemberExpr reads (spec §4.3): a getter
// accessor wins over a plain data property, both resolved up the
// prototype chain; arrays and strings expose a small builtin surface
// instead of participating in the Object prototype chain.
func (vm *VM) getProp(receiver vmvalue.Value, name string) (vmvalue.Value, error) {
	switch {
	case receiver.IsKind(vmvalue.KindArray):
		return vm.getArrayProp(receiver, name), nil
	case receiver.IsKind(vmvalue.KindString):
		return vm.getStringProp(receiver, name), nil
	case receiver.IsKind(vmvalue.KindPromise):
		if name == "then" || name == "catch" || name == "finally" {
			return vm.heap.NewNativeFn(0, "Promise."+name), nil
		}
		return vmvalue.Undefined(), nil
	case receiver.IsKind(vmvalue.KindObject):
		if getter, ok := vm.lookupProp(receiver, "__get_"+name); ok {
			return vm.invokeCallable(getter, receiver, true, nil)
		}
		if v, ok := vm.lookupProp(receiver, name); ok {
			return v, nil
		}
		return vmvalue.Undefined(), nil
	case receiver.IsNil(), receiver.IsUndefined():
		return vmvalue.Undefined(), vm.typeError(fmt.Sprintf("cannot read property %q of %s", name, vm.asString(receiver)))
	default:
		return vmvalue.Undefined(), nil
	}
}

// setProp implements SetProp (spec §4.3): a setter accessor wins over a
// plain assignment.
func (vm *VM) setProp(obj vmvalue.Value, name string, val vmvalue.Value) error {
	if !obj.IsKind(vmvalue.KindObject) {
		return vm.typeError(fmt.Sprintf("cannot set property %q on non-object", name))
	}
	if setter, ok := vm.lookupProp(obj, "__set_"+name); ok {
		_, err := vm.invokeCallable(setter, obj, true, []vmvalue.Value{val})
		return err
	}
	vm.heap.Object(obj).Props[name] = val
	return nil
}

func (vm *VM) storeElement(obj, idx, val vmvalue.Value) error {
	switch {
	case obj.IsKind(vmvalue.KindArray):
		arr := vm.heap.Array(obj)
		i := int(idx.AsNumber())
		if i < 0 {
			return vm.typeError("negative array index")
		}
		for len(arr.Elements) <= i {
			arr.Elements = append(arr.Elements, vmvalue.Undefined())
		}
		arr.Elements[i] = val
		return nil
	case obj.IsKind(vmvalue.KindObject):
		return vm.setProp(obj, vm.asString(idx), val)
	default:
		return vm.typeError("cannot index-assign into this value")
	}
}

func (vm *VM) loadElement(obj, idx vmvalue.Value) (vmvalue.Value, error) {
	switch {
	case obj.IsKind(vmvalue.KindArray):
		arr := vm.heap.Array(obj)
		i := int(idx.AsNumber())
		if i < 0 || i >= len(arr.Elements) {
			return vmvalue.Undefined(), nil
		}
		return arr.Elements[i], nil
	case obj.IsKind(vmvalue.KindString):
		s := vm.heap.String(obj).Bytes
		i := int(idx.AsNumber())
		if i < 0 || i >= len(s) {
			return vmvalue.Undefined(), nil
		}
		return vm.heap.NewString(string(s[i])), nil
	case obj.IsKind(vmvalue.KindObject):
		return vm.getProp(obj, vm.asString(idx))
	default:
		return vmvalue.Undefined(), vm.typeError("cannot index this value")
	}
}

var arrayMethods = map[string]bool{
	"push": true, "pop": true, "shift": true, "unshift": true,
	"slice": true, "indexOf": true, "includes": true, "join": true,
	"map": true, "filter": true, "forEach": true, "reduce": true, "reverse": true,
}

func (vm *VM) getArrayProp(receiver vmvalue.Value, name string) vmvalue.Value {
	if name == "length" {
		return vmvalue.Number(float64(len(vm.heap.Array(receiver).Elements)))
	}
	if arrayMethods[name] {
		return vm.heap.NewNativeFn(0, "Array."+name)
	}
	return vmvalue.Undefined()
}

var stringMethods = map[string]bool{
	"charAt": true, "slice": true, "indexOf": true, "includes": true,
	"split": true, "toUpperCase": true, "toLowerCase": true, "trim": true,
}

func (vm *VM) getStringProp(receiver vmvalue.Value, name string) vmvalue.Value {
	if name == "length" {
		return vmvalue.Number(float64(len(vm.heap.String(receiver).Bytes)))
	}
	if stringMethods[name] {
		return vm.heap.NewNativeFn(0, "String."+name)
	}
	return vmvalue.Undefined()
}

// flattenSpreads expands every "__spread__"-wrapped element produced by
// the "__spread__" native (array-literal spread) in place, so NewArray
// ends up with one final element per logical value instead of per
// source-literal slot (spec §4.3 array spread).
func flattenSpreads(h *vmvalue.Heap, elems []vmvalue.Value) []vmvalue.Value {
	out := make([]vmvalue.Value, 0, len(elems))
	for _, e := range elems {
		if e.IsKind(vmvalue.KindObject) {
			rec := h.Object(e)
			if marker, ok := rec.Props["__spread__"]; ok && marker.IsBool() && marker.AsBool() {
				out = append(out, h.Array(rec.Props["__arr__"]).Elements...)
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
