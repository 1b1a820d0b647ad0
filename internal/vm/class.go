package vm

import "nyx/internal/vmvalue"

// nativeMergeSpread implements the "__mergeSpread__" pseudo-method
// object-literal spread lowers to (spec §4.3): copy every enumerable
// property from src into receiver and return receiver, so the object
// literal's one-value-on-stack invariant holds across a spread prop.
func (vm *VM) nativeMergeSpread(receiver vmvalue.Value, args []vmvalue.Value) (vmvalue.Value, error) {
	if !receiver.IsKind(vmvalue.KindObject) {
		return vmvalue.Undefined(), vm.typeError("__mergeSpread__ requires an object receiver")
	}
	dst := vm.heap.Object(receiver)
	src := args[0]
	switch {
	case src.IsKind(vmvalue.KindObject):
		for k, v := range vm.heap.Object(src).Props {
			dst.Props[k] = v
		}
	case src.IsKind(vmvalue.KindArray):
		for i, v := range vm.heap.Array(src).Elements {
			dst.Props[formatNumber(float64(i))] = v
		}
	}
	return receiver, nil
}

// bindOwnerSuper clones v, a method/getter/setter/constructor closure,
// stamping super as the defining class's superclass wrapper, so a
// runtime frame invoked from v knows what `super` resolves to (spec
// §4.3's `super` rule) without the closure carrying a back-reference to
// its own defining class.
func bindOwnerSuper(h *vmvalue.Heap, v vmvalue.Value, super vmvalue.Value) vmvalue.Value {
	if !v.IsKind(vmvalue.KindClosure) {
		return v
	}
	cl := *h.Closure(v)
	cl.OwnerSuper = super
	return h.NewClosure(&cl)
}

// nativeDefineClass implements "__defineClass__": assembles a class
// wrapper object (spec §3.2) from the descriptor the compiler built —
// prototype object chained to the superclass's prototype, getters/
// setters stored under "__get_"/"__set_" keys, static members copied
// directly onto the wrapper, static field initializers run immediately
// against the wrapper itself.
func (vm *VM) nativeDefineClass(_ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	superVal := args[0]
	desc := vm.heap.Object(args[1])

	var superProto, superWrapper vmvalue.Value = vmvalue.Nil(), vmvalue.Nil()
	if superVal.IsKind(vmvalue.KindObject) {
		superWrapper = superVal
		superProto = vm.heap.Object(superVal).Props["prototype"]
	}

	proto := &vmvalue.ObjectRec{Props: map[string]vmvalue.Value{}, Proto: superProto}
	for k, v := range vm.heap.Object(desc.Props["methods"]).Props {
		proto.Props[k] = bindOwnerSuper(vm.heap, v, superWrapper)
	}
	for k, v := range vm.heap.Object(desc.Props["getters"]).Props {
		proto.Props["__get_"+k] = bindOwnerSuper(vm.heap, v, superWrapper)
	}
	for k, v := range vm.heap.Object(desc.Props["setters"]).Props {
		proto.Props["__set_"+k] = bindOwnerSuper(vm.heap, v, superWrapper)
	}
	protoVal := vm.heap.NewObject(proto)

	classObj := &vmvalue.ObjectRec{
		Props: map[string]vmvalue.Value{
			"name":       desc.Props["name"],
			"prototype":  protoVal,
			"__ctor__":   bindOwnerSuper(vm.heap, desc.Props["__ctor__"], superWrapper),
			"__fields__": desc.Props["fields"],
		},
		Super: superWrapper,
	}
	classVal := vm.heap.NewObject(classObj)
	proto.Props["constructor"] = classVal

	for k, v := range vm.heap.Object(desc.Props["staticMethods"]).Props {
		classObj.Props[k] = bindOwnerSuper(vm.heap, v, superWrapper)
	}

	if staticFields, ok := desc.Props["staticFields"]; ok && staticFields.IsKind(vmvalue.KindArray) {
		for _, pair := range vm.heap.Array(staticFields).Elements {
			p := vm.heap.Array(pair).Elements
			name := vm.asString(p[0])
			val, err := vm.invokeCallable(p[1], classVal, true, nil)
			if err != nil {
				return vmvalue.Undefined(), err
			}
			classObj.Props[name] = val
		}
	}
	return classVal, nil
}
