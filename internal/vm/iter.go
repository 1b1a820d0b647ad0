package vm

import "nyx/internal/vmvalue"

// nativeIterate implements "__iterate__", the native both for..in and
// for..of lower to (spec §4.3): it builds a small stateful iterator
// object whose "hasNext"/"next" properties are NativeFns that read and
// advance a cursor stored in the iterator's own Props, so the single
// global "hasNext"/"next" handlers below stay stateless themselves.
func (vm *VM) nativeIterate(args []vmvalue.Value) (vmvalue.Value, error) {
	collection, mode := args[0], vm.asString(args[1])
	rec := &vmvalue.ObjectRec{Props: map[string]vmvalue.Value{
		"__coll__": collection,
		"__mode__": vm.heap.NewString(mode),
		"__idx__":  vmvalue.Number(0),
		"hasNext":  vm.heap.NewNativeFn(0, "hasNext"),
		"next":     vm.heap.NewNativeFn(0, "next"),
	}}
	if collection.IsKind(vmvalue.KindObject) {
		keys := make([]vmvalue.Value, 0, len(vm.heap.Object(collection).Props))
		for k := range vm.heap.Object(collection).Props {
			keys = append(keys, vm.heap.NewString(k))
		}
		rec.Props["__keys__"] = vm.heap.NewArray(keys)
	}
	return vm.heap.NewObject(rec), nil
}

func (vm *VM) iterLen(iter *vmvalue.ObjectRec) int {
	coll := iter.Props["__coll__"]
	switch {
	case coll.IsKind(vmvalue.KindArray):
		return len(vm.heap.Array(coll).Elements)
	case coll.IsKind(vmvalue.KindString):
		return len(vm.heap.String(coll).Bytes)
	case coll.IsKind(vmvalue.KindObject):
		return len(vm.heap.Array(iter.Props["__keys__"]).Elements)
	default:
		return 0
	}
}

func (vm *VM) nativeHasNext(this vmvalue.Value) (vmvalue.Value, error) {
	if !this.IsKind(vmvalue.KindObject) {
		return vmvalue.Bool(false), nil
	}
	iter := vm.heap.Object(this)
	idx := int(iter.Props["__idx__"].AsNumber())
	return vmvalue.Bool(idx < vm.iterLen(iter)), nil
}

func (vm *VM) nativeNext(this vmvalue.Value) (vmvalue.Value, error) {
	iter := vm.heap.Object(this)
	idx := int(iter.Props["__idx__"].AsNumber())
	iter.Props["__idx__"] = vmvalue.Number(float64(idx + 1))
	mode := vm.asString(iter.Props["__mode__"])
	coll := iter.Props["__coll__"]

	switch {
	case coll.IsKind(vmvalue.KindArray):
		if mode == "in" {
			return vmvalue.Number(float64(idx)), nil
		}
		return vm.heap.Array(coll).Elements[idx], nil
	case coll.IsKind(vmvalue.KindString):
		s := vm.heap.String(coll).Bytes
		if mode == "in" {
			return vmvalue.Number(float64(idx)), nil
		}
		return vm.heap.NewString(string(s[idx])), nil
	case coll.IsKind(vmvalue.KindObject):
		key := vm.heap.Array(iter.Props["__keys__"]).Elements[idx]
		if mode == "in" {
			return key, nil
		}
		return vm.heap.Object(coll).Props[vm.asString(key)], nil
	default:
		return vmvalue.Undefined(), nil
	}
}
