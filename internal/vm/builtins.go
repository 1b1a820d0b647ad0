package vm

import (
	"strings"

	"nyx/internal/vmvalue"
)

// Array and String instance methods (spec §4.3's small builtin surface,
// generalizing the teacher's stdlib helpers in scope): these are looked
// up by name from getArrayProp/getStringProp and invoked with the
// receiver as `this`, exactly like a user-defined method call.

func arrayPush(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	arr := vm.heap.Array(this)
	arr.Elements = append(arr.Elements, args...)
	return vmvalue.Number(float64(len(arr.Elements))), nil
}

func arrayPop(vm *VM, this vmvalue.Value, _ bool, _ []vmvalue.Value) (vmvalue.Value, error) {
	arr := vm.heap.Array(this)
	n := len(arr.Elements)
	if n == 0 {
		return vmvalue.Undefined(), nil
	}
	v := arr.Elements[n-1]
	arr.Elements = arr.Elements[:n-1]
	return v, nil
}

func arrayShift(vm *VM, this vmvalue.Value, _ bool, _ []vmvalue.Value) (vmvalue.Value, error) {
	arr := vm.heap.Array(this)
	if len(arr.Elements) == 0 {
		return vmvalue.Undefined(), nil
	}
	v := arr.Elements[0]
	arr.Elements = arr.Elements[1:]
	return v, nil
}

func arrayUnshift(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	arr := vm.heap.Array(this)
	arr.Elements = append(append([]vmvalue.Value{}, args...), arr.Elements...)
	return vmvalue.Number(float64(len(arr.Elements))), nil
}

func normalizeIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func arraySlice(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	arr := vm.heap.Array(this).Elements
	n := len(arr)
	start, end := 0, n
	if len(args) > 0 {
		start = normalizeIndex(int(args[0].AsNumber()), n)
	}
	if len(args) > 1 {
		end = normalizeIndex(int(args[1].AsNumber()), n)
	}
	if start > end {
		start = end
	}
	out := make([]vmvalue.Value, end-start)
	copy(out, arr[start:end])
	return vm.heap.NewArray(out), nil
}

func arrayIndexOf(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	target := arg(args, 0)
	for i, v := range vm.heap.Array(this).Elements {
		if vm.equals(v, target) {
			return vmvalue.Number(float64(i)), nil
		}
	}
	return vmvalue.Number(-1), nil
}

func arrayIncludes(vm *VM, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error) {
	v, err := arrayIndexOf(vm, this, hasThis, args)
	if err != nil {
		return vmvalue.Undefined(), err
	}
	return vmvalue.Bool(v.AsNumber() >= 0), nil
}

func arrayJoin(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	sep := ","
	if len(args) > 0 && args[0].IsKind(vmvalue.KindString) {
		sep = vm.asString(args[0])
	}
	parts := make([]string, 0, len(vm.heap.Array(this).Elements))
	for _, v := range vm.heap.Array(this).Elements {
		if v.IsNil() || v.IsUndefined() {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, vm.asString(v))
	}
	return vm.heap.NewString(strings.Join(parts, sep)), nil
}

func arrayMap(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	cb := arg(args, 0)
	src := vm.heap.Array(this).Elements
	out := make([]vmvalue.Value, len(src))
	for i, v := range src {
		r, err := vm.invokeCallable(cb, vmvalue.Undefined(), false, []vmvalue.Value{v, vmvalue.Number(float64(i)), this})
		if err != nil {
			return vmvalue.Undefined(), err
		}
		out[i] = r
	}
	return vm.heap.NewArray(out), nil
}

func arrayFilter(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	cb := arg(args, 0)
	src := vm.heap.Array(this).Elements
	out := make([]vmvalue.Value, 0, len(src))
	for i, v := range src {
		r, err := vm.invokeCallable(cb, vmvalue.Undefined(), false, []vmvalue.Value{v, vmvalue.Number(float64(i)), this})
		if err != nil {
			return vmvalue.Undefined(), err
		}
		if r.Truthy() {
			out = append(out, v)
		}
	}
	return vm.heap.NewArray(out), nil
}

func arrayForEach(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	cb := arg(args, 0)
	for i, v := range vm.heap.Array(this).Elements {
		if _, err := vm.invokeCallable(cb, vmvalue.Undefined(), false, []vmvalue.Value{v, vmvalue.Number(float64(i)), this}); err != nil {
			return vmvalue.Undefined(), err
		}
	}
	return vmvalue.Undefined(), nil
}

func arrayReduce(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	cb := arg(args, 0)
	src := vm.heap.Array(this).Elements
	var acc vmvalue.Value
	start := 0
	if len(args) > 1 {
		acc = args[1]
	} else {
		if len(src) == 0 {
			return vmvalue.Undefined(), vm.typeError("reduce of empty array with no initial value")
		}
		acc = src[0]
		start = 1
	}
	for i := start; i < len(src); i++ {
		r, err := vm.invokeCallable(cb, vmvalue.Undefined(), false, []vmvalue.Value{acc, src[i], vmvalue.Number(float64(i)), this})
		if err != nil {
			return vmvalue.Undefined(), err
		}
		acc = r
	}
	return acc, nil
}

func arrayReverse(vm *VM, this vmvalue.Value, _ bool, _ []vmvalue.Value) (vmvalue.Value, error) {
	arr := vm.heap.Array(this)
	for i, j := 0, len(arr.Elements)-1; i < j; i, j = i+1, j-1 {
		arr.Elements[i], arr.Elements[j] = arr.Elements[j], arr.Elements[i]
	}
	return this, nil
}

func stringCharAt(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	s := vm.heap.String(this).Bytes
	i := int(arg(args, 0).AsNumber())
	if i < 0 || i >= len(s) {
		return vm.heap.NewString(""), nil
	}
	return vm.heap.NewString(string(s[i])), nil
}

func stringSlice(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	s := vm.heap.String(this).Bytes
	n := len(s)
	start, end := 0, n
	if len(args) > 0 {
		start = normalizeIndex(int(args[0].AsNumber()), n)
	}
	if len(args) > 1 {
		end = normalizeIndex(int(args[1].AsNumber()), n)
	}
	if start > end {
		start = end
	}
	return vm.heap.NewString(string(s[start:end])), nil
}

func stringIndexOf(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	s := string(vm.heap.String(this).Bytes)
	return vmvalue.Number(float64(strings.Index(s, vm.asString(arg(args, 0))))), nil
}

func stringIncludes(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	s := string(vm.heap.String(this).Bytes)
	return vmvalue.Bool(strings.Contains(s, vm.asString(arg(args, 0)))), nil
}

func stringSplit(vm *VM, this vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	s := string(vm.heap.String(this).Bytes)
	if len(args) == 0 {
		return vm.heap.NewArray([]vmvalue.Value{vm.heap.NewString(s)}), nil
	}
	sep := vm.asString(args[0])
	var parts []string
	if sep == "" {
		parts = strings.Split(s, "")
	} else {
		parts = strings.Split(s, sep)
	}
	out := make([]vmvalue.Value, len(parts))
	for i, p := range parts {
		out[i] = vm.heap.NewString(p)
	}
	return vm.heap.NewArray(out), nil
}

func stringToUpperCase(vm *VM, this vmvalue.Value, _ bool, _ []vmvalue.Value) (vmvalue.Value, error) {
	return vm.heap.NewString(strings.ToUpper(string(vm.heap.String(this).Bytes))), nil
}

func stringToLowerCase(vm *VM, this vmvalue.Value, _ bool, _ []vmvalue.Value) (vmvalue.Value, error) {
	return vm.heap.NewString(strings.ToLower(string(vm.heap.String(this).Bytes))), nil
}

func stringTrim(vm *VM, this vmvalue.Value, _ bool, _ []vmvalue.Value) (vmvalue.Value, error) {
	return vm.heap.NewString(strings.TrimSpace(string(vm.heap.String(this).Bytes))), nil
}
