package vm

import (
	"fmt"
	"math"

	"nyx/internal/diag"
	"nyx/internal/vmvalue"
)

// asString returns v's Go string form for the Add/concatenation and
// String() coercion rules (spec §4.3 template-literal lowering), reading
// heap bytes for a String handle and formatting everything else with
// Nyx's display rules.
func (vm *VM) asString(v vmvalue.Value) string {
	switch {
	case v.IsKind(vmvalue.KindString):
		return string(vm.heap.String(v).Bytes)
	case v.IsNumber():
		return formatNumber(v.AsNumber())
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNil():
		return "null"
	case v.IsUndefined():
		return "undefined"
	case v.IsKind(vmvalue.KindArray):
		arr := vm.heap.Array(v)
		parts := make([]string, len(arr.Elements))
		for i, el := range arr.Elements {
			parts[i] = vm.asString(el)
		}
		s := ""
		for i, p := range parts {
			if i > 0 {
				s += ","
			}
			s += p
		}
		return s
	case v.IsKind(vmvalue.KindObject):
		return "[object Object]"
	case v.IsKind(vmvalue.KindClosure):
		return "[function]"
	default:
		return fmt.Sprintf("%v", uint64(v))
	}
}

func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprintf("%g", f)
}

// typeofName implements the `typeof` native (spec §4.1 lexes `typeof` as
// a keyword; the compiler lowers it to this native call).
func (vm *VM) typeofName(v vmvalue.Value) string {
	switch {
	case v.IsNumber():
		return "number"
	case v.IsBool():
		return "boolean"
	case v.IsUndefined():
		return "undefined"
	case v.IsNil():
		return "object"
	case v.IsKind(vmvalue.KindClosure), v.IsKind(vmvalue.KindNativeFn):
		return "function"
	case v.IsKind(vmvalue.KindString):
		return "string"
	default:
		return "object"
	}
}

// add implements Add: numeric addition, or string concatenation when
// either operand is a string (spec §4.3's template-literal rule reuses
// this op instead of a dedicated Concat opcode).
func (vm *VM) add(a, b vmvalue.Value) vmvalue.Value {
	if a.IsKind(vmvalue.KindString) || b.IsKind(vmvalue.KindString) {
		return vm.heap.NewString(vm.asString(a) + vm.asString(b))
	}
	if a.IsNumber() && b.IsNumber() {
		return vmvalue.Number(a.AsNumber() + b.AsNumber())
	}
	return vm.heap.NewString(vm.asString(a) + vm.asString(b))
}

func (vm *VM) numericBinary(op string, a, b vmvalue.Value) (vmvalue.Value, error) {
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case "-":
		return vmvalue.Number(x - y), nil
	case "*":
		return vmvalue.Number(x * y), nil
	case "/":
		return vmvalue.Number(x / y), nil
	case "%":
		return vmvalue.Number(math.Mod(x, y)), nil
	}
	return vmvalue.Value(0), fmt.Errorf("unknown numeric op %q", op)
}

// equals implements strict equality: primitives compare by value,
// strings compare by content (they are heap-stored but behave as
// primitives), everything else compares by handle identity.
func (vm *VM) equals(a, b vmvalue.Value) bool {
	if a.IsKind(vmvalue.KindString) && b.IsKind(vmvalue.KindString) {
		return string(vm.heap.String(a).Bytes) == string(vm.heap.String(b).Bytes)
	}
	if a.IsNumber() && b.IsNumber() {
		return a.AsNumber() == b.AsNumber()
	}
	return a == b
}

func (vm *VM) compare(op string, a, b vmvalue.Value) (bool, error) {
	if a.IsKind(vmvalue.KindString) && b.IsKind(vmvalue.KindString) {
		sa, sb := string(vm.heap.String(a).Bytes), string(vm.heap.String(b).Bytes)
		switch op {
		case "<":
			return sa < sb, nil
		case "<=":
			return sa <= sb, nil
		case ">":
			return sa > sb, nil
		case ">=":
			return sa >= sb, nil
		}
	}
	if !a.IsNumber() || !b.IsNumber() {
		return false, vm.typeError("cannot compare non-numeric, non-string values")
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case "<":
		return x < y, nil
	case "<=":
		return x <= y, nil
	case ">":
		return x > y, nil
	case ">=":
		return x >= y, nil
	}
	return false, fmt.Errorf("unknown comparison op %q", op)
}

func (vm *VM) typeError(msg string) error {
	return diag.NewRuntimeError(diag.KindTypeError, msg)
}
