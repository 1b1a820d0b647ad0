package vm

import "nyx/internal/vmvalue"

// microtask is a deferred unit of VM-side work; never heap-allocated as
// a Nyx value, only ever held transiently by the event loop (spec §5's
// microtask queue).
type microtask func(vm *VM) error

type timerEntry struct {
	id        int
	readyTick int
	callback  vmvalue.Value
	args      []vmvalue.Value
}

// eventLoop implements the single-threaded cooperative scheduler (spec
// §5): a FIFO microtask queue drained to a fixed point ahead of every
// timer, and a flat timer list ordered by readyTick (a logical clock,
// not wall time, so test runs stay deterministic).
type eventLoop struct {
	microtasks  []microtask
	timers      []*timerEntry
	nextTimerID int
	tick        int
}

func newEventLoop() *eventLoop { return &eventLoop{} }

func (el *eventLoop) queueMicrotask(fn microtask) { el.microtasks = append(el.microtasks, fn) }

func (el *eventLoop) addTimer(delayTicks int, callback vmvalue.Value, args []vmvalue.Value) int {
	el.nextTimerID++
	el.timers = append(el.timers, &timerEntry{
		id: el.nextTimerID, readyTick: el.tick + delayTicks, callback: callback, args: args,
	})
	return el.nextTimerID
}

func (el *eventLoop) cancelTimer(id int) {
	for i, t := range el.timers {
		if t.id == id {
			el.timers = append(el.timers[:i], el.timers[i+1:]...)
			return
		}
	}
}

func (el *eventLoop) drainMicrotasks(vm *VM) error {
	for len(el.microtasks) > 0 {
		task := el.microtasks[0]
		el.microtasks = el.microtasks[1:]
		vm.microtasksRun++
		if err := task(vm); err != nil {
			return err
		}
	}
	return nil
}

// tickOnce drains all pending microtasks, then fires the single
// earliest-ready timer, if any. It reports progressed=false once both
// queues are empty.
func (el *eventLoop) tickOnce(vm *VM) (progressed bool, err error) {
	if err := el.drainMicrotasks(vm); err != nil {
		return false, err
	}
	if len(el.timers) == 0 {
		return false, nil
	}
	best := 0
	for i := 1; i < len(el.timers); i++ {
		if el.timers[i].readyTick < el.timers[best].readyTick {
			best = i
		}
	}
	t := el.timers[best]
	el.timers = append(el.timers[:best], el.timers[best+1:]...)
	el.tick = t.readyTick
	vm.timersFired++
	_, err = vm.invokeCallable(t.callback, vmvalue.Undefined(), false, t.args)
	if err := el.drainMicrotasks(vm); err != nil {
		return true, err
	}
	return true, err
}

// drainFully runs the loop to exhaustion, the terminating condition for
// one VM.Run (spec §5: "the loop terminates normally when empty").
func (el *eventLoop) drainFully(vm *VM) error {
	for {
		progressed, err := el.tickOnce(vm)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// scheduleReaction queues r's applicable callback (or a pass-through if
// the callback slot is empty) against settled value/reason val.
func (vm *VM) scheduleReaction(r vmvalue.PromiseReaction, fulfilled bool, val vmvalue.Value) {
	cb := r.OnReject
	if fulfilled {
		cb = r.OnFulfill
	}
	result := r.Result
	vm.eventLoop.queueMicrotask(func(vm *VM) error {
		if !cb.IsKind(vmvalue.KindClosure) && !cb.IsKind(vmvalue.KindNativeFn) {
			if fulfilled {
				return vm.resolvePromise(result, val)
			}
			return vm.rejectPromise(result, val)
		}
		v, err := vm.invokeCallable(cb, vmvalue.Undefined(), false, []vmvalue.Value{val})
		if err != nil {
			return vm.rejectPromise(result, vm.errorToValue(err))
		}
		return vm.resolvePromise(result, v)
	})
}

// resolvePromise fulfills p with val (spec §5's Promise resolution
// procedure), adopting val's eventual state first if val is itself a
// promise. Adoption is implemented by synchronously draining the event
// loop until val settles, the same simplification Await relies on: this
// toolchain never suspends bytecode execution mid-instruction, so a
// native-level resolution step can always just pump the loop forward.
func (vm *VM) resolvePromise(p, val vmvalue.Value) error {
	rec := vm.heap.Promise(p)
	if rec.State != vmvalue.PromisePending {
		return nil
	}
	if val.IsKind(vmvalue.KindPromise) {
		inner := vm.heap.Promise(val)
		for inner.State == vmvalue.PromisePending {
			progressed, err := vm.eventLoop.tickOnce(vm)
			if err != nil {
				return err
			}
			if !progressed {
				break
			}
		}
		if inner.State == vmvalue.PromiseRejected {
			return vm.rejectPromise(p, inner.Result)
		}
		val = inner.Result
	}
	rec.State = vmvalue.PromiseFulfilled
	rec.Result = val
	reactions := rec.Reactions
	rec.Reactions = nil
	for _, r := range reactions {
		vm.scheduleReaction(r, true, val)
	}
	return nil
}

func (vm *VM) rejectPromise(p, reason vmvalue.Value) error {
	rec := vm.heap.Promise(p)
	if rec.State != vmvalue.PromisePending {
		return nil
	}
	rec.State = vmvalue.PromiseRejected
	rec.Result = reason
	reactions := rec.Reactions
	rec.Reactions = nil
	for _, r := range reactions {
		vm.scheduleReaction(r, false, reason)
	}
	return nil
}

// execAwait implements Await (spec §5): a non-promise operand passes
// through unchanged; a pending promise is resolved by synchronously
// pumping the event loop rather than suspending the current call stack,
// since this interpreter has no continuation-capture point to split
// execution at. Real goroutines are reserved for native I/O, not for
// bytecode-level suspension.
func (vm *VM) execAwait(v vmvalue.Value) (vmvalue.Value, error) {
	if !v.IsKind(vmvalue.KindPromise) {
		return v, nil
	}
	p := vm.heap.Promise(v)
	for p.State == vmvalue.PromisePending {
		progressed, err := vm.eventLoop.tickOnce(vm)
		if err != nil {
			return vmvalue.Undefined(), err
		}
		if !progressed {
			return vmvalue.Undefined(), vm.typeError("deadlock: awaited promise never settles")
		}
	}
	if p.State == vmvalue.PromiseRejected {
		return vmvalue.Undefined(), &thrownValue{v: p.Result}
	}
	return p.Result, nil
}

// nativeThen implements both .then and .catch (the compiler/natives
// layer passes an empty onReject/onFulfill slot for .catch/.then
// respectively); it always returns a new promise (spec §5 chaining).
func (vm *VM) nativeThen(this vmvalue.Value, args []vmvalue.Value, catchOnly bool) (vmvalue.Value, error) {
	if !this.IsKind(vmvalue.KindPromise) {
		return vmvalue.Undefined(), vm.typeError("then/catch called on a non-promise")
	}
	var onFulfill, onReject vmvalue.Value
	if catchOnly {
		if len(args) > 0 {
			onReject = args[0]
		}
	} else {
		if len(args) > 0 {
			onFulfill = args[0]
		}
		if len(args) > 1 {
			onReject = args[1]
		}
	}
	result := vm.heap.NewPromise()
	rec := vm.heap.Promise(this)
	reaction := vmvalue.PromiseReaction{OnFulfill: onFulfill, OnReject: onReject, Result: result}
	switch rec.State {
	case vmvalue.PromisePending:
		rec.Reactions = append(rec.Reactions, reaction)
	case vmvalue.PromiseFulfilled:
		vm.scheduleReaction(reaction, true, rec.Result)
	case vmvalue.PromiseRejected:
		vm.scheduleReaction(reaction, false, rec.Result)
	}
	return result, nil
}
