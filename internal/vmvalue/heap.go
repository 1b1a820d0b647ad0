package vmvalue

// Heap is the single process-wide table of heap-allocated records,
// indexed by compact handles rather than raw pointers (spec §3.2). There
// is no tracing collector: a handle is reclaimed exactly when its one
// owning slot releases it, never by scanning for reachability.
type Heap struct {
	objects     []*ObjectRec
	arrays      []*ArrayRec
	strings     []*StringRec
	closures    []*ClosureRec
	promises    []*PromiseRec
	bytestreams []*ByteStreamRec
	natives     []*NativeFnRec

	freeObjects     []uint32
	freeArrays      []uint32
	freeStrings     []uint32
	freeClosures    []uint32
	freePromises    []uint32
	freeBytestreams []uint32
	freeNatives     []uint32
}

func NewHeap() *Heap {
	return &Heap{}
}

// ---- Object ----

func (h *Heap) NewObject(rec *ObjectRec) Value {
	if rec.Props == nil {
		rec.Props = make(map[string]Value)
	}
	if len(h.freeObjects) > 0 {
		idx := h.freeObjects[len(h.freeObjects)-1]
		h.freeObjects = h.freeObjects[:len(h.freeObjects)-1]
		h.objects[idx] = rec
		return Handle(KindObject, idx)
	}
	h.objects = append(h.objects, rec)
	return Handle(KindObject, uint32(len(h.objects)-1))
}

func (h *Heap) Object(v Value) *ObjectRec { _, idx := v.AsHandle(); return h.objects[idx] }

// ---- Array ----

func (h *Heap) NewArray(elements []Value) Value {
	rec := &ArrayRec{Elements: elements}
	if len(h.freeArrays) > 0 {
		idx := h.freeArrays[len(h.freeArrays)-1]
		h.freeArrays = h.freeArrays[:len(h.freeArrays)-1]
		h.arrays[idx] = rec
		return Handle(KindArray, idx)
	}
	h.arrays = append(h.arrays, rec)
	return Handle(KindArray, uint32(len(h.arrays)-1))
}

func (h *Heap) Array(v Value) *ArrayRec { _, idx := v.AsHandle(); return h.arrays[idx] }

// ---- String ----

func (h *Heap) NewString(s string) Value {
	rec := &StringRec{Bytes: []byte(s)}
	if len(h.freeStrings) > 0 {
		idx := h.freeStrings[len(h.freeStrings)-1]
		h.freeStrings = h.freeStrings[:len(h.freeStrings)-1]
		h.strings[idx] = rec
		return Handle(KindString, idx)
	}
	h.strings = append(h.strings, rec)
	return Handle(KindString, uint32(len(h.strings)-1))
}

func (h *Heap) String(v Value) *StringRec { _, idx := v.AsHandle(); return h.strings[idx] }

// ---- Closure ----

func (h *Heap) NewClosure(rec *ClosureRec) Value {
	if len(h.freeClosures) > 0 {
		idx := h.freeClosures[len(h.freeClosures)-1]
		h.freeClosures = h.freeClosures[:len(h.freeClosures)-1]
		h.closures[idx] = rec
		return Handle(KindClosure, idx)
	}
	h.closures = append(h.closures, rec)
	return Handle(KindClosure, uint32(len(h.closures)-1))
}

func (h *Heap) Closure(v Value) *ClosureRec { _, idx := v.AsHandle(); return h.closures[idx] }

// ---- Promise ----

func (h *Heap) NewPromise() Value {
	rec := &PromiseRec{State: PromisePending}
	if len(h.freePromises) > 0 {
		idx := h.freePromises[len(h.freePromises)-1]
		h.freePromises = h.freePromises[:len(h.freePromises)-1]
		h.promises[idx] = rec
		return Handle(KindPromise, idx)
	}
	h.promises = append(h.promises, rec)
	return Handle(KindPromise, uint32(len(h.promises)-1))
}

func (h *Heap) Promise(v Value) *PromiseRec { _, idx := v.AsHandle(); return h.promises[idx] }

// ---- ByteStream ----

func (h *Heap) NewByteStream() Value {
	rec := &ByteStreamRec{}
	if len(h.freeBytestreams) > 0 {
		idx := h.freeBytestreams[len(h.freeBytestreams)-1]
		h.freeBytestreams = h.freeBytestreams[:len(h.freeBytestreams)-1]
		h.bytestreams[idx] = rec
		return Handle(KindByteStream, idx)
	}
	h.bytestreams = append(h.bytestreams, rec)
	return Handle(KindByteStream, uint32(len(h.bytestreams)-1))
}

func (h *Heap) ByteStream(v Value) *ByteStreamRec { _, idx := v.AsHandle(); return h.bytestreams[idx] }

// ---- NativeFn ----

func (h *Heap) NewNativeFn(index int, name string) Value {
	rec := &NativeFnRec{Index: index, Name: name}
	if len(h.freeNatives) > 0 {
		idx := h.freeNatives[len(h.freeNatives)-1]
		h.freeNatives = h.freeNatives[:len(h.freeNatives)-1]
		h.natives[idx] = rec
		return Handle(KindNativeFn, idx)
	}
	h.natives = append(h.natives, rec)
	return Handle(KindNativeFn, uint32(len(h.natives)-1))
}

func (h *Heap) NativeFn(v Value) *NativeFnRec { _, idx := v.AsHandle(); return h.natives[idx] }

// Release drops v's owning slot and reclaims its handle for reuse. Callers
// must not read v afterward; the compiler/VM is responsible for having
// already replaced the releasing slot's contents with Moved() (spec §3.2
// invariant I2) so a stale read fails loudly instead of reusing garbage.
func (h *Heap) Release(v Value) {
	if !v.IsHandle() {
		return
	}
	kind, idx := v.AsHandle()
	switch kind {
	case KindObject:
		h.objects[idx] = nil
		h.freeObjects = append(h.freeObjects, idx)
	case KindArray:
		h.arrays[idx] = nil
		h.freeArrays = append(h.freeArrays, idx)
	case KindString:
		h.strings[idx] = nil
		h.freeStrings = append(h.freeStrings, idx)
	case KindClosure:
		h.closures[idx] = nil
		h.freeClosures = append(h.freeClosures, idx)
	case KindPromise:
		h.promises[idx] = nil
		h.freePromises = append(h.freePromises, idx)
	case KindByteStream:
		h.bytestreams[idx] = nil
		h.freeBytestreams = append(h.freeBytestreams, idx)
	case KindNativeFn:
		h.natives[idx] = nil
		h.freeNatives = append(h.freeNatives, idx)
	}
}

// Live reports the number of outstanding (unreclaimed) handles per kind,
// used by internal/report for heap statistics.
func (h *Heap) Live() map[Kind]int {
	return map[Kind]int{
		KindObject:     len(h.objects) - len(h.freeObjects),
		KindArray:      len(h.arrays) - len(h.freeArrays),
		KindString:     len(h.strings) - len(h.freeStrings),
		KindClosure:    len(h.closures) - len(h.freeClosures),
		KindPromise:    len(h.promises) - len(h.freePromises),
		KindByteStream: len(h.bytestreams) - len(h.freeBytestreams),
		KindNativeFn:   len(h.natives) - len(h.freeNatives),
	}
}
