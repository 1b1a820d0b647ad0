// Package netmodule wires the `net` global object into a *vm.VM: WebSocket
// access over gorilla/websocket, using the same surface-object-of-NativeFn-
// handles registration shape internal/stdlib/dbmodule uses for `db`, so a
// script can talk to a remote endpoint without vm itself depending on a
// transport library.
package netmodule

import (
	"sync"

	"github.com/gorilla/websocket"

	"nyx/internal/vm"
	"nyx/internal/vmvalue"
)

// registry holds open connections behind integer handles, mirroring
// dbmodule's registry (a *websocket.Conn can't be NaN-boxed into a Value).
type registry struct {
	mu    sync.Mutex
	conns map[int]*websocket.Conn
	n     int
}

var reg = &registry{conns: make(map[int]*websocket.Conn)}

func (r *registry) put(c *websocket.Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.n
	r.n++
	r.conns[id] = c
	return id
}

func (r *registry) get(id int) (*websocket.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *registry) drop(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Install registers the `net` global and its backing natives on m.
func Install(m *vm.VM) {
	m.RegisterNative("net.ws_connect", nativeWSConnect)
	m.RegisterNative("net.ws_send", nativeWSSend)
	m.RegisterNative("net.ws_recv", nativeWSRecv)
	m.RegisterNative("net.ws_close", nativeWSClose)

	netObj := m.Heap().NewObject(&vmvalue.ObjectRec{Props: map[string]vmvalue.Value{
		"ws_connect": m.Heap().NewNativeFn(0, "net.ws_connect"),
	}})
	m.RegisterGlobal("net", netObj)
}

func arg(args []vmvalue.Value, i int) vmvalue.Value {
	if i < 0 || i >= len(args) {
		return vmvalue.Undefined()
	}
	return args[i]
}

func connID(m *vm.VM, this vmvalue.Value) (int, bool) {
	if !this.IsKind(vmvalue.KindObject) {
		return 0, false
	}
	idVal, ok := m.Heap().Object(this).Props["__connID__"]
	if !ok {
		return 0, false
	}
	return int(idVal.AsNumber()), true
}

// nativeWSConnect implements net.ws_connect(url): dialing blocks the native
// call, so like db.open it settles the returned Promise synchronously
// rather than suspending on the event loop.
func nativeWSConnect(m *vm.VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	url := m.AsString(arg(args, 0))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}

	id := reg.put(conn)
	handle := m.Heap().NewObject(&vmvalue.ObjectRec{Props: map[string]vmvalue.Value{
		"send":       m.Heap().NewNativeFn(0, "net.ws_send"),
		"recv":       m.Heap().NewNativeFn(0, "net.ws_recv"),
		"close":      m.Heap().NewNativeFn(0, "net.ws_close"),
		"__connID__": vmvalue.Number(float64(id)),
	}})
	return m.NewResolvedPromise(handle), nil
}

// nativeWSSend implements handle.send(message), writing a text frame.
func nativeWSSend(m *vm.VM, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error) {
	if !hasThis {
		return m.NewRejectedPromise(m.Heap().NewString("net.send called without a connection handle")), nil
	}
	id, ok := connID(m, this)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("net.send: stale or invalid connection handle")), nil
	}
	conn, ok := reg.get(id)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("net.send: connection already closed")), nil
	}
	msg := m.AsString(arg(args, 0))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}
	return m.NewResolvedPromise(vmvalue.Undefined()), nil
}

// nativeWSRecv implements handle.recv(), blocking on the next frame and
// resolving with it decoded as a string.
func nativeWSRecv(m *vm.VM, this vmvalue.Value, hasThis bool, _ []vmvalue.Value) (vmvalue.Value, error) {
	if !hasThis {
		return m.NewRejectedPromise(m.Heap().NewString("net.recv called without a connection handle")), nil
	}
	id, ok := connID(m, this)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("net.recv: stale or invalid connection handle")), nil
	}
	conn, ok := reg.get(id)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("net.recv: connection already closed")), nil
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}
	return m.NewResolvedPromise(m.Heap().NewString(string(data))), nil
}

// nativeWSClose implements handle.close().
func nativeWSClose(m *vm.VM, this vmvalue.Value, hasThis bool, _ []vmvalue.Value) (vmvalue.Value, error) {
	if !hasThis {
		return m.NewRejectedPromise(m.Heap().NewString("net.close called without a connection handle")), nil
	}
	id, ok := connID(m, this)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("net.close: stale or invalid connection handle")), nil
	}
	conn, ok := reg.get(id)
	if !ok {
		return m.NewResolvedPromise(vmvalue.Undefined()), nil
	}
	reg.drop(id)
	if err := conn.Close(); err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}
	return m.NewResolvedPromise(vmvalue.Undefined()), nil
}
