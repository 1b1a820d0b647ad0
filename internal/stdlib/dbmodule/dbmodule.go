// Package dbmodule wires the `db` global object into a *vm.VM: SQL access
// over database/sql, generalizing the teacher's native-module registration
// shape (a surface object whose properties are NativeFn handles, installed
// into vm.globals rather than baked into the VM package itself) to actually
// exercise a storage backend, since vm/natives.go itself seeds only Math,
// console, Promise and the timer functions.
//
// The five SQL drivers named in the corpus's dependency set are blank
// imported here so database/sql's driver registry recognizes every
// "driverName" a script might pass to db.open: "mysql", "postgres",
// "sqlite3", "sqlserver", and "sqlite" (the pure-Go modernc.org driver, for
// builds that can't cgo-link mattn/go-sqlite3).
package dbmodule

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"nyx/internal/vm"
	"nyx/internal/vmvalue"
)

// registry holds open connections and in-flight result sets behind integer
// handles, the same index-into-a-side-table shape internal/vm/natives.go
// uses for vm.finallyTaps, since a *sql.DB can't be NaN-boxed into a Value.
type registry struct {
	mu  sync.Mutex
	dbs map[int]*sql.DB
	n   int
}

var reg = &registry{dbs: make(map[int]*sql.DB)}

func (r *registry) put(db *sql.DB) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.n
	r.n++
	r.dbs[id] = db
	return id
}

func (r *registry) get(id int) (*sql.DB, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	db, ok := r.dbs[id]
	return db, ok
}

func (r *registry) drop(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dbs, id)
}

// Install registers the `db` global and its backing natives on m. Call it
// once per VM before Run, alongside netmodule.Install (cmd/nyx wires both).
func Install(m *vm.VM) {
	m.RegisterNative("db.open", nativeOpen)
	m.RegisterNative("db.query", nativeQuery)
	m.RegisterNative("db.exec", nativeExec)
	m.RegisterNative("db.close", nativeClose)

	open := m.Heap().NewNativeFn(0, "db.open")
	dbObj := m.Heap().NewObject(&vmvalue.ObjectRec{Props: map[string]vmvalue.Value{
		"open": open,
	}})
	m.RegisterGlobal("db", dbObj)
}

func arg(args []vmvalue.Value, i int) vmvalue.Value {
	if i < 0 || i >= len(args) {
		return vmvalue.Undefined()
	}
	return args[i]
}

// connID reads the __connID__ tag a handle object carries, the same
// receiver-side tagging nativeFinally (internal/vm/natives.go) would use if
// it needed per-receiver rather than per-callsite state.
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

// nativeOpen implements db.open(driver, dsn): it opens and pings the
// connection synchronously (database/sql itself defers the real dial until
// first use, so Ping is what actually surfaces a bad DSN) and settles the
// returned Promise with either a connection handle or the error, rather
// than suspending on the event loop the way a native backed by a blocking
// call never can.
func nativeOpen(m *vm.VM, _ vmvalue.Value, _ bool, args []vmvalue.Value) (vmvalue.Value, error) {
	driver := m.AsString(arg(args, 0))
	dsn := m.AsString(arg(args, 1))

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}
	if err := db.Ping(); err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}

	id := reg.put(db)
	handle := m.Heap().NewObject(&vmvalue.ObjectRec{Props: map[string]vmvalue.Value{
		"query":      m.Heap().NewNativeFn(0, "db.query"),
		"exec":       m.Heap().NewNativeFn(0, "db.exec"),
		"close":      m.Heap().NewNativeFn(0, "db.close"),
		"__connID__": vmvalue.Number(float64(id)),
	}})
	return m.NewResolvedPromise(handle), nil
}

// nativeQuery implements handle.query(sql, ...params), returning a Promise
// of an array of row objects keyed by column name.
func nativeQuery(m *vm.VM, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error) {
	if !hasThis {
		return m.NewRejectedPromise(m.Heap().NewString("db.query called without a connection handle")), nil
	}
	id, ok := connID(m, this)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("db.query: stale or invalid connection handle")), nil
	}
	db, ok := reg.get(id)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("db.query: connection already closed")), nil
	}

	query := m.AsString(arg(args, 0))
	params := toSQLArgs(m, args[1:])

	rows, err := db.Query(query, params...)
	if err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}

	var results []vmvalue.Value
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
		}
		row := make(map[string]vmvalue.Value, len(cols))
		for i, col := range cols {
			row[col] = goToValue(m, raw[i])
		}
		results = append(results, m.Heap().NewObject(&vmvalue.ObjectRec{Props: row}))
	}
	if err := rows.Err(); err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}

	return m.NewResolvedPromise(m.Heap().NewArray(results)), nil
}

// nativeExec implements handle.exec(sql, ...params) for statements that
// don't return rows, resolving to {lastInsertId, rowsAffected}.
func nativeExec(m *vm.VM, this vmvalue.Value, hasThis bool, args []vmvalue.Value) (vmvalue.Value, error) {
	if !hasThis {
		return m.NewRejectedPromise(m.Heap().NewString("db.exec called without a connection handle")), nil
	}
	id, ok := connID(m, this)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("db.exec: stale or invalid connection handle")), nil
	}
	db, ok := reg.get(id)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("db.exec: connection already closed")), nil
	}

	query := m.AsString(arg(args, 0))
	params := toSQLArgs(m, args[1:])

	result, err := db.Exec(query, params...)
	if err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}

	lastID, _ := result.LastInsertId()
	affected, _ := result.RowsAffected()
	obj := m.Heap().NewObject(&vmvalue.ObjectRec{Props: map[string]vmvalue.Value{
		"lastInsertId": vmvalue.Number(float64(lastID)),
		"rowsAffected": vmvalue.Number(float64(affected)),
	}})
	return m.NewResolvedPromise(obj), nil
}

// nativeClose implements handle.close(), releasing both the *sql.DB and its
// registry slot.
func nativeClose(m *vm.VM, this vmvalue.Value, hasThis bool, _ []vmvalue.Value) (vmvalue.Value, error) {
	if !hasThis {
		return m.NewRejectedPromise(m.Heap().NewString("db.close called without a connection handle")), nil
	}
	id, ok := connID(m, this)
	if !ok {
		return m.NewRejectedPromise(m.Heap().NewString("db.close: stale or invalid connection handle")), nil
	}
	db, ok := reg.get(id)
	if !ok {
		return m.NewResolvedPromise(vmvalue.Undefined()), nil
	}
	reg.drop(id)
	if err := db.Close(); err != nil {
		return m.NewRejectedPromise(m.Heap().NewString(err.Error())), nil
	}
	return m.NewResolvedPromise(vmvalue.Undefined()), nil
}

// toSQLArgs lowers Nyx argument values into plain Go values database/sql's
// driver layer knows how to bind, mirroring the coercions vm/ops.go applies
// for arithmetic/string conversion one level up.
func toSQLArgs(m *vm.VM, args []vmvalue.Value) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		switch {
		case a.IsNil(), a.IsUndefined():
			out[i] = nil
		case a.IsBool():
			out[i] = a.AsBool()
		case a.IsNumber():
			out[i] = a.AsNumber()
		case a.IsKind(vmvalue.KindString):
			out[i] = m.AsString(a)
		default:
			out[i] = m.AsString(a)
		}
	}
	return out
}

// goToValue lifts a value database/sql's Scan produced into a Nyx Value.
func goToValue(m *vm.VM, v interface{}) vmvalue.Value {
	switch t := v.(type) {
	case nil:
		return vmvalue.Nil()
	case bool:
		return vmvalue.Bool(t)
	case int64:
		return vmvalue.Number(float64(t))
	case float64:
		return vmvalue.Number(t)
	case []byte:
		return m.Heap().NewString(string(t))
	case string:
		return m.Heap().NewString(t)
	case fmt.Stringer:
		return m.Heap().NewString(t.String())
	default:
		return m.Heap().NewString(fmt.Sprint(t))
	}
}
