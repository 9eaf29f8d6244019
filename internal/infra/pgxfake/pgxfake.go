// Package pgxfake provides in-memory stand-ins for the pgx query surface so
// SQL-backed code can be tested without a database.
package pgxfake

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call is one recorded statement.
type Call struct {
	Query string
	Args  []any
}

// Executor routes statements to handler funcs and records every call. A nil
// handler answers with an error so unexpected statements fail loudly.
type Executor struct {
	ExecFunc     func(query string, args []any) (pgconn.CommandTag, error)
	QueryRowFunc func(query string, args []any) pgx.Row
	QueryFunc    func(query string, args []any) (pgx.Rows, error)

	mu    sync.Mutex
	Calls []Call
}

func (e *Executor) record(query string, args []any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, Call{Query: query, Args: args})
}

// Count returns how many recorded calls ran query.
func (e *Executor) Count(query string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.Calls {
		if c.Query == query {
			n++
		}
	}
	return n
}

func (e *Executor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	e.record(query, args)
	if e.ExecFunc == nil {
		return pgconn.CommandTag{}, errors.New("pgxfake: unexpected exec")
	}
	return e.ExecFunc(query, args)
}

func (e *Executor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	e.record(query, args)
	if e.QueryRowFunc == nil {
		return ErrRow(errors.New("pgxfake: unexpected query row"))
	}
	return e.QueryRowFunc(query, args)
}

func (e *Executor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	e.record(query, args)
	if e.QueryFunc == nil {
		return nil, errors.New("pgxfake: unexpected query")
	}
	return e.QueryFunc(query, args)
}

// Last returns the most recent call.
func (e *Executor) Last() Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Calls) == 0 {
		return Call{}
	}
	return e.Calls[len(e.Calls)-1]
}

// Tag builds a command tag reporting n affected rows.
func Tag(verb string, n int) pgconn.CommandTag {
	if verb == "INSERT" {
		return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", n))
	}
	return pgconn.NewCommandTag(fmt.Sprintf("%s %d", verb, n))
}

type row struct {
	values []any
	err    error
}

// Row answers Scan with the given column values.
func Row(values ...any) pgx.Row { return row{values: values} }

// ErrRow answers Scan with err.
func ErrRow(err error) pgx.Row { return row{err: err} }

// NoRows answers Scan with pgx.ErrNoRows.
func NoRows() pgx.Row { return row{err: pgx.ErrNoRows} }

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

// Rows is a fixed result set.
type Rows struct {
	data   [][]any
	pos    int
	err    error
	closed bool
}

// NewRows builds a result set from rows of column values.
func NewRows(data ...[]any) *Rows { return &Rows{data: data, pos: -1} }

// WithErr makes Err report err once iteration ends.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgconn.CommandTag                { return Tag("SELECT", len(r.data)) }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

// Closed reports whether the caller released the result set.
func (r *Rows) Closed() bool { return r.closed }

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	if r.pos >= len(r.data) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return errors.New("pgxfake: scan outside of result set")
	}
	return assign(r.data[r.pos], dest)
}

func (r *Rows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil, errors.New("pgxfake: values outside of result set")
	}
	return r.data[r.pos], nil
}

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("pgxfake: %d values for %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i])
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("pgxfake: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if v == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		src := reflect.ValueOf(v)
		switch {
		case src.Type().AssignableTo(elem.Type()):
			elem.Set(src)
		case elem.Kind() == reflect.Pointer && src.Type().AssignableTo(elem.Type().Elem()):
			ptr := reflect.New(elem.Type().Elem())
			ptr.Elem().Set(src)
			elem.Set(ptr)
		case src.Type().ConvertibleTo(elem.Type()):
			elem.Set(src.Convert(elem.Type()))
		default:
			return fmt.Errorf("pgxfake: cannot scan %T into %s", v, elem.Type())
		}
	}
	return nil
}
