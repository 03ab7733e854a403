package db

import (
	"context"
	"errors"
	"fmt"
)

// Row is a loosely-typed record as returned by a row store. It never leaves
// the db package and the normalizers in services.
type Row map[string]interface{}

var (
	// ErrNoRows is returned by SelectOne when nothing matches.
	ErrNoRows = errors.New("no rows in result set")
	// ErrUnknownColumn signals that a filter or order referenced a column the table does not have.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrUnknownTable signals that the queried table or embedded relation does not exist.
	ErrUnknownTable = errors.New("unknown table")
	// ErrDuplicateKey signals a unique constraint violation on insert.
	ErrDuplicateKey = errors.New("duplicate key")
)

// FilterOp identifies a filter kind.
type FilterOp string

const (
	OpEq       FilterOp = "eq"
	OpNeq      FilterOp = "neq"
	OpContains FilterOp = "contains" // array column contains a value
	OpIn       FilterOp = "in"
	OpILike    FilterOp = "ilike" // case-insensitive substring across one or more columns
)

// Filter is a single predicate. ILike filters match when any of Columns matches.
type Filter struct {
	Op      FilterOp
	Column  string
	Columns []string
	Value   interface{}
	Values  []string
}

func Eq(column string, value interface{}) Filter {
	return Filter{Op: OpEq, Column: column, Value: value}
}

func Neq(column string, value interface{}) Filter {
	return Filter{Op: OpNeq, Column: column, Value: value}
}

// Contains matches rows whose array column holds value.
func Contains(column, value string) Filter {
	return Filter{Op: OpContains, Column: column, Value: value}
}

func In(column string, values ...string) Filter {
	return Filter{Op: OpIn, Column: column, Values: values}
}

// ILikeAny matches rows where any of columns contains term, ignoring case.
func ILikeAny(term string, columns ...string) Filter {
	return Filter{Op: OpILike, Columns: columns, Value: term}
}

// String renders the filter for log lines.
func (f Filter) String() string {
	switch f.Op {
	case OpILike:
		return fmt.Sprintf("%v ilike %q", f.Columns, f.Value)
	case OpIn:
		return fmt.Sprintf("%s in %v", f.Column, f.Values)
	default:
		return fmt.Sprintf("%s %s %v", f.Column, f.Op, f.Value)
	}
}

// referencedColumns lists every column the filter touches.
func (f Filter) referencedColumns() []string {
	if f.Op == OpILike {
		return f.Columns
	}
	return []string{f.Column}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Embed attaches the rows of a child table to each parent row under the
// child table's name, joined on ForeignKey = parent id.
type Embed struct {
	Table      string
	ForeignKey string
}

// Query describes a single read against a table.
type Query struct {
	Table   string
	Filters []Filter
	Order   []Order
	Limit   int // 0 means no limit
	Offset  int
	Embed   *Embed
}

// With returns a copy of q with the filter at index i replaced.
func (q Query) With(i int, f Filter) Query {
	filters := make([]Filter, len(q.Filters))
	copy(filters, q.Filters)
	filters[i] = f
	q.Filters = filters
	return q
}

// WithoutEmbed returns a copy of q that does not embed child rows.
func (q Query) WithoutEmbed() Query {
	q.Embed = nil
	return q
}

// Credentials identify on whose behalf a query runs. They are passed
// explicitly into every store call.
type Credentials struct {
	Role    string                 // database role, e.g. "anon" or "authenticated"
	Subject string                 // user id, empty for anonymous callers
	Claims  map[string]interface{} // verified token claims
}

// Anonymous is used when a request carries no valid access token.
var Anonymous = Credentials{Role: "anon"}

// IsAnonymous reports whether no user is attached.
func (c Credentials) IsAnonymous() bool {
	return c.Subject == ""
}

// IsPublic reports whether a query runs with exactly the anonymous role,
// so its results are the same for every visitor.
func (c Credentials) IsPublic() bool {
	return c.IsAnonymous() && c.Role == Anonymous.Role
}

// RowStore is the boundary to the hosted database.
type RowStore interface {
	Select(ctx context.Context, creds Credentials, q Query) ([]Row, error)
	// SelectOne returns the first matching row or ErrNoRows.
	SelectOne(ctx context.Context, creds Credentials, q Query) (Row, error)
	Insert(ctx context.Context, creds Credentials, table string, rows ...Row) ([]Row, error)
	// Count ignores Limit, Offset, Order and Embed.
	Count(ctx context.Context, creds Credentials, q Query) (int, error)
	Close(ctx context.Context) error
}
