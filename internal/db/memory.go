package db

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// MemoryStore is a RowStore over in-process tables, seeded from YAML
// fixtures. A column counts as known for a table when at least one row
// carries it, so schema-shape errors surface the way they would from a real
// database. Empty tables accept any column.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
	unique map[string][]string
}

// NewMemoryStore copies the given tables into a new store.
func NewMemoryStore(tables map[string][]Row) *MemoryStore {
	s := &MemoryStore{
		tables: make(map[string][]Row, len(tables)),
		unique: map[string][]string{},
	}
	for name, rows := range tables {
		copied := make([]Row, 0, len(rows))
		for _, r := range rows {
			copied = append(copied, cloneRow(r))
		}
		s.tables[name] = copied
	}
	return s
}

// ParseMemoryFixture builds a store from a YAML document mapping table names
// to lists of rows.
func ParseMemoryFixture(data []byte) (*MemoryStore, error) {
	var raw map[string][]map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	tables := make(map[string][]Row, len(raw))
	for name, rows := range raw {
		converted := make([]Row, 0, len(rows))
		for _, r := range rows {
			converted = append(converted, Row(plainValue(r).(map[string]interface{})))
		}
		tables[name] = converted
	}
	return NewMemoryStore(tables), nil
}

// LoadMemoryFixture reads a YAML fixture file.
func LoadMemoryFixture(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	return ParseMemoryFixture(data)
}

// Unique declares columns that must be unique within table. The id column
// is always unique.
func (s *MemoryStore) Unique(table string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unique[table] = append(s.unique[table], columns...)
}

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func (s *MemoryStore) Select(ctx context.Context, creds Credentials, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.filter(q)
	if err != nil {
		return nil, err
	}
	if err := s.sortRows(q, matched); err != nil {
		return nil, err
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]Row, 0, len(matched))
	for _, r := range matched {
		c := cloneRow(r)
		if q.Embed != nil {
			children, err := s.children(q.Embed, c["id"])
			if err != nil {
				return nil, err
			}
			c[q.Embed.Table] = children
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) SelectOne(ctx context.Context, creds Credentials, q Query) (Row, error) {
	q.Limit = 1
	rows, err := s.Select(ctx, creds, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

func (s *MemoryStore) Count(ctx context.Context, creds Credentials, q Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched, err := s.filter(q)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *MemoryStore) Insert(ctx context.Context, creds Credentials, table string, rows ...Row) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	prepared := make([]Row, 0, len(rows))
	for _, r := range rows {
		c := cloneRow(r)
		if _, ok := c["id"]; !ok {
			c["id"] = uuid.NewString()
		}
		if _, ok := c["created_at"]; !ok {
			c["created_at"] = now
		}
		prepared = append(prepared, c)
	}

	uniqueCols := append([]string{"id"}, s.unique[table]...)
	existing := s.tables[table]
	for i, r := range prepared {
		for _, col := range uniqueCols {
			v, ok := r[col]
			if !ok {
				continue
			}
			if holds(existing, col, v) || holds(prepared[:i], col, v) {
				return nil, fmt.Errorf("insert into %s: %w: %s=%v", table, ErrDuplicateKey, col, v)
			}
		}
	}

	s.tables[table] = append(existing, prepared...)
	out := make([]Row, 0, len(prepared))
	for _, r := range prepared {
		out = append(out, cloneRow(r))
	}
	return out, nil
}

func holds(rows []Row, col string, v interface{}) bool {
	for _, r := range rows {
		if ov, ok := r[col]; ok && sameValue(ov, v) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) knownColumn(table, column string) bool {
	rows := s.tables[table]
	if len(rows) == 0 {
		return true
	}
	for _, r := range rows {
		if _, ok := r[column]; ok {
			return true
		}
	}
	return false
}

func (s *MemoryStore) filter(q Query) ([]Row, error) {
	rows, ok := s.tables[q.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, q.Table)
	}
	for _, f := range q.Filters {
		for _, col := range f.referencedColumns() {
			if !s.knownColumn(q.Table, col) {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.Table, col)
			}
		}
	}

	var matched []Row
	for _, r := range rows {
		ok := true
		for _, f := range q.Filters {
			if !matches(r, f) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func (s *MemoryStore) sortRows(q Query, rows []Row) error {
	for _, o := range q.Order {
		if !s.knownColumn(q.Table, o.Column) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.Table, o.Column)
		}
	}
	if len(q.Order) == 0 {
		return nil
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range q.Order {
			c := compareValues(rows[i][o.Column], rows[j][o.Column])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

func (s *MemoryStore) children(e *Embed, parentID interface{}) ([]interface{}, error) {
	rows, ok := s.tables[e.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, e.Table)
	}
	out := []interface{}{}
	for _, r := range rows {
		if fk, ok := r[e.ForeignKey]; ok && sameValue(fk, parentID) {
			out = append(out, map[string]interface{}(cloneRow(r)))
		}
	}
	return out, nil
}

func matches(r Row, f Filter) bool {
	switch f.Op {
	case OpEq:
		v, ok := r[f.Column]
		return ok && v != nil && sameValue(v, f.Value)
	case OpNeq:
		v, ok := r[f.Column]
		return ok && v != nil && !sameValue(v, f.Value)
	case OpContains:
		for _, item := range asSlice(r[f.Column]) {
			if sameValue(item, f.Value) {
				return true
			}
		}
		return false
	case OpIn:
		v, ok := r[f.Column]
		if !ok || v == nil {
			return false
		}
		for _, want := range f.Values {
			if sameValue(v, want) {
				return true
			}
		}
		return false
	case OpILike:
		term := strings.ToLower(fmt.Sprint(f.Value))
		for _, col := range f.Columns {
			if s, ok := r[col].(string); ok && strings.Contains(strings.ToLower(s), term) {
				return true
			}
		}
		return false
	}
	return false
}

func asSlice(v interface{}) []interface{} {
	switch val := v.(type) {
	case []interface{}:
		return val
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	}
	return nil
}

// sameValue compares the way a text cast would: booleans by value, everything
// else by its printed form.
func sameValue(a, b interface{}) bool {
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	if _, ok := b.(bool); ok {
		return false
	}
	return scalarString(a) == scalarString(b)
}

func scalarString(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

func compareValues(a, b interface{}) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aErr := strconv.ParseFloat(scalarString(a), 64)
	bf, bErr := strconv.ParseFloat(scalarString(b), 64)
	if aErr == nil && bErr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(scalarString(a), scalarString(b))
}

func cloneRow(r Row) Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// plainValue rewrites decoded YAML into the shapes JSON decoding produces:
// string-keyed maps, []interface{} and RFC 3339 strings for timestamps.
func plainValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = plainValue(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = plainValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case int:
		return float64(val)
	default:
		return val
	}
}
