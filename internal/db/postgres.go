package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresStore runs queries against PostgreSQL, returning every row as
// to_jsonb(t) so callers get the same loose shape regardless of schema.
type PostgresStore struct {
	db *sql.DB
	// applyCredentials sets the role and request.jwt.claims settings on each
	// transaction, which is what row level security policies read.
	applyCredentials bool
}

// ConnectPostgres opens and pings a PostgreSQL connection pool.
func ConnectPostgres(dsn string, applyCredentials bool) (*PostgresStore, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	slog.Info("connected to postgres")
	return &PostgresStore{db: sqlDB, applyCredentials: applyCredentials}, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close postgres: %w", err)
	}
	slog.Info("postgres connection closed")
	return nil
}

func (s *PostgresStore) Select(ctx context.Context, creds Credentials, q Query) ([]Row, error) {
	stmt, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	var rows []Row
	err = s.inTx(ctx, creds, true, func(tx *sql.Tx) error {
		var qErr error
		rows, qErr = queryJSONRows(ctx, tx, stmt, args)
		return qErr
	})
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", q.Table, err)
	}
	return rows, nil
}

func (s *PostgresStore) SelectOne(ctx context.Context, creds Credentials, q Query) (Row, error) {
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

func (s *PostgresStore) Count(ctx context.Context, creds Credentials, q Query) (int, error) {
	stmt, args, err := buildCount(q)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.inTx(ctx, creds, true, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, stmt, args...).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	return n, nil
}

func (s *PostgresStore) Insert(ctx context.Context, creds Credentials, table string, rows ...Row) ([]Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	stmt, args, err := buildInsert(table, rows)
	if err != nil {
		return nil, err
	}
	var out []Row
	err = s.inTx(ctx, creds, false, func(tx *sql.Tx) error {
		var qErr error
		out, qErr = queryJSONRows(ctx, tx, stmt, args)
		return qErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	return out, nil
}

func (s *PostgresStore) inTx(ctx context.Context, creds Credentials, readOnly bool, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return translatePgError(err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.applyCredentials && creds.Role != "" {
		claims := creds.Claims
		if claims == nil {
			claims = map[string]interface{}{"role": creds.Role}
		}
		claimsJSON, err := json.Marshal(claims)
		if err != nil {
			return fmt.Errorf("failed to encode claims: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`SELECT set_config('role', $1, true), set_config('request.jwt.claims', $2, true)`,
			creds.Role, string(claimsJSON)); err != nil {
			return translatePgError(err)
		}
	}

	if err := fn(tx); err != nil {
		return translatePgError(err)
	}
	return translatePgError(tx.Commit())
}

func queryJSONRows(ctx context.Context, tx *sql.Tx, stmt string, args []interface{}) ([]Row, error) {
	rs, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	rows := []Row{}
	for rs.Next() {
		var raw []byte
		if err := rs.Scan(&raw); err != nil {
			return nil, err
		}
		row := Row{}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, rs.Err()
}

// translatePgError maps PostgreSQL error codes onto the package sentinels.
func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "42703":
		return fmt.Errorf("%w: %w", ErrUnknownColumn, err)
	case "42P01":
		return fmt.Errorf("%w: %w", ErrUnknownTable, err)
	case "23505":
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	}
	return err
}

func quoteIdent(name string) (string, error) {
	if !identifierRe.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return pq.QuoteIdentifier(name), nil
}

// escapeLike escapes LIKE wildcards so the term matches literally.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

type sqlArgs struct {
	values []interface{}
}

func (a *sqlArgs) add(v interface{}) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

func buildWhere(filters []Filter, args *sqlArgs) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filters))
	for _, f := range filters {
		switch f.Op {
		case OpEq, OpNeq:
			col, err := quoteIdent(f.Column)
			if err != nil {
				return "", err
			}
			op := "="
			if f.Op == OpNeq {
				op = "<>"
			}
			if b, ok := f.Value.(bool); ok {
				clauses = append(clauses, fmt.Sprintf("t.%s %s %s", col, op, args.add(b)))
			} else {
				clauses = append(clauses, fmt.Sprintf("t.%s::text %s %s", col, op, args.add(fmt.Sprint(f.Value))))
			}
		case OpContains:
			col, err := quoteIdent(f.Column)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, fmt.Sprintf("t.%s::text[] @> ARRAY[%s]::text[]", col, args.add(fmt.Sprint(f.Value))))
		case OpIn:
			col, err := quoteIdent(f.Column)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, fmt.Sprintf("t.%s::text = ANY(%s)", col, args.add(pq.Array(f.Values))))
		case OpILike:
			if len(f.Columns) == 0 {
				return "", fmt.Errorf("ilike filter needs at least one column")
			}
			placeholder := args.add(escapeLike(fmt.Sprint(f.Value)))
			parts := make([]string, 0, len(f.Columns))
			for _, c := range f.Columns {
				col, err := quoteIdent(c)
				if err != nil {
					return "", err
				}
				parts = append(parts, fmt.Sprintf("t.%s ILIKE %s", col, placeholder))
			}
			clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
		default:
			return "", fmt.Errorf("unsupported filter %q", f.Op)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func buildSelect(q Query) (string, []interface{}, error) {
	table, err := quoteIdent(q.Table)
	if err != nil {
		return "", nil, err
	}
	args := &sqlArgs{}

	projection := "to_jsonb(t)"
	if q.Embed != nil {
		child, err := quoteIdent(q.Embed.Table)
		if err != nil {
			return "", nil, err
		}
		fk, err := quoteIdent(q.Embed.ForeignKey)
		if err != nil {
			return "", nil, err
		}
		projection = fmt.Sprintf(
			"to_jsonb(t) || jsonb_build_object('%s', COALESCE((SELECT jsonb_agg(to_jsonb(e)) FROM %s e WHERE e.%s = t.\"id\"), '[]'::jsonb))",
			q.Embed.Table, child, fk)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s t", projection, table)

	where, err := buildWhere(q.Filters, args)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(where)

	if len(q.Order) > 0 {
		terms := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			col, err := quoteIdent(o.Column)
			if err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms = append(terms, fmt.Sprintf("t.%s %s", col, dir))
		}
		sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + args.add(q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + args.add(q.Offset))
	}
	return sb.String(), args.values, nil
}

func buildCount(q Query) (string, []interface{}, error) {
	table, err := quoteIdent(q.Table)
	if err != nil {
		return "", nil, err
	}
	args := &sqlArgs{}
	where, err := buildWhere(q.Filters, args)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT count(*) FROM %s t%s", table, where), args.values, nil
}

// buildInsert uses the sorted union of all row keys as the column list.
// Columns a row does not set get DEFAULT.
func buildInsert(table string, rows []Row) (string, []interface{}, error) {
	quotedTable, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	seen := map[string]bool{}
	var columns []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no columns", table)
	}
	sort.Strings(columns)

	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		qc, err := quoteIdent(c)
		if err != nil {
			return "", nil, err
		}
		quotedCols[i] = qc
	}

	args := &sqlArgs{}
	tuples := make([]string, 0, len(rows))
	for _, r := range rows {
		vals := make([]string, len(columns))
		for i, c := range columns {
			v, ok := r[c]
			if !ok {
				vals[i] = "DEFAULT"
				continue
			}
			arg, err := sqlValue(v)
			if err != nil {
				return "", nil, fmt.Errorf("column %s: %w", c, err)
			}
			vals[i] = args.add(arg)
		}
		tuples = append(tuples, "("+strings.Join(vals, ", ")+")")
	}

	stmt := fmt.Sprintf("INSERT INTO %s AS t (%s) VALUES %s RETURNING to_jsonb(t)",
		quotedTable, strings.Join(quotedCols, ", "), strings.Join(tuples, ", "))
	return stmt, args.values, nil
}

func sqlValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case []string:
		return pq.Array(val), nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case time.Time:
		return val.UTC(), nil
	default:
		return val, nil
	}
}
