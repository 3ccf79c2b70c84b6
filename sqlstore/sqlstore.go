// Package sqlstore implements Model over a single database/sql table.
// It builds queries dynamically from the value maps the handlers pass
// around, so it needs no schema beyond the table itself. Developed
// against SQLite; the generated SQL sticks to `?` placeholders and
// LIMIT/OFFSET, so other drivers using that syntax work too.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/danielgtaylor/casing"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	restful "github.com/Hismer/gin-restful"
)

// dbtx is the subset of database/sql methods the store uses, satisfied
// by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Option sets an option on the store.
type Option func(*Store)

// Key sets the column used to address single rows. Defaults to `id`.
func Key(name string) Option {
	return func(s *Store) {
		s.key = name
	}
}

// SnakeColumns converts incoming field names to snake_case column names,
// so a body field `firstName` lands in a `first_name` column. Rows read
// back use the column names as-is.
func SnakeColumns() Option {
	return func(s *Store) {
		s.snake = true
	}
}

// New creates a store over one table. The table name must be a plain
// identifier; anything else panics since it cannot be parameterized.
func New(db *sql.DB, table string, options ...Option) *Store {
	if !identPattern.MatchString(table) {
		panic(fmt.Errorf("invalid table name %q", table))
	}

	s := &Store{
		db:    db,
		table: table,
		key:   "id",
	}

	for _, option := range options {
		option(s)
	}

	if !identPattern.MatchString(s.key) {
		panic(fmt.Errorf("invalid key column %q", s.key))
	}

	return s
}

// Store reads and writes rows of one table as value maps.
type Store struct {
	db    *sql.DB
	table string
	key   string
	snake bool
}

var _ restful.Model = (*Store)(nil)

// FindOrCreate returns the first row matching the where values, creating
// one from the defaults overlaid with the where values when nothing
// matches. The lookup and insert run in one transaction.
func (s *Store) FindOrCreate(ctx context.Context, opts restful.FindOrCreateOptions) (restful.Entity, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	row, err := s.findOne(ctx, tx, opts.Where)
	if err != nil {
		return nil, false, err
	}
	if row != nil {
		return row, false, tx.Commit()
	}

	values := map[string]any{}
	for name, value := range opts.Defaults {
		values[name] = value
	}
	for name, value := range opts.Where {
		values[name] = value
	}

	row, err = s.insert(ctx, tx, values)
	if err != nil {
		return nil, false, err
	}
	return row, true, tx.Commit()
}

// FindOne returns the first row matching the where values, or nil when
// nothing matches.
func (s *Store) FindOne(ctx context.Context, where map[string]any) (restful.Entity, error) {
	row, err := s.findOne(ctx, s.db, where)
	if err != nil || row == nil {
		// The miss must come back as an untyped nil: callers compare the
		// Entity interface against nil, and a typed nil pointer would not
		// match.
		return nil, err
	}
	return row, nil
}

// FindAll lists matching rows, sorted by the query's order fields and
// cut down to its offset and limit window.
func (s *Store) FindAll(ctx context.Context, opts *restful.QueryOptions) ([]restful.Entity, error) {
	query := "SELECT * FROM " + s.table
	var args []any

	if opts != nil {
		clause, whereArgs, err := s.whereClause(opts.Where)
		if err != nil {
			return nil, err
		}
		query += clause
		args = append(args, whereArgs...)

		clause, err = s.orderClause(opts.Order)
		if err != nil {
			return nil, err
		}
		query += clause

		switch {
		case opts.Limit != nil:
			query += " LIMIT ?"
			args = append(args, *opts.Limit)
		case opts.Offset != nil:
			// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
			query += " LIMIT -1"
		}
		if opts.Offset != nil {
			query += " OFFSET ?"
			args = append(args, *opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.table, err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.table, err)
	}

	entities := make([]restful.Entity, 0, len(records))
	for _, values := range records {
		entities = append(entities, s.row(values))
	}
	return entities, nil
}

// Count returns how many rows match the query, ignoring its offset and
// limit.
func (s *Store) Count(ctx context.Context, opts *restful.QueryOptions) (int64, error) {
	query := "SELECT COUNT(*) FROM " + s.table
	var args []any

	if opts != nil {
		clause, whereArgs, err := s.whereClause(opts.Where)
		if err != nil {
			return 0, err
		}
		query += clause
		args = whereArgs
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return total, nil
}

func (s *Store) findOne(ctx context.Context, q dbtx, where map[string]any) (*Row, error) {
	clause, args, err := s.whereClause(where)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, "SELECT * FROM "+s.table+clause+" LIMIT 1", args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.table, err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.table, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return s.row(records[0]), nil
}

// insert writes the values as a new row and reads it back. When the key
// is not among the values, the database assigns it and the row is
// reloaded by its last-insert id.
func (s *Store) insert(ctx context.Context, q dbtx, values map[string]any) (*Row, error) {
	names := maps.Keys(values)
	slices.Sort(names)

	columns := make([]string, 0, len(names))
	placeholders := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for _, name := range names {
		column, err := s.column(name)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
		placeholders = append(placeholders, "?")
		args = append(args, values[name])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", s.table, err)
	}

	keyValue := values[s.key]
	if keyValue == nil {
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", s.table, err)
		}
		keyValue = id
	}

	row, err := s.findOne(ctx, q, map[string]any{s.key: keyValue})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("insert %s: inserted row not found", s.table)
	}
	return row, nil
}

func (s *Store) row(values map[string]any) *Row {
	return &Row{
		store:    s,
		values:   values,
		keyValue: values[s.key],
		dirty:    map[string]bool{},
	}
}

// whereClause renders the where values as `WHERE a = ? AND b = ?` in
// sorted field order. Nil values compare with IS NULL.
func (s *Store) whereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	names := maps.Keys(where)
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for _, name := range names {
		column, err := s.column(name)
		if err != nil {
			return "", nil, err
		}
		if where[name] == nil {
			parts = append(parts, column+" IS NULL")
			continue
		}
		parts = append(parts, column+" = ?")
		args = append(args, where[name])
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (s *Store) orderClause(order []string) (string, error) {
	if len(order) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(order))
	for _, field := range order {
		name, direction := field, ""
		if strings.HasPrefix(field, "-") {
			name, direction = field[1:], " DESC"
		}
		column, err := s.column(name)
		if err != nil {
			return "", err
		}
		parts = append(parts, column+direction)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// column maps a field name to a column name. Field names come from
// clients through bodies and filters, so anything that is not a plain
// identifier is rejected rather than interpolated.
func (s *Store) column(field string) (string, error) {
	name := field
	if s.snake {
		name = casing.Snake(field)
	}
	if !identPattern.MatchString(name) {
		return "", restful.Error400BadRequest(fmt.Sprintf("invalid field name %q", field))
	}
	return name, nil
}

// Row is one table row. Set marks fields dirty; Save updates only those.
type Row struct {
	store    *Store
	values   map[string]any
	keyValue any
	dirty    map[string]bool
}

var _ restful.Entity = (*Row)(nil)

func (r *Row) Get(field string) any {
	return r.values[field]
}

func (r *Row) Set(field string, value any) {
	r.values[field] = value
	r.dirty[field] = true
}

// Save updates the dirty columns of the row. Without changes it is a
// no-op.
func (r *Row) Save(ctx context.Context) error {
	if len(r.dirty) == 0 {
		return nil
	}

	names := maps.Keys(r.dirty)
	slices.Sort(names)

	assignments := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		column, err := r.store.column(name)
		if err != nil {
			return err
		}
		assignments = append(assignments, column+" = ?")
		args = append(args, r.values[name])
	}
	args = append(args, r.keyValue)

	keyColumn, err := r.store.column(r.store.key)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		r.store.table, strings.Join(assignments, ", "), keyColumn)
	if _, err := r.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update %s: %w", r.store.table, err)
	}

	r.dirty = map[string]bool{}
	r.keyValue = r.values[r.store.key]
	return nil
}

// Destroy deletes the row.
func (r *Row) Destroy(ctx context.Context) error {
	keyColumn, err := r.store.column(r.store.key)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.store.table, keyColumn)
	if _, err := r.store.db.ExecContext(ctx, query, r.keyValue); err != nil {
		return fmt.Errorf("delete %s: %w", r.store.table, err)
	}
	return nil
}

func (r *Row) ToJSON() any {
	return r.values
}

// scanRows reads all rows into value maps using the result's column
// names, so the store works against any table shape.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(columns))
		for i, column := range columns {
			record[column] = normalize(values[i])
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Text columns arrive as []byte from some drivers.
func normalize(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
