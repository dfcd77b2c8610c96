// Package sqlite is the SQLite implementation of the storage port, built
// on database/sql with the modernc driver. The schema is derived from the
// entity registry at open time.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/storage"
)

// Store is a SQLite-backed storage.Store.
type Store struct {
	db       *sql.DB
	registry *entity.Registry
}

var _ storage.Store = (*Store)(nil)

// New opens the database at dbPath and creates tables for every registered
// entity.
func New(dbPath string, registry *entity.Registry) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	store := &Store{db: db, registry: registry}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	for _, name := range s.registry.Names() {
		e, _ := s.registry.Get(name)

		cols := []string{fmt.Sprintf("%s %s PRIMARY KEY", e.IDAttribute, idColumnType(e.IDKind))}
		for _, a := range e.Attributes {
			cols = append(cols, fmt.Sprintf("%s %s", a.Name, columnType(a.Kind)))
		}
		for _, rel := range e.Relationships {
			kind := entity.Int
			if target, ok := s.registry.Get(rel.Target); ok {
				kind = target.IDKind
			}
			cols = append(cols, fmt.Sprintf("%s %s", rel.FKColumn, idColumnType(kind)))
		}

		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", e.Table, strings.Join(cols, ", "))
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create table %s: %w", e.Table, err)
		}

		for _, rel := range e.Relationships {
			idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
				e.Table, rel.FKColumn, e.Table, rel.FKColumn)
			if _, err := s.db.Exec(idx); err != nil {
				return fmt.Errorf("create index on %s.%s: %w", e.Table, rel.FKColumn, err)
			}
		}
	}
	return nil
}

func idColumnType(kind entity.Kind) string {
	if kind == entity.String {
		return "TEXT"
	}
	return "INTEGER"
}

func columnType(kind entity.Kind) string {
	switch kind {
	case entity.Int, entity.Bool:
		return "INTEGER"
	case entity.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Session begins a transaction.
func (s *Store) Session(ctx context.Context) (storage.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &session{tx: tx}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type session struct {
	tx *sql.Tx
}

var _ storage.Session = (*session)(nil)

func (s *session) FindByID(ctx context.Context, e *entity.Entity, id any) (domain.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(e.Columns(), ", "), e.Table, e.IDAttribute)

	rows, err := s.tx.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("select %s by id: %w", e.Name, err)
	}
	defer rows.Close()

	recs, err := scanRecords(e, rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, storage.ErrNotFound
	}
	return recs[0], nil
}

func (s *session) FindByKey(ctx context.Context, e *entity.Entity, key string, value any) ([]domain.Record, error) {
	if !validColumn(e, key) {
		return nil, fmt.Errorf("unknown column %s on %s", key, e.Name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(e.Columns(), ", "), e.Table, key)

	rows, err := s.tx.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("select %s by %s: %w", e.Name, key, err)
	}
	defer rows.Close()

	return scanRecords(e, rows)
}

func (s *session) Select(ctx context.Context, q *storage.Query) ([]domain.Record, error) {
	query, args := buildSelect(q, false)

	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Entity.Name, err)
	}
	defer rows.Close()

	return scanRecords(q.Entity, rows)
}

func (s *session) Count(ctx context.Context, q *storage.Query) (int, error) {
	query, args := buildSelect(q, true)

	var n int
	if err := s.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Entity.Name, err)
	}
	return n, nil
}

func buildSelect(q *storage.Query, count bool) (string, []any) {
	var sb strings.Builder
	var args []any

	if count {
		sb.WriteString("SELECT COUNT(*) FROM ")
	} else {
		sb.WriteString("SELECT " + strings.Join(q.Entity.Columns(), ", ") + " FROM ")
	}
	sb.WriteString(q.Entity.Table)

	var where []string
	if q.ID != nil {
		where = append(where, q.Entity.IDAttribute+" = ?")
		args = append(args, q.ID)
	}
	if q.Parent != nil {
		where = append(where, q.Parent.Column+" = ?")
		args = append(args, q.Parent.ID)
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	if !count {
		if len(q.Orderings) > 0 {
			clauses := make([]string, len(q.Orderings))
			for i, o := range q.Orderings {
				dir := "ASC"
				if o.Descending {
					dir = "DESC"
				}
				clauses[i] = o.Column + " " + dir
			}
			sb.WriteString(" ORDER BY " + strings.Join(clauses, ", "))
		}
		if q.Limit > 0 {
			sb.WriteString(" LIMIT ?")
			args = append(args, q.Limit)
			if q.Offset > 0 {
				sb.WriteString(" OFFSET ?")
				args = append(args, q.Offset)
			}
		}
	}

	return sb.String(), args
}

func (s *session) Insert(ctx context.Context, e *entity.Entity, rec domain.Record) (any, error) {
	id := rec[e.IDAttribute]
	if id == nil && e.IDKind == entity.String {
		id = uuid.NewString()
	}

	var cols []string
	var args []any
	if id != nil {
		cols = append(cols, e.IDAttribute)
		args = append(args, id)
	}
	for _, a := range e.Attributes {
		if v, ok := rec[a.Name]; ok {
			cols = append(cols, a.Name)
			args = append(args, toStored(a.Kind, v))
		}
	}
	for _, rel := range e.Relationships {
		if v, ok := rec[rel.FKColumn]; ok {
			cols = append(cols, rel.FKColumn)
			args = append(args, v)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		e.Table, strings.Join(cols, ", "), placeholders)

	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", e.Name, err)
	}

	if id == nil {
		rowID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", e.Name, err)
		}
		id = rowID
	}
	return id, nil
}

func (s *session) Update(ctx context.Context, e *entity.Entity, id any, values domain.Record) error {
	var sets []string
	var args []any
	for _, a := range e.Attributes {
		if v, ok := values[a.Name]; ok {
			sets = append(sets, a.Name+" = ?")
			args = append(args, toStored(a.Kind, v))
		}
	}
	for _, rel := range e.Relationships {
		if v, ok := values[rel.FKColumn]; ok {
			sets = append(sets, rel.FKColumn+" = ?")
			args = append(args, v)
		}
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		e.Table, strings.Join(sets, ", "), e.IDAttribute)

	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", e.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", e.Name, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *session) Delete(ctx context.Context, e *entity.Entity, id any) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", e.Table, e.IDAttribute)
	if _, err := s.tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete %s: %w", e.Name, err)
	}
	return nil
}

func (s *session) Commit() error {
	return s.tx.Commit()
}

func (s *session) Rollback() error {
	return s.tx.Rollback()
}

func validColumn(e *entity.Entity, name string) bool {
	for _, col := range e.Columns() {
		if col == name {
			return true
		}
	}
	return false
}

// toStored converts an attribute value to its stored representation.
func toStored(kind entity.Kind, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case entity.Bool:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	case entity.Time:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano)
		}
	}
	return v
}

// fromStored converts a scanned value back to its attribute shape.
func fromStored(kind entity.Kind, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case entity.Bool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case entity.String, entity.Time:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	return v
}

func scanRecords(e *entity.Entity, rows *sql.Rows) ([]domain.Record, error) {
	cols := e.Columns()
	var recs []domain.Record

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.Name, err)
		}

		rec := make(domain.Record, len(cols))
		for i, col := range cols {
			v := values[i]
			if col == e.IDAttribute {
				rec[col] = fromStored(e.IDKind, v)
				continue
			}
			if a, ok := e.Attribute(col); ok {
				rec[col] = fromStored(a.Kind, v)
				continue
			}
			rec[col] = fromStored(entity.Int, v)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
