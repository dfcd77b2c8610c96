// Package storage defines the persistence session port the pipelines call
// into. Implementations own transaction discipline: a session spans one
// operation invocation, and rollback on failure happens here, never in the
// pipeline executor.
package storage

import (
	"context"
	"errors"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store opens sessions against the backing data store.
type Store interface {
	// Session starts a new transactional session. Exactly one session
	// belongs to one operation invocation.
	Session(ctx context.Context) (Session, error)

	Close() error
}

// Session is the opaque persistence capability threaded through one
// pipeline execution. All writes are invisible to other sessions until
// Commit.
type Session interface {
	// FindByID fetches one record by primary key. Returns ErrNotFound
	// when the id does not resolve.
	FindByID(ctx context.Context, e *entity.Entity, id any) (domain.Record, error)

	// FindByKey fetches records whose named column equals value. Used by
	// key-based object mappers.
	FindByKey(ctx context.Context, e *entity.Entity, key string, value any) ([]domain.Record, error)

	// Select runs an assembled query.
	Select(ctx context.Context, q *Query) ([]domain.Record, error)

	// Count returns the number of records matching the query, ignoring
	// paging.
	Count(ctx context.Context, q *Query) (int, error)

	// Insert stores a new record and returns its identity. When the
	// record carries an id, that id is kept.
	Insert(ctx context.Context, e *entity.Entity, rec domain.Record) (any, error)

	// Update overwrites the given columns of an existing record.
	Update(ctx context.Context, e *entity.Entity, id any, values domain.Record) error

	// Delete removes a record by primary key.
	Delete(ctx context.Context, e *entity.Entity, id any) error

	Commit() error
	Rollback() error
}

// Ordering is one sort clause of a query.
type Ordering struct {
	Column     string
	Descending bool
}

// Parent qualifies a query to records whose FK column references a parent
// id.
type Parent struct {
	Column string
	ID     any
}

// Query is the assembled select built by the query pipeline.
type Query struct {
	Entity    *entity.Entity
	ID        any // by-id fetch when non-nil
	Parent    *Parent
	Orderings []Ordering
	Limit     int
	Offset    int
}
