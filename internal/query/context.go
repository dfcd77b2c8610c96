package query

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/request"
	"github.com/restbind/restbind/internal/storage"
)

// ParentBinding scopes a select to records referencing a parent: rel is
// the entity's to-one relationship pointing at the parent.
type ParentBinding struct {
	Entity *entity.Entity
	ID     any
	Rel    entity.Relationship
}

// Context is the mutable state bag threaded through one select chain
// execution, created fresh per terminal call.
type Context struct {
	Ctx    context.Context
	Logger *slog.Logger

	Entity *entity.Entity

	ID     any
	Parent *ParentBinding

	Constraint entity.Constraint

	// TransportParams come from the resource layer's URL; Params, when
	// set, override them.
	TransportParams url.Values
	Params          url.Values

	// Parsed is the validated form of the effective params, filled by
	// the parse-request stage.
	Parsed *request.Params

	// Query is the assembled store query, filled by the assemble-query
	// stage.
	Query *storage.Query

	// Objects are the fetched records.
	Objects []domain.Record

	// Total is the number of matching records ignoring paging.
	Total int

	Response *domain.DataResponse

	store     storage.Store
	session   storage.Session
	committed bool

	attrs map[string]any
}

// NewContext creates a fresh context for one invocation.
func NewContext(ctx context.Context, e *entity.Entity, store storage.Store, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		Ctx:    ctx,
		Logger: logger,
		Entity: e,
		store:  store,
	}
}

// Attribute returns an ad hoc extension slot value set by an earlier
// processor.
func (c *Context) Attribute(key string) (any, bool) {
	v, ok := c.attrs[key]
	return v, ok
}

// SetAttribute stores an ad hoc extension slot value.
func (c *Context) SetAttribute(key string, value any) {
	if c.attrs == nil {
		c.attrs = make(map[string]any)
	}
	c.attrs[key] = value
}

// Session returns the persistence session opened by the start stage.
func (c *Context) Session() storage.Session {
	return c.session
}

// Target returns the fetched records.
func (c *Context) Target() []domain.Record {
	return c.Objects
}

// SetTarget replaces the fetched records. Custom terminal stages use this
// to supply results from their own backends.
func (c *Context) SetTarget(objects []domain.Record) {
	c.Objects = objects
	c.Total = len(objects)
}

// effectiveParams returns the explicit params when set, the transport
// params otherwise.
func (c *Context) effectiveParams() url.Values {
	if c.Params != nil {
		return c.Params
	}
	return c.TransportParams
}
