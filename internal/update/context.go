package update

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/request"
	"github.com/restbind/restbind/internal/storage"
)

// ParentBinding scopes every object in an update to a to-one relationship
// target: rel is the child entity's relationship pointing at the parent.
type ParentBinding struct {
	Entity *entity.Entity
	ID     any
	Rel    entity.Relationship
}

// Context is the mutable state bag threaded through one update chain
// execution. It is created fresh per terminal call and never reused.
type Context struct {
	Ctx    context.Context
	Logger *slog.Logger

	Registry *entity.Registry
	Entity   *entity.Entity
	Op       Op

	// Request data, set by the builder before execution.
	RawPayload []byte
	Updates    []*entity.Update
	ID         any
	Parent     *ParentBinding
	Params     url.Values

	// Parsed holds the validated form of Params. Filled by the
	// parse-request stage so bad parameters fail before any writes;
	// fill-response only applies the orderings.
	Parsed *request.Params

	ReadConstraint  entity.Constraint
	WriteConstraint entity.Constraint
	Mapper          Mapper

	// WithData selects the syncAndSelect response shape.
	WithData bool

	// Targets pairs each update with the stored record it mapped to,
	// nil for records that do not exist yet. Filled by the map-changes
	// stage, consumed by commit.
	Targets []domain.Record

	// Objects are the final state of every created or updated record,
	// in request order. Filled by the commit stage.
	Objects []domain.Record

	// Inserted counts records created by the commit stage.
	Inserted int

	DataResponse   *domain.DataResponse
	SimpleResponse *domain.SimpleResponse

	store     storage.Store
	session   storage.Session
	committed bool

	attrs map[string]any
}

// NewContext creates a fresh context for one invocation.
func NewContext(ctx context.Context, registry *entity.Registry, e *entity.Entity, op Op, store storage.Store, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		Ctx:      ctx,
		Logger:   logger,
		Registry: registry,
		Entity:   e,
		Op:       op,
		store:    store,
	}
}

// Attribute returns an ad hoc extension slot value set by an earlier
// processor. The pipeline never inspects these values.
func (c *Context) Attribute(key string) (any, bool) {
	v, ok := c.attrs[key]
	return v, ok
}

// SetAttribute stores an ad hoc extension slot value. Re-setting a key
// overwrites it.
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

// Target returns the final created or updated records.
func (c *Context) Target() []domain.Record {
	return c.Objects
}

// SetTarget replaces the result records. Custom terminal stages use this
// to hand their own results to the caller.
func (c *Context) SetTarget(objects []domain.Record) {
	c.Objects = objects
}
