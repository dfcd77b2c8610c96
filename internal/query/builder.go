package query

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/pipeline"
	"github.com/restbind/restbind/internal/storage"
)

// Builder accumulates the configuration for one select operation and
// assembles and runs the stage chain on a terminal call. A builder
// executes at most once.
type Builder struct {
	c         *Context
	assembler *pipeline.Assembler[Stage, *Context]
	executed  bool
}

// NewBuilder creates a select builder for one entity.
func NewBuilder(e *entity.Entity, store storage.Store, logger *slog.Logger) *Builder {
	return &Builder{
		c:         NewContext(context.Background(), e, store, logger),
		assembler: pipeline.NewAssembler(StandardChain()),
	}
}

// ByID restricts the select to a single record.
func (b *Builder) ByID(id any) *Builder {
	b.c.ID = id
	return b
}

// Parent restricts the select to records referencing the parent: rel is
// the entity's to-one relationship pointing at it.
func (b *Builder) Parent(parent *entity.Entity, parentID any, rel entity.Relationship) *Builder {
	b.c.Parent = &ParentBinding{Entity: parent, ID: parentID, Rel: rel}
	return b
}

// Constraint limits what the response may expose.
func (b *Builder) Constraint(constraint entity.Constraint) *Builder {
	b.c.Constraint = constraint
	return b
}

// TransportParams installs the query parameters derived from the
// transport request.
func (b *Builder) TransportParams(params url.Values) *Builder {
	b.c.TransportParams = params
	return b
}

// Request installs explicit query parameters, overriding any derived from
// the transport request.
func (b *Builder) Request(params url.Values) *Builder {
	b.c.Params = params
	return b
}

// Stage registers a consumer to run after the named standard stage. For
// each anchor, custom processors run in registration order.
func (b *Builder) Stage(anchor Stage, f func(*Context)) *Builder {
	return b.RoutingStage(anchor, pipeline.Func[*Context](func(c *Context) (pipeline.Outcome, error) {
		f(c)
		return pipeline.Continue, nil
	}))
}

// TerminalStage registers a consumer to run after the named standard stage
// and truncates the rest of the chain behind it.
func (b *Builder) TerminalStage(anchor Stage, f func(*Context)) *Builder {
	b.assembler.RegisterTerminal(anchor, pipeline.Func[*Context](func(c *Context) (pipeline.Outcome, error) {
		f(c)
		return pipeline.Stop, nil
	}))
	return b
}

// RoutingStage registers a full processor to run after the named standard
// stage.
func (b *Builder) RoutingStage(anchor Stage, p pipeline.Processor[*Context]) *Builder {
	b.assembler.Register(anchor, p)
	return b
}

// Chain assembles the processor chain for the current configuration
// without executing it.
func (b *Builder) Chain() ([]pipeline.Processor[*Context], error) {
	return b.assembler.Assemble()
}

// Get runs the select and returns the data response.
func (b *Builder) Get(ctx context.Context) (*domain.DataResponse, error) {
	if err := b.run(ctx); err != nil {
		return nil, err
	}
	return b.c.Response, nil
}

// GetOne runs a by-id select and returns the data response holding
// exactly one record.
func (b *Builder) GetOne(ctx context.Context, id any) (*domain.DataResponse, error) {
	b.c.ID = id
	return b.Get(ctx)
}

func (b *Builder) run(ctx context.Context) error {
	if b.executed {
		return domain.NewConfiguration("select builder for %s already executed", b.c.Entity.Name)
	}
	b.executed = true

	chain, err := b.assembler.Assemble()
	if err != nil {
		return err
	}

	b.c.Ctx = ctx

	if err := pipeline.Run(chain, b.c); err != nil {
		if b.c.session != nil && !b.c.committed {
			if rbErr := b.c.session.Rollback(); rbErr != nil {
				b.c.Logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
			}
		}
		return err
	}

	if b.c.session != nil && !b.c.committed {
		if err := b.c.session.Commit(); err != nil {
			return domain.NewPersistence(err, "closing select session for %s", b.c.Entity.Name)
		}
		b.c.committed = true
	}

	ensureResponse(b.c)
	return nil
}
