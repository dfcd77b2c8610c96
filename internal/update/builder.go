package update

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/pipeline"
	"github.com/restbind/restbind/internal/storage"
)

// Builder accumulates the configuration for one create/update operation
// and assembles and runs the stage chain on a terminal call. Configuration
// methods return the builder for fluent composition; stage registrations
// are additive, singular attributes overwrite on repeat calls. A builder
// executes at most once.
type Builder struct {
	c         *Context
	assembler *pipeline.Assembler[Stage, *Context]
	executed  bool
}

// NewBuilder creates a builder for one operation kind against one entity.
func NewBuilder(registry *entity.Registry, e *entity.Entity, op Op, store storage.Store, logger *slog.Logger) *Builder {
	return &Builder{
		c:         NewContext(context.Background(), registry, e, op, store, logger),
		assembler: pipeline.NewAssembler(StandardChain()),
	}
}

// ID sets an explicit id for the update. Only a single object is then
// allowed in the payload.
func (b *Builder) ID(id any) *Builder {
	b.c.ID = id
	return b
}

// IDMap sets an explicit compound id. The entry matching the entity's id
// attribute becomes the identity; remaining entries are treated as fixed
// attribute values.
func (b *Builder) IDMap(ids map[string]any) *Builder {
	for k, v := range ids {
		if k == b.c.Entity.IDAttribute {
			b.c.ID = v
		} else {
			b.Stage(StageApplyServerParams, func(k string, v any) func(*Context) {
				return func(c *Context) {
					for _, u := range c.Updates {
						u.Values[k] = v
					}
				}
			}(k, v))
		}
	}
	return b
}

// Parent scopes every object in this update to a relationship target: rel
// is the entity's to-one relationship pointing at the parent.
func (b *Builder) Parent(parent *entity.Entity, parentID any, rel entity.Relationship) *Builder {
	b.c.Parent = &ParentBinding{Entity: parent, ID: parentID, Rel: rel}
	return b
}

// ReadConstraint limits what the response may expose.
func (b *Builder) ReadConstraint(constraint entity.Constraint) *Builder {
	b.c.ReadConstraint = constraint
	return b
}

// WriteConstraint limits what the client may modify.
func (b *Builder) WriteConstraint(constraint entity.Constraint) *Builder {
	b.c.WriteConstraint = constraint
	return b
}

// Mapper sets a custom strategy for locating existing records from request
// data. The default matches by primary key.
func (b *Builder) Mapper(m Mapper) *Builder {
	b.c.Mapper = m
	return b
}

// MapperKey matches incoming records against stored ones by the named
// property instead of the primary key. Shorthand for Mapper(ByKey(key)).
func (b *Builder) MapperKey(key string) *Builder {
	return b.Mapper(ByKey(key))
}

// Request installs explicit query parameters that override any derived
// from the transport request.
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
// and truncates the rest of the chain behind it. Useful for custom
// backends that reuse the initial stages but persist on their own.
func (b *Builder) TerminalStage(anchor Stage, f func(*Context)) *Builder {
	b.assembler.RegisterTerminal(anchor, pipeline.Func[*Context](func(c *Context) (pipeline.Outcome, error) {
		f(c)
		return pipeline.Stop, nil
	}))
	return b
}

// RoutingStage registers a full processor to run after the named standard
// stage. The processor decides per call whether the chain continues.
func (b *Builder) RoutingStage(anchor Stage, p pipeline.Processor[*Context]) *Builder {
	b.assembler.Register(anchor, p)
	return b
}

// Sync runs the operation for a raw JSON payload and returns an
// acknowledgement without entity data.
func (b *Builder) Sync(ctx context.Context, payload []byte) (*domain.SimpleResponse, error) {
	b.c.RawPayload = payload
	if err := b.run(ctx, false); err != nil {
		return nil, err
	}
	return b.c.SimpleResponse, nil
}

// SyncOne runs the operation for one parsed update.
func (b *Builder) SyncOne(ctx context.Context, u *entity.Update) (*domain.SimpleResponse, error) {
	b.c.Updates = []*entity.Update{u}
	if err := b.run(ctx, false); err != nil {
		return nil, err
	}
	return b.c.SimpleResponse, nil
}

// SyncUpdates runs the operation for a collection of parsed updates.
func (b *Builder) SyncUpdates(ctx context.Context, updates []*entity.Update) (*domain.SimpleResponse, error) {
	b.c.Updates = updates
	if err := b.run(ctx, false); err != nil {
		return nil, err
	}
	return b.c.SimpleResponse, nil
}

// SyncAndSelect runs the operation for a raw JSON payload and returns the
// resulting entity data.
func (b *Builder) SyncAndSelect(ctx context.Context, payload []byte) (*domain.DataResponse, error) {
	b.c.RawPayload = payload
	if err := b.run(ctx, true); err != nil {
		return nil, err
	}
	return b.c.DataResponse, nil
}

// SyncAndSelectOne runs the operation for one parsed update and returns
// the resulting entity data.
func (b *Builder) SyncAndSelectOne(ctx context.Context, u *entity.Update) (*domain.DataResponse, error) {
	b.c.Updates = []*entity.Update{u}
	if err := b.run(ctx, true); err != nil {
		return nil, err
	}
	return b.c.DataResponse, nil
}

// SyncAndSelectUpdates runs the operation for a collection of parsed
// updates and returns the resulting entity data.
func (b *Builder) SyncAndSelectUpdates(ctx context.Context, updates []*entity.Update) (*domain.DataResponse, error) {
	b.c.Updates = updates
	if err := b.run(ctx, true); err != nil {
		return nil, err
	}
	return b.c.DataResponse, nil
}

// Chain assembles the processor chain for the current configuration
// without executing it. Assembly is deterministic and side-effect free.
func (b *Builder) Chain() ([]pipeline.Processor[*Context], error) {
	return b.assembler.Assemble()
}

func (b *Builder) run(ctx context.Context, withData bool) error {
	if b.executed {
		return domain.NewConfiguration("builder for %s %s already executed", b.c.Op, b.c.Entity.Name)
	}
	b.executed = true

	chain, err := b.assembler.Assemble()
	if err != nil {
		return err
	}

	b.c.Ctx = ctx
	b.c.WithData = withData

	if err := pipeline.Run(chain, b.c); err != nil {
		if b.c.session != nil && !b.c.committed {
			if rbErr := b.c.session.Rollback(); rbErr != nil {
				b.c.Logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
			}
		}
		return err
	}

	// A terminal custom stage may have cut the chain before commit;
	// its writes still belong to this operation's transaction.
	if b.c.session != nil && !b.c.committed {
		if err := b.c.session.Commit(); err != nil {
			return domain.NewPersistence(err, "committing %s %s", b.c.Op, b.c.Entity.Name)
		}
		b.c.committed = true
	}

	// A chain cut short by Stop or a terminal stage may not have reached
	// fill-response; the context state at that point is the final result.
	ensureResponse(b.c)
	return nil
}
