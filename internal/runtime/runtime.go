// Package runtime is the caller-facing entry point: it owns the entity
// registry and the store, and hands out operation builders.
package runtime

import (
	"log/slog"

	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/query"
	"github.com/restbind/restbind/internal/storage"
	"github.com/restbind/restbind/internal/update"
)

// Runtime creates operation builders bound to one store and one entity
// registry. It is safe for concurrent use; the builders it returns are
// not.
type Runtime struct {
	registry *entity.Registry
	store    storage.Store
	logger   *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger passed to every operation context.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = logger
	}
}

// New creates a runtime over the given store.
func New(store storage.Store, opts ...Option) *Runtime {
	rt := &Runtime{
		registry: entity.NewRegistry(),
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Register adds an entity to the runtime's registry.
func (rt *Runtime) Register(e *entity.Entity) error {
	return rt.registry.Register(e)
}

// Registry exposes the entity registry.
func (rt *Runtime) Registry() *entity.Registry {
	return rt.registry
}

// Store exposes the backing store.
func (rt *Runtime) Store() storage.Store {
	return rt.store
}

// Create returns a builder for an insert-only operation.
func (rt *Runtime) Create(e *entity.Entity) *update.Builder {
	return update.NewBuilder(rt.registry, e, update.OpCreate, rt.store, rt.logger)
}

// Update returns a builder for an update-existing operation.
func (rt *Runtime) Update(e *entity.Entity) *update.Builder {
	return update.NewBuilder(rt.registry, e, update.OpUpdate, rt.store, rt.logger)
}

// CreateOrUpdate returns a builder that updates existing records and
// inserts missing ones.
func (rt *Runtime) CreateOrUpdate(e *entity.Entity) *update.Builder {
	return update.NewBuilder(rt.registry, e, update.OpCreateOrUpdate, rt.store, rt.logger)
}

// FullSync returns a builder that makes the stored set exactly match the
// request: createOrUpdate plus deletion of unmatched records.
func (rt *Runtime) FullSync(e *entity.Entity) *update.Builder {
	return update.NewBuilder(rt.registry, e, update.OpFullSync, rt.store, rt.logger)
}

// Select returns a builder for a read operation.
func (rt *Runtime) Select(e *entity.Entity) *query.Builder {
	return query.NewBuilder(e, rt.store, rt.logger)
}
