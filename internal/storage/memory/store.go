// Package memory is a mutex-guarded in-memory implementation of the
// storage port, used in tests and embedded setups. Sessions stage their
// writes and apply them on Commit, so a failed operation leaves the store
// untouched.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/storage"
)

// Store keeps all records in memory, keyed by entity name then id.
type Store struct {
	mu      sync.RWMutex
	tables  map[string]map[any]domain.Record
	nextIDs map[string]int64
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tables:  make(map[string]map[any]domain.Record),
		nextIDs: make(map[string]int64),
	}
}

// Count returns the number of stored records for an entity. Test helper.
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[name])
}

// Seed stores a record directly, bypassing sessions. Test helper.
func (s *Store) Seed(e *entity.Entity, rec domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[e.Name] == nil {
		s.tables[e.Name] = make(map[any]domain.Record)
	}
	s.tables[e.Name][rec[e.IDAttribute]] = clone(rec)
}

func (s *Store) Session(ctx context.Context) (storage.Session, error) {
	return &session{
		store:   s,
		pending: make(map[string]map[any]domain.Record),
		deleted: make(map[string]map[any]bool),
		nextIDs: make(map[string]int64),
	}, nil
}

func (s *Store) Close() error {
	return nil
}

// session overlays staged writes on the base store. Reads see the
// session's own writes; other sessions see nothing until Commit.
type session struct {
	store *Store

	pending map[string]map[any]domain.Record
	deleted map[string]map[any]bool

	// nextIDs stages id allocations so a rolled-back session does not
	// consume ids from the shared counter.
	nextIDs map[string]int64
	done    bool
}

var _ storage.Session = (*session)(nil)

func (s *session) lookup(e *entity.Entity, id any) (domain.Record, bool) {
	if s.deleted[e.Name][id] {
		return nil, false
	}
	if rec, ok := s.pending[e.Name][id]; ok {
		return rec, true
	}
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	rec, ok := s.store.tables[e.Name][id]
	return rec, ok
}

// visible returns every record of the entity as seen by this session.
func (s *session) visible(e *entity.Entity) []domain.Record {
	seen := make(map[any]bool)
	var recs []domain.Record

	for id, rec := range s.pending[e.Name] {
		seen[id] = true
		recs = append(recs, rec)
	}

	s.store.mu.RLock()
	for id, rec := range s.store.tables[e.Name] {
		if seen[id] || s.deleted[e.Name][id] {
			continue
		}
		recs = append(recs, rec)
	}
	s.store.mu.RUnlock()

	return recs
}

func (s *session) FindByID(ctx context.Context, e *entity.Entity, id any) (domain.Record, error) {
	rec, ok := s.lookup(e, id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(rec), nil
}

func (s *session) FindByKey(ctx context.Context, e *entity.Entity, key string, value any) ([]domain.Record, error) {
	var out []domain.Record
	for _, rec := range s.visible(e) {
		if rec[key] == value {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

func (s *session) Select(ctx context.Context, q *storage.Query) ([]domain.Record, error) {
	recs := s.matching(q)

	for i := len(q.Orderings) - 1; i >= 0; i-- {
		o := q.Orderings[i]
		sort.SliceStable(recs, func(a, b int) bool {
			less := lessValues(recs[a][o.Column], recs[b][o.Column])
			if o.Descending {
				return !less && recs[a][o.Column] != recs[b][o.Column]
			}
			return less
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(recs) {
			recs = nil
		} else {
			recs = recs[q.Offset:]
		}
	}
	if q.Limit > 0 && q.Limit < len(recs) {
		recs = recs[:q.Limit]
	}

	out := make([]domain.Record, len(recs))
	for i, rec := range recs {
		out[i] = clone(rec)
	}
	return out, nil
}

func (s *session) Count(ctx context.Context, q *storage.Query) (int, error) {
	return len(s.matching(q)), nil
}

func (s *session) matching(q *storage.Query) []domain.Record {
	var out []domain.Record
	for _, rec := range s.visible(q.Entity) {
		if q.ID != nil && rec[q.Entity.IDAttribute] != q.ID {
			continue
		}
		if q.Parent != nil && rec[q.Parent.Column] != q.Parent.ID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *session) Insert(ctx context.Context, e *entity.Entity, rec domain.Record) (any, error) {
	id := rec[e.IDAttribute]
	if id == nil {
		if e.IDKind == entity.String {
			id = uuid.NewString()
		} else {
			if _, seeded := s.nextIDs[e.Name]; !seeded {
				s.store.mu.RLock()
				s.nextIDs[e.Name] = s.store.nextIDs[e.Name]
				s.store.mu.RUnlock()
			}
			s.nextIDs[e.Name]++
			id = s.nextIDs[e.Name]
		}
	}

	if _, exists := s.lookup(e, id); exists {
		return nil, fmt.Errorf("%s %v already exists", e.Name, id)
	}

	stored := clone(rec)
	stored[e.IDAttribute] = id
	s.stage(e.Name, id, stored)
	return id, nil
}

func (s *session) Update(ctx context.Context, e *entity.Entity, id any, values domain.Record) error {
	rec, ok := s.lookup(e, id)
	if !ok {
		return storage.ErrNotFound
	}
	updated := clone(rec)
	for k, v := range values {
		updated[k] = v
	}
	s.stage(e.Name, id, updated)
	return nil
}

func (s *session) Delete(ctx context.Context, e *entity.Entity, id any) error {
	if s.deleted[e.Name] == nil {
		s.deleted[e.Name] = make(map[any]bool)
	}
	s.deleted[e.Name][id] = true
	delete(s.pending[e.Name], id)
	return nil
}

func (s *session) stage(name string, id any, rec domain.Record) {
	if s.pending[name] == nil {
		s.pending[name] = make(map[any]domain.Record)
	}
	s.pending[name][id] = rec
	delete(s.deleted[name], id)
}

func (s *session) Commit() error {
	if s.done {
		return fmt.Errorf("session already finished")
	}
	s.done = true

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	for name, ids := range s.deleted {
		for id := range ids {
			delete(s.store.tables[name], id)
		}
	}
	for name, recs := range s.pending {
		if s.store.tables[name] == nil {
			s.store.tables[name] = make(map[any]domain.Record)
		}
		for id, rec := range recs {
			s.store.tables[name][id] = rec
		}
	}
	for name, next := range s.nextIDs {
		if next > s.store.nextIDs[name] {
			s.store.nextIDs[name] = next
		}
	}
	return nil
}

func (s *session) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	s.pending = nil
	s.deleted = nil
	return nil
}

func clone(rec domain.Record) domain.Record {
	out := make(domain.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func lessValues(a, b any) bool {
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			return av < bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}
	return false
}
