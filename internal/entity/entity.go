// Package entity holds the runtime schema the binding layer operates on:
// entity descriptors, the registry, parsed updates, and access constraints.
package entity

import (
	"fmt"
)

// Kind is the storage type of an attribute.
type Kind string

const (
	String Kind = "string"
	Int    Kind = "int"
	Float  Kind = "float"
	Bool   Kind = "bool"
	Time   Kind = "time"
)

// Attribute describes one persistent attribute of an entity.
type Attribute struct {
	Name string
	Kind Kind
}

// Relationship describes a to-one relationship. Incoming payloads may bind
// it either nested ({"artist": {"id": 8}}) or flattened (artist_id: 8);
// responses always flatten it to the FK column.
type Relationship struct {
	Name     string // relationship name, e.g. "artist"
	Target   string // target entity name
	FKColumn string // foreign-key column on this entity, e.g. "artist_id"
}

// Entity describes one REST resource backed by a table.
type Entity struct {
	Name        string
	Table       string
	IDAttribute string

	// IDKind is Int for store-assigned numeric ids or String for
	// client- or store-generated string keys. Defaults to Int.
	IDKind Kind

	Attributes     []Attribute
	Relationships  []Relationship
	AllowClientIDs bool
}

// Attribute returns the named attribute, if declared.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Relationship returns the named relationship, if declared.
func (e *Entity) Relationship(name string) (Relationship, bool) {
	for _, r := range e.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// RelationshipByFK returns the relationship whose FK column matches name.
func (e *Entity) RelationshipByFK(name string) (Relationship, bool) {
	for _, r := range e.Relationships {
		if r.FKColumn == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// Columns returns all persistent column names: id, attributes, FK columns.
func (e *Entity) Columns() []string {
	cols := make([]string, 0, 1+len(e.Attributes)+len(e.Relationships))
	cols = append(cols, e.IDAttribute)
	for _, a := range e.Attributes {
		cols = append(cols, a.Name)
	}
	for _, r := range e.Relationships {
		cols = append(cols, r.FKColumn)
	}
	return cols
}

// Registry maps entity names to their descriptors.
type Registry struct {
	entities map[string]*Entity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register adds an entity to the registry. It validates that relationship
// targets are either already registered or self-referential.
func (r *Registry) Register(e *Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity name cannot be empty")
	}
	if _, exists := r.entities[e.Name]; exists {
		return fmt.Errorf("entity %s already registered", e.Name)
	}
	if e.Table == "" {
		e.Table = e.Name
	}
	if e.IDAttribute == "" {
		e.IDAttribute = "id"
	}
	if e.IDKind == "" {
		e.IDKind = Int
	}
	for _, rel := range e.Relationships {
		if rel.Target != e.Name {
			if _, ok := r.entities[rel.Target]; !ok {
				return fmt.Errorf("entity %s: relationship %s targets unknown entity %s",
					e.Name, rel.Name, rel.Target)
			}
		}
		if rel.FKColumn == "" {
			return fmt.Errorf("entity %s: relationship %s has no FK column", e.Name, rel.Name)
		}
	}
	r.entities[e.Name] = e
	return nil
}

// Get returns the named entity.
func (r *Registry) Get(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Names returns all registered entity names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	return names
}
