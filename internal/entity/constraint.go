package entity

// Constraint decides how much of an entity a client may see or modify. It
// is consulted per attribute or relationship name; a nil Constraint allows
// everything.
type Constraint func(name string) bool

// AllowAll permits every attribute and relationship.
func AllowAll(string) bool { return true }

// Exclude builds a constraint that rejects the given names and allows the
// rest.
func Exclude(names ...string) Constraint {
	blocked := make(map[string]struct{}, len(names))
	for _, n := range names {
		blocked[n] = struct{}{}
	}
	return func(name string) bool {
		_, ok := blocked[name]
		return !ok
	}
}

// Only builds a constraint that allows the given names and rejects the
// rest.
func Only(names ...string) Constraint {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	return func(name string) bool {
		_, ok := allowed[name]
		return ok
	}
}

// Allows is a nil-safe check.
func (c Constraint) Allows(name string) bool {
	if c == nil {
		return true
	}
	return c(name)
}
