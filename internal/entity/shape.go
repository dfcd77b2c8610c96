package entity

import (
	"github.com/restbind/restbind/internal/domain"
)

// Shape serializes a stored record for the response envelope: the id, then
// every attribute and flattened FK field the read constraint allows. The
// id attribute is always included.
func Shape(e *Entity, rec domain.Record, read Constraint) domain.Record {
	out := make(domain.Record)
	out[e.IDAttribute] = rec[e.IDAttribute]

	for _, a := range e.Attributes {
		if !read.Allows(a.Name) {
			continue
		}
		if v, ok := rec[a.Name]; ok {
			out[a.Name] = v
		}
	}
	for _, rel := range e.Relationships {
		if !read.Allows(rel.Name) {
			continue
		}
		if v, ok := rec[rel.FKColumn]; ok {
			out[rel.FKColumn] = v
		}
	}
	return out
}
