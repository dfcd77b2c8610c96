package entity

import (
	"bytes"
	"encoding/json"

	"github.com/restbind/restbind/internal/domain"
)

// Update is one incoming record: the parsed values for a single entity in a
// create/update payload.
type Update struct {
	// ID is the client-supplied identity, when present in the payload.
	ID any

	// Values maps attribute names to their new values.
	Values map[string]any

	// RelatedIDs maps relationship names to the id of the target object.
	RelatedIDs map[string]any
}

// NewUpdate creates an empty update.
func NewUpdate() *Update {
	return &Update{
		Values:     make(map[string]any),
		RelatedIDs: make(map[string]any),
	}
}

// ParseUpdates decodes a request payload into updates for the given entity.
// The payload may be a single JSON object or an array of objects. Attribute
// values are taken as-is; relationship references are accepted nested
// ({"artist": {"id": 8}}) or flattened (artist_id: 8). Unknown fields are
// rejected.
func ParseUpdates(e *Entity, data []byte) ([]*Update, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, domain.NewValidation("empty request payload")
	}

	var raws []map[string]json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, domain.NewValidation("malformed payload: %v", err)
		}
	} else {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, domain.NewValidation("malformed payload: %v", err)
		}
		raws = append(raws, raw)
	}

	updates := make([]*Update, 0, len(raws))
	for _, raw := range raws {
		u, err := parseOne(e, raw)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func parseOne(e *Entity, raw map[string]json.RawMessage) (*Update, error) {
	u := NewUpdate()

	for field, value := range raw {
		if field == e.IDAttribute {
			id, err := decodeScalar(value)
			if err != nil {
				return nil, domain.NewValidation("invalid id value: %v", err)
			}
			u.ID = id
			continue
		}

		if _, ok := e.Attribute(field); ok {
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return nil, domain.NewValidation("invalid value for %s: %v", field, err)
			}
			u.Values[field] = normalizeNumber(v)
			continue
		}

		if rel, ok := e.Relationship(field); ok {
			id, err := decodeRelated(value)
			if err != nil {
				return nil, domain.NewValidation("invalid reference for %s: %v", field, err)
			}
			u.RelatedIDs[rel.Name] = id
			continue
		}

		if rel, ok := e.RelationshipByFK(field); ok {
			id, err := decodeScalar(value)
			if err != nil {
				return nil, domain.NewValidation("invalid reference for %s: %v", field, err)
			}
			u.RelatedIDs[rel.Name] = id
			continue
		}

		return nil, domain.NewValidation("unknown field %q for entity %s", field, e.Name)
	}

	return u, nil
}

// decodeRelated accepts either a bare id or a nested {"id": ...} object.
func decodeRelated(value json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var nested struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return nil, err
		}
		return decodeScalar(nested.ID)
	}
	return decodeScalar(trimmed)
}

func decodeScalar(value json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, err
	}
	return normalizeNumber(v), nil
}

// normalizeNumber collapses whole-valued JSON floats to int64 so that ids
// and integer attributes compare cleanly against stored values.
func normalizeNumber(v any) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}
