// Package request parses the query parameters shared by select and update
// responses: sort, paging, and the total flag. The transport layer passes
// raw url.Values; builders may override them with explicit params.
package request

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/storage"
)

// Params are the parsed, validated request parameters.
type Params struct {
	Orderings []storage.Ordering
	Limit     int
	Offset    int
}

// Parse validates query parameters against the entity's declared columns.
// Supported keys: sort (comma-separated column names, "-" prefix for
// descending), limit, offset.
func Parse(e *entity.Entity, values url.Values) (*Params, error) {
	p := &Params{}
	if values == nil {
		return p, nil
	}

	if sort := values.Get("sort"); sort != "" {
		for _, field := range strings.Split(sort, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			desc := strings.HasPrefix(field, "-")
			col := strings.TrimPrefix(field, "-")
			if !knownColumn(e, col) {
				return nil, domain.NewValidation("cannot sort by unknown column %q", col)
			}
			p.Orderings = append(p.Orderings, storage.Ordering{Column: col, Descending: desc})
		}
	}

	var err error
	if p.Limit, err = intParam(values, "limit"); err != nil {
		return nil, err
	}
	if p.Offset, err = intParam(values, "offset"); err != nil {
		return nil, err
	}

	return p, nil
}

func intParam(values url.Values, key string) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidation("invalid %s value %q", key, raw)
	}
	return n, nil
}

func knownColumn(e *entity.Entity, name string) bool {
	for _, col := range e.Columns() {
		if col == name {
			return true
		}
	}
	return false
}
