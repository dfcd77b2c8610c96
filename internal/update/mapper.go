package update

import (
	"errors"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/storage"
)

// Mapper locates the existing stored record an incoming update refers to.
// A nil record means the update has no existing target. Supplying an
// explicit mapper, a property name, or nothing are the three equivalent
// strategies for matching; the default matches by primary key.
type Mapper func(c *Context, u *entity.Update) (domain.Record, error)

// ByID is the default mapper: it matches updates to stored records by
// their primary key.
func ByID(c *Context, u *entity.Update) (domain.Record, error) {
	if u.ID == nil {
		return nil, nil
	}
	rec, err := c.Session().FindByID(c.Ctx, c.Entity, u.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewPersistence(err, "locating %s by id", c.Entity.Name)
	}
	return rec, nil
}

// ByKey matches updates to stored records by the value of the named
// property instead of the primary key.
func ByKey(key string) Mapper {
	return func(c *Context, u *entity.Update) (domain.Record, error) {
		value, ok := u.Values[key]
		if !ok {
			return nil, nil
		}
		recs, err := c.Session().FindByKey(c.Ctx, c.Entity, key, value)
		if err != nil {
			return nil, domain.NewPersistence(err, "locating %s by %s", c.Entity.Name, key)
		}
		if len(recs) == 0 {
			return nil, nil
		}
		if len(recs) > 1 {
			return nil, domain.NewValidation("%s %s=%v matches %d records", c.Entity.Name, key, value, len(recs))
		}
		return recs[0], nil
	}
}
