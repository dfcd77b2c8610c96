package update

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/pipeline"
	"github.com/restbind/restbind/internal/request"
	"github.com/restbind/restbind/internal/storage"
)

// StandardChain returns the fixed stage list every update operation starts
// from, in Stage order.
func StandardChain() []pipeline.StandardStage[Stage, *Context] {
	return []pipeline.StandardStage[Stage, *Context]{
		{Stage: StageStart, Processor: pipeline.Func[*Context](startStage)},
		{Stage: StageParseRequest, Processor: pipeline.Func[*Context](parseRequestStage)},
		{Stage: StageApplyServerParams, Processor: pipeline.Func[*Context](applyServerParamsStage)},
		{Stage: StageMapChanges, Processor: pipeline.Func[*Context](mapChangesStage)},
		{Stage: StageCommit, Processor: pipeline.Func[*Context](commitStage)},
		{Stage: StageFillResponse, Processor: pipeline.Func[*Context](fillResponseStage)},
	}
}

// startStage opens the persistence session and stores it in the context's
// typed slot for all later stages.
func startStage(c *Context) (pipeline.Outcome, error) {
	if c.store == nil {
		return pipeline.Stop, domain.NewConfiguration("no store configured for %s %s", c.Op, c.Entity.Name)
	}
	session, err := c.store.Session(c.Ctx)
	if err != nil {
		return pipeline.Stop, domain.NewPersistence(err, "opening session")
	}
	c.session = session
	return pipeline.Continue, nil
}

func parseRequestStage(c *Context) (pipeline.Outcome, error) {
	if c.Updates == nil {
		updates, err := entity.ParseUpdates(c.Entity, c.RawPayload)
		if err != nil {
			return pipeline.Stop, err
		}
		c.Updates = updates
	}

	for _, u := range c.Updates {
		// Caller-built updates may arrive with nil maps; later stages
		// write into both.
		if u.Values == nil {
			u.Values = make(map[string]any)
		}
		if u.RelatedIDs == nil {
			u.RelatedIDs = make(map[string]any)
		}

		for name := range u.Values {
			if !c.WriteConstraint.Allows(name) {
				return pipeline.Stop, domain.NewValidation("attribute %q is not writable", name)
			}
		}
		for name := range u.RelatedIDs {
			if !c.WriteConstraint.Allows(name) {
				return pipeline.Stop, domain.NewValidation("relationship %q is not writable", name)
			}
		}
	}

	if c.ID != nil && len(c.Updates) != 1 {
		return pipeline.Stop, domain.NewValidation(
			"explicit id allows exactly one object, got %d", len(c.Updates))
	}

	if c.Params != nil {
		parsed, err := request.Parse(c.Entity, c.Params)
		if err != nil {
			return pipeline.Stop, err
		}
		c.Parsed = parsed
	}

	c.Logger.Debug("request parsed",
		slog.String("entity", c.Entity.Name),
		slog.String("op", c.Op.String()),
		slog.Int("updates", len(c.Updates)))
	return pipeline.Continue, nil
}

// applyServerParamsStage merges bindings that came from the server side of
// the request (explicit id, parent relationship) into every update, so the
// mapping stage sees them.
func applyServerParamsStage(c *Context) (pipeline.Outcome, error) {
	if c.ID != nil {
		c.Updates[0].ID = c.ID
	}
	if c.Parent != nil {
		for _, u := range c.Updates {
			u.RelatedIDs[c.Parent.Rel.Name] = c.Parent.ID
		}
	}
	return pipeline.Continue, nil
}

func mapChangesStage(c *Context) (pipeline.Outcome, error) {
	if c.Parent != nil {
		if _, err := c.session.FindByID(c.Ctx, c.Parent.Entity, c.Parent.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return pipeline.Stop, domain.NewResolution("%s %v not found",
					c.Parent.Entity.Name, c.Parent.ID)
			}
			return pipeline.Stop, domain.NewPersistence(err, "resolving parent %s", c.Parent.Entity.Name)
		}
	}

	mapper := c.Mapper
	if mapper == nil {
		mapper = ByID
	}

	c.Targets = make([]domain.Record, len(c.Updates))
	for i, u := range c.Updates {
		for name, id := range u.RelatedIDs {
			rel, ok := c.Entity.Relationship(name)
			if !ok {
				return pipeline.Stop, domain.NewValidation("unknown relationship %q on %s", name, c.Entity.Name)
			}
			target, ok := c.Registry.Get(rel.Target)
			if !ok {
				return pipeline.Stop, domain.NewConfiguration("relationship %s targets unregistered entity %s", name, rel.Target)
			}
			if _, err := c.session.FindByID(c.Ctx, target, id); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return pipeline.Stop, domain.NewResolution("%s %v not found", target.Name, id)
				}
				return pipeline.Stop, domain.NewPersistence(err, "resolving %s reference", name)
			}
		}

		existing, err := mapper(c, u)
		if err != nil {
			return pipeline.Stop, err
		}
		c.Targets[i] = existing
	}
	return pipeline.Continue, nil
}

func commitStage(c *Context) (pipeline.Outcome, error) {
	matched := make(map[any]bool)
	c.Objects = make([]domain.Record, 0, len(c.Updates))

	for i, u := range c.Updates {
		target := c.Targets[i]

		switch c.Op {
		case OpCreate:
			if err := c.insert(u); err != nil {
				return pipeline.Stop, err
			}

		case OpUpdate:
			if target == nil {
				return pipeline.Stop, domain.NewResolution("%s %v not found", c.Entity.Name, u.ID)
			}
			if err := c.apply(u, target, matched); err != nil {
				return pipeline.Stop, err
			}

		case OpCreateOrUpdate, OpFullSync:
			if target == nil {
				if err := c.insert(u); err != nil {
					return pipeline.Stop, err
				}
			} else if err := c.apply(u, target, matched); err != nil {
				return pipeline.Stop, err
			}
		}
	}

	if c.Op == OpFullSync {
		if err := c.deleteUnmatched(matched); err != nil {
			return pipeline.Stop, err
		}
	}

	if err := c.session.Commit(); err != nil {
		return pipeline.Stop, domain.NewPersistence(err, "committing %s %s", c.Op, c.Entity.Name)
	}
	c.committed = true

	c.Logger.Debug("changes committed",
		slog.String("entity", c.Entity.Name),
		slog.String("op", c.Op.String()),
		slog.Int("inserted", c.Inserted),
		slog.Int("objects", len(c.Objects)))
	return pipeline.Continue, nil
}

func (c *Context) insert(u *entity.Update) error {
	if u.ID != nil && !c.Entity.AllowClientIDs {
		return domain.NewValidation("client-supplied ids are not allowed for %s", c.Entity.Name)
	}

	rec := c.record(u)
	if u.ID != nil {
		rec[c.Entity.IDAttribute] = u.ID
	}

	id, err := c.session.Insert(c.Ctx, c.Entity, rec)
	if err != nil {
		return domain.NewPersistence(err, "inserting %s", c.Entity.Name)
	}
	rec[c.Entity.IDAttribute] = id
	c.Objects = append(c.Objects, rec)
	c.Inserted++
	return nil
}

func (c *Context) apply(u *entity.Update, target domain.Record, matched map[any]bool) error {
	id := target[c.Entity.IDAttribute]
	matched[id] = true

	values := c.record(u)
	if err := c.session.Update(c.Ctx, c.Entity, id, values); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.NewResolution("%s %v not found", c.Entity.Name, id)
		}
		return domain.NewPersistence(err, "updating %s %v", c.Entity.Name, id)
	}

	merged := make(domain.Record, len(target)+len(values))
	for k, v := range target {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	c.Objects = append(c.Objects, merged)
	return nil
}

// record flattens an update into stored-column form.
func (c *Context) record(u *entity.Update) domain.Record {
	rec := make(domain.Record, len(u.Values)+len(u.RelatedIDs))
	for k, v := range u.Values {
		rec[k] = v
	}
	for name, id := range u.RelatedIDs {
		if rel, ok := c.Entity.Relationship(name); ok {
			rec[rel.FKColumn] = id
		}
	}
	return rec
}

// deleteUnmatched removes stored records (scoped to the parent, when
// bound) that no incoming update matched. Insert ids count as matched.
func (c *Context) deleteUnmatched(matched map[any]bool) error {
	for _, obj := range c.Objects {
		matched[obj[c.Entity.IDAttribute]] = true
	}

	q := &storage.Query{Entity: c.Entity}
	if c.Parent != nil {
		q.Parent = &storage.Parent{Column: c.Parent.Rel.FKColumn, ID: c.Parent.ID}
	}
	existing, err := c.session.Select(c.Ctx, q)
	if err != nil {
		return domain.NewPersistence(err, "listing %s for full sync", c.Entity.Name)
	}

	for _, rec := range existing {
		id := rec[c.Entity.IDAttribute]
		if matched[id] {
			continue
		}
		if err := c.session.Delete(c.Ctx, c.Entity, id); err != nil {
			return domain.NewPersistence(err, "deleting %s %v", c.Entity.Name, id)
		}
	}
	return nil
}

func fillResponseStage(c *Context) (pipeline.Outcome, error) {
	status := http.StatusOK
	if c.Inserted > 0 {
		status = http.StatusCreated
	}

	if !c.WithData {
		c.SimpleResponse = domain.NewSimpleResponse(status)
		return pipeline.Continue, nil
	}

	data := make([]domain.Record, len(c.Objects))
	for i, obj := range c.Objects {
		data[i] = entity.Shape(c.Entity, obj, c.ReadConstraint)
	}

	if c.Parsed != nil {
		orderRecords(data, c.Parsed.Orderings)
	}

	c.DataResponse = domain.NewDataResponse(status, data)
	return pipeline.Continue, nil
}

// ensureResponse builds a default envelope when the chain terminated
// before the fill-response stage ran.
func ensureResponse(c *Context) {
	status := http.StatusOK
	if c.Inserted > 0 {
		status = http.StatusCreated
	}
	if c.WithData {
		if c.DataResponse == nil {
			data := make([]domain.Record, len(c.Objects))
			for i, obj := range c.Objects {
				data[i] = entity.Shape(c.Entity, obj, c.ReadConstraint)
			}
			c.DataResponse = domain.NewDataResponse(status, data)
		}
	} else if c.SimpleResponse == nil {
		c.SimpleResponse = domain.NewSimpleResponse(status)
	}
}

func orderRecords(recs []domain.Record, orderings []storage.Ordering) {
	for i := len(orderings) - 1; i >= 0; i-- {
		o := orderings[i]
		sort.SliceStable(recs, func(a, b int) bool {
			less := compareValues(recs[a][o.Column], recs[b][o.Column]) < 0
			if o.Descending {
				return compareValues(recs[a][o.Column], recs[b][o.Column]) > 0
			}
			return less
		})
	}
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	return 0
}
