package query

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/pipeline"
	"github.com/restbind/restbind/internal/request"
	"github.com/restbind/restbind/internal/storage"
)

// StandardChain returns the fixed stage list every select operation starts
// from, in Stage order.
func StandardChain() []pipeline.StandardStage[Stage, *Context] {
	return []pipeline.StandardStage[Stage, *Context]{
		{Stage: StageStart, Processor: pipeline.Func[*Context](startStage)},
		{Stage: StageParseRequest, Processor: pipeline.Func[*Context](parseRequestStage)},
		{Stage: StageApplyServerParams, Processor: pipeline.Func[*Context](applyServerParamsStage)},
		{Stage: StageAssembleQuery, Processor: pipeline.Func[*Context](assembleQueryStage)},
		{Stage: StageFetch, Processor: pipeline.Func[*Context](fetchStage)},
		{Stage: StageFillResponse, Processor: pipeline.Func[*Context](fillResponseStage)},
	}
}

func startStage(c *Context) (pipeline.Outcome, error) {
	if c.store == nil {
		return pipeline.Stop, domain.NewConfiguration("no store configured for select %s", c.Entity.Name)
	}
	session, err := c.store.Session(c.Ctx)
	if err != nil {
		return pipeline.Stop, domain.NewPersistence(err, "opening session")
	}
	c.session = session
	return pipeline.Continue, nil
}

func parseRequestStage(c *Context) (pipeline.Outcome, error) {
	parsed, err := request.Parse(c.Entity, c.effectiveParams())
	if err != nil {
		return pipeline.Stop, err
	}
	c.Parsed = parsed
	return pipeline.Continue, nil
}

func applyServerParamsStage(c *Context) (pipeline.Outcome, error) {
	if c.Parent == nil {
		return pipeline.Continue, nil
	}
	if _, err := c.session.FindByID(c.Ctx, c.Parent.Entity, c.Parent.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return pipeline.Stop, domain.NewResolution("%s %v not found", c.Parent.Entity.Name, c.Parent.ID)
		}
		return pipeline.Stop, domain.NewPersistence(err, "resolving parent %s", c.Parent.Entity.Name)
	}
	return pipeline.Continue, nil
}

// assembleQueryStage builds the store query from everything accumulated in
// the context. It does not touch the store.
func assembleQueryStage(c *Context) (pipeline.Outcome, error) {
	q := &storage.Query{
		Entity:    c.Entity,
		ID:        c.ID,
		Orderings: c.Parsed.Orderings,
		Limit:     c.Parsed.Limit,
		Offset:    c.Parsed.Offset,
	}
	if c.Parent != nil {
		q.Parent = &storage.Parent{Column: c.Parent.Rel.FKColumn, ID: c.Parent.ID}
	}
	c.Query = q
	return pipeline.Continue, nil
}

func fetchStage(c *Context) (pipeline.Outcome, error) {
	recs, err := c.session.Select(c.Ctx, c.Query)
	if err != nil {
		return pipeline.Stop, domain.NewPersistence(err, "fetching %s", c.Entity.Name)
	}

	if c.ID != nil && len(recs) == 0 {
		return pipeline.Stop, domain.NewResolution("%s %v not found", c.Entity.Name, c.ID)
	}

	c.Objects = recs
	c.Total = len(recs)

	// Paging hides part of the result set; report the unpaged count.
	if c.Query.Limit > 0 || c.Query.Offset > 0 {
		total, err := c.session.Count(c.Ctx, c.Query)
		if err != nil {
			return pipeline.Stop, domain.NewPersistence(err, "counting %s", c.Entity.Name)
		}
		c.Total = total
	}

	c.Logger.Debug("records fetched",
		slog.String("entity", c.Entity.Name),
		slog.Int("fetched", len(recs)),
		slog.Int("total", c.Total))
	return pipeline.Continue, nil
}

func fillResponseStage(c *Context) (pipeline.Outcome, error) {
	data := make([]domain.Record, len(c.Objects))
	for i, obj := range c.Objects {
		data[i] = entity.Shape(c.Entity, obj, c.Constraint)
	}

	resp := domain.NewDataResponse(http.StatusOK, data)
	resp.Total = c.Total
	c.Response = resp
	return pipeline.Continue, nil
}

// ensureResponse builds a default envelope when the chain terminated
// before the fill-response stage ran.
func ensureResponse(c *Context) {
	if c.Response != nil {
		return
	}
	data := make([]domain.Record, len(c.Objects))
	for i, obj := range c.Objects {
		data[i] = entity.Shape(c.Entity, obj, c.Constraint)
	}
	resp := domain.NewDataResponse(http.StatusOK, data)
	if c.Total > len(data) {
		resp.Total = c.Total
	}
	c.Response = resp
}
