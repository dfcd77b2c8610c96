// Package resource binds HTTP routes onto the operation builders: it is
// the transport-facing side of the binding layer. Route shapes are derived
// from the entity registry; payloads, ids, and parent bindings are handed
// to the builders, and builder failures map to HTTP statuses through the
// domain error taxonomy.
package resource

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/restbind/restbind/internal/domain"
	"github.com/restbind/restbind/internal/entity"
	"github.com/restbind/restbind/internal/runtime"
)

// maxPayloadBytes bounds create/update request bodies.
const maxPayloadBytes = 1 << 20

// Access holds the per-entity constraints applied to every request.
type Access struct {
	Read  entity.Constraint
	Write entity.Constraint
}

// Handler serves the REST surface for every registered entity.
type Handler struct {
	rt     *runtime.Runtime
	logger *slog.Logger
	access map[string]Access
}

// NewHandler creates a resource handler over the runtime.
func NewHandler(rt *runtime.Runtime, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		rt:     rt,
		logger: logger,
		access: make(map[string]Access),
	}
}

// Constrain installs read/write constraints for one entity.
func (h *Handler) Constrain(entityName string, access Access) {
	h.access[entityName] = access
}

// Mount registers the resource routes on the router.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/{entity}", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Put("/", h.fullSync)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.put)
		r.Get("/{id}/{related}", h.listRelated)
		r.Post("/{id}/{related}", h.createRelated)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entityParam(w, r, "entity")
	if !ok {
		return
	}

	resp, err := h.rt.Select(e).
		Constraint(h.access[e.Name].Read).
		TransportParams(r.URL.Query()).
		Get(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, resp.Status, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entityParam(w, r, "entity")
	if !ok {
		return
	}
	id, err := parseID(e, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.rt.Select(e).
		Constraint(h.access[e.Name].Read).
		TransportParams(r.URL.Query()).
		GetOne(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, resp.Status, resp)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entityParam(w, r, "entity")
	if !ok {
		return
	}
	payload, err := readPayload(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	access := h.access[e.Name]
	resp, err := h.rt.Create(e).
		ReadConstraint(access.Read).
		WriteConstraint(access.Write).
		SyncAndSelect(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, resp.Status, resp)
}

// put is createOrUpdate with the id taken from the URL.
func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entityParam(w, r, "entity")
	if !ok {
		return
	}
	id, err := parseID(e, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload, err := readPayload(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	access := h.access[e.Name]
	resp, err := h.rt.CreateOrUpdate(e).
		ID(id).
		ReadConstraint(access.Read).
		WriteConstraint(access.Write).
		SyncAndSelect(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, resp.Status, resp)
}

// fullSync replaces the whole stored collection with the payload.
func (h *Handler) fullSync(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entityParam(w, r, "entity")
	if !ok {
		return
	}
	payload, err := readPayload(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	access := h.access[e.Name]
	resp, err := h.rt.FullSync(e).
		ReadConstraint(access.Read).
		WriteConstraint(access.Write).
		SyncAndSelect(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, resp.Status, resp)
}

func (h *Handler) listRelated(w http.ResponseWriter, r *http.Request) {
	parent, child, rel, id, ok := h.relatedParams(w, r)
	if !ok {
		return
	}

	resp, err := h.rt.Select(child).
		Constraint(h.access[child.Name].Read).
		Parent(parent, id, rel).
		TransportParams(r.URL.Query()).
		Get(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, resp.Status, resp)
}

func (h *Handler) createRelated(w http.ResponseWriter, r *http.Request) {
	parent, child, rel, id, ok := h.relatedParams(w, r)
	if !ok {
		return
	}
	payload, err := readPayload(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	access := h.access[child.Name]
	resp, err := h.rt.Create(child).
		ReadConstraint(access.Read).
		WriteConstraint(access.Write).
		Parent(parent, id, rel).
		SyncAndSelect(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, resp.Status, resp)
}

func (h *Handler) entityParam(w http.ResponseWriter, r *http.Request, key string) (*entity.Entity, bool) {
	name := chi.URLParam(r, key)
	e, ok := h.rt.Registry().Get(name)
	if !ok {
		h.writeError(w, domain.NewResolution("unknown resource %q", name))
		return nil, false
	}
	return e, true
}

// relatedParams resolves /api/{entity}/{id}/{related}: the related segment
// names the child entity, which must declare a to-one relationship back to
// the parent.
func (h *Handler) relatedParams(w http.ResponseWriter, r *http.Request) (*entity.Entity, *entity.Entity, entity.Relationship, any, bool) {
	parent, ok := h.entityParam(w, r, "entity")
	if !ok {
		return nil, nil, entity.Relationship{}, nil, false
	}

	childName := chi.URLParam(r, "related")
	child, ok := h.rt.Registry().Get(childName)
	if !ok {
		h.writeError(w, domain.NewResolution("unknown resource %q", childName))
		return nil, nil, entity.Relationship{}, nil, false
	}

	var rel entity.Relationship
	found := false
	for _, candidate := range child.Relationships {
		if candidate.Target == parent.Name {
			rel = candidate
			found = true
			break
		}
	}
	if !found {
		h.writeError(w, domain.NewValidation("%s has no relationship to %s", child.Name, parent.Name))
		return nil, nil, entity.Relationship{}, nil, false
	}

	id, err := parseID(parent, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return nil, nil, entity.Relationship{}, nil, false
	}

	return parent, child, rel, id, true
}

func parseID(e *entity.Entity, raw string) (any, error) {
	if e.IDKind == entity.String {
		if raw == "" {
			return nil, domain.NewValidation("empty id")
		}
		return raw, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.NewValidation("invalid id %q", raw)
	}
	return id, nil
}

func readPayload(r *http.Request) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		return nil, domain.NewValidation("reading request body: %v", err)
	}
	return payload, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := domain.StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("operation failed", slog.String("error", err.Error()))
	}
	h.writeJSON(w, status, &domain.SimpleResponse{Success: false, Message: err.Error()})
}
