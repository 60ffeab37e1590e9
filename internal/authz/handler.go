package authz

import (
	"github.com/gofiber/fiber/v2"

	"objectgate/internal/grant"
	"objectgate/internal/metadata"
	"objectgate/internal/store"
)

// Handler exposes the engine's three public operations plus the resolved
// permission map over HTTP.
type Handler struct {
	db         *store.Store
	reg        *metadata.Registry
	resolver   *Resolver
	engine     *Engine
	restrictor *Restrictor
	mutator    *Mutator
}

func NewHandler(db *store.Store, reg *metadata.Registry, grants *grant.Store) *Handler {
	resolver := NewResolver(grants)
	restrictor := NewRestrictor(db, resolver)
	return &Handler{
		db:         db,
		reg:        reg,
		resolver:   resolver,
		engine:     NewEngine(db, reg, resolver),
		restrictor: restrictor,
		mutator:    NewMutator(db, restrictor),
	}
}

// Engine returns the decision engine, for callers embedding the handler's
// wiring.
func (h *Handler) Engine() *Engine { return h.engine }

// Restrictor returns the collection restrictor.
func (h *Handler) Restrictor() *Restrictor { return h.restrictor }

// Mutator returns the safe mutator.
func (h *Handler) Mutator() *Mutator { return h.mutator }

// Resolver returns the permission resolver.
func (h *Handler) Resolver() *Resolver { return h.resolver }

// Check handles POST /api/authz/check.
func (h *Handler) Check(c *fiber.Ctx) error {
	var body struct {
		Permission string `json:"permission"`
		ObjectID   string `json:"object_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid request body")
	}
	if body.Permission == "" {
		return InvalidPayloadError("permission is required")
	}

	p := GetPrincipal(c)
	allowed, err := h.engine.AuthorizeID(c.Context(), p, body.Permission, body.ObjectID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"permission": body.Permission,
		"object_id":  body.ObjectID,
		"allowed":    allowed,
	}})
}

// Permissions handles GET /api/authz/permissions: the principal's full
// effective permission map, for UI affordance decisions.
func (h *Handler) Permissions(c *fiber.Ctx) error {
	p := GetPrincipal(c)
	perms, err := h.resolver.ResolveAll(c.Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": perms})
}

// ListRestricted handles GET /api/r/:type. The action defaults to "view" and
// can be overridden with ?action=.
func (h *Handler) ListRestricted(c *fiber.Ctx) error {
	rt, err := h.resolveType(c)
	if err != nil {
		return err
	}
	action := c.Query("action", "view")

	p := GetPrincipal(c)
	rows, err := h.restrictor.List(c.Context(), p, rt, action)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows, "meta": fiber.Map{"total": len(rows)}})
}

// ModifyRestricted handles PATCH /api/r/:type/:id via the safe-mutation
// protocol.
func (h *Handler) ModifyRestricted(c *fiber.Ctx) error {
	rt, err := h.resolveType(c)
	if err != nil {
		return err
	}

	var updates map[string]any
	if err := c.BodyParser(&updates); err != nil {
		return InvalidPayloadError("Invalid request body")
	}

	p := GetPrincipal(c)
	row, err := h.mutator.ModifySafely(c.Context(), p, rt, c.Params("id"), updates)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

func (h *Handler) resolveType(c *fiber.Ctx) (*metadata.ResourceType, error) {
	label := c.Params("type")
	rt := h.reg.GetByLabel(label)
	if rt == nil {
		return nil, NewAppError("UNKNOWN_RESOURCE_TYPE", 404, "Unknown resource type: "+label)
	}
	return rt, nil
}

// RegisterRoutes registers the authz routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	api := app.Group("/api", authMW)
	api.Post("/authz/check", h.Check)
	api.Get("/authz/permissions", h.Permissions)
	api.Get("/r/:type", h.ListRestricted)
	api.Patch("/r/:type/:id", h.ModifyRestricted)
}

// GetPrincipal extracts the Principal snapshot set by the auth middleware,
// falling back to the anonymous sentinel.
func GetPrincipal(c *fiber.Ctx) *metadata.Principal {
	p, _ := c.Locals("principal").(*metadata.Principal)
	if p == nil {
		return metadata.AnonymousPrincipal()
	}
	return p
}
