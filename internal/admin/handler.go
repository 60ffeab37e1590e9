package admin

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"objectgate/internal/authz"
	"objectgate/internal/grant"
	"objectgate/internal/metadata"
	"objectgate/internal/store"
)

// Handler exposes the administrative surface: grants, groups and their
// members, user activation, and the registered resource types. Routes are
// superuser-only; the decision engine itself never writes through here.
type Handler struct {
	db     *store.Store
	reg    *metadata.Registry
	grants *grant.Store
}

func NewHandler(db *store.Store, reg *metadata.Registry, grants *grant.Store) *Handler {
	return &Handler{db: db, reg: reg, grants: grants}
}

// --- grants ---

// ListGrants handles GET /api/admin/grants.
func (h *Handler) ListGrants(c *fiber.Ctx) error {
	grants, err := h.grants.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": grants})
}

// GetGrant handles GET /api/admin/grants/:id.
func (h *Handler) GetGrant(c *fiber.Ctx) error {
	g, err := h.grants.Get(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return authz.NotFoundError("grant", c.Params("id"))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": g})
}

// CreateGrant handles POST /api/admin/grants.
func (h *Handler) CreateGrant(c *fiber.Ctx) error {
	g, err := h.parseGrant(c)
	if err != nil {
		return err
	}
	if err := h.grants.Create(c.Context(), g); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return authz.NewAppError("DUPLICATE", 409, "Grant conflicts with an existing row")
		}
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": g})
}

// UpdateGrant handles PUT /api/admin/grants/:id.
func (h *Handler) UpdateGrant(c *fiber.Ctx) error {
	g, err := h.parseGrant(c)
	if err != nil {
		return err
	}
	g.ID = c.Params("id")
	if err := h.grants.Update(c.Context(), g); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authz.NotFoundError("grant", g.ID)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": g})
}

// DeleteGrant handles DELETE /api/admin/grants/:id.
func (h *Handler) DeleteGrant(c *fiber.Ctx) error {
	if err := h.grants.Delete(c.Context(), c.Params("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authz.NotFoundError("grant", c.Params("id"))
		}
		return err
	}
	return c.SendStatus(204)
}

func (h *Handler) parseGrant(c *fiber.Ctx) (*grant.Grant, error) {
	var g grant.Grant
	if err := c.BodyParser(&g); err != nil {
		return nil, authz.InvalidPayloadError("Invalid request body")
	}
	if g.Name == "" {
		return nil, authz.InvalidPayloadError("name is required")
	}
	if len(g.Actions) == 0 {
		return nil, authz.InvalidPayloadError("actions must not be empty")
	}
	for _, label := range g.ObjectTypes {
		if h.reg.GetByLabel(label) == nil {
			return nil, authz.NewAppError("UNKNOWN_RESOURCE_TYPE", 400, "Unknown resource type: "+label)
		}
	}
	return &g, nil
}

// --- groups ---

// ListGroups handles GET /api/admin/groups.
func (h *Handler) ListGroups(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.db.DB,
		"SELECT id, name, created_at FROM user_groups ORDER BY name")
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// CreateGroup handles POST /api/admin/groups.
func (h *Handler) CreateGroup(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return authz.InvalidPayloadError("name is required")
	}

	id := uuid.New().String()
	pb := h.db.Dialect.NewParamBuilder()
	_, err := store.Exec(c.Context(), h.db.DB,
		fmt.Sprintf("INSERT INTO user_groups (id, name) VALUES (%s, %s)", pb.Add(id), pb.Add(body.Name)),
		pb.Params()...)
	if err != nil {
		if errors.Is(store.MapError(h.db.Dialect, err), store.ErrUniqueViolation) {
			return authz.NewAppError("DUPLICATE", 409, "Group name already exists")
		}
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{"id": id, "name": body.Name}})
}

// AddGroupMember handles POST /api/admin/groups/:id/members.
func (h *Handler) AddGroupMember(c *fiber.Ctx) error {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.UserID == "" {
		return authz.InvalidPayloadError("user_id is required")
	}

	pb := h.db.Dialect.NewParamBuilder()
	_, err := store.Exec(c.Context(), h.db.DB,
		fmt.Sprintf("INSERT INTO group_members (group_id, user_id) VALUES (%s, %s)",
			pb.Add(c.Params("id")), pb.Add(body.UserID)),
		pb.Params()...)
	if err != nil {
		if errors.Is(store.MapError(h.db.Dialect, err), store.ErrUniqueViolation) {
			return c.SendStatus(204) // already a member
		}
		return err
	}
	return c.SendStatus(204)
}

// RemoveGroupMember handles DELETE /api/admin/groups/:id/members/:userID.
func (h *Handler) RemoveGroupMember(c *fiber.Ctx) error {
	pb := h.db.Dialect.NewParamBuilder()
	_, err := store.Exec(c.Context(), h.db.DB,
		fmt.Sprintf("DELETE FROM group_members WHERE group_id = %s AND user_id = %s",
			pb.Add(c.Params("id")), pb.Add(c.Params("userID"))),
		pb.Params()...)
	if err != nil {
		return err
	}
	return c.SendStatus(204)
}

// --- users ---

// ListUsers handles GET /api/admin/users.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.db.DB,
		"SELECT id, email, is_active, is_superuser, created_at FROM users ORDER BY email")
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	if h.db.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, []string{"is_active", "is_superuser"})
	}
	return c.JSON(fiber.Map{"data": rows})
}

// SetUserActive handles PATCH /api/admin/users/:id/active.
func (h *Handler) SetUserActive(c *fiber.Ctx) error {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := c.BodyParser(&body); err != nil || body.Active == nil {
		return authz.InvalidPayloadError("active is required")
	}

	d := h.db.Dialect
	pb := d.NewParamBuilder()
	n, err := store.Exec(c.Context(), h.db.DB,
		fmt.Sprintf("UPDATE users SET is_active = %s, updated_at = %s WHERE id = %s",
			pb.Add(*body.Active), d.NowExpr(), pb.Add(c.Params("id"))),
		pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return authz.NotFoundError("user", c.Params("id"))
	}
	return c.SendStatus(204)
}

// ListResourceTypes handles GET /api/admin/resource-types.
func (h *Handler) ListResourceTypes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.reg.All()})
}

// RegisterRoutes registers admin routes; middlewares should include auth and
// a superuser check.
func RegisterRoutes(app *fiber.App, h *Handler, middlewares ...fiber.Handler) {
	grp := app.Group("/api/admin")
	for _, mw := range middlewares {
		grp.Use(mw)
	}
	grp.Get("/grants", h.ListGrants)
	grp.Post("/grants", h.CreateGrant)
	grp.Get("/grants/:id", h.GetGrant)
	grp.Put("/grants/:id", h.UpdateGrant)
	grp.Delete("/grants/:id", h.DeleteGrant)

	grp.Get("/groups", h.ListGroups)
	grp.Post("/groups", h.CreateGroup)
	grp.Post("/groups/:id/members", h.AddGroupMember)
	grp.Delete("/groups/:id/members/:userID", h.RemoveGroupMember)

	grp.Get("/users", h.ListUsers)
	grp.Patch("/users/:id/active", h.SetUserActive)

	grp.Get("/resource-types", h.ListResourceTypes)
}
