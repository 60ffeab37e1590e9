package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"objectgate/internal/authz"
	"objectgate/internal/store"
)

// Handler handles authentication endpoints.
type Handler struct {
	db        *store.Store
	jwtSecret string
}

// NewHandler creates a new auth Handler.
func NewHandler(db *store.Store, jwtSecret string) *Handler {
	return &Handler{db: db, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return authz.InvalidPayloadError("Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return authz.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return authz.UnauthorizedError("Invalid email or password")
	}

	active, _ := user["is_active"].(bool)
	if !active {
		return authz.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return authz.UnauthorizedError("Invalid email or password")
	}

	userID, _ := user["id"].(string)
	email, _ := user["email"].(string)

	pair, err := h.generateTokenPair(ctx, userID, email)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return authz.InvalidPayloadError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return authz.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()

	pb := h.db.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.db.DB, fmt.Sprintf(
		`SELECT rt.id, rt.user_id, rt.expires_at, u.email, u.is_active
		 FROM refresh_tokens rt
		 JOIN users u ON u.id = rt.user_id
		 WHERE rt.token = %s`, pb.Add(body.RefreshToken)), pb.Params()...)
	if err != nil {
		return authz.UnauthorizedError("Invalid refresh token")
	}
	if h.db.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, []string{"is_active"})
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		pb := h.db.Dialect.NewParamBuilder()
		_, _ = store.Exec(ctx, h.db.DB,
			fmt.Sprintf("DELETE FROM refresh_tokens WHERE token = %s", pb.Add(body.RefreshToken)),
			pb.Params()...)
		return authz.UnauthorizedError("Refresh token expired")
	}

	active, _ := row["is_active"].(bool)
	if !active {
		return authz.UnauthorizedError("Account is disabled")
	}

	// Delete the used refresh token (rotation)
	tokenID, _ := row["id"].(string)
	pb = h.db.Dialect.NewParamBuilder()
	_, _ = store.Exec(ctx, h.db.DB,
		fmt.Sprintf("DELETE FROM refresh_tokens WHERE id = %s", pb.Add(tokenID)),
		pb.Params()...)

	userID, _ := row["user_id"].(string)
	email, _ := row["email"].(string)

	pair, err := h.generateTokenPair(ctx, userID, email)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return authz.InvalidPayloadError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return authz.UnauthorizedError("Refresh token is required")
	}

	pb := h.db.Dialect.NewParamBuilder()
	_, _ = store.Exec(c.Context(), h.db.DB,
		fmt.Sprintf("DELETE FROM refresh_tokens WHERE token = %s", pb.Add(body.RefreshToken)),
		pb.Params()...)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/auth/me: the authenticated principal snapshot.
func (h *Handler) Me(c *fiber.Ctx) error {
	p := authz.GetPrincipal(c)
	if !p.Authenticated() {
		return authz.UnauthorizedError("Missing auth token")
	}
	return c.JSON(fiber.Map{"data": p})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
	grp.Get("/me", authMW, h.Me)
}

// --- helpers ---

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	pb := h.db.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.db.DB,
		fmt.Sprintf("SELECT id, email, password_hash, is_active, is_superuser FROM users WHERE email = %s", pb.Add(email)),
		pb.Params()...)
	if err != nil {
		return nil, err
	}
	if h.db.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, []string{"is_active", "is_superuser"})
	}
	return row, nil
}

func (h *Handler) generateTokenPair(ctx context.Context, userID, email string) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(userID, email, h.jwtSecret)
	if err != nil {
		return nil, authz.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	// Stored as RFC3339 text so both backends read it back as a timestamp.
	expiresAt := time.Now().Add(RefreshTokenTTL).UTC().Format(time.RFC3339)

	pb := h.db.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, h.db.DB, fmt.Sprintf(
		"INSERT INTO refresh_tokens (id, user_id, token, expires_at) VALUES (%s, %s, %s, %s)",
		pb.Add(uuid.New().String()), pb.Add(userID), pb.Add(refreshToken), pb.Add(expiresAt)),
		pb.Params()...)
	if err != nil {
		return nil, authz.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
