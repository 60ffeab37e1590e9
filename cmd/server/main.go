package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"objectgate/internal/admin"
	"objectgate/internal/auth"
	"objectgate/internal/authz"
	"objectgate/internal/config"
	"objectgate/internal/grant"
	"objectgate/internal/metadata"
	"objectgate/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)
	log.Info().
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Str("database", cfg.Database.Name).
		Msg("Config loaded")

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap system tables")
	}
	log.Info().Msg("System tables ready")

	// 4. Register resource types
	reg := metadata.NewRegistry()
	reg.LoadFromConfig(cfg.Resources)
	log.Info().Int("resource_types", len(reg.All())).Msg("Resource registry loaded")

	grants := grant.NewStore(db)

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(log),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 6. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Auth routes (login/refresh need no token)
	authMW := auth.Middleware(db, cfg.JWTSecret)
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler, authMW)

	// 8. Admin routes (auth + superuser required)
	adminHandler := admin.NewHandler(db, reg, grants)
	admin.RegisterRoutes(app, adminHandler, authMW, auth.RequireSuperuser())

	// 9. Authorization routes (auth required)
	authzHandler := authz.NewHandler(db, reg, grants)
	authz.RegisterRoutes(app, authzHandler, authMW)

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("Starting server")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = zerolog.New(os.Stderr)
	if cfg.Format == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return out.Level(level).With().Timestamp().Logger()
}

func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		var appErr *authz.AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(authz.ErrorResponse{Error: appErr})
		}

		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		return c.Status(code).JSON(authz.ErrorResponse{
			Error: &authz.AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"},
		})
	}
}
