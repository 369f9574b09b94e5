package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"registry-backend/internal/apperror"
	"registry-backend/internal/audit"
	"registry-backend/internal/auth"
	"registry-backend/internal/branch"
	"registry-backend/internal/config"
	"registry-backend/internal/database"
	"registry-backend/internal/metrics"
	"registry-backend/internal/township"
	"registry-backend/internal/user"
)

const healthTimeout = 2 * time.Second

type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger
}

// New builds the HTTP application with every route wired.
func New(d Deps) *fiber.App {
	cfg := d.Config

	creds := auth.NewService(d.DB, auth.NewHasher(cfg.BcryptCost), auth.NewTokens(cfg.TokenSecret, cfg.TokenTTL), d.Logger)
	authz := auth.NewAuthorizer(creds, nil)
	townships := township.NewService(d.DB, d.Logger)
	branches := branch.NewService(d.DB, d.Logger)
	users := user.NewService(d.DB, creds, cfg.TempPasswordLength, d.Logger)

	app := fiber.New(fiber.Config{
		AppName:      "registry-backend",
		ErrorHandler: apperror.ErrorHandler(d.Logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins(),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))
	app.Use(requestLogger(d.Logger))

	if cfg.MetricsEnabled {
		m := metrics.New()
		app.Use(m.Middleware())
		app.Get("/metrics", m.Handler())
	}

	app.Get("/health", healthHandler(d.DB))

	// Public
	app.Post("/users/login", auth.LoginHandler(creds))

	// Session
	app.Get("/me", auth.Require(authz, auth.PermSession), auth.MeHandler(d.DB))
	app.Post("/users/logout", auth.Require(authz, auth.PermSession), auth.LogoutHandler(creds))

	// Users
	app.Get("/users", auth.Require(authz, auth.PermUsersRead), user.ListHandler(users))
	app.Post("/users", auth.Require(authz, auth.PermUsersWrite), user.CreateHandler(users))
	app.Get("/users/:id", auth.Require(authz, auth.PermUsersRead), user.GetHandler(users))
	app.Put("/users/:id", auth.Require(authz, auth.PermUsersWrite), user.UpdateHandler(users))
	app.Delete("/users/:id", auth.Require(authz, auth.PermUsersWrite), user.DeleteHandler(users))
	app.Post("/users/:id/change-password", auth.Require(authz, auth.PermChangePassword), user.ChangePasswordHandler(users))
	app.Post("/users/:id/reset-password", auth.Require(authz, auth.PermResetPassword), user.ResetPasswordHandler(users))

	// Branches
	app.Get("/branches", auth.Require(authz, auth.PermBranchesRead), branch.ListHandler(branches))
	app.Post("/branches", auth.Require(authz, auth.PermBranchesWrite), branch.CreateHandler(branches))
	app.Get("/branches/:id", auth.Require(authz, auth.PermBranchesRead), branch.GetHandler(branches))
	app.Put("/branches/:id", auth.Require(authz, auth.PermBranchesWrite), branch.UpdateHandler(branches))
	app.Delete("/branches/:id", auth.Require(authz, auth.PermBranchesWrite), branch.DeleteHandler(branches))

	// Townships
	app.Get("/townships", auth.Require(authz, auth.PermTownshipsRead), township.ListHandler(townships))
	app.Post("/townships", auth.Require(authz, auth.PermTownshipsWrite), township.CreateHandler(townships))
	app.Get("/townships/:id", auth.Require(authz, auth.PermTownshipsRead), township.GetHandler(townships))
	app.Put("/townships/:id", auth.Require(authz, auth.PermTownshipsWrite), township.UpdateHandler(townships))
	app.Delete("/townships/:id", auth.Require(authz, auth.PermTownshipsWrite), township.DeleteHandler(townships))

	// Audit trail
	app.Get("/audit-logs", auth.Require(authz, auth.PermAuditRead), audit.ListAuditLogsHandler(d.DB))

	return app
}

func healthHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		defer cancel()
		if err := database.Ping(ctx, db); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = apperror.Status(err)
		}
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		}
		if p := auth.CurrentPrincipal(c); p != nil {
			fields = append(fields, zap.Uint("user_id", p.UserID))
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
		return err
	}
}
