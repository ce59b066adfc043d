package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/Bizinso/BizSocials-sub013/internal/database"
	"github.com/Bizinso/BizSocials-sub013/internal/rabbitmq"
)

type HealthHandler struct {
	checkDatabase func(ctx context.Context) error
	queueHealthy  func() bool
}

func NewHealthHandler(db *gorm.DB, conn *rabbitmq.Connection) *HealthHandler {
	return &HealthHandler{
		checkDatabase: func(ctx context.Context) error {
			return database.HealthCheck(ctx, db)
		},
		queueHealthy: conn.IsHealthy,
	}
}

// Check handles GET /health. Degraded dependencies answer 503 so load
// balancers stop routing here.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{
		"database": "up",
		"rabbitmq": "up",
	}
	healthy := true

	if err := h.checkDatabase(ctx); err != nil {
		checks["database"] = "down"
		healthy = false
	}
	if !h.queueHealthy() {
		checks["rabbitmq"] = "down"
		healthy = false
	}

	status := fiber.StatusOK
	body := fiber.Map{"status": "ok", "checks": checks}
	if !healthy {
		status = fiber.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	return c.Status(status).JSON(body)
}
