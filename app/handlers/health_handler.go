package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/amirphl/wedding-automations/app/dto"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/gofiber/fiber/v3"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler reports liveness of the service and its dependencies
type HealthHandler struct {
	service string
	version string
	checks  map[string]HealthCheck
}

func NewHealthHandler(service, version string, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{service: service, version: version, checks: checks}
}

// Health Check
// @Description Service health including database and cache connectivity
// @Tags Health
// @Produce json
// @Success 200 {object} dto.APIResponse "Service is healthy"
// @Failure 503 {object} dto.APIResponse "A dependency is unavailable"
// @Router /api/v1/health [get]
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	deps := fiber.Map{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			healthy = false
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	data := fiber.Map{
		"status":       "ok",
		"timestamp":    utils.UTCNow().Unix(),
		"version":      h.version,
		"service":      h.service,
		"dependencies": deps,
	}
	if !healthy {
		data["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.APIResponse{
			Success: false,
			Message: "Service is degraded",
			Data:    data,
			Error:   dto.ErrorDetail{Code: "DEPENDENCY_UNAVAILABLE"},
		})
	}

	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data:    data,
	})
}
