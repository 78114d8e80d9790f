package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/status-engine/internal/broker"
	"github.com/spec-kit/status-engine/internal/statuscache"
)

// AuthorityPinger probes the remote status authority.
type AuthorityPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	supervisor  *broker.Supervisor
	authority   AuthorityPinger
	cache       *statuscache.Cache
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, supervisor *broker.Supervisor, authority AuthorityPinger, cache *statuscache.Cache) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		supervisor:  supervisor,
		authority:   authority,
		cache:       cache,
	}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports readiness by checking dependencies. A down broker or
// authority degrades functionality but the engine keeps serving, so both are
// reported without failing the probe hard unless everything is gone.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{
		"cachedTickets": h.cache.Len(),
	}

	brokerOK := h.supervisor.IsConnected()
	if brokerOK {
		depStatus["broker"] = "ok"
	} else {
		depStatus["broker"] = h.supervisor.State().String()
	}

	authorityOK := true
	if err := h.authority.Ping(ctx); err != nil {
		depStatus["authority"] = err.Error()
		authorityOK = false
	} else {
		depStatus["authority"] = "ok"
	}

	if brokerOK || authorityOK {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"degraded":     !(brokerOK && authorityOK),
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "broker and status authority unavailable",
			"details": depStatus,
		},
	})
}
