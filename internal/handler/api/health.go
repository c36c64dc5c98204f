package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "SignalView/pkg/http"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports liveness plus the state of optional dependencies.
// Dependency failures degrade the report without failing liveness.
type HealthHandler struct {
	source string
	checks map[string]HealthCheck
}

func NewHealthHandler(source string, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{source: source, checks: checks}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}
	return xhttp.DataResponse(c, http.StatusOK, map[string]interface{}{
		"status":       status,
		"source":       h.source,
		"dependencies": deps,
	})
}
