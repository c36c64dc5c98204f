package http

import (
	"github.com/labstack/echo/v4"
)

// ClientKey identifies the caller for per-client limits.
func ClientKey(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return c.Request().RemoteAddr
}

// NoStore marks a response as uncacheable by intermediaries.
func NoStore(c echo.Context) {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
}
