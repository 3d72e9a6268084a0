package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CORS mirrors the headers the browser surface was built against. Preflights
// are answered with 200 and an empty body, not echo's default 204, because
// that is the contract existing clients check for.
func CORS(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Response().Header()
		header.Set(echo.HeaderAccessControlAllowOrigin, "*")
		header.Set(echo.HeaderAccessControlAllowMethods, "POST, OPTIONS")
		header.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type")

		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusOK)
		}
		return next(c)
	}
}
