package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsHeaders = strings.Join([]string{echo.HeaderContentType, echo.HeaderAuthorization}, ", ")
)

// allowAnyOrigin stamps permissive CORS headers on every response, errors
// included. Suitable for demos and local front-ends only.
func allowAnyOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set(echo.HeaderAccessControlAllowOrigin, "*")
		h.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
		h.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
		return next(c)
	}
}

// observe records request counts and latency per route template. It sits
// outside the request logger, which has already rendered any error, so the
// response status is final here.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(route, c.Request().Method, c.Response().Status, time.Since(start))
		return err
	}
}
