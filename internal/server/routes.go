package server

import (
	"github.com/ternhq/tern/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Retrieval routes
	apiRoutes.POST("/query", routes.QueryEvidenceHandler)
	apiRoutes.GET("/sections/:id", routes.GetSectionHandler)

	// Model metrics routes
	apiRoutes.GET("/metrics/models", routes.GetModelMetricsHandler)
	apiRoutes.DELETE("/metrics/models", routes.ResetModelMetricsHandler)
}
