package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ternhq/tern/internal/server/middleware"
)

// GetModelMetricsHandler reports token and latency totals accumulated by
// the AI client since start or the last reset.
func GetModelMetricsHandler(c echo.Context) error {
	aiClient := c.(*middleware.AppContext).App.AiClient
	return c.JSON(http.StatusOK, aiClient.GetMetrics())
}

// ResetModelMetricsHandler zeroes the accumulated model metrics.
func ResetModelMetricsHandler(c echo.Context) error {
	aiClient := c.(*middleware.AppContext).App.AiClient
	aiClient.ResetMetrics()
	return c.JSON(http.StatusOK, map[string]string{"message": "Metrics reset"})
}
