package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/dashboard/controllers"
)

func RegisterDashboardRoutes(api *echo.Group, dc *controllers.DashboardController) {
	api.GET("/dashboard/stats", dc.GetStatsHandler)
}
