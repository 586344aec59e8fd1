package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/common/middlewares"
	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/reception/controllers"
)

// RegisterReceptionRoutes expects api to already require a JWT.
func RegisterReceptionRoutes(api *echo.Group, rc *controllers.ReceptionController) {
	reception := api.Group("/reception", middlewares.RequireRole(models.RoleAdmin, models.RoleReceptionist))
	reception.POST("/complete", rc.CompleteReceptionHandler)
}
