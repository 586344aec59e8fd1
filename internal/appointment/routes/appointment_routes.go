package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/appointment/controllers"
	"github.com/c14220110/clinic-queue/internal/common/middlewares"
	"github.com/c14220110/clinic-queue/internal/models"
)

// RegisterAppointmentRoutes expects api to already require a JWT. Any staff
// role may read; doctors may also move the status.
func RegisterAppointmentRoutes(api *echo.Group, ac *controllers.AppointmentController) {
	clinical := middlewares.RequireRole(models.RoleAdmin, models.RoleReceptionist, models.RoleDoctor)

	appointments := api.Group("/appointments")
	appointments.GET("", ac.ListHandler)
	appointments.GET("/:id", ac.GetHandler)
	appointments.PUT("/:id/status", ac.UpdateStatusHandler, clinical)
}
