package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/common/middlewares"
	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/queue/controllers"
)

// RegisterQueueRoutes expects api to already require a JWT.
func RegisterQueueRoutes(api *echo.Group, qc *controllers.QueueController) {
	front := middlewares.RequireRole(models.RoleAdmin, models.RoleReceptionist)
	clinical := middlewares.RequireRole(models.RoleAdmin, models.RoleReceptionist, models.RoleDoctor)

	queue := api.Group("/queue")
	queue.POST("", qc.IssueHandler, front)
	queue.GET("", qc.ListHandler)
	queue.POST("/call-next", qc.CallNextHandler, clinical)
	queue.GET("/:id", qc.GetHandler)
	queue.POST("/:id/prioritize", qc.PrioritizeHandler, front)
	queue.DELETE("/:id", qc.DeleteHandler, front)
}
