package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/auth/controllers"
)

// RegisterAuthRoutes mounts login on the public api group.
func RegisterAuthRoutes(api *echo.Group, ac *controllers.AuthController) {
	api.POST("/auth/login", ac.Login)
}
