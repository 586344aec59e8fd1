package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/auth/services"
	"github.com/c14220110/clinic-queue/internal/common/response"
)

type AuthController struct {
	AuthService *services.AuthService
	Debug       bool
}

func NewAuthController(service *services.AuthService, debug bool) *AuthController {
	return &AuthController{AuthService: service, Debug: debug}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (ac *AuthController) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid request body")
	}

	res, err := ac.AuthService.Login(c.Request().Context(), req.Username, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		return response.Error(c, http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return response.Fail(c, err, ac.Debug)
	}
	return response.OK(c, "Login successful", res)
}
