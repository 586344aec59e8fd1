package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/common/middlewares"
	"github.com/c14220110/clinic-queue/internal/common/response"
	"github.com/c14220110/clinic-queue/internal/reception/services"
)

type ReceptionController struct {
	ReceptionService *services.ReceptionService
	Debug            bool
}

func NewReceptionController(service *services.ReceptionService, debug bool) *ReceptionController {
	return &ReceptionController{ReceptionService: service, Debug: debug}
}

// CompleteReceptionHandler handles POST /api/reception/complete.
func (rc *ReceptionController) CompleteReceptionHandler(c echo.Context) error {
	var in services.CompleteReceptionInput
	if err := c.Bind(&in); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	claims, ok := middlewares.ClaimsFrom(c)
	if !ok {
		return response.Error(c, http.StatusUnauthorized, "Missing or invalid JWT claims")
	}
	in.CreatedBy = claims.IDUser

	result, err := rc.ReceptionService.CompleteReception(c.Request().Context(), in)
	if err != nil {
		return response.Fail(c, err, rc.Debug)
	}
	return response.Created(c, "Reception completed", result)
}
