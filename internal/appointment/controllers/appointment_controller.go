package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/appointment/services"
	"github.com/c14220110/clinic-queue/internal/common/response"
)

type AppointmentController struct {
	AppointmentService *services.AppointmentService
	Debug              bool
}

func NewAppointmentController(service *services.AppointmentService, debug bool) *AppointmentController {
	return &AppointmentController{AppointmentService: service, Debug: debug}
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatusHandler handles PUT /api/appointments/:id/status.
func (ac *AppointmentController) UpdateStatusHandler(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return response.Error(c, http.StatusBadRequest, "id must be a positive number")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid request body")
	}

	a, err := ac.AppointmentService.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return response.Fail(c, err, ac.Debug)
	}
	return response.OK(c, "Appointment status updated", a)
}

func (ac *AppointmentController) GetHandler(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return response.Error(c, http.StatusBadRequest, "id must be a positive number")
	}
	a, err := ac.AppointmentService.Get(c.Request().Context(), id)
	if err != nil {
		return response.Fail(c, err, ac.Debug)
	}
	return response.OK(c, "Appointment retrieved", a)
}

// ListHandler handles GET /api/appointments?date=&room_id=.
func (ac *AppointmentController) ListHandler(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return response.Error(c, http.StatusBadRequest, "date parameter is required")
	}
	var roomID int64
	if raw := c.QueryParam("room_id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return response.Error(c, http.StatusBadRequest, "room_id must be a number")
		}
		roomID = n
	}

	list, err := ac.AppointmentService.ListByDate(c.Request().Context(), date, roomID)
	if err != nil {
		return response.Fail(c, err, ac.Debug)
	}
	return response.OK(c, "Appointments retrieved", list)
}
