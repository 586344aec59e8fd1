package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/common/response"
	"github.com/c14220110/clinic-queue/internal/dashboard/services"
)

type DashboardController struct {
	DashboardService *services.DashboardService
	Debug            bool
}

func NewDashboardController(service *services.DashboardService, debug bool) *DashboardController {
	return &DashboardController{DashboardService: service, Debug: debug}
}

// GetStatsHandler handles GET /api/dashboard/stats?date=&room_id=.
func (dc *DashboardController) GetStatsHandler(c echo.Context) error {
	var roomID int64
	if raw := c.QueryParam("room_id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return response.Error(c, http.StatusBadRequest, "room_id must be a number")
		}
		roomID = n
	}
	stats, err := dc.DashboardService.Stats(c.Request().Context(), c.QueryParam("date"), roomID)
	if err != nil {
		return response.Fail(c, err, dc.Debug)
	}
	return response.OK(c, "Dashboard stats retrieved", stats)
}
