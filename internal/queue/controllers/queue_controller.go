package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/common/middlewares"
	"github.com/c14220110/clinic-queue/internal/common/response"
	"github.com/c14220110/clinic-queue/internal/queue/services"
)

type QueueController struct {
	QueueService *services.QueueService
	Debug        bool
}

func NewQueueController(service *services.QueueService, debug bool) *QueueController {
	return &QueueController{QueueService: service, Debug: debug}
}

func pathID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// queryRoom parses room_id; a missing value is returned as 0.
func queryRoom(c echo.Context, name string) (int64, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

// IssueHandler handles POST /api/queue.
func (qc *QueueController) IssueHandler(c echo.Context) error {
	var in services.IssueInput
	if err := c.Bind(&in); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	if claims, ok := middlewares.ClaimsFrom(c); ok {
		in.CreatedBy = claims.IDUser
	}

	ticket, err := qc.QueueService.Issue(c.Request().Context(), in)
	if err != nil {
		return response.Fail(c, err, qc.Debug)
	}
	return response.Created(c, "Queue ticket issued", ticket)
}

// ListHandler handles GET /api/queue?room_id=&date=.
func (qc *QueueController) ListHandler(c echo.Context) error {
	roomID, ok := queryRoom(c, "room_id")
	if !ok {
		return response.Error(c, http.StatusBadRequest, "room_id must be a positive number")
	}
	group, err := qc.QueueService.ListGroup(c.Request().Context(), roomID, c.QueryParam("date"))
	if err != nil {
		return response.Fail(c, err, qc.Debug)
	}
	return response.OK(c, "Queue retrieved", group)
}

func (qc *QueueController) GetHandler(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return response.Error(c, http.StatusBadRequest, "id must be a positive number")
	}
	ticket, err := qc.QueueService.Get(c.Request().Context(), id)
	if err != nil {
		return response.Fail(c, err, qc.Debug)
	}
	return response.OK(c, "Queue ticket retrieved", ticket)
}

func (qc *QueueController) PrioritizeHandler(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return response.Error(c, http.StatusBadRequest, "id must be a positive number")
	}
	group, err := qc.QueueService.Prioritize(c.Request().Context(), id)
	if err != nil {
		return response.Fail(c, err, qc.Debug)
	}
	return response.OK(c, "Queue ticket moved to the front", group)
}

type callNextRequest struct {
	RoomID int64  `json:"room_id"`
	Date   string `json:"date"`
}

func (qc *QueueController) CallNextHandler(c echo.Context) error {
	var req callNextRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "Invalid request body")
	}
	ticket, err := qc.QueueService.CallNext(c.Request().Context(), req.RoomID, req.Date)
	if err != nil {
		return response.Fail(c, err, qc.Debug)
	}
	return response.OK(c, "Next patient called", ticket)
}

func (qc *QueueController) DeleteHandler(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return response.Error(c, http.StatusBadRequest, "id must be a positive number")
	}
	if err := qc.QueueService.Delete(c.Request().Context(), id); err != nil {
		return response.Fail(c, err, qc.Debug)
	}
	return response.OK(c, "Queue ticket deleted", nil)
}
