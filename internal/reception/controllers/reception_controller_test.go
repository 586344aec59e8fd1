package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/c14220110/clinic-queue/internal/common/middlewares"
	"github.com/c14220110/clinic-queue/internal/common/response"
	"github.com/c14220110/clinic-queue/internal/events"
	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/reception/services"
	"github.com/c14220110/clinic-queue/pkg/storage/memory"
	"github.com/c14220110/clinic-queue/pkg/utils"
)

var secret = []byte("reception-secret")

func setup(t *testing.T) (*echo.Echo, *memory.Store) {
	t.Helper()
	st := memory.New()
	st.AddStaff(models.MedicalStaff{ID: 1, Name: "Dr. Lan", RoomID: 3, Active: true})
	rc := NewReceptionController(services.NewReceptionService(st, &events.Recorder{}, time.UTC), false)

	e := echo.New()
	e.HTTPErrorHandler = response.ErrorHandler(false)
	e.POST("/api/reception/complete", rc.CompleteReceptionHandler,
		middlewares.JWTMiddleware(secret), middlewares.RequireRole(models.RoleAdmin, models.RoleReceptionist))
	return e, st
}

func post(t *testing.T, e *echo.Echo, role, body string) (*httptest.ResponseRecorder, response.Envelope) {
	t.Helper()
	tok, err := utils.GenerateJWTToken(secret, 2, role, "desk", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/reception/complete", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env response.Envelope
	json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

const walkInBody = `{
	"patient": {"name": "Nguyen Van An", "phone": "0901234567"},
	"appointment": {"staff_id": 1, "room_id": 3, "date": "2025-01-10", "time": "08:00"},
	"reception_type": "walk_in"
}`

func TestCompleteReceptionHandler(t *testing.T) {
	e, st := setup(t)

	rec, env := post(t, e, models.RoleReceptionist, walkInBody)
	if rec.Code != http.StatusCreated || !env.Success {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result services.ReceptionResult
	raw, _ := json.Marshal(env.Data)
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatal(err)
	}
	if result.Queue == nil || result.Queue.QueueNumber != 1 || result.Queue.CreatedBy != 2 {
		t.Errorf("unexpected queue %+v", result.Queue)
	}

	rec, env = post(t, e, models.RoleReceptionist, walkInBody)
	if rec.Code != http.StatusConflict || env.Message != "phone number is already registered" {
		t.Errorf("expected 409 for a duplicate phone, got %d %q", rec.Code, env.Message)
	}
	if n := st.Counts()["queues"]; n != 1 {
		t.Errorf("expected 1 ticket, got %d", n)
	}
}

func TestCompleteReceptionHandler_Errors(t *testing.T) {
	e, _ := setup(t)

	if rec, _ := post(t, e, models.RoleDoctor, walkInBody); rec.Code != http.StatusForbidden {
		t.Errorf("doctors cannot receive patients, got %d", rec.Code)
	}
	if rec, _ := post(t, e, models.RoleReceptionist, `{"patient":`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body should be 400, got %d", rec.Code)
	}
	body := strings.Replace(walkInBody, `"staff_id": 1`, `"staff_id": 9`, 1)
	if rec, env := post(t, e, models.RoleAdmin, body); rec.Code != http.StatusNotFound || env.Message != "medical staff not found" {
		t.Errorf("unknown staff should be 404, got %d %q", rec.Code, env.Message)
	}
}
