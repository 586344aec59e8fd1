package routes

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	appointmentControllers "github.com/c14220110/clinic-queue/internal/appointment/controllers"
	appointmentRoutes "github.com/c14220110/clinic-queue/internal/appointment/routes"
	appointmentServices "github.com/c14220110/clinic-queue/internal/appointment/services"
	authControllers "github.com/c14220110/clinic-queue/internal/auth/controllers"
	authRoutes "github.com/c14220110/clinic-queue/internal/auth/routes"
	authServices "github.com/c14220110/clinic-queue/internal/auth/services"
	"github.com/c14220110/clinic-queue/internal/common/middlewares"
	"github.com/c14220110/clinic-queue/internal/common/response"
	dashboardControllers "github.com/c14220110/clinic-queue/internal/dashboard/controllers"
	dashboardRoutes "github.com/c14220110/clinic-queue/internal/dashboard/routes"
	dashboardServices "github.com/c14220110/clinic-queue/internal/dashboard/services"
	"github.com/c14220110/clinic-queue/internal/events"
	queueControllers "github.com/c14220110/clinic-queue/internal/queue/controllers"
	queueRoutes "github.com/c14220110/clinic-queue/internal/queue/routes"
	queueServices "github.com/c14220110/clinic-queue/internal/queue/services"
	receptionControllers "github.com/c14220110/clinic-queue/internal/reception/controllers"
	receptionRoutes "github.com/c14220110/clinic-queue/internal/reception/routes"
	receptionServices "github.com/c14220110/clinic-queue/internal/reception/services"
	"github.com/c14220110/clinic-queue/internal/store"
	"github.com/c14220110/clinic-queue/ws"
)

type Deps struct {
	Secret   []byte
	TokenTTL time.Duration
	Location *time.Location
	Policy   appointmentServices.TransitionPolicy
	Logger   zerolog.Logger
}

// Services groups what the HTTP layer needs. main builds it once.
type Services struct {
	Auth        *authServices.AuthService
	Reception   *receptionServices.ReceptionService
	Appointment *appointmentServices.AppointmentService
	Queue       *queueServices.QueueService
	Dashboard   *dashboardServices.DashboardService
}

// NewServices builds every service on top of one store and event publisher.
func NewServices(st store.Store, pub events.Publisher, deps Deps) *Services {
	dashboard := dashboardServices.NewDashboardService(st, pub, deps.Location, deps.Logger)
	return &Services{
		Auth:        authServices.NewAuthService(st, deps.Secret, deps.TokenTTL),
		Reception:   receptionServices.NewReceptionService(st, pub, deps.Location),
		Appointment: appointmentServices.NewAppointmentService(st, pub, deps.Policy),
		Queue:       queueServices.NewQueueService(st, pub, deps.Location),
		Dashboard:   dashboard,
	}
}

// Init builds the controllers and lets every area register its routes.
func Init(e *echo.Echo, st store.Store, svc *Services, hub *ws.Hub, secret []byte, debug bool) {
	authController := authControllers.NewAuthController(svc.Auth, debug)
	receptionController := receptionControllers.NewReceptionController(svc.Reception, debug)
	appointmentController := appointmentControllers.NewAppointmentController(svc.Appointment, debug)
	queueController := queueControllers.NewQueueController(svc.Queue, debug)
	dashboardController := dashboardControllers.NewDashboardController(svc.Dashboard, debug)

	e.GET("/healthz", func(c echo.Context) error {
		if err := st.Ping(c.Request().Context()); err != nil {
			return response.Error(c, http.StatusServiceUnavailable, "database unavailable")
		}
		return response.OK(c, "ok", nil)
	})
	if hub != nil {
		e.GET("/ws", ws.ServeWS(hub))
	}

	api := e.Group("/api")
	authRoutes.RegisterAuthRoutes(api, authController) // no JWT

	secured := api.Group("", middlewares.JWTMiddleware(secret))
	receptionRoutes.RegisterReceptionRoutes(secured, receptionController)
	appointmentRoutes.RegisterAppointmentRoutes(secured, appointmentController)
	queueRoutes.RegisterQueueRoutes(secured, queueController)
	dashboardRoutes.RegisterDashboardRoutes(secured, dashboardController)
}
