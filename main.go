package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/c14220110/clinic-queue/config"
	appointmentServices "github.com/c14220110/clinic-queue/internal/appointment/services"
	"github.com/c14220110/clinic-queue/internal/common/middlewares"
	"github.com/c14220110/clinic-queue/internal/common/response"
	"github.com/c14220110/clinic-queue/internal/events"
	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/routes"
	"github.com/c14220110/clinic-queue/internal/store"
	"github.com/c14220110/clinic-queue/pkg/storage/mariadb"
	"github.com/c14220110/clinic-queue/pkg/storage/memory"
	"github.com/c14220110/clinic-queue/ws"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-queue",
		Short: "Clinic reception and queue API",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			if cfg.StoreDriver != "mysql" {
				logger.Info().Str("driver", cfg.StoreDriver).Msg("nothing to migrate")
				return nil
			}
			if err := mariadb.Migrate(cmd.Context(), cfg); err != nil {
				return err
			}
			logger.Info().Msg("schema applied")
			return nil
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open store")
		return err
	}
	defer closeStore()

	// Event sinks
	var sinks []events.Sink
	var hub *ws.Hub
	if cfg.HasSink("ws") {
		hub = ws.NewHub(logger)
		go hub.Run(ctx)
		sinks = append(sinks, hub)
	}
	if cfg.HasSink("kafka") {
		sinks = append(sinks, events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	if cfg.HasSink("sqs") {
		sqsSink, err := events.NewSQSSink(ctx, cfg.SQSQueueURL)
		if err != nil {
			logger.Error().Err(err).Msg("failed to configure sqs sink")
			return err
		}
		sinks = append(sinks, sqsSink)
	}
	bus := events.NewBus(cfg.EventBuffer, logger, sinks...)

	policy, err := appointmentServices.PolicyFor(cfg.AppointmentTransitions)
	if err != nil {
		return err
	}
	secret := []byte(cfg.JWTSecret)
	svc := routes.NewServices(st, bus, routes.Deps{
		Secret:   secret,
		TokenTTL: cfg.JWTTTL,
		Location: cfg.Location(),
		Policy:   policy,
		Logger:   logger,
	})
	bus.Subscribe(events.TypeDashboardRecompute, svc.Dashboard.OnRecompute)
	bus.Start()

	if cfg.StoreDriver == "memory" {
		if err := seedMemory(ctx, st.(*memory.Store), svc, cfg); err != nil {
			return err
		}
		logger.Warn().Msg("using in-memory store; data is lost on exit")
	}

	// Echo server
	debug := !cfg.IsProduction()
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler(debug)

	e.Use(middlewares.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middlewares.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout: cfg.RequestTimeout,
		// the websocket stream outlives any request timeout
		Skipper: func(c echo.Context) bool { return c.Path() == "/ws" },
	}))

	routes.Init(e, st, svc, hub, secret, debug)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Strs("sinks", cfg.EventSinks).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := bus.Close(); err != nil {
		logger.Error().Err(err).Msg("event bus shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		return memory.New(), func() {}, nil
	}
	db, err := mariadb.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("connected to database")
	return mariadb.NewStore(db), func() { db.Close() }, nil
}

// seedMemory gives a fresh in-memory store an admin login and one doctor.
func seedMemory(ctx context.Context, st *memory.Store, svc *routes.Services, cfg *config.Config) error {
	if _, err := svc.Auth.EnsureUser(ctx, "Administrator", "admin", cfg.DevAdminPassword, models.RoleAdmin); err != nil {
		return err
	}
	st.AddStaff(models.MedicalStaff{Name: "General Practitioner", RoomID: 1, Active: true})
	return nil
}
