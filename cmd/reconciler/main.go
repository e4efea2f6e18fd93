// Command reconciler is the reconciliation engine's entry point: it wires
// the storage, CFS, bus, and object-store gateways into the task/reconciler
// pipelines and exposes a small admin HTTP surface for health checks and
// manual job triggers, following the teacher's cmd/api/main.go shape
// (echo server, CORS/security/zerolog middleware, graceful shutdown).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/bcgov/sbc-pay-sub002/docs"
	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/bus"
	"github.com/bcgov/sbc-pay-sub002/internal/cfsclient"
	"github.com/bcgov/sbc-pay-sub002/internal/config"
	"github.com/bcgov/sbc-pay-sub002/internal/domain"
	"github.com/bcgov/sbc-pay-sub002/internal/middleware"
	"github.com/bcgov/sbc-pay-sub002/internal/opsfeed"
	"github.com/bcgov/sbc-pay-sub002/internal/orchestrator"
	"github.com/bcgov/sbc-pay-sub002/internal/repository/postgres"
	"github.com/bcgov/sbc-pay-sub002/internal/repository/storage"
	"github.com/bcgov/sbc-pay-sub002/internal/telemetry"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()
	log.Info().Msg("Connected to database")

	cfs := cfsclient.New(cfsclient.Config{
		BaseURL:      cfg.CFS.BaseURL,
		TokenURL:     cfg.CFS.TokenURL,
		ClientID:     cfg.CFS.ClientID,
		ClientSecret: cfg.CFS.ClientSecret,
		Timeout:      cfg.CFS.Timeout,
	})

	objectStore, err := storage.NewS3ObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize object store")
	}

	publisher, fileSub := mustConnectBus(cfg.Bus)
	if closer, ok := publisher.(interface{ Close() }); ok {
		defer closer.Close()
	}

	telemetry.Init("sub002")

	tc := appctx.New(log.Logger, cfg, domain.SystemClock{}, cfs, publisher, objectStore, store)

	feedHub := opsfeed.NewHub()
	orch := orchestrator.New(tc, orchestrator.DefaultJobs()).WithFeed(feedHub)
	orch.Start(ctx)
	defer orch.Stop()

	var fileRouter *orchestrator.FileEventRouter
	if fileSub != nil {
		fileRouter = orchestrator.NewFileEventRouter(tc, fileSub)
		fileRouter.Start(ctx, 10*time.Second)
		defer fileRouter.Stop()
	}

	e := newAdminServer(cfg, tc, orch, feedHub)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting admin HTTP surface")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Admin server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Admin server forced to shutdown")
	}
	log.Info().Msg("Shutdown complete")
}

// mustConnectBus connects the NATS publisher and file-event subscriber. A
// missing NATS URL degrades to bus.Noop so local/dev runs without NATS still
// start, matching the teacher's "optional integration" tolerance for
// non-critical dependencies.
func mustConnectBus(cfg config.BusConfig) (domain.EventPublisher, *bus.NATSFileSubscriber) {
	if cfg.URL == "" {
		log.Warn().Msg("NATS_URL not set, events will be discarded")
		return bus.Noop{}, nil
	}

	publisher, err := bus.NewNATSPublisher(cfg.URL, cfg.Stream, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect NATS publisher")
	}

	subscriber, err := bus.NewNATSFileSubscriber(cfg.URL, cfg.Stream, "sub002-reconciler", log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect NATS file subscriber")
	}

	return publisher, subscriber
}

// newAdminServer builds the echo instance exposing health, metrics, and
// manual-trigger endpoints. Auth0 middleware guards everything under
// /internal/tasks; /health and /metrics stay open for readiness probes and
// scraping.
func newAdminServer(cfg *config.Config, tc *appctx.TaskContext, orch *orchestrator.Orchestrator, feedHub *opsfeed.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))
	e.Use(zerologMiddleware())
	e.Use(echomiddleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/docs/*", echoSwagger.WrapHandler)

	tasks := e.Group("/internal/tasks")
	if cfg.Auth0Domain != "" && cfg.Auth0Audience != "" {
		authMW, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create auth middleware")
		}
		tasks.Use(authMW.Authenticate())
	}

	taskHandler := &taskTriggerHandler{orch: orch}
	tasks.POST("/dispatch", taskHandler.trigger("invoice_dispatch"))
	tasks.POST("/eft-link", taskHandler.trigger("eft_credit_link_apply"))

	streamHandler := opsfeed.NewHandler(feedHub, cfg.CORSOrigins)
	tasks.GET("/stream", streamHandler.HandleStream)

	return e
}

// taskTriggerHandler exposes Orchestrator.RunNow over HTTP for operators who
// need a pipeline re-run before its next scheduled tick (spec §9's
// cron-vs-HTTP split).
type taskTriggerHandler struct {
	orch *orchestrator.Orchestrator
}

func (h *taskTriggerHandler) trigger(jobName string) echo.HandlerFunc {
	return func(c echo.Context) error {
		operatorID := middleware.GetOperatorID(c)
		log.Info().Str("job", jobName).Str("operator_id", operatorID).Msg("manual task trigger")
		if err := h.orch.RunNow(c.Request().Context(), jobName); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "completed", "job": jobName})
	}
}

func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
