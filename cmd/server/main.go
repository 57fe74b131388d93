package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smartcare-health/smartcare-hms/internal/api"
	"github.com/smartcare-health/smartcare-hms/internal/auth"
	"github.com/smartcare-health/smartcare-hms/internal/config"
	"github.com/smartcare-health/smartcare-hms/internal/crypto"
	"github.com/smartcare-health/smartcare-hms/internal/domain/patients"
	"github.com/smartcare-health/smartcare-hms/internal/monitoring"
	"github.com/smartcare-health/smartcare-hms/internal/provisioner"
	"github.com/smartcare-health/smartcare-hms/internal/resolver"
	"github.com/smartcare-health/smartcare-hms/internal/service"
	"github.com/smartcare-health/smartcare-hms/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smartcare",
		Short: "SmartCare HMS multi-tenant core",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// setupLogger configures the global zerolog logger.
func setupLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	log.Logger = logger
	return logger
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupLogger(cfg)

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return err
	}
	fieldCipher, err := crypto.New(key)
	if err != nil {
		return err
	}

	monitoring.InitMetrics()

	ctx := context.Background()
	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to registry database")

	var rdb store.RedisClient
	if client, err := store.NewRedis(cfg.RedisURL); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, tenant cache disabled")
	} else {
		rdb = client
		defer client.Close()
	}

	repo := store.NewTenantRepository(pool, rdb, fieldCipher)
	prov := provisioner.New(pool, repo, cfg.TenantMigrationsDir)

	provisioning := service.NewProvisioningService(prov)
	provisioning.Start()
	defer provisioning.Stop()

	tenantSvc := service.NewTenantService(repo, provisioning)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", resolver.TenantHeader},
	}))

	e.Use(auth.Middleware(auth.Config{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}))

	res := resolver.New(repo, cfg.PublicPathPrefixes, cfg.FallbackTenantCode)
	sessions := resolver.NewPoolSessionFactory(pool)
	e.Use(resolver.Middleware(res, sessions, logger))

	// Health and public directory live under public path prefixes.
	api.NewHealthHandler(pool).RegisterRoutes(e)

	tenantHandler := api.NewTenantHandler(tenantSvc)
	public := e.Group("/api/v1")
	tenantHandler.RegisterPublicRoutes(public)

	admin := e.Group("/api/v1/admin", auth.RequireRole("admin"))
	tenantHandler.RegisterAdminRoutes(admin)

	// Tenant-scoped clinical routes require a live subscription.
	clinical := e.Group("/api/v1", resolver.RequireActiveTenant())
	patientHandler := patients.NewHandler(patients.NewService(patients.NewRepoPG()))
	patientHandler.RegisterRoutes(clinical)

	// Metrics and probes on a side listener, kept off the tenant-resolved
	// surface.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server listening")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown failed")
	}
	return nil
}

// requestLogger emits one structured line per request.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			evt := logger.Info()
			if c.Response().Status >= 500 {
				evt = logger.Error()
			}
			tenantCode, _ := c.Get("tenant_code").(string)
			evt.
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Str("tenant", tenantCode).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("request")
			return nil
		}
	}
}
