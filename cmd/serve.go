package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yarrow-bio/yarrow/config"
	"github.com/yarrow-bio/yarrow/internal/repositories"
	"github.com/yarrow-bio/yarrow/pkg/middleware"
	"github.com/yarrow-bio/yarrow/pkg/query"
	"github.com/yarrow-bio/yarrow/pkg/routes/health"
	"github.com/yarrow-bio/yarrow/pkg/routes/therapy"
	"github.com/yarrow-bio/yarrow/pkg/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the query API server",
	Long:  "Starts the HTTP server exposing therapy search, normalize, and health endpoints.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if cfg.TracingEnabled {
		provider := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(provider)
		tracing.SetTracer(provider.Tracer(cfg.AppName))
		defer func() { _ = provider.Shutdown(context.Background()) }()
	}

	sqlxDB, db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer sqlxDB.Close()

	store := repositories.NewPostgresStore(db, logger)
	service := query.NewService(store, logger)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Server.IdleTimeout = cfg.IdleTimeout

	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.HTTPErrorHandler = middleware.Error(logger)

	checker := health.NewChecker(sqlxDB, version)
	checker.RegisterRoutes(e)

	group := e.Group("/api/v1/therapy")
	therapy.NewHandler(service).Register(group)

	checker.SetReady(true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()
	logger.WithFields(map[string]any{"port": cfg.Port}).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.WithFields(map[string]any{"signal": sig.String()}).Info("Shutting down")
	}

	checker.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}
