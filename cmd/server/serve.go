package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/jo-hoe/goseam/internal/backend"
	"github.com/jo-hoe/goseam/internal/common"
	"github.com/jo-hoe/goseam/internal/core"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the section edit API",
		Example: `  # Start with ./config.yaml
  goseam serve

  # Start with a specific configuration
  goseam serve --config /etc/goseam/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := opts.loadConfig()
			if err != nil {
				return err
			}

			coreService, err := core.NewCoreService(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer func() {
				if err := coreService.Close(); err != nil {
					slog.Error("core service close error", "error", err)
				}
			}()

			server := defineServer()
			backend.NewAPIService(coreService).SetRoutes(server)

			portString := fmt.Sprintf(":%d", config.Port)

			// Start HTTP server in a goroutine to allow graceful shutdown
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("starting server", "addr", portString, "public_url", config.PublicBaseURL)
				if err := server.Start(portString); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				slog.Info("shutdown signal received")
			case err := <-serverErr:
				return fmt.Errorf("http server error: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				slog.Error("server shutdown error", "error", err)
				return err
			}
			return nil
		},
	}
}

func defineServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Configure request logger to skip the health endpoint
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRoutePath: true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"route", v.RoutePath,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"user_agent", v.UserAgent,
			}
			if v.Error != nil {
				slog.Error("request", append(attrs, "error", v.Error)...)
			} else {
				slog.Info("request", attrs...)
			}
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Pre(middleware.RemoveTrailingSlash())

	e.Validator = common.NewGenericEchoValidator()

	return e
}
