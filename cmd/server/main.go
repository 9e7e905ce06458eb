package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"toolflow/internal/adapters"
	"toolflow/internal/api"
	"toolflow/internal/auth"
	"toolflow/internal/config"
	"toolflow/internal/gateway"
	"toolflow/internal/logging"
	"toolflow/internal/mcp"
	"toolflow/internal/tls"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "toolflow",
		Short: "Workflow orchestration gateway",
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "Path to config file")
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	logger := logging.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}
	logger.Info("configuration loaded",
		"environment", cfg.Environment,
		"storage_mode", cfg.Storage.Mode,
		"execution_mode", cfg.Execution.Mode,
	)

	factory := adapters.New(cfg, logger)

	store, err := factory.Store(ctx)
	if err != nil {
		logger.Error("failed to initialize persistence adapter", "error", err)
		return err
	}
	executor, err := factory.Executor(ctx)
	if err != nil {
		logger.Error("failed to initialize execution adapter", "error", err)
		return err
	}

	gw := gateway.New(store, executor, logger)
	logger.Info("gateway initialized")

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("toolflow"))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	authz, err := auth.New(ctx, cfg, store, logger)
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		return err
	}

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	server := api.NewServer(gw, factory, logger)

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	server.RegisterRoutes(apiGroup)
	e.GET("/healthz", server.HandleHealth)

	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(gw, "")
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	addr := cfg.Server.Addr
	httpServer := &http.Server{
		Addr:    addr,
		Handler: e,
		// No global write timeout: step calls may run for minutes and
		// the MCP SSE endpoint holds its connection open.
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) && len(cfg.TLS.Hostnames) > 0 {
				if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
					logger.Error("failed to generate self-signed cert", "error", err)
				}
			}
			serverErrors <- httpServer.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- httpServer.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
			if err := httpServer.Close(); err != nil {
				logger.Error("server close error", "error", err)
			}
		}

		logger.Info("server stopped gracefully")
	}
	return nil
}
