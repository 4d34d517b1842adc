package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/mark3labs/mcp-go/server"
)

const shutdownTimeout = 5 * time.Second

// setupHandlers mounts the MCP endpoint and the health check on group.
func setupHandlers(group fiber.Router, mcpHandler http.Handler) {
	group.All("/mcp", adaptor.HTTPHandler(mcpHandler))

	group.Get("/healthz", handlerHealth)
}

func handlerHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func newHTTPApp(srv *server.MCPServer) *fiber.App {
	app := fiber.New(fiber.Config{AppName: serverName})
	setupHandlers(app.Group("/"), server.NewStreamableHTTPServer(srv, server.WithStateLess(true)))
	return app
}

// serveHTTP listens on addr until ctx is cancelled, then shuts down.
func serveHTTP(ctx context.Context, addr string, srv *server.MCPServer, logger *slog.Logger) error {
	app := newHTTPApp(srv)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	logger.Info("http transport ready", slog.String("addr", addr), slog.String("endpoint", "/mcp"))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("http transport shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	return nil
}
