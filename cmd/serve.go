package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"supabasemcp/records"
)

const serverName = "supabase-mcp"

const serverInstructions = `Tools for reading and writing the tables of a Supabase database.
Every tool answers with {success, table, data, count} or {success, table, error}.
update_records and delete_records require non-empty filters and touch matching rows one by one.`

var (
	transport    string
	httpAddr     string
	migrateOnRun bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tools (default command)",
	Long: `Serve the record tools to MCP clients.

The stdio transport speaks JSON-RPC on stdin and stdout and is what desktop
MCP clients launch. The http transport serves the streamable HTTP protocol at
/mcp with a health check at /healthz.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&transport, "transport", "stdio", "transport: stdio or http")
	cmd.Flags().StringVar(&httpAddr, "addr", ":8080", "listen address for the http transport")
	cmd.Flags().BoolVar(&migrateOnRun, "migrate", false, "install the catalog functions before serving (postgres backend)")
}

func newMCPServer(service *records.Service) *server.MCPServer {
	srv := server.NewMCPServer(serverName, Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)
	service.RegisterTools(srv)
	return srv
}

func runServe(cmd *cobra.Command, _ []string) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, migrateOnRun)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting server",
		slog.String("version", Version),
		slog.String("transport", transport),
		slog.String("backend", string(a.cfg.Backend)),
	)

	srv := newMCPServer(a.service)

	if transport == "http" {
		err = serveHTTP(ctx, httpAddr, srv, a.logger)
	} else {
		err = serveStdio(ctx, srv, a.logger)
	}
	if err != nil {
		a.logger.Error("server stopped", slog.String("error", err.Error()))
		return err
	}

	a.logger.Info("server stopped")
	return nil
}

// serveStdio blocks until stdin closes or ctx is cancelled. Logs never go to
// stdout.
func serveStdio(ctx context.Context, srv *server.MCPServer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(srv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Info("stdio transport ready")

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("stdio transport failed: %w", err)
}
