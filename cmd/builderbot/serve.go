package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/builderbot/config"
	"github.com/isdmx/builderbot/deploy"
	"github.com/isdmx/builderbot/httpapi"
	"github.com/isdmx/builderbot/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Exposes the builder as Model Context Protocol tools.

Supported transports (server.transport):
- stdio (default): JSON-RPC over standard input/output.
- http: streamable HTTP on server.http_port.

When server.status_port is set, a status API with /metrics is served as well.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app := fx.New(
			coreModule(loadConfig(cmd)),

			fx.Provide(
				// MCP Server
				mcpserver.New,

				// Status API
				httpapi.New,
			),

			// Start the appropriate transport based on config
			fx.Invoke(startServers),

			// Use the application logger for fx logs
			fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
				return &fxevent.ZapLogger{Logger: log}
			}),
		)
		if err := app.Err(); err != nil {
			return err
		}

		// Start the application
		app.Run()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func startServers(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	log *zap.Logger,
	server *mcpserver.MCPServer,
	status *httpapi.Server,
	publisher *deploy.Publisher,
) error {
	var serve func() error
	switch cfg.Server.Transport {
	case "stdio":
		serve = server.ServeStdio
	case "http":
		serve = server.ServeHTTP
	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.Server.StatusPort > 0 {
				if err := status.Start(); err != nil {
					return err
				}
			}

			if cfg.DeployEnabled() {
				go func() {
					if err := publisher.Verify(context.Background()); err != nil {
						log.Warn("deploy_project will fail until GitHub access is fixed", zap.Error(err))
					}
				}()
			}

			go func() {
				err := serve()
				if err != nil {
					log.Error("MCP server stopped", zap.Error(err))
				}
				// A closed stdin ends the session; take the previews down with it.
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cfg.Server.StatusPort > 0 {
				if err := status.Shutdown(ctx); err != nil {
					log.Warn("status API shutdown failed", zap.Error(err))
				}
			}
			return server.Shutdown(ctx)
		},
	})
	return nil
}
