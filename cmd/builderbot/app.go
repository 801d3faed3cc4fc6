package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/builderbot/config"
	"github.com/isdmx/builderbot/deploy"
	"github.com/isdmx/builderbot/llm"
	"github.com/isdmx/builderbot/logger"
	"github.com/isdmx/builderbot/mcpserver"
	"github.com/isdmx/builderbot/metrics"
	"github.com/isdmx/builderbot/session"
)

// coreModule provides everything below the outer surfaces.
func coreModule(newConfig func() (*config.Config, error)) fx.Option {
	return fx.Options(
		fx.Provide(
			// Config
			newConfig,

			// Logger with configuration
			logger.NewFromConfig,

			// Metrics
			metrics.NewRegistry,
			func(reg *prometheus.Registry) *metrics.Metrics { return metrics.New(reg) },
			func(reg *prometheus.Registry) prometheus.Gatherer { return reg },

			// Language model
			llm.NewClient,
			func(c *llm.Client) llm.Completer { return c },
			func(c *llm.Client) llm.ProjectGenerator { return c },

			// Chat sessions and their previews
			func(log *zap.Logger, cfg *config.Config, c llm.Completer, m *metrics.Metrics) *session.Manager {
				return session.NewManager(log, cfg, c, m)
			},

			// Publishing
			fx.Annotate(deploy.NewGitHubForge, fx.As(new(deploy.Forge))),
			deploy.NewPublisher,
			func(p *deploy.Publisher) mcpserver.Deployer { return p },
		),

		// No preview may outlive the host process.
		fx.Invoke(func(lc fx.Lifecycle, sessions *session.Manager) {
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					sessions.CloseAll()
					return nil
				},
			})
		}),
	)
}
