package sandbox

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/isdmx/builderbot/config"
	"github.com/isdmx/builderbot/logger"
	"github.com/isdmx/builderbot/metrics"
)

// NewFromConfig creates a Supervisor for one session, rooted at dir and
// serving on port.
func NewFromConfig(log *zap.Logger, cfg *config.Config, m *metrics.Metrics, dir string, port int) *Supervisor {
	supervisorConfig := Config{
		Dir:          dir,
		Language:     cfg.Sandbox.Language,
		Interpreter:  cfg.Sandbox.Interpreter,
		Port:         port,
		LogLines:     cfg.Sandbox.LogLines,
		LogFile:      cfg.Sandbox.LogFile,
		StopTimeout:  cfg.GetStopTimeout(),
		ProcessGroup: cfg.Sandbox.ProcessGroup,
		// Generated apps may read these instead of hard-coding the bind address.
		Env: map[string]string{
			"PORT": strconv.Itoa(port),
			"HOST": cfg.Sandbox.BindHost,
		},
	}

	return NewSupervisor(log, &supervisorConfig,
		WithMetrics(m),
		WithOutputLogger(logger.ForChildOutput(log)),
	)
}
