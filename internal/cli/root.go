package cli

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRootCmd creates the root sketchpilot command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sketchpilot",
		Short: "Canvas agent action pipeline",
		Long: `sketchpilot turns model output into canvas actions.

It streams batches of drawing actions from a generative model, sanitizes them
against a closed action schema, and delivers them to canvas clients over an
acknowledged envelope protocol.

Available subcommands:
  serve       Run the agent daemon
  run         Run one local session from an NDJSON action stream
  config      Manage configuration files

Examples:
  sketchpilot serve --config config/sketchpilot.yaml
  sketchpilot run "draw a login flow" --actions actions.ndjson
  sketchpilot config init config/sketchpilot.yaml`,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// newLogger builds the zap-backed logr used by every command. verbosity maps
// onto logr V levels, so -v 1 surfaces the pipeline's debug events.
func newLogger(verbosity int) logr.Logger {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	zapLog, err := zapCfg.Build()
	if err != nil {
		zapLog = zap.NewNop()
	}
	return zapr.NewLogger(zapLog)
}
