package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ehmo/sovi/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveOpsHost, "ops-host", "", "Ops HTTP host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&serveOpsPort, "ops-port", 0, "Ops HTTP port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveOpsHost string
	serveOpsPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Device Orchestration Core",
	Long: `Start the scheduler (one worker per active device), the ops
HTTP surface (/healthz, /readyz, /metrics), and block until SIGINT or
SIGTERM triggers graceful shutdown (spec.md §4.3 "Cancellation &
shutdown").`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	d, err := daemon.New(ctx)
	if err != nil {
		return err
	}

	if serveOpsHost != "" {
		d.Config.OpsHost = serveOpsHost
	}
	if serveOpsPort > 0 {
		d.Config.OpsPort = serveOpsPort
	}

	return d.Start(ctx)
}
