package commands

import (
	"github.com/spf13/cobra"

	"github.com/edgewarden/edgewarden/pkg/agent"
)

func newDaemonCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the reconciliation agent",
		Long: `Run the agent until interrupted.

The daemon loads the target state, then drives reconciliation cycles
on the configured interval, on target-state file changes, and on API
triggers. Every cycle probes the device, resolves the contract set,
evaluates the policy gate, converges the runtime on the admitted
services and persists the resolution to the history store.

The local HTTP API, the metrics endpoint and the event stream are all
configured through the config file; SIGINT or SIGTERM shuts the agent
down gracefully.`,
		Example: `  # Run with the default config
  warden daemon

  # Run with an explicit config file
  warden daemon --config /etc/edgewarden/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			a, err := agent.New(ctx, cfg, agent.Options{Version: version})
			if err != nil {
				return err
			}

			return a.Run(ctx)
		},
	}

	return cmd
}
