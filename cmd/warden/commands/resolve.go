package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edgewarden/edgewarden/pkg/contracts"
	"github.com/edgewarden/edgewarden/pkg/facts"
	"github.com/edgewarden/edgewarden/pkg/target"
)

func newResolveCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [state-file]",
		Short: "Resolve the target state against this device",
		Long: `Probe the device and resolve every service contract in the target
state against the probed facts and its sibling services.

The resolution runs exactly as the daemon would run it, but once and
without touching the runtime: no services are started or stopped, no
policies are evaluated, and nothing is persisted. Optional services
whose contracts come up unmet are elided; a required service coming up
unmet makes the whole resolution invalid.

The command exits non-zero when the resolution is invalid, so it can
gate deployment pipelines.`,
		Example: `  # Resolve the configured state file
  warden resolve

  # Resolve a specific state file
  warden resolve ./state.yaml

  # JSON output for scripting
  warden resolve --json ./state.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			path := cfg.State.Path
			if len(args) > 0 {
				path = args[0]
			}

			log.Info().
				Str("path", path).
				Msg("Resolving target state")

			ctx := cmd.Context()

			loader := target.NewLoader(contracts.NewSchemaRegistry(), log.Logger)
			state, err := loader.Load(ctx, path)
			if err != nil {
				return err
			}

			prober := facts.NewProber(version, log.Logger)
			if d := cfg.Agent.ProbeTimeout.Std(); d > 0 {
				prober.SetTimeout(d)
			}

			resolver := contracts.NewResolver(prober, log.Logger)
			batch := state.Batch()

			resolution, err := resolver.Resolve(ctx, batch)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(resolution); err != nil {
					return err
				}
			} else {
				printResolution(resolution, batch)
			}

			if !resolution.Valid {
				rejected := 0
				for _, name := range resolution.Unmet {
					if !batch[name].Optional {
						rejected++
					}
				}
				return fmt.Errorf("%d of %d services cannot run on this device", rejected, len(batch))
			}

			return nil
		},
	}

	return cmd
}

// printResolution renders a resolution as a human-readable table.
func printResolution(resolution *contracts.Resolution, batch map[string]contracts.Service) {
	valid := "yes"
	if !resolution.Valid {
		valid = "no"
	}

	fmt.Printf("Resolution: %s\n", resolution.ID)
	fmt.Printf("Valid:      %s\n", valid)
	fmt.Printf("Duration:   %s\n", resolution.Duration)
	fmt.Printf("Passes:     %d\n", resolution.Passes)
	fmt.Printf("Facts:      agent=%s os=%s l4t=%s\n\n",
		resolution.Facts.AgentVersion,
		resolution.Facts.OSVersion,
		l4tOrDash(resolution.Facts),
	)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSLUG\tSTATUS\tREASONS")

	for _, name := range resolution.Fulfilled {
		fmt.Fprintf(w, "%s\t%s\tfulfilled\t-\n", name, batch[name].Contract.Slug)
	}
	for _, name := range resolution.Unmet {
		status := "rejected"
		if batch[name].Optional {
			status = "elided"
		}
		reasons := strings.Join(resolution.Reasons[name], "; ")
		if reasons == "" {
			reasons = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, batch[name].Contract.Slug, status, reasons)
	}

	w.Flush()
}

func l4tOrDash(f contracts.Facts) string {
	if f.HasL4T() {
		return f.L4T
	}
	return "-"
}
