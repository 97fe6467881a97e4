package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edgewarden/edgewarden/pkg/facts"
)

func newFactsCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Probe the device and print its version facts",
		Long: `Run the device probes once and print what they found.

Facts are the version surface contracts resolve against:
  - sw.agent: the agent's own version
  - sw.os:    the OS release version
  - sw.l4t:   the L4T release, when the device carries one

A missing L4T stack is not an error; requirements on sw.l4t simply
come up unmet on such a device.`,
		Example: `  # Print probed facts
  warden facts

  # JSON output for scripting
  warden facts --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			prober := facts.NewProber(version, log.Logger)
			if d := cfg.Agent.ProbeTimeout.Std(); d > 0 {
				prober.SetTimeout(d)
			}

			probed, err := prober.Probe(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(probed)
			}

			fmt.Printf("Agent: %s\n", probed.AgentVersion)
			fmt.Printf("OS:    %s\n", probed.OSVersion)
			if probed.HasL4T() {
				fmt.Printf("L4T:   %s\n", probed.L4T)
			} else {
				fmt.Println("L4T:   not detected")
			}

			return nil
		},
	}

	return cmd
}
