package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edgewarden/edgewarden/pkg/contracts"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <contract-file>...",
		Short: "Validate compatibility contract files",
		Long: `Validate contract documents without touching the device.

Each file is checked in two stages:
  - Document shape against the CUE contract schema
  - Structural rules: slug present, requirement types present,
    version ranges parseable

Validation never probes the device, so a contract that passes here can
still come up unmet at resolution time.`,
		Example: `  # Validate a single contract
  warden validate ./contracts/camera.yaml

  # Validate every contract in a directory
  warden validate ./contracts/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			registry := contracts.NewSchemaRegistry()

			failed := 0
			for _, path := range args {
				contract, err := contracts.LoadContract(ctx, registry, path)
				if err == nil {
					err = contracts.Validate(contract)
				}

				if err != nil {
					failed++
					log.Error().Err(err).Str("path", path).Msg("Contract failed validation")
					fmt.Printf("fail  %s\n", path)
					continue
				}

				fmt.Printf("ok    %s (%s)\n", path, contract.Slug)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d contract files failed validation", failed, len(args))
			}

			return nil
		},
	}

	return cmd
}
