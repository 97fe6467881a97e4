package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edgewarden/edgewarden/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored resolutions",
		Long: `List the most recent resolutions from the history store, newest
first.

Each row summarizes one reconciliation cycle: whether the resolution
was valid and how many services were fulfilled and unmet. The full
resolution detail is stored alongside and available as JSON output.`,
		Example: `  # List the last 20 resolutions
  warden history

  # List the last 5
  warden history --limit 5

  # Full resolution records as JSON
  warden history --json --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return fmt.Errorf("history store is not configured")
			}

			ctx := cmd.Context()

			store, err := stores.Open(ctx, stores.Config{Path: cfg.Store.Path})
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close history store")
				}
			}()

			records, err := store.ListResolutions(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}

			if len(records) == 0 {
				fmt.Println("No resolutions recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tVALID\tFULFILLED\tUNMET")

			for _, record := range records {
				valid := "yes"
				if !record.Valid {
					valid = "no"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
					record.ID,
					record.CreatedAt.Format("2006-01-02 15:04:05"),
					valid,
					record.FulfilledCount,
					record.UnmetCount,
				)
			}

			w.Flush()
			fmt.Printf("\nTotal: %d\n", len(records))

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of resolutions to list")

	return cmd
}
