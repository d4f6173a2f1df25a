package cli

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/lidar-ingest/internal/adapter/ledger"
	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit      int
		ledgerPath string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent ingest outcomes from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("invalid limit %d: must be positive", limit)
			}
			path := rootOpts.cfg.LedgerPath
			if cmd.Flags().Changed("ledger") {
				path = ledgerPath
			}
			if path == "" {
				return errors.New("no ledger configured: set LEDGER_PATH or --ledger")
			}

			l, err := ledger.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer l.Close()

			events, err := l.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if rootOpts.jsonOutput() {
				if events == nil {
					events = []domain.IngestEvent{}
				}
				return writeJSON(w, events)
			}
			for _, ev := range events {
				detail := ev.Dataset
				if ev.Status == domain.StatusFailed {
					detail = ev.Error
				}
				if _, err := fmt.Fprintf(w, "%s  %-8s %-12s %s  %s\n",
					domain.FormatISO(ev.ProcessedAt), ev.Status, ev.Format, ev.Path, detail); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "ingest ledger database (LEDGER_PATH)")

	return cmd
}
