package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"github.com/couchcryptid/lidar-ingest/internal/instrument"
	"github.com/couchcryptid/lidar-ingest/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Parse a vendor file and describe it without writing",
		Long: `Inspect detects the file's format, parses the header and records and prints
the header parameters, row counts, dropped rows and scan type. Nothing is
written to any dataset or the ledger.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := pipeline.Inspect(instrument.DefaultRegistry(), pipeline.NewCanonicalizer(rootOpts.options()), args[0])
			if err != nil {
				return err
			}
			if rootOpts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), in)
			}
			return printInspection(cmd.OutOrStdout(), in)
		},
	}
}

func printInspection(w io.Writer, in *pipeline.Inspection) error {
	fmt.Fprintf(w, "file:        %s\n", in.Path)
	fmt.Fprintf(w, "format:      %s\n", in.Format)
	fmt.Fprintf(w, "dataset:     %s\n", in.Dataset)
	fmt.Fprintf(w, "scan type:   %s\n", in.ScanType)
	fmt.Fprintf(w, "range gates: %d\n", in.RangeGates)
	fmt.Fprintf(w, "rows:        %d read, %d kept, %d corrupt, %d bad timestamps\n",
		in.Rows, in.Records, in.CorruptRows, in.BadTimestamps)
	if !in.FirstTime.IsZero() {
		fmt.Fprintf(w, "time span:   %s .. %s\n", domain.FormatISO(in.FirstTime), domain.FormatISO(in.LastTime))
	}

	if len(in.Parameters) > 0 {
		fmt.Fprintln(w, "header:")
		keys := make([]string, 0, len(in.Parameters))
		for k := range in.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %s\n", k, in.Parameters[k])
		}
	}

	_, err := fmt.Fprintf(w, "variables:   %v\n", in.Variables)
	return err
}
