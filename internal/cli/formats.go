package cli

import (
	"fmt"

	"github.com/couchcryptid/lidar-ingest/internal/instrument"
	"github.com/spf13/cobra"
)

// FormatInfo describes one supported instrument family.
type FormatInfo struct {
	Name       string            `json:"name"`
	Products   []string          `json:"products"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// NewFormatsCommand creates the formats command.
func NewFormatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported instrument formats and their configured products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var infos []FormatInfo
			for _, f := range instrument.DefaultRegistry().Formats() {
				infos = append(infos, FormatInfo{
					Name:       f.Name(),
					Products:   rootOpts.formats.Products(f.Name()),
					Parameters: rootOpts.formats.Parameters(f.Name()),
				})
			}

			w := cmd.OutOrStdout()
			if rootOpts.jsonOutput() {
				return writeJSON(w, infos)
			}
			for _, info := range infos {
				if _, err := fmt.Fprintf(w, "%-14s %v\n", info.Name, info.Products); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
