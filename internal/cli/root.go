// Package cli implements the lidar-ingest command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/couchcryptid/lidar-ingest/internal/config"
	"github.com/couchcryptid/lidar-ingest/internal/instrument"
	"github.com/couchcryptid/lidar-ingest/internal/observability"
	"github.com/spf13/cobra"
)

// ValidOutputs are the accepted values of --output.
var ValidOutputs = []string{"text", "json"}

// RootOptions holds the global flags and the state shared by subcommands.
type RootOptions struct {
	Output      string
	LogLevel    string
	LogFormat   string
	FormatsFile string

	cfg     *config.Config
	logger  *slog.Logger
	formats *config.Formats
}

// NewRootCommand creates the lidar-ingest command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lidar-ingest",
		Short: "Canonicalize vendor lidar files into time-indexed datasets",
		Long: `lidar-ingest reads Windcube, Windscanner, ZephIR 300 and Galion output
files and appends them to canonical NetCDF datasets, one per instrument stream.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Output, "output", "text", "output format (text|json)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	flags.StringVar(&opts.LogFormat, "log-format", "", "log format (json|text), overrides LOG_FORMAT")
	flags.StringVar(&opts.FormatsFile, "formats-file", "", "column table YAML, overrides FORMATS_FILE")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewFormatsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// setup loads configuration from the environment and applies global flags.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !slices.Contains(ValidOutputs, o.Output) {
		return fmt.Errorf("invalid output %q: must be one of %v", o.Output, ValidOutputs)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.LogFormat
	}
	if flags.Changed("formats-file") {
		cfg.FormatsFile = o.FormatsFile
	}

	formats, err := config.LoadFormats(cfg.FormatsFile)
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.formats = formats
	o.logger = observability.NewLogger(cfg)
	return nil
}

// options builds canonicalization options from the loaded configuration.
func (o *RootOptions) options() instrument.Options {
	return instrument.Options{
		Tables:            o.formats,
		BeamSweeping:      o.cfg.BeamSweeping,
		SkipBadTimestamps: o.cfg.SkipBadTimestamps,
		Logger:            o.logger,
	}
}

func (o *RootOptions) jsonOutput() bool { return o.Output == "json" }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
