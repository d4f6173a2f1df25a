package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	httpadapter "github.com/couchcryptid/lidar-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/lidar-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/lidar-ingest/internal/adapter/ledger"
	"github.com/couchcryptid/lidar-ingest/internal/adapter/netcdf"
	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"github.com/couchcryptid/lidar-ingest/internal/instrument"
	"github.com/couchcryptid/lidar-ingest/internal/observability"
	"github.com/couchcryptid/lidar-ingest/internal/pipeline"
	"github.com/spf13/cobra"
)

// ErrFilesFailed is returned by ingest when at least one file failed.
var ErrFilesFailed = errors.New("some files failed to ingest")

var (
	metricsOnce    sync.Once
	processMetrics *observability.Metrics
)

// metrics registers the pipeline metrics once per process.
func metrics() *observability.Metrics {
	metricsOnce.Do(func() { processMetrics = observability.NewMetrics() })
	return processMetrics
}

// IngestOptions holds the ingest flags. Each one overrides its environment variable.
type IngestOptions struct {
	OutputDir         string
	OutputFile        string
	LedgerPath        string
	NoLedger          bool
	OrderPolicy       string
	BeamSweeping      bool
	SkipBadTimestamps bool
	HTTPAddr          string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Append vendor files to their canonical datasets",
		Long: `Ingest walks the given files and directories in sorted order, detects each
file's instrument format and appends it to its canonical dataset. Files already
recorded in the ledger are skipped. A failed file is recorded and the run
continues with the next one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.apply(cmd, rootOpts); err != nil {
				return err
			}
			return runIngest(cmd.Context(), rootOpts, args, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.OutputDir, "output-dir", "", "directory of canonical datasets (OUTPUT_DIR)")
	flags.StringVar(&opts.OutputFile, "output-file", "", "append every file to this one dataset (OUTPUT_FILE)")
	flags.StringVar(&opts.LedgerPath, "ledger", "", "ingest ledger database (LEDGER_PATH)")
	flags.BoolVar(&opts.NoLedger, "no-ledger", false, "do not record or skip files")
	flags.StringVar(&opts.OrderPolicy, "order-policy", "", "reject or warn on out of order files (ORDER_POLICY)")
	flags.BoolVar(&opts.BeamSweeping, "beam-sweeping", false, "the beam moves while accumulating (BEAM_SWEEPING)")
	flags.BoolVar(&opts.SkipBadTimestamps, "skip-bad-timestamps", false, "drop records with unparsable timestamps (SKIP_BAD_TIMESTAMPS)")
	flags.StringVar(&opts.HTTPAddr, "http-addr", "", "serve health and metrics while ingesting (HTTP_ADDR)")

	return cmd
}

// apply copies changed flags onto the loaded configuration.
func (o *IngestOptions) apply(cmd *cobra.Command, rootOpts *RootOptions) error {
	cfg := rootOpts.cfg
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.OutputDir = o.OutputDir
	}
	if flags.Changed("output-file") {
		cfg.OutputFile = o.OutputFile
	}
	if flags.Changed("ledger") {
		cfg.LedgerPath = o.LedgerPath
	}
	if o.NoLedger {
		cfg.LedgerPath = ""
	}
	if flags.Changed("order-policy") {
		cfg.OrderPolicy = o.OrderPolicy
	}
	if flags.Changed("beam-sweeping") {
		cfg.BeamSweeping = o.BeamSweeping
	}
	if flags.Changed("skip-bad-timestamps") {
		cfg.SkipBadTimestamps = o.SkipBadTimestamps
	}
	if flags.Changed("http-addr") {
		cfg.HTTPAddr = o.HTTPAddr
	}
	return cfg.Validate()
}

func runIngest(ctx context.Context, rootOpts *RootOptions, paths []string, out io.Writer) error {
	cfg, logger := rootOpts.cfg, rootOpts.logger

	order, err := domain.ParseOrderPolicy(cfg.OrderPolicy)
	if err != nil {
		return err
	}

	var store domain.Store = netcdf.NewStore(cfg.OutputDir)
	if cfg.OutputFile != "" {
		store = netcdf.NewFileStore(cfg.OutputFile)
	}

	var (
		led     pipeline.Ledger
		history httpadapter.History
	)
	if cfg.LedgerPath != "" {
		l, err := ledger.Open(ctx, cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := l.Close(); err != nil {
				logger.Error("ledger close error", "error", err)
			}
		}()
		led, history = l, l
	}

	var notifier pipeline.Notifier
	if cfg.NotificationsEnabled() {
		w := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		notifier = w
		logger.Info("ingest notifications enabled", "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(
		instrument.DefaultRegistry(),
		pipeline.NewCanonicalizer(rootOpts.options()),
		store,
		domain.NewAppender(order, logger),
		led,
		notifier,
		logger,
		metrics(),
	)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, history, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	sum, runErr := p.Run(ctx, paths)
	if err := printSummary(out, rootOpts, sum); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrFilesFailed, sum.Failed, len(sum.Events))
	}
	return nil
}

func printSummary(w io.Writer, rootOpts *RootOptions, sum pipeline.Summary) error {
	if rootOpts.jsonOutput() {
		return writeJSON(w, sum)
	}
	for _, ev := range sum.Events {
		switch ev.Status {
		case domain.StatusIngested:
			fmt.Fprintf(w, "%-8s %s -> %s [%d:%d] %s\n", ev.Status, ev.Path, ev.Dataset, ev.Start, ev.End, ev.ScanType)
		case domain.StatusSkipped:
			fmt.Fprintf(w, "%-8s %s\n", ev.Status, ev.Path)
		default:
			fmt.Fprintf(w, "%-8s %s\n", ev.Status, ev.Error)
		}
	}
	_, err := fmt.Fprintf(w, "run %s: %d ingested, %d skipped, %d failed, %d records\n",
		sum.RunID, sum.Ingested, sum.Skipped, sum.Failed, sum.Records)
	if sum.Interrupted {
		_, err = fmt.Fprintln(w, "run interrupted before all files were processed")
	}
	return err
}
