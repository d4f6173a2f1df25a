package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"github.com/couchcryptid/lidar-ingest/internal/instrument"
	"github.com/couchcryptid/lidar-ingest/internal/observability"
	"github.com/google/uuid"
)

// ErrUnknownFormat is returned for an explicitly named file no format accepts.
var ErrUnknownFormat = errors.New("no instrument format accepts this file")

// Transformer reads a source file of a known format into its canonical batch.
type Transformer interface {
	Transform(f instrument.Format, path string) (*Canonical, error)
}

// Ledger remembers which files have been ingested.
type Ledger interface {
	Seen(ctx context.Context, checksum string) (bool, error)
	Record(ctx context.Context, ev domain.IngestEvent) error
}

// Notifier publishes the events of one run downstream.
type Notifier interface {
	Notify(ctx context.Context, events []domain.IngestEvent) error
}

// companioner is implemented by formats that read more than one file per input.
type companioner interface {
	Companions(path string) []string
}

// pather is implemented by datasets backed by a file.
type pather interface {
	Path() string
}

// Summary counts the outcomes of one run.
type Summary struct {
	RunID       string               `json:"run_id"`
	Ingested    int                  `json:"ingested"`
	Failed      int                  `json:"failed"`
	Skipped     int                  `json:"skipped"`
	Records     int                  `json:"records"`
	Interrupted bool                 `json:"interrupted,omitempty"`
	Events      []domain.IngestEvent `json:"events"`
}

// Pipeline ingests source files into canonical datasets, one file at a time.
type Pipeline struct {
	registry    *instrument.Registry
	transformer Transformer
	store       domain.Store
	appender    *domain.Appender
	ledger      Ledger
	notifier    Notifier
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool

	// datasets holds the open datasets by backing file, so names the store
	// maps to one file share a single copy. keys maps dataset names to it.
	datasets map[string]domain.Dataset
	keys     map[string]string
}

// New creates a Pipeline. ledger and notifier may be nil, which disables
// duplicate detection and notifications respectively.
func New(registry *instrument.Registry, t Transformer, store domain.Store, appender *domain.Appender, ledger Ledger, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		registry:    registry,
		transformer: t,
		store:       store,
		appender:    appender,
		ledger:      ledger,
		notifier:    notifier,
		logger:      logger,
		metrics:     metrics,
		datasets:    make(map[string]domain.Dataset),
		keys:        make(map[string]string),
	}
}

// CheckReadiness returns nil once a run has started and the ledger, if it
// can tell, is reachable.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not started ingesting yet")
	}
	if rc, ok := p.ledger.(interface{ CheckReadiness(context.Context) error }); ok {
		return rc.CheckReadiness(ctx)
	}
	return nil
}

// Run ingests every file found under paths in sorted order. A file that fails
// is recorded and the run continues with the next one. Cancelling ctx stops
// the run between files. Run returns an error only when the inputs cannot be
// listed or the run's events cannot be published.
func (p *Pipeline) Run(ctx context.Context, paths []string) (Summary, error) {
	inputs, err := Discover(paths)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{RunID: uuid.NewString()}
	p.logger.Info("ingest run started", "run_id", sum.RunID, "files", len(inputs))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	p.ready.Store(true)

	for _, in := range inputs {
		if ctx.Err() != nil {
			p.logger.Info("ingest run stopping", "reason", ctx.Err())
			sum.Interrupted = true
			break
		}

		f, ok := p.registry.Detect(in.Path)
		if !ok {
			if !in.Explicit {
				p.logger.Debug("ignoring file of unknown format", "path", in.Path)
				continue
			}
			f = nil
		}

		ev := p.processFile(ctx, sum.RunID, in.Path, f)
		p.record(ctx, ev)
		sum.Events = append(sum.Events, ev)
		switch ev.Status {
		case domain.StatusIngested:
			sum.Ingested++
			sum.Records += ev.Records
		case domain.StatusSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}

	p.logger.Info("ingest run finished",
		"run_id", sum.RunID,
		"ingested", sum.Ingested,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"records", sum.Records,
	)

	if p.notifier != nil && len(sum.Events) > 0 {
		// Publishing is best effort after shutdown was requested.
		if err := p.notifier.Notify(context.WithoutCancel(ctx), sum.Events); err != nil {
			return sum, fmt.Errorf("notify: %w", err)
		}
	}
	return sum, nil
}

// processFile ingests one file and describes the outcome.
func (p *Pipeline) processFile(ctx context.Context, runID, path string, f instrument.Format) domain.IngestEvent {
	start := time.Now()
	ev := domain.IngestEvent{ID: uuid.NewString(), RunID: runID, Path: path}
	if f != nil {
		ev.Format = f.Name()
	}

	err := p.ingest(ctx, &ev, f)
	ev.ProcessedAt = domain.Now()
	label := ev.Format
	if label == "" {
		label = "unknown"
	}

	switch {
	case err != nil:
		ev.Status = domain.StatusFailed
		fileErr := &domain.FileError{Path: path, Err: err}
		ev.Error = fileErr.Error()
		p.metrics.FilesFailed.WithLabelValues(label).Inc()
		p.logger.Error("ingest failed", "path", path, "format", ev.Format, "error", err)
	case ev.Status == domain.StatusSkipped:
		p.metrics.FilesSkipped.Inc()
		p.logger.Info("already ingested, skipping", "path", path, "checksum", ev.Checksum)
	default:
		ev.Status = domain.StatusIngested
		p.metrics.FilesIngested.WithLabelValues(label).Inc()
		p.metrics.RecordsAppended.WithLabelValues(ev.Dataset).Add(float64(ev.Records))
		p.metrics.FileProcessingDuration.Observe(time.Since(start).Seconds())
		p.logger.Info("ingested",
			"path", path,
			"format", ev.Format,
			"dataset", ev.Dataset,
			"records", ev.Records,
			"dropped", ev.Dropped,
			"start", ev.Start,
			"end", ev.End,
			"scan_type", ev.ScanType,
		)
	}
	return ev
}

// ingest fills ev while moving one file into its dataset. It sets
// ev.Status only for skipped files.
func (p *Pipeline) ingest(ctx context.Context, ev *domain.IngestEvent, f instrument.Format) error {
	if f == nil {
		return ErrUnknownFormat
	}

	files := []string{ev.Path}
	if c, ok := f.(companioner); ok {
		files = append(files, c.Companions(ev.Path)...)
	}
	sum, err := Checksum(files...)
	if err != nil {
		return err
	}
	ev.Checksum = sum

	if p.ledger != nil {
		seen, err := p.ledger.Seen(ctx, sum)
		if err != nil {
			return fmt.Errorf("ledger lookup: %w", err)
		}
		if seen {
			ev.Status = domain.StatusSkipped
			return nil
		}
	}

	c, err := p.transformer.Transform(f, ev.Path)
	if err != nil {
		return err
	}
	ev.Dataset = c.Dataset
	ev.Dropped = c.Report.Dropped()
	ev.ScanType = c.Batch.ScanType.String()
	ev.FirstTime, ev.LastTime = c.Span()
	p.countDropped(f.Name(), c.Report)

	res, err := p.load(c)
	if err != nil {
		return err
	}
	ev.Records = res.End - res.Start
	ev.Start, ev.End = res.Start, res.End
	return nil
}

// load appends the batch to its dataset and persists it. On any failure the
// cached dataset is discarded so the next file starts from the stored copy.
func (p *Pipeline) load(c *Canonical) (domain.AppendResult, error) {
	ds, key, err := p.dataset(c.Dataset)
	if err != nil {
		return domain.AppendResult{}, err
	}

	stamp := domain.FormatISO(domain.Now())
	c.Batch.SetAttribute("date_created", stamp)
	res, err := p.appender.Append(ds, c.Batch)
	if err != nil {
		delete(p.datasets, key)
		return domain.AppendResult{}, err
	}
	if res.Created {
		p.logger.Info("created dataset", "dataset", c.Dataset, "range_gates", len(c.Batch.Range))
	} else {
		p.checkScanType(ds, c)
	}
	if aw, ok := ds.(domain.AttributeWriter); ok {
		if err := aw.SetAttribute("date_modified", stamp); err != nil {
			delete(p.datasets, key)
			return domain.AppendResult{}, fmt.Errorf("set date_modified: %w", err)
		}
	}

	start := time.Now()
	if err := ds.Flush(); err != nil {
		delete(p.datasets, key)
		return domain.AppendResult{}, fmt.Errorf("flush dataset %s: %w", c.Dataset, err)
	}
	p.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	return res, nil
}

// dataset returns the open dataset for name and its cache key, opening it
// on first use.
func (p *Pipeline) dataset(name string) (domain.Dataset, string, error) {
	if key, ok := p.keys[name]; ok {
		if ds, ok := p.datasets[key]; ok {
			return ds, key, nil
		}
	}
	ds, err := p.store.Open(name)
	if err != nil {
		return nil, "", fmt.Errorf("open dataset %s: %w", name, err)
	}
	key := name
	if f, ok := ds.(pather); ok {
		key = f.Path()
	}
	if cached, ok := p.datasets[key]; ok {
		ds = cached
	} else {
		p.datasets[key] = ds
	}
	p.keys[name] = key
	return ds, key, nil
}

// checkScanType warns when a batch extends a dataset created from a
// different scan geometry. The stored scan_type is left as it is.
func (p *Pipeline) checkScanType(ds domain.Dataset, c *Canonical) {
	r, ok := ds.(domain.SliceReader)
	if !ok {
		return
	}
	v, err := r.ReadSlice("scan_type", 0, 1)
	if err != nil || len(v.Floats) != 1 {
		return
	}
	if stored := domain.ScanType(v.Floats[0]); stored != c.Batch.ScanType {
		p.logger.Warn("scan type differs from dataset",
			"dataset", c.Dataset,
			"source", c.Batch.Source,
			"dataset_scan_type", stored.String(),
			"batch_scan_type", c.Batch.ScanType.String(),
		)
	}
}

func (p *Pipeline) countDropped(format string, rep instrument.Report) {
	if rep.Corruption != nil && rep.Corruption.Dropped > 0 {
		p.metrics.RowsDropped.WithLabelValues(format, "corrupt").Add(float64(rep.Corruption.Dropped))
	}
	if rep.BadTimestamps > 0 {
		p.metrics.RowsDropped.WithLabelValues(format, "timestamp").Add(float64(rep.BadTimestamps))
	}
}

// record stores the outcome in the ledger. Skipped files are not recorded
// again.
func (p *Pipeline) record(ctx context.Context, ev domain.IngestEvent) {
	if p.ledger == nil || ev.Status == domain.StatusSkipped {
		return
	}
	if err := p.ledger.Record(context.WithoutCancel(ctx), ev); err != nil {
		p.logger.Error("record ingest in ledger", "path", ev.Path, "error", err)
	}
}
