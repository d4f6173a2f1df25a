// Package instrument reads vendor lidar files and canonicalizes them into
// domain batches. Each supported instrument family is one Format.
package instrument

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
)

// Format is one instrument family.
type Format interface {
	Name() string
	// Accepts reports whether path is a primary input of this family. It may
	// peek at the file content.
	Accepts(path string) bool
	// DatasetName identifies the canonical dataset a source is appended to.
	DatasetName(src *domain.Source) string
	Read(path string) (*domain.Source, error)
	Canonicalize(src *domain.Source, opts Options) (*domain.Batch, Report, error)
}

// TableSource provides column tables and instrument parameters.
type TableSource interface {
	Table(format, product string) (domain.Table, error)
	Parameters(format string) map[string]string
}

// Options control canonicalization.
type Options struct {
	Tables TableSource
	// BeamSweeping marks the beam as moving during accumulation, which turns
	// azimuth or elevation changes into PPI or RHI scans.
	BeamSweeping bool
	// SkipBadTimestamps drops records with unparsable timestamps instead of failing the file.
	SkipBadTimestamps bool
	Logger            *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Report summarizes non-fatal findings of one canonicalization.
type Report struct {
	Records       int
	Corruption    *domain.RowCorruptionWarning
	BadTimestamps int
}

// Dropped is the number of source records that did not make it into the batch.
func (r Report) Dropped() int {
	n := r.BadTimestamps
	if r.Corruption != nil {
		n += r.Corruption.Dropped
	}
	return n
}

// Registry resolves files to formats.
type Registry struct {
	formats []Format
}

// NewRegistry creates a registry that tries formats in the given order.
func NewRegistry(formats ...Format) *Registry {
	return &Registry{formats: formats}
}

// DefaultRegistry holds every supported instrument family.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewWindcube(WindcubeV1),
		NewWindcube(WindcubeV2),
		NewWindscanner(),
		NewZephIR(),
		NewGalion(),
	)
}

// Detect returns the first format that accepts path.
func (r *Registry) Detect(path string) (Format, bool) {
	for _, f := range r.formats {
		if f.Accepts(path) {
			return f, true
		}
	}
	return nil, false
}

// Lookup finds a format by name.
func (r *Registry) Lookup(name string) (Format, bool) {
	for _, f := range r.formats {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// Formats returns the registered formats in detection order.
func (r *Registry) Formats() []Format {
	return append([]Format(nil), r.formats...)
}

// normalize filters corrupt records and converts their timestamps. The
// returned records are aligned with the returned times.
func normalize(src *domain.Source, table domain.Table, opts Options) ([]time.Time, []domain.RawRecord, Report, error) {
	rep := Report{Records: len(src.Records)}
	records, warn := domain.FilterCorrupt(src.Records)
	rep.Corruption = warn

	col := domain.ColumnIndex(src.Labels, table.Time.Column)
	if col < 0 {
		return nil, nil, rep, &domain.SchemaMappingError{Variable: domain.DimTime, Reason: "no column " + strconv.Quote(table.Time.Column)}
	}
	times, kept, skipped, err := domain.NormalizeRecords(records, col, table.Time, opts.SkipBadTimestamps)
	if err != nil {
		return nil, nil, rep, err
	}
	rep.BadTimestamps = skipped
	return times, kept, rep, nil
}

// build runs the shared canonicalization steps: filter, normalize, map.
func build(format, product string, src *domain.Source, gates []float64, opts Options) (*domain.Batch, []domain.RawRecord, Report, error) {
	table, err := opts.Tables.Table(format, product)
	if err != nil {
		return nil, nil, Report{}, err
	}
	times, records, rep, err := normalize(src, table, opts)
	if err != nil {
		return nil, nil, rep, err
	}
	b := domain.NewBatch(src.Path, format, times, gates)
	if err := domain.MapInto(b, table, src.Labels, records, src.DecimalComma); err != nil {
		return nil, nil, rep, err
	}
	b.SetAttribute("source_format", format)
	if product != "" {
		b.SetAttribute("source_product", product)
	}
	if rep.Corruption != nil {
		warnCorruption(opts, src.Path, rep.Corruption)
	}
	return b, records, rep, nil
}

// warnCorruption logs the once per file notice for rows dropped by FilterCorrupt.
func warnCorruption(opts Options, path string, w *domain.RowCorruptionWarning) {
	opts.logger().Warn("dropped corrupt rows",
		"source", path,
		"dropped", w.Dropped,
		"total", w.Total,
		"columns", w.Columns,
	)
}

// setScanType stores the scan geometry as the scalar scan_type variable.
func setScanType(b *domain.Batch, st domain.ScanType) {
	b.ScanType = st
	b.AddScalar("scan_type", domain.Int32, float64(st),
		domain.Attribute{Key: "units", Value: "none"},
		domain.Attribute{Key: "long_name", Value: "scan_type_of_the_measurement"},
	)
}

func addScalar(b *domain.Batch, name string, x float64, units, longName string) {
	b.AddScalar(name, domain.Float32, x,
		domain.Attribute{Key: "units", Value: units},
		domain.Attribute{Key: "long_name", Value: longName},
	)
}

func addSeries(b *domain.Batch, name string, xs []float64, units, longName string) {
	b.AddSeries(name, xs,
		domain.Attribute{Key: "units", Value: units},
		domain.Attribute{Key: "long_name", Value: longName},
	)
}

// series returns the numeric values of the variable name, if the batch has it.
func series(b *domain.Batch, name string) ([]float64, bool) {
	v, ok := b.Data[name]
	if !ok || v.Texts != nil {
		return nil, false
	}
	return v.Floats, true
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// datasetName joins non-empty parts into a file-system safe dataset name.
func datasetName(parts ...string) string {
	var keep []string
	for _, p := range parts {
		p = strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(p), "_"), "_")
		if p != "" {
			keep = append(keep, p)
		}
	}
	return strings.ToLower(strings.Join(keep, "_"))
}

func hasExt(path string, exts ...string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
