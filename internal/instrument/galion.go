package instrument

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
)

const (
	galionFormat      = "galion"
	galionProduct     = "scan"
	galionHeaderLines = 6
	galionStartLine   = 4
	galionGates       = 42
)

// Positional columns of one Galion gate row.
var galionColumns = []string{"Range gate", "Doppler", "Intensity", "Ray time", "Az", "El", "Pitch", "Roll"}

// Galion reads Galion .scn scan files: a six line tab separated header
// followed by one row per range gate, n_gates rows per ray.
type Galion struct{}

// NewGalion creates the Galion format.
func NewGalion() *Galion { return &Galion{} }

func (*Galion) Name() string { return galionFormat }

func (*Galion) Accepts(path string) bool { return hasExt(path, ".scn") }

func (*Galion) DatasetName(*domain.Source) string { return galionFormat }

func (*Galion) Read(path string) (*domain.Source, error) {
	lines, err := readLines(path, nil)
	if err != nil {
		return nil, err
	}
	header, n, err := domain.ParseHeader(lines, domain.HeaderSpec{
		Delimiter: "\t",
		Lines:     galionHeaderLines,
	})
	if err != nil {
		return nil, err
	}
	if _, start, ok := strings.Cut(lines[galionStartLine], "\t"); ok {
		header = header.Merge(domain.RawHeader{"start_time": {Kind: domain.KindString, Str: strings.TrimSpace(start)}})
	}
	return &domain.Source{
		Path:    path,
		Paths:   []string{path},
		Product: galionProduct,
		Header:  header,
		Labels:  galionColumns,
		Records: splitRecords(lines[n:], "\t"),
	}, nil
}

// Canonicalize pivots every ray of n_gates gate rows into one time step.
// Angles and the ray time come from the first gate of a ray.
func (*Galion) Canonicalize(src *domain.Source, opts Options) (*domain.Batch, Report, error) {
	params := opts.Tables.Parameters(galionFormat)
	nGates := galionGates
	if s := params["n_gates"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, Report{}, &domain.HeaderFormatError{Parameter: "n_gates", Reason: "invalid gate count " + strconv.Quote(s)}
		}
		nGates = n
	}

	rows, warn := domain.FilterCorrupt(src.Records)
	if warn != nil {
		warnCorruption(opts, src.Path, warn)
	}
	rays, dropped := galionRays(rows, nGates)
	if dropped > 0 {
		opts.logger().Warn("dropped incomplete scan",
			"source", src.Path,
			"rows", dropped,
			"gates", nGates,
		)
	}
	if len(rays) == 0 {
		return nil, Report{Records: len(src.Records), Corruption: warn}, &domain.HeaderFormatError{Reason: "no complete scan"}
	}
	if len(rays[0][0]) < len(galionColumns) {
		return nil, Report{Records: len(src.Records), Corruption: warn}, &domain.HeaderFormatError{
			Reason: fmt.Sprintf("gate rows have %d columns, want %d", len(rays[0][0]), len(galionColumns)),
		}
	}

	gates, err := galionRange(params["range_gates"], rays[0], nGates)
	if err != nil {
		return nil, Report{Records: len(src.Records), Corruption: warn}, err
	}

	scans := &domain.Source{
		Path:    src.Path,
		Paths:   src.Paths,
		Product: src.Product,
		Header:  src.Header,
		Labels:  galionScanLabels(nGates),
	}
	for _, ray := range rays {
		scans.Records = append(scans.Records, galionPivot(ray))
	}

	b, _, rep, err := build(galionFormat, galionProduct, scans, gates, opts)
	if err != nil {
		return nil, rep, err
	}
	if warn != nil {
		rep.Corruption = warn
	}

	b.Add(domain.Variable{Name: "yaw", Type: domain.Float32, Attrs: []domain.Attribute{
		{Key: "units", Value: "degrees"},
		{Key: "long_name", Value: "lidar_yaw_angle"},
		{Key: "comment", Value: "home position configured so that 0 azimuth is north"},
	}}, domain.Values{Floats: []float64{0}})
	addScalar(b, "pitch", 0, "degrees", "lidar_pitch_angle")
	addScalar(b, "roll", 0, "degrees", "lidar_roll_angle")
	b.AddScalar("scan_id", domain.Int32, 1,
		domain.Attribute{Key: "units", Value: "none"},
		domain.Attribute{Key: "long_name", Value: "scan_id_of_the_measurement"},
	)

	az, _ := series(b, "azimuth_angle")
	el, _ := series(b, "elevation_angle")
	setScanType(b, domain.ClassifyScan(az, el, opts.BeamSweeping))

	if s := params["measurement_scenarios"]; s != "" {
		b.SetAttribute("measurement_scenarios", s)
	}
	if s, ok := src.Header.String("start_time"); ok {
		b.SetAttribute("start_time", s)
	}
	return b, rep, nil
}

// galionRays groups gate rows into rays. A new ray starts when the gate index
// stops increasing or the current ray is full. Rays that do not hold exactly
// nGates rows are dropped and their rows counted.
func galionRays(rows []domain.RawRecord, nGates int) (rays [][]domain.RawRecord, dropped int) {
	var ray []domain.RawRecord
	keep := func() {
		if len(ray) == nGates {
			rays = append(rays, ray)
		} else {
			dropped += len(ray)
		}
	}
	prev := math.Inf(-1)
	for _, row := range rows {
		gate := domain.ParseNumber(row[0], false)
		if len(ray) > 0 && (len(ray) == nGates || !(gate > prev)) {
			keep()
			ray = nil
		}
		ray = append(ray, row)
		prev = gate
	}
	if len(ray) > 0 {
		keep()
	}
	return rays, dropped
}

// galionRange resolves the gate distances from the configured list, falling
// back to the gate indices of the first scan.
func galionRange(configured string, first []domain.RawRecord, nGates int) ([]float64, error) {
	if strings.TrimSpace(configured) == "" {
		gates := make([]float64, nGates)
		for i, row := range first {
			gates[i] = domain.ParseNumber(row[0], false)
		}
		return gates, nil
	}
	gates, err := domain.ParseList(configured, ";")
	if err != nil {
		return nil, &domain.HeaderFormatError{Parameter: "range_gates", Reason: err.Error()}
	}
	if len(gates) != nGates {
		return nil, &domain.HeaderFormatError{
			Parameter: "range_gates",
			Reason:    fmt.Sprintf("%d distances configured for %d gates", len(gates), nGates),
		}
	}
	return gates, nil
}

func galionScanLabels(nGates int) []string {
	labels := []string{"Ray time", "Az", "El", "Pitch", "Roll"}
	for g := 0; g < nGates; g++ {
		labels = append(labels, fmt.Sprintf("Doppler[%d]", g))
	}
	for g := 0; g < nGates; g++ {
		labels = append(labels, fmt.Sprintf("Intensity[%d]", g))
	}
	return labels
}

// galionPivot turns the gate rows of one ray into a single record laid out
// as galionScanLabels.
func galionPivot(rows []domain.RawRecord) domain.RawRecord {
	first := rows[0]
	rec := domain.RawRecord{first[3], first[4], first[5], first[6], first[7]}
	for _, row := range rows {
		rec = append(rec, row[1])
	}
	for _, row := range rows {
		rec = append(rec, row[2])
	}
	return rec
}
