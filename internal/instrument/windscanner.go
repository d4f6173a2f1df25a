package instrument

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
)

const (
	windscannerFormat  = "windscanner"
	windscannerProduct = "wind"
	windSuffix         = "wind.txt"
)

// Windscanner reads DTU WindScanner output: a headerless ';' separated wind
// file paired with a system file of the same name. Each wind row starts with
// a few index columns, then the timestamp (seconds since 1904), the beam
// angles and one (range, VEL, CNR, WIDTH) group per range gate.
type Windscanner struct{}

// NewWindscanner creates the Windscanner format.
func NewWindscanner() *Windscanner { return &Windscanner{} }

func (*Windscanner) Name() string { return windscannerFormat }

func (*Windscanner) Accepts(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, windSuffix) && len(base) > 14
}

func (*Windscanner) DatasetName(*domain.Source) string { return windscannerFormat }

// SystemPath returns the system file that belongs to a wind file.
func SystemPath(windPath string) string {
	if i := strings.LastIndex(windPath, "_"+windSuffix); i >= 0 {
		return windPath[:i] + "_system.txt"
	}
	return strings.TrimSuffix(windPath, windSuffix) + "system.txt"
}

// Companions lists the system file read together with the wind file at path.
func (*Windscanner) Companions(path string) []string { return []string{SystemPath(path)} }

// Read pairs wind and system rows by position. Wind rows without a system
// row keep only their wind fields and are dropped later as corrupt.
func (*Windscanner) Read(path string) (*domain.Source, error) {
	windLines, err := readLines(path, nil)
	if err != nil {
		return nil, err
	}
	sysPath := SystemPath(path)
	sysLines, err := readLines(sysPath, nil)
	if err != nil {
		return nil, fmt.Errorf("read system file: %w", err)
	}

	wind := splitRecords(windLines, ";")
	system := splitRecords(sysLines, ";")
	if len(wind) == 0 {
		return nil, &domain.HeaderFormatError{Reason: "wind file has no rows"}
	}

	labels, err := windscannerLabels(domain.ModeColumnCount(wind), domain.ModeColumnCount(system))
	if err != nil {
		return nil, err
	}

	records := make([]domain.RawRecord, len(wind))
	for i, w := range wind {
		rec := append(domain.RawRecord(nil), w...)
		if i < len(system) {
			rec = append(rec, system[i]...)
		}
		records[i] = rec
	}

	return &domain.Source{
		Path:    path,
		Paths:   []string{path, sysPath},
		Product: windscannerProduct,
		Labels:  labels,
		Records: records,
	}, nil
}

// windscannerLabels names the positional columns of a paired row.
func windscannerLabels(windCols, sysCols int) ([]string, error) {
	idx := 4 - windCols%4
	if windCols < idx+8 {
		return nil, &domain.HeaderFormatError{Reason: fmt.Sprintf("wind rows have %d columns, too few for one range gate", windCols)}
	}

	labels := make([]string, 0, windCols+sysCols)
	for i := 0; i < windCols; i++ {
		labels = append(labels, fmt.Sprintf("Column %d", i))
	}
	labels[idx] = "Timestamp"
	labels[idx+2] = "Azimuth"
	labels[idx+3] = "Elevation"
	for g, c := 0, idx+4; c+3 < windCols; g, c = g+1, c+4 {
		labels[c] = fmt.Sprintf("Range[%d]", g)
		labels[c+1] = fmt.Sprintf("VEL[%d]", g)
		labels[c+2] = fmt.Sprintf("CNR[%d]", g)
		labels[c+3] = fmt.Sprintf("WIDTH[%d]", g)
	}

	for i := 0; i < sysCols; i++ {
		switch i {
		case 7:
			labels = append(labels, "Roll")
		case 8:
			labels = append(labels, "Pitch")
		default:
			labels = append(labels, fmt.Sprintf("System %d", i))
		}
	}
	return labels, nil
}

func (*Windscanner) Canonicalize(src *domain.Source, opts Options) (*domain.Batch, Report, error) {
	gates, err := windscannerGates(src)
	if err != nil {
		return nil, Report{Records: len(src.Records)}, err
	}
	b, _, rep, err := build(windscannerFormat, windscannerProduct, src, gates, opts)
	if err != nil {
		return nil, rep, err
	}

	az, _ := series(b, "azimuth_angle")
	el, _ := series(b, "elevation_angle")
	addSeries(b, "azimuth_sweep", domain.SweepSeries(az), "degrees", "azimuth_sector_swept_during_accumulation")
	addSeries(b, "elevation_sweep", domain.SweepSeries(el), "degrees", "elevation_sector_swept_during_accumulation")
	setScanType(b, domain.ClassifyScan(az, el, opts.BeamSweeping))
	return b, rep, nil
}

// windscannerGates reads the range gate distances from the first intact row.
func windscannerGates(src *domain.Source) ([]float64, error) {
	kept, _ := domain.FilterCorrupt(src.Records)
	if len(kept) == 0 {
		return nil, &domain.HeaderFormatError{Reason: "no intact rows to read range gates from"}
	}
	var gates []float64
	for c, label := range src.Labels {
		if strings.HasPrefix(label, "Range[") && c < len(kept[0]) {
			gates = append(gates, domain.ParseNumber(kept[0][c], false))
		}
	}
	return gates, nil
}
