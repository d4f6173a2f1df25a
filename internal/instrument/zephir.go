package instrument

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"golang.org/x/text/encoding/charmap"
)

const (
	zephirFormat     = "zephir300"
	zephirOneSecond  = "one_second"
	zephirTenMinute  = "ten_minute"
	zephirHeights    = "Measurement heights"
	zephirMetHeight  = 1
	zephirRainShare  = "proportion_of_rain"
	zephirRainFlag   = "rain"
	zephirSerialAttr = "serial_number"
)

var zephirSerial = regexp.MustCompile(`Wind\d\w?_(\d+)@Y`)

// ZephIR reads ZephIR 300 CSV exports. The first line is a header of
// "key: value" fields; the second holds the column labels. Files named
// Wind10_* carry 10-minute averages, the others 1-second data.
type ZephIR struct{}

// NewZephIR creates the ZephIR 300 format.
func NewZephIR() *ZephIR { return &ZephIR{} }

func (*ZephIR) Name() string { return zephirFormat }

func (*ZephIR) Accepts(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "Wind") && hasExt(path, ".csv", ".CSV")
}

func (*ZephIR) DatasetName(src *domain.Source) string {
	serial, _ := src.Header.String(zephirSerialAttr)
	return datasetName(zephirFormat, serial, src.Product)
}

func (*ZephIR) Read(path string) (*domain.Source, error) {
	lines, err := readLines(path, charmap.ISO8859_1)
	if err != nil {
		return nil, err
	}
	if len(lines) < 2 {
		return nil, &domain.HeaderFormatError{Reason: "missing header or column label line"}
	}

	// the separator is whichever of ',' and ';' dominates the header line;
	// ';' files use a decimal comma
	sep := ","
	if strings.Count(lines[0], ";") >= strings.Count(lines[0], ",") {
		sep = ";"
	}
	header, _, err := domain.ParseHeader(splitFields(lines[0], sep), domain.HeaderSpec{
		Delimiter: ":",
		Lists:     map[string]string{zephirHeights: "m"},
		Required:  []string{zephirHeights},
	})
	if err != nil {
		return nil, err
	}
	if m := zephirSerial.FindStringSubmatch(filepath.Base(path)); m != nil {
		header = header.Merge(domain.RawHeader{zephirSerialAttr: {Kind: domain.KindString, Str: m[1]}})
	}

	product := zephirOneSecond
	if strings.HasPrefix(filepath.Base(path), "Wind10") {
		product = zephirTenMinute
	}
	return &domain.Source{
		Path:         path,
		Paths:        []string{path},
		Product:      product,
		Header:       header,
		Labels:       splitFields(lines[1], sep),
		Records:      splitRecords(lines[2:], sep),
		DecimalComma: sep == ";",
	}, nil
}

// Canonicalize maps the lidar heights plus the met mast level at 1 m onto
// the range dimension.
func (*ZephIR) Canonicalize(src *domain.Source, opts Options) (*domain.Batch, Report, error) {
	heights, _ := src.Header.List(zephirHeights)
	gates := append(append([]float64(nil), heights...), zephirMetHeight)

	b, _, rep, err := build(zephirFormat, src.Product, src, gates, opts)
	if err != nil {
		return nil, rep, err
	}
	if _, ok := b.Data[zephirRainShare]; ok {
		b.Remove(zephirRainFlag)
	}

	addScalar(b, "accumulation_time", 1.0, "seconds", "time_for_spectral_accumulation")
	setScanType(b, domain.ScanLOS)
	if serial, ok := src.Header.String(zephirSerialAttr); ok {
		b.SetAttribute(zephirSerialAttr, serial)
	}
	return b, rep, nil
}
