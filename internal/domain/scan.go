package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ScanType is the beam-steering geometry of a measurement. The numeric codes
// are the values stored in the scan_type variable.
type ScanType int32

const (
	ScanOther ScanType = 0
	ScanLOS   ScanType = 1
	ScanDBS   ScanType = 2
	ScanPPI   ScanType = 4
	ScanRHI   ScanType = 5
)

func (s ScanType) String() string {
	switch s {
	case ScanLOS:
		return "LOS"
	case ScanDBS:
		return "DBS"
	case ScanPPI:
		return "PPI"
	case ScanRHI:
		return "RHI"
	default:
		return "OTHER"
	}
}

// ParseScanType reads a scan type name as written in configuration.
func ParseScanType(s string) (ScanType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOS":
		return ScanLOS, nil
	case "DBS":
		return ScanDBS, nil
	case "PPI":
		return ScanPPI, nil
	case "RHI":
		return ScanRHI, nil
	case "OTHER":
		return ScanOther, nil
	}
	return ScanOther, fmt.Errorf("unknown scan type %q", s)
}

// SweepSeries returns the absolute sample-to-sample change of angles. The
// first element has no predecessor and is NaN.
func SweepSeries(angles []float64) []float64 {
	out := make([]float64, len(angles))
	for i := range angles {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Abs(angles[i] - angles[i-1])
	}
	return out
}

// ClassifyScan infers the scan geometry from aligned azimuth and elevation
// series. It has no state: equal inputs always give the same answer.
func ClassifyScan(azimuth, elevation []float64, beamSweeping bool) ScanType {
	changingAzimuth := nanMedian(SweepSeries(azimuth)) > 0
	changingElevation := nanMedian(SweepSeries(elevation)) > 0

	switch {
	case !changingAzimuth && !changingElevation:
		return ScanLOS
	case changingAzimuth && !changingElevation && !beamSweeping:
		return ScanDBS
	case changingAzimuth && !changingElevation && beamSweeping:
		return ScanPPI
	case !changingAzimuth && changingElevation && beamSweeping:
		return ScanRHI
	default:
		return ScanOther
	}
}

// nanMedian is the median of the non-NaN values, or 0 when there are none.
func nanMedian(xs []float64) float64 {
	vals := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			vals = append(vals, x)
		}
	}
	n := len(vals)
	if n == 0 {
		return 0
	}
	sort.Float64s(vals)
	if n%2 == 1 {
		return stat.Quantile(0.5, stat.Empirical, vals, nil)
	}
	return stat.Mean(vals[n/2-1:n/2+1], nil)
}
