package domain

import (
	"errors"
	"fmt"
	"math"
)

// Verify checks a stored dataset for the invariants appends maintain: the
// range coordinate fills the range dimension, every timestamp parses, time
// never decreases, and scan_type holds a known code. It returns every
// violation found.
func Verify(sink Sink) []error {
	reader, ok := sink.(SliceReader)
	if !ok {
		return []error{errors.New("dataset cannot be read back")}
	}
	nRange, err := sink.DimensionExtent(DimRange)
	if err != nil {
		return []error{fmt.Errorf("range dimension: %w", err)}
	}
	nTime, err := sink.DimensionExtent(DimTime)
	if err != nil {
		return []error{fmt.Errorf("time dimension: %w", err)}
	}

	var problems []error
	if gates, err := reader.ReadSlice(DimRange, 0, nRange); err != nil {
		problems = append(problems, fmt.Errorf("read range: %w", err))
	} else if gates.Len() != nRange {
		problems = append(problems, fmt.Errorf("range coordinate has %d values, dimension is %d", gates.Len(), nRange))
	} else {
		for i, g := range gates.Floats {
			if math.IsNaN(g) {
				problems = append(problems, fmt.Errorf("range gate %d is missing", i))
			}
		}
	}

	if times, err := reader.ReadSlice(DimTime, 0, nTime); err != nil {
		problems = append(problems, fmt.Errorf("read time: %w", err))
	} else {
		problems = append(problems, verifyTimes(times.Texts)...)
	}

	if st, err := reader.ReadSlice("scan_type", 0, 1); err != nil {
		problems = append(problems, fmt.Errorf("read scan_type: %w", err))
	} else if st.Len() != 1 || !knownScanType(st.Floats[0]) {
		problems = append(problems, fmt.Errorf("scan_type %v is not a known code", st.Floats))
	}
	return problems
}

func verifyTimes(texts []string) []error {
	var problems []error
	var prev string
	for i, s := range texts {
		t, err := ParseISO(s)
		if err != nil {
			problems = append(problems, fmt.Errorf("time[%d] %q: %w", i, s, err))
			continue
		}
		if prev != "" {
			if p, _ := ParseISO(prev); t.Before(p) {
				problems = append(problems, &OutOfOrderError{Last: p, First: t})
			}
		}
		prev = s
	}
	return problems
}

func knownScanType(x float64) bool {
	switch ScanType(x) {
	case ScanOther, ScanLOS, ScanDBS, ScanPPI, ScanRHI:
		return float64(ScanType(x)) == x
	}
	return false
}
