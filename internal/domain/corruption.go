package domain

// RawRecord is one observation row, positionally aligned to the format's column layout.
type RawRecord []string

// ModeColumnCount returns the most frequent column count in records.
// Ties resolve to the larger count: a power loss truncates rows, it never widens them.
func ModeColumnCount(records []RawRecord) int {
	counts := make(map[int]int)
	for _, r := range records {
		counts[len(r)]++
	}
	mode, best := 0, 0
	for cols, n := range counts {
		if n > best || (n == best && cols > mode) {
			mode, best = cols, n
		}
	}
	return mode
}

// FilterCorrupt drops every record whose column count differs from the mode
// and returns a single warning for the batch, or nil when nothing was dropped.
func FilterCorrupt(records []RawRecord) ([]RawRecord, *RowCorruptionWarning) {
	distinct := make(map[int]struct{})
	for _, r := range records {
		distinct[len(r)] = struct{}{}
	}
	if len(distinct) < 2 {
		return records, nil
	}

	mode := ModeColumnCount(records)
	kept := make([]RawRecord, 0, len(records))
	for _, r := range records {
		if len(r) == mode {
			kept = append(kept, r)
		}
	}
	return kept, &RowCorruptionWarning{
		Dropped: len(records) - len(kept),
		Total:   len(records),
		Columns: mode,
	}
}
