// Package domain canonicalizes vendor lidar output into a shared array schema.
//
// # Data Source
//
// Wind lidars write one text file per measurement period. Every vendor uses
// its own layout: a header block of instrument parameters followed by
// delimited rows, one row per time step (Galion writes one row per range gate
// and time step). The instrument package knows each layout; this package holds
// the logic shared by all of them.
//
// # Header Conventions
//
//	Windcube:   "HeaderSize=37" then 37 "Key=Value" lines
//	ZephIR 300: one line of "Key:Value" fields separated like the data rows
//	Galion:     six "Key<TAB>Value" lines
//
// Values are coerced to int, then float, then kept as text; that order is
// fixed. Range gate lists such as "Altitudes(m)=\t40\t60\t80" become ordered
// float sequences.
//
// # Time Conventions
//
// Timestamps are normalized to UTC and stored as ISO-8601 strings with a
// "Z" suffix, e.g. "2020-07-01T10:00:00Z". String layouts are tried in order
// per vendor; Windscanner writes seconds since 1904-01-01.
//
// # Scan Geometry
//
// The scan_type variable uses these codes:
//
//	0 OTHER | 1 LOS (fixed beam) | 2 DBS (Doppler beam swinging)
//	4 PPI (azimuth sweep)        | 5 RHI (elevation sweep)
//
// It is derived from the median absolute change of azimuth and elevation
// between consecutive records plus the configured beam_sweeping flag. See
// [ClassifyScan].
//
// # Dataset Invariants
//
// The dataset has a fixed "range" dimension and an unlimited "time"
// dimension. Every (time) and (time, range) variable has exactly as many time
// steps as the time dimension. [Appender.Append] writes a batch to all of them
// at [N, N+M) or to none.
package domain
