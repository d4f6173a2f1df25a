package pipeline

import (
	"time"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"github.com/couchcryptid/lidar-ingest/internal/instrument"
)

// Inspection describes what ingesting a file would produce.
type Inspection struct {
	Path          string            `json:"path"`
	Format        string            `json:"format"`
	Dataset       string            `json:"dataset"`
	Header        domain.RawHeader  `json:"-"`
	Parameters    map[string]string `json:"header"`
	Rows          int               `json:"rows"`
	Records       int               `json:"records"`
	CorruptRows   int               `json:"corrupt_rows"`
	BadTimestamps int               `json:"bad_timestamps"`
	RangeGates    int               `json:"range_gates"`
	ScanType      string            `json:"scan_type"`
	FirstTime     time.Time         `json:"first_time,omitzero"`
	LastTime      time.Time         `json:"last_time,omitzero"`
	Variables     []string          `json:"variables"`
}

// Inspect reads and canonicalizes path without writing anything.
func Inspect(registry *instrument.Registry, t Transformer, path string) (*Inspection, error) {
	f, ok := registry.Detect(path)
	if !ok {
		return nil, &domain.FileError{Path: path, Err: ErrUnknownFormat}
	}
	c, err := t.Transform(f, path)
	if err != nil {
		return nil, &domain.FileError{Path: path, Err: err}
	}

	in := &Inspection{
		Path:          path,
		Format:        c.Format,
		Dataset:       c.Dataset,
		Header:        c.Source.Header,
		Parameters:    make(map[string]string, len(c.Source.Header)),
		Rows:          c.Report.Records,
		Records:       c.Batch.Len(),
		BadTimestamps: c.Report.BadTimestamps,
		RangeGates:    len(c.Batch.Range),
		ScanType:      c.Batch.ScanType.String(),
	}
	for k, v := range c.Source.Header {
		in.Parameters[k] = v.String()
	}
	if c.Report.Corruption != nil {
		in.CorruptRows = c.Report.Corruption.Dropped
	}
	in.FirstTime, in.LastTime = c.Span()
	for _, v := range c.Batch.Variables {
		in.Variables = append(in.Variables, v.Name)
	}
	return in, nil
}
