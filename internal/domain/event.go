package domain

import "time"

// Ingest outcomes recorded per source file.
const (
	StatusIngested = "ingested"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// IngestEvent describes what happened to one source file. It is recorded in
// the ledger and published to downstream consumers.
type IngestEvent struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	Format      string    `json:"format,omitempty"`
	Dataset     string    `json:"dataset,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Records     int       `json:"records"`
	Dropped     int       `json:"dropped_rows"`
	Start       int       `json:"start_index"`
	End         int       `json:"end_index"`
	ScanType    string    `json:"scan_type,omitempty"`
	FirstTime   time.Time `json:"first_time,omitzero"`
	LastTime    time.Time `json:"last_time,omitzero"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Source is the raw content of one vendor file (or file pair) before canonicalization.
type Source struct {
	Path    string
	Paths   []string
	Product string
	Header  RawHeader
	Labels  []string
	Records []RawRecord
	// DecimalComma is set when numeric fields use ',' as decimal separator.
	DecimalComma bool
}
