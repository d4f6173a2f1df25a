package pipeline

import (
	"fmt"
	"time"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"github.com/couchcryptid/lidar-ingest/internal/instrument"
)

// Canonical is a source file turned into a batch, ready to append.
type Canonical struct {
	Format  string
	Dataset string
	Source  *domain.Source
	Batch   *domain.Batch
	Report  instrument.Report
}

// Span returns the first and last time of the batch.
func (c *Canonical) Span() (first, last time.Time) {
	if c.Batch == nil || c.Batch.Len() == 0 {
		return time.Time{}, time.Time{}
	}
	return c.Batch.Times[0], c.Batch.Times[c.Batch.Len()-1]
}

// Canonicalizer implements Transformer by running a format's reader and
// canonicalization with fixed options.
type Canonicalizer struct {
	opts instrument.Options
}

// NewCanonicalizer creates a Canonicalizer.
func NewCanonicalizer(opts instrument.Options) *Canonicalizer {
	return &Canonicalizer{opts: opts}
}

func (c *Canonicalizer) Transform(f instrument.Format, path string) (*Canonical, error) {
	src, err := f.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	b, rep, err := f.Canonicalize(src, c.opts)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return &Canonical{
		Format:  f.Name(),
		Dataset: f.DatasetName(src),
		Source:  src,
		Batch:   b,
		Report:  rep,
	}, nil
}
