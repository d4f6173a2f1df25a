package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// OrderPolicy decides what happens to a batch that would make time decrease.
type OrderPolicy int

const (
	// OrderReject refuses the batch with an OutOfOrderError.
	OrderReject OrderPolicy = iota
	// OrderWarn logs the violation and appends anyway.
	OrderWarn
)

// ParseOrderPolicy reads "reject" or "warn".
func ParseOrderPolicy(s string) (OrderPolicy, error) {
	switch s {
	case "reject", "":
		return OrderReject, nil
	case "warn":
		return OrderWarn, nil
	}
	return OrderReject, fmt.Errorf("unknown order policy %q", s)
}

func (p OrderPolicy) String() string {
	if p == OrderWarn {
		return "warn"
	}
	return "reject"
}

// AppendResult describes where a batch landed in the dataset.
type AppendResult struct {
	Created bool
	Start   int
	End     int
	Skipped []string // batch variables unknown to an existing dataset
}

// Appender extends canonical datasets with new batches.
// It assumes exclusive access to the sink for the duration of a call.
type Appender struct {
	Order  OrderPolicy
	Logger *slog.Logger
}

// NewAppender creates an Appender with the given ordering policy.
func NewAppender(order OrderPolicy, logger *slog.Logger) *Appender {
	return &Appender{Order: order, Logger: logger}
}

// Append writes b at [N, N+M) of every time-indexed variable. Either the whole
// batch is written or, on error, the dataset keeps extent N. A new dataset
// is only created from a batch with at least one record.
func (a *Appender) Append(sink Sink, b *Batch) (AppendResult, error) {
	if err := b.Validate(); err != nil {
		return AppendResult{}, err
	}
	if err := a.checkBatchOrder(b); err != nil {
		return AppendResult{}, err
	}

	extent, err := sink.DimensionExtent(DimRange)
	created := false
	switch {
	case errors.Is(err, ErrDimensionNotFound):
		if b.Len() == 0 {
			return AppendResult{}, ErrEmptyBatch
		}
		if err := a.create(sink, b); err != nil {
			return AppendResult{}, fmt.Errorf("create dataset: %w", err)
		}
		created = true
	case err != nil:
		return AppendResult{}, fmt.Errorf("read range extent: %w", err)
	case extent != len(b.Range):
		return AppendResult{}, &DimensionMismatchError{Dimension: DimRange, Dataset: extent, Batch: len(b.Range)}
	}

	n, err := sink.DimensionExtent(DimTime)
	if err != nil {
		return AppendResult{}, fmt.Errorf("read time extent: %w", err)
	}
	if err := a.checkLastTime(sink, b, n); err != nil {
		return AppendResult{}, err
	}

	targets, skipped := a.targets(sink, b)
	res := AppendResult{Created: created, Start: n, End: n + b.Len(), Skipped: skipped}
	if b.Len() == 0 {
		return res, nil
	}

	for _, v := range targets {
		vals, ok := b.Data[v.Name]
		if !ok {
			vals = fillValues(v, b.ExpectedLen(v))
		}
		if err := sink.WriteSlice(v.Name, res.Start, res.End, vals); err != nil {
			return AppendResult{}, a.rollback(sink, n, fmt.Errorf("write %s[%d:%d]: %w", v.Name, res.Start, res.End, err))
		}
	}

	if got, err := sink.DimensionExtent(DimTime); err != nil || got != res.End {
		return AppendResult{}, a.rollback(sink, n, fmt.Errorf("time extent %d after append, want %d", got, res.End))
	}
	return res, nil
}

// create declares the dimensions and every variable before any time slice is written.
func (a *Appender) create(sink Sink, b *Batch) error {
	if err := sink.DeclareDimension(DimRange, len(b.Range)); err != nil {
		return err
	}
	if err := sink.DeclareDimension(DimTime, Unlimited); err != nil {
		return err
	}
	for _, v := range b.Variables {
		if err := sink.DeclareVariable(v); err != nil {
			return fmt.Errorf("declare %s: %w", v.Name, err)
		}
	}
	for _, v := range b.Variables {
		if v.TimeIndexed() {
			continue
		}
		n := b.ExpectedLen(v)
		if err := sink.WriteSlice(v.Name, 0, n, b.Data[v.Name]); err != nil {
			return fmt.Errorf("write %s: %w", v.Name, err)
		}
	}
	if aw, ok := sink.(AttributeWriter); ok {
		for _, attr := range b.Attributes {
			if err := aw.SetAttribute(attr.Key, attr.Value); err != nil {
				return fmt.Errorf("set attribute %s: %w", attr.Key, err)
			}
		}
	}
	return nil
}

// checkBatchOrder applies the ordering policy within the batch. It runs
// before anything is declared so a rejected batch leaves no trace.
func (a *Appender) checkBatchOrder(b *Batch) error {
	for i := 1; i < b.Len(); i++ {
		if b.Times[i].Before(b.Times[i-1]) {
			return a.violation(b, &OutOfOrderError{Last: b.Times[i-1], First: b.Times[i]})
		}
	}
	return nil
}

// checkLastTime applies the ordering policy against the last stored time.
func (a *Appender) checkLastTime(sink Sink, b *Batch, n int) error {
	if n == 0 || b.Len() == 0 {
		return nil
	}
	if last, ok := LastTime(sink); ok && b.Times[0].Before(last) {
		return a.violation(b, &OutOfOrderError{Last: last, First: b.Times[0]})
	}
	return nil
}

func (a *Appender) violation(b *Batch, err *OutOfOrderError) error {
	if a.Order == OrderReject {
		return err
	}
	a.logger().Warn("appending out of order batch",
		"source", b.Source,
		"last", FormatISO(err.Last),
		"first", FormatISO(err.First),
	)
	return nil
}

// targets lists the time-indexed variables to write. For an existing dataset
// these are the declared ones; batch variables it never declared are skipped.
func (a *Appender) targets(sink Sink, b *Batch) ([]Variable, []string) {
	lister, ok := sink.(VariableLister)
	if !ok {
		return timeIndexed(b.Variables), nil
	}
	declared := timeIndexed(lister.Variables())
	known := make(map[string]bool, len(declared))
	for _, v := range declared {
		known[v.Name] = true
	}
	var skipped []string
	for _, v := range timeIndexed(b.Variables) {
		if !known[v.Name] {
			skipped = append(skipped, v.Name)
		}
	}
	if len(skipped) > 0 {
		a.logger().Warn("dataset does not declare batch variables, skipping them",
			"source", b.Source, "variables", skipped)
	}
	return declared, skipped
}

func (a *Appender) rollback(sink Sink, extent int, cause error) error {
	t, ok := sink.(Truncater)
	if !ok {
		return fmt.Errorf("%w (dataset may be partially extended)", cause)
	}
	if err := t.Truncate(DimTime, extent); err != nil {
		return fmt.Errorf("%w (rollback failed: %v)", cause, err)
	}
	return cause
}

func (a *Appender) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func timeIndexed(vars []Variable) []Variable {
	out := make([]Variable, 0, len(vars))
	for _, v := range vars {
		if v.TimeIndexed() {
			out = append(out, v)
		}
	}
	return out
}

// fillValues stands in for a declared variable the batch does not carry.
func fillValues(v Variable, n int) Values {
	if v.Type == String {
		return Values{Texts: make([]string, n)}
	}
	f := make([]float64, n)
	for i := range f {
		f[i] = math.NaN()
	}
	return Values{Floats: f}
}

// LastTime reads the newest stored timestamp, if the sink can read back values.
func LastTime(sink Sink) (time.Time, bool) {
	reader, ok := sink.(SliceReader)
	if !ok {
		return time.Time{}, false
	}
	n, err := sink.DimensionExtent(DimTime)
	if err != nil || n == 0 {
		return time.Time{}, false
	}
	last, err := reader.ReadSlice(DimTime, n-1, n)
	if err != nil || len(last.Texts) != 1 {
		return time.Time{}, false
	}
	t, err := ParseISO(last.Texts[0])
	return t, err == nil
}
