package domain

// Sink is the persistent array dataset the append engine writes into.
// Implementations return ErrDimensionNotFound from DimensionExtent for an
// undeclared dimension.
type Sink interface {
	DeclareDimension(name string, size int) error
	DeclareVariable(v Variable) error
	// WriteSlice stores values at [start, end) along the variable's first
	// dimension. Writing past the current time extent extends it.
	WriteSlice(name string, start, end int, values Values) error
	DimensionExtent(name string) (int, error)
}

// SliceReader is implemented by sinks that can read back stored values.
type SliceReader interface {
	ReadSlice(name string, start, end int) (Values, error)
}

// VariableLister is implemented by sinks that can enumerate declared variables.
type VariableLister interface {
	Variables() []Variable
}

// Truncater is implemented by sinks that can shrink a dimension, used to roll
// back a failed append.
type Truncater interface {
	Truncate(dim string, extent int) error
}

// AttributeWriter is implemented by sinks that store global attributes.
type AttributeWriter interface {
	SetAttribute(key, value string) error
}

// Dataset is a sink backed by durable storage.
type Dataset interface {
	Sink
	// Flush persists all appended data. A failed flush leaves the stored copy untouched.
	Flush() error
}

// Store opens canonical datasets by name, creating empty ones on first use.
type Store interface {
	Open(name string) (Dataset, error)
}
