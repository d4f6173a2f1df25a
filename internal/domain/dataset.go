package domain

import (
	"fmt"
	"time"
)

// Dimension names of the canonical dataset.
const (
	DimTime  = "time"
	DimRange = "range"
)

// Unlimited declares a dimension that grows by append.
const Unlimited = 0

// DataType is the storage type of a canonical variable.
type DataType int

const (
	Float32 DataType = iota
	Int32
	String
)

func (t DataType) String() string {
	switch t {
	case Int32:
		return "int32"
	case String:
		return "string"
	default:
		return "float32"
	}
}

// Attribute is one descriptive key/value pair on a variable or dataset.
type Attribute struct {
	Key   string
	Value string
}

// Variable declares a named array of the canonical schema.
type Variable struct {
	Name  string
	Type  DataType
	Dims  []string
	Attrs []Attribute
}

// TimeIndexed reports whether the variable grows along the time dimension.
func (v Variable) TimeIndexed() bool {
	return len(v.Dims) > 0 && v.Dims[0] == DimTime
}

// Attr returns the value of attribute key, if set.
func (v Variable) Attr(key string) (string, bool) {
	for _, a := range v.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Values holds the data for a slice of one variable. Numeric variables use
// Floats, string variables use Texts. (time, range) data is row-major.
type Values struct {
	Floats []float64
	Texts  []string
}

// Len is the number of stored elements.
func (v Values) Len() int {
	if v.Texts != nil {
		return len(v.Texts)
	}
	return len(v.Floats)
}

// Batch is the canonical form of one ingested file: M time steps over R range gates.
type Batch struct {
	Source     string
	Format     string
	Times      []time.Time
	Range      []float64
	ScanType   ScanType
	Variables  []Variable
	Data       map[string]Values
	Attributes []Attribute
}

// NewBatch starts a batch with the range and time coordinate variables filled in.
func NewBatch(source, format string, times []time.Time, rangeGates []float64) *Batch {
	b := &Batch{
		Source: source,
		Format: format,
		Times:  times,
		Range:  rangeGates,
		Data:   make(map[string]Values),
	}
	iso := make([]string, len(times))
	for i, t := range times {
		iso[i] = FormatISO(t)
	}
	b.Add(Variable{
		Name: DimRange,
		Type: Float32,
		Dims: []string{DimRange},
		Attrs: []Attribute{
			{Key: "units", Value: "m"},
			{Key: "long_name", Value: "range_gate_distance_from_lidar"},
		},
	}, Values{Floats: rangeGates})
	b.Add(Variable{
		Name: DimTime,
		Type: String,
		Dims: []string{DimTime},
		Attrs: []Attribute{
			{Key: "units", Value: "s"},
			{Key: "long_name", Value: "Time UTC in ISO 8601 format yyyy-mm-ddThh:mm:ssZ"},
		},
	}, Values{Texts: iso})
	return b
}

// Len is the number of time steps in the batch.
func (b *Batch) Len() int { return len(b.Times) }

// Add declares v and stores its values, replacing an earlier declaration of the same name.
func (b *Batch) Add(v Variable, vals Values) {
	if _, exists := b.Data[v.Name]; exists {
		for i := range b.Variables {
			if b.Variables[i].Name == v.Name {
				b.Variables[i] = v
			}
		}
	} else {
		b.Variables = append(b.Variables, v)
	}
	b.Data[v.Name] = vals
}

// Remove drops a variable and its values from the batch.
func (b *Batch) Remove(name string) {
	for i := range b.Variables {
		if b.Variables[i].Name == name {
			b.Variables = append(b.Variables[:i], b.Variables[i+1:]...)
			break
		}
	}
	delete(b.Data, name)
}

// AddScalar declares a dimensionless variable holding x.
func (b *Batch) AddScalar(name string, typ DataType, x float64, attrs ...Attribute) {
	b.Add(Variable{Name: name, Type: typ, Attrs: attrs}, Values{Floats: []float64{x}})
}

// AddSeries declares a (time) float variable.
func (b *Batch) AddSeries(name string, xs []float64, attrs ...Attribute) {
	b.Add(Variable{Name: name, Type: Float32, Dims: []string{DimTime}, Attrs: attrs}, Values{Floats: xs})
}

// SetAttribute sets a global dataset attribute.
func (b *Batch) SetAttribute(key, value string) {
	for i := range b.Attributes {
		if b.Attributes[i].Key == key {
			b.Attributes[i].Value = value
			return
		}
	}
	b.Attributes = append(b.Attributes, Attribute{Key: key, Value: value})
}

// Variable looks up a declared variable by name.
func (b *Batch) Variable(name string) (Variable, bool) {
	for _, v := range b.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// ExpectedLen is the number of values v must carry in this batch.
func (b *Batch) ExpectedLen(v Variable) int {
	n := 1
	for _, d := range v.Dims {
		switch d {
		case DimTime:
			n *= b.Len()
		case DimRange:
			n *= len(b.Range)
		}
	}
	return n
}

// Validate checks that every variable carries exactly the values its dimensions require.
func (b *Batch) Validate() error {
	for _, v := range b.Variables {
		vals, ok := b.Data[v.Name]
		if !ok {
			return &SchemaMappingError{Variable: v.Name, Reason: "declared without values"}
		}
		if (v.Type == String) != (vals.Texts != nil) {
			return &SchemaMappingError{Variable: v.Name, Reason: fmt.Sprintf("values do not match type %s", v.Type)}
		}
		if want := b.ExpectedLen(v); vals.Len() != want {
			return &SchemaMappingError{
				Variable: v.Name,
				Reason:   fmt.Sprintf("has %d values, dimensions %v require %d", vals.Len(), v.Dims, want),
			}
		}
	}
	return nil
}
