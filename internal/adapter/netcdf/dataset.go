// Package netcdf stores canonical datasets as NetCDF classic files. A dataset
// is held in memory while batches are appended and rewritten atomically on
// Flush.
package netcdf

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/couchcryptid/lidar-ingest/internal/domain"
)

const (
	// strlenSuffix names the character dimension of a string variable.
	strlenSuffix = "_strlen"
	// intFill is the NetCDF default fill value for int variables.
	intFill = -2147483647
)

// ErrNoRecords is returned by Flush for a dataset that declares time-indexed
// variables but holds no time steps. Classic files cannot keep such
// declarations, so the file would not reopen as the same dataset.
var ErrNoRecords = errors.New("dataset has no records to write")

// Dataset is a canonical dataset backed by one NetCDF file.
// It implements domain.Dataset and every optional sink capability.
type Dataset struct {
	path  string
	dims  map[string]int
	vars  []domain.Variable
	data  map[string]domain.Values
	attrs []domain.Attribute
	dirty bool
}

// New creates an empty dataset that will be written to path on Flush.
func New(path string) *Dataset {
	return &Dataset{
		path: path,
		dims: make(map[string]int),
		data: make(map[string]domain.Values),
	}
}

// Path is the file the dataset is flushed to.
func (d *Dataset) Path() string { return d.path }

// Attributes returns the global attributes.
func (d *Dataset) Attributes() []domain.Attribute {
	return append([]domain.Attribute(nil), d.attrs...)
}

func (d *Dataset) DeclareDimension(name string, size int) error {
	if _, ok := d.dims[name]; ok {
		return fmt.Errorf("dimension %s already declared", name)
	}
	if size < 0 {
		return fmt.Errorf("dimension %s: negative size %d", name, size)
	}
	d.dims[name] = size
	d.dirty = true
	return nil
}

func (d *Dataset) DeclareVariable(v domain.Variable) error {
	if _, ok := d.variable(v.Name); ok {
		return fmt.Errorf("variable %s already declared", v.Name)
	}
	for _, dim := range v.Dims {
		if _, ok := d.dims[dim]; !ok {
			return fmt.Errorf("variable %s: %w: %s", v.Name, domain.ErrDimensionNotFound, dim)
		}
	}
	d.vars = append(d.vars, v)
	if v.Type == domain.String {
		d.data[v.Name] = domain.Values{Texts: []string{}}
	} else {
		d.data[v.Name] = domain.Values{Floats: []float64{}}
	}
	d.dirty = true
	return nil
}

func (d *Dataset) DimensionExtent(name string) (int, error) {
	n, ok := d.dims[name]
	if !ok {
		return 0, domain.ErrDimensionNotFound
	}
	return n, nil
}

// WriteSlice stores values at [start, end) of the variable's first
// dimension. Time slices may extend the time dimension but not leave a gap.
func (d *Dataset) WriteSlice(name string, start, end int, values domain.Values) error {
	v, ok := d.variable(name)
	if !ok {
		return fmt.Errorf("variable %s not declared", name)
	}
	if (v.Type == domain.String) != (values.Texts != nil) && values.Len() > 0 {
		return fmt.Errorf("write %s: values do not match type %s", name, v.Type)
	}
	if start < 0 || end < start {
		return fmt.Errorf("write %s: invalid slice [%d:%d]", name, start, end)
	}

	w := d.width(v)
	if v.TimeIndexed() {
		if start > d.dims[domain.DimTime] {
			return fmt.Errorf("write %s at %d leaves a gap after time extent %d", name, start, d.dims[domain.DimTime])
		}
	} else if end > d.extent(v) {
		return fmt.Errorf("write %s: slice [%d:%d] exceeds size %d", name, start, end, d.extent(v))
	}
	if values.Len() != (end-start)*w {
		return fmt.Errorf("write %s: %d values for %d rows of %d", name, values.Len(), end-start, w)
	}

	col := grow(d.data[name], v.Type, end*w)
	if v.Type == domain.String {
		copy(col.Texts[start*w:], values.Texts)
	} else {
		copy(col.Floats[start*w:], values.Floats)
	}
	d.data[name] = col
	if v.TimeIndexed() && end > d.dims[domain.DimTime] {
		d.dims[domain.DimTime] = end
	}
	d.dirty = true
	return nil
}

func (d *Dataset) ReadSlice(name string, start, end int) (domain.Values, error) {
	v, ok := d.variable(name)
	if !ok {
		return domain.Values{}, fmt.Errorf("variable %s not declared", name)
	}
	limit := d.extent(v)
	if v.TimeIndexed() {
		limit = d.dims[domain.DimTime]
	}
	if start < 0 || end < start || end > limit {
		return domain.Values{}, fmt.Errorf("read %s: slice [%d:%d] out of range %d", name, start, end, limit)
	}
	w := d.width(v)
	col := grow(d.data[name], v.Type, end*w)
	if v.Type == domain.String {
		return domain.Values{Texts: append([]string{}, col.Texts[start*w:end*w]...)}, nil
	}
	return domain.Values{Floats: append([]float64{}, col.Floats[start*w:end*w]...)}, nil
}

func (d *Dataset) Variables() []domain.Variable {
	return append([]domain.Variable(nil), d.vars...)
}

// Truncate shrinks the time dimension to extent.
func (d *Dataset) Truncate(dim string, extent int) error {
	if dim != domain.DimTime {
		return fmt.Errorf("truncate %s: only the time dimension can shrink", dim)
	}
	if extent < 0 || extent > d.dims[domain.DimTime] {
		return fmt.Errorf("truncate time to %d: extent is %d", extent, d.dims[domain.DimTime])
	}
	for _, v := range d.vars {
		if !v.TimeIndexed() {
			continue
		}
		n := extent * d.width(v)
		col := d.data[v.Name]
		if col.Len() <= n {
			continue
		}
		if v.Type == domain.String {
			col.Texts = col.Texts[:n]
		} else {
			col.Floats = col.Floats[:n]
		}
		d.data[v.Name] = col
	}
	d.dims[domain.DimTime] = extent
	d.dirty = true
	return nil
}

func (d *Dataset) SetAttribute(key, value string) error {
	for i := range d.attrs {
		if d.attrs[i].Key == key {
			if d.attrs[i].Value != value {
				d.attrs[i].Value = value
				d.dirty = true
			}
			return nil
		}
	}
	d.attrs = append(d.attrs, domain.Attribute{Key: key, Value: value})
	d.dirty = true
	return nil
}

// Flush writes the whole dataset to a temporary file next to the target and
// renames it into place, so a failed flush leaves the previous file intact.
func (d *Dataset) Flush() error {
	if !d.dirty {
		return nil
	}
	if d.dims[domain.DimTime] == 0 && d.hasTimeIndexed() {
		return ErrNoRecords
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "."+filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := d.writeTo(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", d.path, err)
	}
	d.dirty = false
	return nil
}

func (d *Dataset) hasTimeIndexed() bool {
	for _, v := range d.vars {
		if v.TimeIndexed() {
			return true
		}
	}
	return false
}

func (d *Dataset) writeTo(path string) (err error) {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cw.Close(); err == nil {
			err = cerr
		}
	}()

	for _, v := range d.vars {
		nv, err := d.encode(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", v.Name, err)
		}
		if err := cw.AddVar(v.Name, nv); err != nil {
			return fmt.Errorf("add variable %s: %w", v.Name, err)
		}
	}

	global, err := orderedAttrs(d.attrs)
	if err != nil {
		return err
	}
	return cw.AddGlobalAttrs(global)
}

// encode converts one variable to the Go shape the writer expects: a scalar,
// a slice, or a slice of rows for (time, range) data.
func (d *Dataset) encode(v domain.Variable) (api.Variable, error) {
	attrs, err := orderedAttrs(v.Attrs)
	if err != nil {
		return api.Variable{}, err
	}
	n := d.extent(v)
	if v.TimeIndexed() {
		n = d.dims[domain.DimTime] * d.width(v)
	}
	col := grow(d.data[v.Name], v.Type, n)
	rows := 0
	if len(v.Dims) == 2 {
		rows = d.dims[v.Dims[0]]
	}

	var values any
	dims := append([]string(nil), v.Dims...)
	switch v.Type {
	case domain.String:
		texts := padTexts(col.Texts[:n])
		dims = append(dims, v.Name+strlenSuffix)
		if len(v.Dims) == 0 {
			values = texts[0]
		} else {
			values = texts
		}
	case domain.Int32:
		ints := make([]int32, n)
		for i, f := range col.Floats[:n] {
			ints[i] = toInt32(f)
		}
		values = shape(ints, len(v.Dims), rows)
	default:
		floats := make([]float32, n)
		for i, f := range col.Floats[:n] {
			floats[i] = float32(f)
		}
		values = shape(floats, len(v.Dims), rows)
	}
	return api.Variable{Values: values, Dimensions: dims, Attributes: attrs}, nil
}

func shape[T float32 | int32](flat []T, rank, rows int) any {
	switch rank {
	case 0:
		return flat[0]
	case 1:
		return flat
	}
	w := 0
	if rows > 0 {
		w = len(flat) / rows
	}
	out := make([][]T, rows)
	for i := range out {
		out[i] = flat[i*w : (i+1)*w]
	}
	return out
}

// padTexts NUL-pads strings to a common length of at least one byte.
func padTexts(texts []string) []string {
	width := 1
	for _, s := range texts {
		width = max(width, len(s))
	}
	out := make([]string, len(texts))
	for i, s := range texts {
		out[i] = s + strings.Repeat("\x00", width-len(s))
	}
	if len(out) == 0 {
		out = []string{strings.Repeat("\x00", width)}
	}
	return out
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return intFill
	}
	return int32(f)
}

func orderedAttrs(attrs []domain.Attribute) (*util.OrderedMap, error) {
	keys := make([]string, 0, len(attrs))
	vals := make(map[string]any, len(attrs))
	for _, a := range attrs {
		if _, dup := vals[a.Key]; !dup {
			keys = append(keys, a.Key)
		}
		vals[a.Key] = a.Value
	}
	m, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return nil, fmt.Errorf("build attributes: %w", err)
	}
	return m, nil
}

func (d *Dataset) variable(name string) (domain.Variable, bool) {
	for _, v := range d.vars {
		if v.Name == name {
			return v, true
		}
	}
	return domain.Variable{}, false
}

// width is the number of values per step of the variable's first dimension.
func (d *Dataset) width(v domain.Variable) int {
	w := 1
	if len(v.Dims) > 1 {
		for _, dim := range v.Dims[1:] {
			w *= d.dims[dim]
		}
	}
	return w
}

// extent is the number of steps along the first dimension of a variable
// that is not time-indexed; scalars have one.
func (d *Dataset) extent(v domain.Variable) int {
	if len(v.Dims) == 0 {
		return 1
	}
	return d.dims[v.Dims[0]]
}

// grow pads a column with fill values up to n elements.
func grow(col domain.Values, typ domain.DataType, n int) domain.Values {
	if typ == domain.String {
		for len(col.Texts) < n {
			col.Texts = append(col.Texts, "")
		}
		if col.Texts == nil {
			col.Texts = []string{}
		}
		return col
	}
	for len(col.Floats) < n {
		col.Floats = append(col.Floats, math.NaN())
	}
	return col
}

var errUnsupported = errors.New("unsupported value type")
