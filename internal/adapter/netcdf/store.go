package netcdf

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	gonetcdf "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/couchcryptid/lidar-ingest/internal/domain"
)

// Extension of canonical dataset files.
const Extension = ".nc"

// Store keeps one NetCDF file per dataset name in a directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the file backing the named dataset.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+Extension)
}

// Open loads the named dataset, or starts an empty one if no file exists yet.
func (s *Store) Open(name string) (domain.Dataset, error) {
	return openDataset(s.Path(name))
}

// FileStore sends every dataset name to the same file. Each Open reads the
// file afresh; callers holding one dataset per name must share it by Path.
type FileStore struct {
	path string
}

// NewFileStore creates a store that always opens path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Open(string) (domain.Dataset, error) {
	return openDataset(s.path)
}

func openDataset(path string) (domain.Dataset, error) {
	d, err := Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Open reads the dataset stored at path. A missing file yields an empty
// dataset that creates path on its first Flush.
func Open(path string) (*Dataset, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return New(path), nil
	} else if err != nil {
		return nil, err
	}

	g, err := gonetcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer g.Close()

	d := New(path)
	for _, name := range g.ListVariables() {
		vr, err := g.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("read %s in %s: %w", name, path, err)
		}
		v, vals, sizes, err := decode(name, vr)
		if err != nil {
			return nil, fmt.Errorf("read %s in %s: %w", name, path, err)
		}
		for dim, n := range sizes {
			if have, ok := d.dims[dim]; ok && have != n {
				return nil, &domain.DimensionMismatchError{Dimension: dim, Dataset: have, Batch: n}
			}
			d.dims[dim] = n
		}
		d.vars = append(d.vars, v)
		d.data[name] = vals
	}
	if _, ok := d.dims[domain.DimTime]; !ok && len(d.vars) > 0 {
		d.dims[domain.DimTime] = 0
	}
	d.attrs = attrsOf(g.Attributes())
	return d, nil
}

// decode converts a variable read from file back into canonical form and
// reports the sizes of its dimensions.
func decode(name string, vr *api.Variable) (domain.Variable, domain.Values, map[string]int, error) {
	var dims []string
	for _, dim := range vr.Dimensions {
		if !strings.HasSuffix(dim, strlenSuffix) {
			dims = append(dims, dim)
		}
	}
	v := domain.Variable{Name: name, Dims: dims, Attrs: attrsOf(vr.Attributes)}

	var vals domain.Values
	var rows, width int
	switch x := vr.Values.(type) {
	case float32:
		v.Type, vals.Floats = domain.Float32, []float64{float64(x)}
	case []float32:
		v.Type, vals.Floats, rows = domain.Float32, widen(x), len(x)
	case [][]float32:
		v.Type, vals.Floats, rows, width = domain.Float32, flatten(x), len(x), rowWidth(x)
	case float64:
		v.Type, vals.Floats = domain.Float32, []float64{x}
	case []float64:
		v.Type, vals.Floats, rows = domain.Float32, x, len(x)
	case [][]float64:
		v.Type, vals.Floats, rows, width = domain.Float32, flatten(x), len(x), rowWidth(x)
	case int32:
		v.Type, vals.Floats = domain.Int32, []float64{fromInt32(x)}
	case []int32:
		v.Type, rows = domain.Int32, len(x)
		for _, i := range x {
			vals.Floats = append(vals.Floats, fromInt32(i))
		}
	case string:
		v.Type, vals.Texts = domain.String, []string{trimNUL(x)}
	case []string:
		v.Type, rows = domain.String, len(x)
		vals.Texts = make([]string, len(x))
		for i, s := range x {
			vals.Texts[i] = trimNUL(s)
		}
	default:
		return v, vals, nil, fmt.Errorf("%w %T", errUnsupported, vr.Values)
	}

	sizes := map[string]int{}
	switch len(dims) {
	case 0:
	case 1:
		sizes[dims[0]] = rows
	case 2:
		sizes[dims[0]], sizes[dims[1]] = rows, width
	default:
		return v, vals, nil, fmt.Errorf("%w: rank %d", errUnsupported, len(dims))
	}
	return v, vals, sizes, nil
}

func attrsOf(m api.AttributeMap) []domain.Attribute {
	if m == nil {
		return nil
	}
	var attrs []domain.Attribute
	for _, key := range m.Keys() {
		val, _ := m.Get(key)
		s, ok := val.(string)
		if !ok {
			s = fmt.Sprint(val)
		}
		attrs = append(attrs, domain.Attribute{Key: key, Value: trimNUL(s)})
	}
	return attrs
}

func widen(xs []float32) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

func flatten[T float32 | float64](rows [][]T) []float64 {
	var out []float64
	for _, row := range rows {
		for _, x := range row {
			out = append(out, float64(x))
		}
	}
	return out
}

func rowWidth[T any](rows [][]T) int {
	if len(rows) == 0 {
		return 0
	}
	return len(rows[0])
}

func fromInt32(i int32) float64 {
	if i == intFill {
		return math.NaN()
	}
	return float64(i)
}

func trimNUL(s string) string {
	return strings.TrimRight(s, "\x00")
}
