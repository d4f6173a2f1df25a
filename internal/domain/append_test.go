package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSink is an in-memory Sink with every optional capability.
type memSink struct {
	dims     map[string]int
	vars     []Variable
	data     map[string]Values
	attrs    map[string]string
	failOn   string
	readOnly bool
}

func newMemSink() *memSink {
	return &memSink{dims: map[string]int{}, data: map[string]Values{}, attrs: map[string]string{}}
}

func (s *memSink) DeclareDimension(name string, size int) error {
	s.dims[name] = size
	return nil
}

func (s *memSink) DeclareVariable(v Variable) error {
	s.vars = append(s.vars, v)
	if v.Type == String {
		s.data[v.Name] = Values{Texts: []string{}}
	} else {
		s.data[v.Name] = Values{Floats: []float64{}}
	}
	return nil
}

func (s *memSink) width(v Variable) int {
	w := 1
	if len(v.Dims) == 0 {
		return w
	}
	for _, d := range v.Dims[1:] {
		w *= s.dims[d]
	}
	return w
}

func (s *memSink) variable(name string) (Variable, bool) {
	for _, v := range s.vars {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

func (s *memSink) WriteSlice(name string, start, end int, values Values) error {
	if name == s.failOn {
		return errors.New("disk full")
	}
	v, ok := s.variable(name)
	if !ok {
		return fmt.Errorf("variable %s not declared", name)
	}
	w := 1
	if len(v.Dims) > 0 {
		w = s.width(v)
	}
	cur := s.data[name]
	if start*w != cur.Len() {
		return fmt.Errorf("write %s at %d, have %d rows", name, start, cur.Len()/w)
	}
	if values.Len() != (end-start)*w {
		return fmt.Errorf("write %s: %d values for %d rows", name, values.Len(), end-start)
	}
	cur.Floats = append(cur.Floats, values.Floats...)
	if v.Type == String {
		cur.Texts = append(cur.Texts, values.Texts...)
	}
	s.data[name] = cur
	if v.TimeIndexed() && end > s.dims[DimTime] {
		s.dims[DimTime] = end
	}
	return nil
}

func (s *memSink) DimensionExtent(name string) (int, error) {
	n, ok := s.dims[name]
	if !ok {
		return 0, ErrDimensionNotFound
	}
	return n, nil
}

func (s *memSink) ReadSlice(name string, start, end int) (Values, error) {
	v, _ := s.variable(name)
	w := s.width(v)
	cur := s.data[name]
	if v.Type == String {
		return Values{Texts: cur.Texts[start*w : end*w]}, nil
	}
	return Values{Floats: cur.Floats[start*w : end*w]}, nil
}

func (s *memSink) Variables() []Variable { return s.vars }

func (s *memSink) Truncate(dim string, extent int) error {
	if s.readOnly {
		return errors.New("read-only")
	}
	for _, v := range s.vars {
		if !v.TimeIndexed() {
			continue
		}
		n := extent * s.width(v)
		cur := s.data[v.Name]
		if cur.Len() <= n {
			continue
		}
		if v.Type == String {
			cur.Texts = cur.Texts[:n]
		} else {
			cur.Floats = cur.Floats[:n]
		}
		s.data[v.Name] = cur
	}
	s.dims[dim] = extent
	return nil
}

func (s *memSink) SetAttribute(key, value string) error {
	s.attrs[key] = value
	return nil
}

func (s *memSink) rows(name string) int {
	v, _ := s.variable(name)
	return s.data[name].Len() / s.width(v)
}

func testBatch(t *testing.T, start time.Time, m int, gates []float64) *Batch {
	t.Helper()
	times := make([]time.Time, m)
	ws := make([]float64, 0, m*len(gates))
	temp := make([]float64, m)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * 10 * time.Minute)
		temp[i] = 20 + float64(i)
		for g := range gates {
			ws = append(ws, float64(i*10+g))
		}
	}
	b := NewBatch("test.sta", "windcube_v1", times, gates)
	b.Add(Variable{Name: "WS", Dims: grid, Attrs: []Attribute{{Key: "units", Value: "m s-1"}}}, Values{Floats: ws})
	b.AddSeries("T_internal", temp)
	b.AddScalar("scan_type", Int32, float64(ScanDBS))
	b.SetAttribute("site", "Kassel")
	return b
}

var t0 = time.Date(2020, 7, 1, 10, 0, 0, 0, time.UTC)

func TestAppend_CreatesDataset(t *testing.T) {
	sink := newMemSink()
	app := NewAppender(OrderReject, nil)

	res, err := app.Append(sink, testBatch(t, t0, 3, []float64{40, 60}))
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, 0, res.Start)
	assert.Equal(t, 3, res.End)
	assert.Equal(t, 2, sink.dims[DimRange])
	assert.Equal(t, 3, sink.dims[DimTime])
	assert.Equal(t, []float64{40, 60}, sink.data[DimRange].Floats)
	assert.Equal(t, []float64{float64(ScanDBS)}, sink.data["scan_type"].Floats)
	assert.Equal(t, "Kassel", sink.attrs["site"])
	assert.Equal(t, "2020-07-01T10:00:00Z", sink.data[DimTime].Texts[0])
}

func TestAppend_ExtendsAllTimeVariables(t *testing.T) {
	sink := newMemSink()
	app := NewAppender(OrderReject, nil)
	_, err := app.Append(sink, testBatch(t, t0, 3, []float64{40, 60}))
	require.NoError(t, err)

	res, err := app.Append(sink, testBatch(t, t0.Add(time.Hour), 2, []float64{40, 60}))
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, 3, res.Start)
	assert.Equal(t, 5, res.End)
	assert.Equal(t, 5, sink.dims[DimTime])
	for _, name := range []string{DimTime, "WS", "T_internal"} {
		assert.Equal(t, 5, sink.rows(name), name)
	}
	assert.Equal(t, []float64{40, 60}, sink.data[DimRange].Floats, "range is written once")
}

func TestAppend_RangeMismatchLeavesDataset(t *testing.T) {
	sink := newMemSink()
	app := NewAppender(OrderReject, nil)
	_, err := app.Append(sink, testBatch(t, t0, 3, []float64{40, 60}))
	require.NoError(t, err)

	_, err = app.Append(sink, testBatch(t, t0.Add(time.Hour), 2, []float64{40, 60, 80}))

	var dme *DimensionMismatchError
	require.True(t, errors.As(err, &dme))
	assert.Equal(t, 2, dme.Dataset)
	assert.Equal(t, 3, dme.Batch)
	assert.Equal(t, 3, sink.dims[DimTime])
	assert.Equal(t, 3, sink.rows("WS"))
}

func TestAppend_RollsBackFailedWrite(t *testing.T) {
	sink := newMemSink()
	app := NewAppender(OrderReject, nil)
	_, err := app.Append(sink, testBatch(t, t0, 3, []float64{40, 60}))
	require.NoError(t, err)

	sink.failOn = "T_internal"
	_, err = app.Append(sink, testBatch(t, t0.Add(time.Hour), 2, []float64{40, 60}))

	require.Error(t, err)
	assert.Equal(t, 3, sink.dims[DimTime])
	for _, name := range []string{DimTime, "WS", "T_internal"} {
		assert.Equal(t, 3, sink.rows(name), name)
	}
}

func TestAppend_RollbackFailureIsReported(t *testing.T) {
	sink := newMemSink()
	app := NewAppender(OrderReject, nil)
	_, err := app.Append(sink, testBatch(t, t0, 1, []float64{40}))
	require.NoError(t, err)

	sink.failOn = "WS"
	sink.readOnly = true
	_, err = app.Append(sink, testBatch(t, t0.Add(time.Hour), 1, []float64{40}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollback failed")
}

func TestAppend_OrderPolicy(t *testing.T) {
	gates := []float64{40}

	t.Run("reject", func(t *testing.T) {
		sink := newMemSink()
		app := NewAppender(OrderReject, nil)
		_, err := app.Append(sink, testBatch(t, t0.Add(time.Hour), 2, gates))
		require.NoError(t, err)

		_, err = app.Append(sink, testBatch(t, t0, 2, gates))

		var ooe *OutOfOrderError
		require.True(t, errors.As(err, &ooe))
		assert.True(t, t0.Equal(ooe.First))
		assert.Equal(t, 2, sink.dims[DimTime])
	})

	t.Run("warn", func(t *testing.T) {
		sink := newMemSink()
		app := NewAppender(OrderWarn, nil)
		_, err := app.Append(sink, testBatch(t, t0.Add(time.Hour), 2, gates))
		require.NoError(t, err)

		_, err = app.Append(sink, testBatch(t, t0, 2, gates))

		require.NoError(t, err)
		assert.Equal(t, 4, sink.dims[DimTime])
	})

	t.Run("decreasing first batch leaves nothing behind", func(t *testing.T) {
		sink := newMemSink()
		app := NewAppender(OrderReject, nil)
		b := testBatch(t, t0, 2, gates)
		b.Times[0], b.Times[1] = b.Times[1], b.Times[0]
		b.Data[DimTime] = Values{Texts: []string{FormatISO(b.Times[0]), FormatISO(b.Times[1])}}

		_, err := app.Append(sink, b)

		var ooe *OutOfOrderError
		require.True(t, errors.As(err, &ooe))
		_, err = sink.DimensionExtent(DimRange)
		assert.ErrorIs(t, err, ErrDimensionNotFound)
		assert.Empty(t, sink.vars)
		assert.Empty(t, sink.attrs)
	})

	t.Run("equal timestamps are in order", func(t *testing.T) {
		sink := newMemSink()
		app := NewAppender(OrderReject, nil)
		_, err := app.Append(sink, testBatch(t, t0, 1, gates))
		require.NoError(t, err)
		_, err = app.Append(sink, testBatch(t, t0, 1, gates))
		assert.NoError(t, err)
	})
}

func TestAppend_FillsAndSkipsVariables(t *testing.T) {
	sink := newMemSink()
	app := NewAppender(OrderReject, nil)
	_, err := app.Append(sink, testBatch(t, t0, 2, []float64{40}))
	require.NoError(t, err)

	next := testBatch(t, t0.Add(time.Hour), 1, []float64{40})
	delete(next.Data, "T_internal")
	next.Variables = removeVariable(next.Variables, "T_internal")
	next.AddSeries("rh", []float64{55})

	res, err := app.Append(sink, next)
	require.NoError(t, err)

	assert.Equal(t, []string{"rh"}, res.Skipped)
	temp := sink.data["T_internal"].Floats
	require.Len(t, temp, 3)
	assert.True(t, math.IsNaN(temp[2]))
	_, declared := sink.variable("rh")
	assert.False(t, declared)
}

func TestAppend_EmptyBatch(t *testing.T) {
	t.Run("does not create a dataset", func(t *testing.T) {
		sink := newMemSink()
		app := NewAppender(OrderReject, nil)

		_, err := app.Append(sink, testBatch(t, t0, 0, []float64{40, 60}))

		require.ErrorIs(t, err, ErrEmptyBatch)
		_, err = sink.DimensionExtent(DimRange)
		assert.ErrorIs(t, err, ErrDimensionNotFound)
		assert.Empty(t, sink.vars)

		res, err := app.Append(sink, testBatch(t, t0, 2, []float64{40, 60}))
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, 2, sink.rows("WS"))
	})

	t.Run("extends an existing dataset by nothing", func(t *testing.T) {
		sink := newMemSink()
		app := NewAppender(OrderReject, nil)
		_, err := app.Append(sink, testBatch(t, t0, 2, []float64{40, 60}))
		require.NoError(t, err)

		res, err := app.Append(sink, testBatch(t, t0.Add(time.Hour), 0, []float64{40, 60}))
		require.NoError(t, err)

		assert.False(t, res.Created)
		assert.Equal(t, 2, res.Start)
		assert.Equal(t, 2, res.End)
		assert.Equal(t, 2, sink.dims[DimTime])
	})
}

func TestAppend_InvalidBatch(t *testing.T) {
	sink := newMemSink()
	b := testBatch(t, t0, 2, []float64{40, 60})
	b.Data["WS"] = Values{Floats: []float64{1, 2, 3}}

	_, err := NewAppender(OrderReject, nil).Append(sink, b)

	var sme *SchemaMappingError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, "WS", sme.Variable)
	assert.Empty(t, sink.dims, "nothing declared for an invalid batch")
}

func TestLastTime(t *testing.T) {
	sink := newMemSink()
	_, ok := LastTime(sink)
	assert.False(t, ok)

	_, err := NewAppender(OrderReject, nil).Append(sink, testBatch(t, t0, 3, []float64{40}))
	require.NoError(t, err)

	last, ok := LastTime(sink)
	require.True(t, ok)
	assert.True(t, t0.Add(20*time.Minute).Equal(last), "last time %s", last)
}

func TestParseOrderPolicy(t *testing.T) {
	p, err := ParseOrderPolicy("warn")
	require.NoError(t, err)
	assert.Equal(t, OrderWarn, p)
	p, err = ParseOrderPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OrderReject, p)
	_, err = ParseOrderPolicy("sort")
	assert.Error(t, err)
}

func removeVariable(vars []Variable, name string) []Variable {
	out := vars[:0]
	for _, v := range vars {
		if v.Name != name {
			out = append(out, v)
		}
	}
	return out
}
