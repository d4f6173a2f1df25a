package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_CleanDataset(t *testing.T) {
	sink := newMemSink()
	a := NewAppender(OrderReject, nil)
	_, err := a.Append(sink, testBatch(t, t0, 3, []float64{40, 60}))
	require.NoError(t, err)

	assert.Empty(t, Verify(sink))
}

func TestVerify_FindsViolations(t *testing.T) {
	sink := newMemSink()
	a := NewAppender(OrderWarn, nil)
	_, err := a.Append(sink, testBatch(t, t0, 2, []float64{40, 60}))
	require.NoError(t, err)
	_, err = a.Append(sink, testBatch(t, t0.Add(-time.Hour), 1, []float64{40, 60}))
	require.NoError(t, err)

	times := sink.data[DimTime]
	times.Texts[1] = "not a time"
	sink.data["scan_type"] = Values{Floats: []float64{3}}

	problems := Verify(sink)
	require.Len(t, problems, 3)
	assert.Contains(t, problems[0].Error(), `time[1] "not a time"`)
	var ooo *OutOfOrderError
	assert.ErrorAs(t, problems[1], &ooo)
	assert.Contains(t, problems[2].Error(), "scan_type [3]")
}

func TestVerify_EmptyDataset(t *testing.T) {
	problems := Verify(newMemSink())
	require.Len(t, problems, 1)
	assert.ErrorIs(t, problems[0], ErrDimensionNotFound)
}
