package collection

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/temporal"
)

var nan = math.NaN()

var testBounds = orb.Bound{Min: orb.Point{-1, 51}, Max: orb.Point{0, 52}}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 10, 30, 0, 0, time.UTC) }

// labelImage builds a one-band 1x2 image.
func labelImage(t *testing.T, id string, at time.Time, a, b float64) *Image {
	t.Helper()
	g, err := core.FromSlice([][]float64{{a, b}})
	require.NoError(t, err)
	im := NewImage(id, at, testBounds, 10)
	require.NoError(t, im.AddBand("label", g))
	return im
}

func TestImage_BandOps(t *testing.T) {
	im := labelImage(t, "a", day(2021, 1, 1), 1, 2)
	require.NoError(t, im.AddBand("other", core.NewGrid(1, 2)))

	assert.ErrorIs(t, im.AddBand("other", core.NewGrid(1, 2)), ErrDuplicateBand)
	assert.ErrorIs(t, im.AddBand("bad", core.NewGrid(2, 2)), core.ErrShapeMismatch)

	sel, err := im.Select("other")
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, sel.BandNames())
	assert.Equal(t, []string{"label", "other"}, im.BandNames())

	_, err = im.Select("missing")
	assert.ErrorIs(t, err, ErrBandNotFound)

	ren, err := im.Rename("x", "y")
	require.NoError(t, err)
	assert.True(t, ren.HasBand("x"))
	assert.False(t, ren.HasBand("label"))

	_, err = im.Rename("x")
	assert.ErrorIs(t, err, ErrRenameMismatch)
}

func TestImage_PixelGeometry(t *testing.T) {
	im := labelImage(t, "a", day(2021, 1, 1), 1, 2)

	assert.Equal(t, orb.Point{-0.75, 51.5}, im.PixelCenter(0, 0))
	assert.Equal(t, orb.Point{-0.25, 51.5}, im.PixelCenter(0, 1))

	r, c, ok := im.PixelAt(orb.Point{-0.1, 51.9})
	require.True(t, ok)
	assert.Equal(t, 0, r)
	assert.Equal(t, 1, c)

	_, _, ok = im.PixelAt(orb.Point{5, 5})
	assert.False(t, ok)
}

func TestCollection_Filters(t *testing.T) {
	far := NewImage("far", day(2021, 1, 5), orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{11, 11}}, 10)
	c := New(
		labelImage(t, "jan", day(2021, 1, 31), 1, 1),
		labelImage(t, "feb", day(2021, 2, 1), 2, 2),
		far,
	)

	jan := c.FilterDate(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, jan.Len())

	near := c.FilterBounds(testBounds)
	assert.Equal(t, 2, near.Len())

	ivs, err := temporal.GetIntervals("2021-01-01", "2021-01-01", "M")
	require.NoError(t, err)
	assert.Equal(t, 2, c.FilterInterval(ivs[0]).Len())

	sorted := New(c.Images()[1], c.Images()[0]).SortByTime()
	first, err := sorted.First()
	require.NoError(t, err)
	assert.Equal(t, "jan", first.ID)
}

func TestCollection_RemoveBands(t *testing.T) {
	im := labelImage(t, "a", day(2021, 1, 1), 1, 2)
	require.NoError(t, im.AddBand("water", core.NewGrid(1, 2)))

	out, err := New(im).RemoveBands("label")
	require.NoError(t, err)
	first, _ := out.First()
	assert.Equal(t, []string{"water"}, first.BandNames())

	_, err = New().RemoveBands("label")
	assert.ErrorIs(t, err, ErrEmptyCollection)
}

func TestCollection_ReduceRejectsDifferentFootprints(t *testing.T) {
	west := NewImage("west", day(2021, 1, 1), orb.Bound{Min: orb.Point{-1, 51}, Max: orb.Point{0, 52}}, 10)
	require.NoError(t, west.AddBand("label", core.Constant(2, 2, 1)))
	east := NewImage("east", day(2021, 1, 2), orb.Bound{Min: orb.Point{5, 51}, Max: orb.Point{6, 52}}, 10)
	require.NoError(t, east.AddBand("label", core.Constant(2, 2, 6)))

	c := New(west, east)
	_, err := c.Reduce("mean")
	assert.ErrorIs(t, err, ErrFootprintMismatch)
	_, err = c.Median()
	assert.ErrorIs(t, err, ErrFootprintMismatch)
	_, err = c.Bands("label")
	assert.ErrorIs(t, err, ErrFootprintMismatch)

	_, err = ReduceToIntervals(context.Background(), c,
		[]temporal.Interval{{Start: day(2021, 1, 1), End: day(2021, 1, 31)}}, ReduceOptions{Method: "mean"})
	assert.ErrorIs(t, err, ErrFootprintMismatch)

	im, err := New(west, labelImage2x2(t, "west2", day(2021, 1, 3), 3)).Reduce("mean")
	require.NoError(t, err)
	assert.Equal(t, west.Bounds, im.Bounds, "output keeps the shared footprint")
}

func labelImage2x2(t *testing.T, id string, at time.Time, v float64) *Image {
	t.Helper()
	im := NewImage(id, at, orb.Bound{Min: orb.Point{-1, 51}, Max: orb.Point{0, 52}}, 10)
	require.NoError(t, im.AddBand("label", core.Constant(2, 2, v)))
	return im
}

func TestCollection_ReduceNamesAndMasks(t *testing.T) {
	c := New(
		labelImage(t, "a", day(2021, 1, 1), 1, nan),
		labelImage(t, "b", day(2021, 1, 2), 1, nan),
		labelImage(t, "c", day(2021, 1, 3), 3, nan),
	)
	im, err := c.Reduce("mode")
	require.NoError(t, err)
	assert.Equal(t, []string{"label_mode"}, im.BandNames())

	g, err := im.Band("label_mode")
	require.NoError(t, err)
	assert.Equal(t, 1.0, g.At(0, 0))
	assert.False(t, g.IsValid(0, 1))

	med, err := c.Median()
	require.NoError(t, err)
	assert.Equal(t, []string{"label"}, med.BandNames())

	_, err = c.Reduce("variance")
	assert.Error(t, err)
}

func TestReduceToIntervals(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(
		labelImage(t, "a", day(2021, 1, 3), 1, 4),
		labelImage(t, "b", day(2021, 1, 31), 3, 6),
		labelImage(t, "c", day(2021, 3, 10), 5, 5),
	)
	ivs, err := temporal.GetIntervals("2021-01-01", "2021-03-31", "M")
	require.NoError(t, err)

	out, err := ReduceToIntervals(context.Background(), c, ivs, ReduceOptions{Method: "mean", Names: []string{"label"}})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len(), "february has no images")

	jan := out.Images()[0]
	assert.Equal(t, "2021-01-01", jan.ID)
	assert.Equal(t, ivs[0].Start, jan.TimeStart)
	assert.Equal(t, ivs[0].End, jan.TimeEnd)
	g, err := jan.Band("label")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, g.Data)

	mar := out.Images()[1]
	assert.Equal(t, ivs[2].Start, mar.TimeStart)
}

func TestReduceToIntervals_Midpoint(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(labelImage(t, "a", day(2021, 1, 3), 1, 4))
	ivs, err := temporal.GetIntervals("2021-01-01", "2021-01-01", "M")
	require.NoError(t, err)

	out, err := ReduceToIntervals(context.Background(), c, ivs, ReduceOptions{MetaType: Midpoint})
	require.NoError(t, err)
	im, _ := out.First()
	assert.Equal(t, time.Date(2021, 1, 16, 0, 0, 0, 0, time.UTC), im.TimeStart)
	assert.Equal(t, []string{"label_median"}, im.BandNames())
}

func TestReduceToIntervals_PropagatesErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(labelImage(t, "a", day(2021, 1, 3), 1, 4))
	ivs, _ := temporal.GetIntervals("2021-01-01", "2021-01-01", "M")

	_, err := ReduceToIntervals(context.Background(), c, ivs, ReduceOptions{Method: "bogus"})
	assert.Error(t, err)

	_, err = ReduceToIntervals(context.Background(), c, ivs, ReduceOptions{Names: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrRenameMismatch)
}

func TestAddTimeDeltaBand(t *testing.T) {
	c := New(labelImage(t, "a", time.Date(2018, 4, 1, 0, 0, 0, 0, time.UTC), 1, 2))
	out, err := AddTimeDeltaBand(c, time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), temporal.Months)
	require.NoError(t, err)

	im, _ := out.First()
	v, ok := im.Property(TimeDeltaBand)
	require.True(t, ok)
	assert.InDelta(t, 3, v, 1e-9)

	g, err := im.Band(TimeDeltaBand)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3}, g.Data)

	orig, _ := c.First()
	assert.False(t, orig.HasBand(TimeDeltaBand))
}

func TestAddMetadata(t *testing.T) {
	im := labelImage(t, "a", day(2021, 1, 3), 1, 4)
	ivs, _ := temporal.GetIntervals("2021-01-01", "2021-01-01", "M")
	out := AddMetadata(im, ivs[0])
	assert.Equal(t, ivs[0].End, out.TimeEnd)
	assert.Equal(t, day(2021, 1, 3), im.TimeStart)
}

func TestParseMetaType(t *testing.T) {
	m, err := ParseMetaType("")
	require.NoError(t, err)
	assert.Equal(t, AggregationPeriod, m)

	_, err = ParseMetaType("centre")
	assert.Error(t, err)
}
