package metrics

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/data"
)

var bounds = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 2}}

func labels(t *testing.T, rows [][]float64) *collection.Image {
	t.Helper()
	g, err := core.FromSlice(rows)
	require.NoError(t, err)
	im := collection.NewImage("l", time.Time{}, bounds, 10)
	require.NoError(t, im.AddBand("label", g))
	return im
}

func TestErrorMatrix_Scores(t *testing.T) {
	m, err := FromPairs([]int{0, 0, 1, 1, 1, 2}, []int{0, 1, 1, 1, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Size())
	assert.Equal(t, int64(6), m.Total())
	assert.Equal(t, [][]int64{{1, 1, 0}, {1, 2, 0}, {0, 0, 1}}, m.Counts)

	assert.InDelta(t, 4.0/6.0, m.Accuracy(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 2.0 / 3.0, 1}, m.ProducersAccuracy(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 2.0 / 3.0, 1}, m.ConsumersAccuracy(), 1e-12)

	// expected agreement: (2*2 + 3*3 + 1*1) / 36
	pe := 14.0 / 36.0
	assert.InDelta(t, (4.0/6.0-pe)/(1-pe), m.Kappa(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 2.0 / 3.0, 1}, m.F1(), 1e-12)
}

func TestFromPairs_Errors(t *testing.T) {
	_, err := FromPairs([]int{1}, []int{1, 2})
	assert.Error(t, err)
	_, err = FromPairs([]int{-1}, []int{1})
	assert.Error(t, err)
}

func TestNormalised(t *testing.T) {
	m, _ := FromPairs([]int{0, 0, 0, 0, 2}, []int{0, 0, 0, 1, 2})
	n := m.Normalised([]string{"water", "trees", "grass", "flooded"})

	assert.Equal(t, []string{"water", "trees", "grass", "flooded"}, n.Labels)
	assert.InDeltaSlice(t, []float64{0.75, 0.25, 0, 0}, n.Rows[0], 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0}, n.Rows[1], "empty rows stay zero")
	assert.Equal(t, []float64{0, 0, 1, 0}, n.Rows[2])
	assert.Equal(t, []float64{0, 0, 0, 0}, n.Rows[3])
}

func TestStratifiedSample_CapsPerClassAndIsDeterministic(t *testing.T) {
	ref := labels(t, [][]float64{{1, 1, 1, 2}, {1, 1, 2, math.NaN()}})
	pred := labels(t, [][]float64{{1, 2, 1, 2}, {1, 1, 1, 0}})

	seed := int64(7)
	opts := SampleOptions{NPoints: 2, Seed: &seed}
	a, err := StratifiedSample(ref, pred, opts)
	require.NoError(t, err)
	b, err := StratifiedSample(ref, pred, opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.Len(t, a, 4)
	perClass := map[int]int{}
	for _, s := range a {
		perClass[s.Reference]++
		assert.False(t, s.Row == 1 && s.Col == 3, "masked reference pixel sampled")
	}
	assert.Equal(t, map[int]int{1: 2, 2: 2}, perClass)
}

func TestStratifiedSample_ZeroSeedIsHonoured(t *testing.T) {
	row := make([]float64, 16)
	for j := range row {
		row[j] = 3
	}
	ref := labels(t, [][]float64{row})
	pred := labels(t, [][]float64{row})

	firstCol := func(seed int64) int {
		return rand.New(rand.NewSource(seed)).Perm(len(row))[0]
	}

	zero := int64(0)
	s, err := StratifiedSample(ref, pred, SampleOptions{NPoints: 1, Seed: &zero})
	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, firstCol(0), s[0].Col)

	s, err = StratifiedSample(ref, pred, SampleOptions{NPoints: 1})
	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, firstCol(DefaultSeed), s[0].Col)
}

func TestStratifiedSample_RegionAndScale(t *testing.T) {
	ref := labels(t, [][]float64{{1, 1, 1, 1}, {1, 1, 1, 1}})
	pred := labels(t, [][]float64{{1, 1, 1, 1}, {1, 1, 1, 1}})

	region := orb.Bound{Min: orb.Point{0, 1}, Max: orb.Point{2, 2}}
	s, err := StratifiedSample(ref, pred, SampleOptions{Region: &region})
	require.NoError(t, err)
	assert.Len(t, s, 2, "top-left two pixels")

	s, err = StratifiedSample(ref, pred, SampleOptions{Scale: 20})
	require.NoError(t, err)
	assert.Len(t, s, 2, "every second row and column")
}

func TestGetErrorMatrix(t *testing.T) {
	ref := labels(t, [][]float64{{0, 0, 1, 1}, {1, 1, 0, 0}})
	pred := labels(t, [][]float64{{0, 1, 1, 1}, {1, 1, 0, 0}})

	m, acc, err := GetErrorMatrix(ref, pred, SampleOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{3, 1}, {0, 4}}, m.Counts)
	assert.InDelta(t, 7.0/8.0, acc, 1e-12)

	empty := labels(t, [][]float64{{math.NaN()}})
	_, _, err = GetErrorMatrix(empty, empty, SampleOptions{})
	assert.ErrorIs(t, err, ErrNoSamples)

	_, _, err = GetErrorMatrix(ref, empty, SampleOptions{})
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestPointErrorMatrix(t *testing.T) {
	pred := labels(t, [][]float64{{0, 1, 2, math.NaN()}, {3, 4, 5, 6}})
	points := []data.ReferencePoint{
		{Lon: 0.5, Lat: 1.5, Label: 0},
		{Lon: 1.5, Lat: 1.5, Label: 2},
		{Lon: 3.5, Lat: 1.5, Label: 1}, // masked
		{Lon: 9, Lat: 9, Label: 1},     // outside
	}
	m, err := PointErrorMatrix(points, pred, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Total())
	assert.Equal(t, int64(1), m.Counts[0][0])
	assert.Equal(t, int64(1), m.Counts[2][1])

	_, err = PointErrorMatrix(points[2:], pred, "")
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestClassCoverage(t *testing.T) {
	im := labels(t, [][]float64{{0, 0, 6, math.NaN()}, {6, 6, 6, 12}})
	cov, err := ClassCoverage(im, "")
	require.NoError(t, err)

	assert.Equal(t, int64(6), cov.Valid)
	assert.Equal(t, int64(2), cov.Counts[0])
	assert.Equal(t, int64(4), cov.Counts[6])
	assert.InDelta(t, 4.0/6.0, cov.Fractions[6], 1e-12)
	assert.InDelta(t, 4*100/1e6, cov.AreaKm2[6], 1e-12)
}

func TestTransitionMatrix(t *testing.T) {
	from := labels(t, [][]float64{{0, 0, 4, 4}, {6, 6, 6, math.NaN()}})
	to := labels(t, [][]float64{{0, 6, 4, 6}, {6, 6, 6, 6}})

	m, err := TransitionMatrix(from, to, "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.Total())
	assert.Equal(t, int64(1), m.Counts[0][6])
	assert.Equal(t, int64(1), m.Counts[4][6])
	assert.InDelta(t, 2.0/7.0, ChangedFraction(m), 1e-12)
}
