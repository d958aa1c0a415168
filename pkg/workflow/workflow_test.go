package workflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/config"
	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/dynamicworld"
	"github.com/chris010970/dynamicworld/pkg/landcover"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var footprint = orb.Bound{Min: orb.Point{-1, 51}, Max: orb.Point{0, 52}}

type fakeSource struct {
	scenes []*collection.Image
}

func (f fakeSource) Scenes(_ context.Context, _ orb.Bound, _, _ time.Time) ([]*collection.Image, error) {
	return f.scenes, nil
}

// uniform builds a 2x2 scene where every pixel is class c.
func uniform(t *testing.T, id string, at time.Time, c landcover.Class) *collection.Image {
	t.Helper()
	im := collection.NewImage(id, at, footprint, 10)
	require.NoError(t, im.AddBand(dynamicworld.LabelBand, core.Constant(2, 2, float64(c))))
	for i, name := range landcover.ProbabilityBands {
		p := 0.3 / (landcover.NumClasses - 1)
		if landcover.Class(i) == c {
			p = 0.7
		}
		require.NoError(t, im.AddBand(name, core.Constant(2, 2, p)))
	}
	return im
}

func day(m time.Month, d int) time.Time { return time.Date(2021, m, d, 10, 30, 0, 0, time.UTC) }

func newRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Start, cfg.End = "2021-01-01", "2021-03-31"
	cfg.Frequency = "M"
	cfg.Output = t.TempDir()
	cfg.Animation.Dimensions = 16
	cfg.Assessment.Scale = 10
	require.NoError(t, cfg.Validate())

	src := fakeSource{scenes: []*collection.Image{
		uniform(t, "s1", day(1, 5), landcover.Trees),
		uniform(t, "s2", day(1, 20), landcover.Trees),
		uniform(t, "s3", day(3, 31), landcover.Built),
		uniform(t, "late", day(4, 1), landcover.Water),
	}}
	return New(cfg, src)
}

func TestRunner_CollectionAndTimeDelta(t *testing.T) {
	r := newRunner(t)
	c, err := r.Collection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len(), "end date is inclusive, April excluded")

	r.Config.Baseline = "2021-01-01"
	c, err = r.Collection(context.Background())
	require.NoError(t, err)
	im, _ := c.First()
	assert.True(t, im.HasBand(collection.TimeDeltaBand))
	v, ok := im.Property(collection.TimeDeltaBand)
	require.True(t, ok)
	assert.InDelta(t, 4.4375, v, 1e-9)
}

func TestRunner_CollectionRejectsIncompleteScenes(t *testing.T) {
	r := newRunner(t)
	bare := collection.NewImage("bare", day(1, 2), footprint, 10)
	require.NoError(t, bare.AddBand(dynamicworld.LabelBand, core.Constant(2, 2, 1)))
	r.Source = fakeSource{scenes: []*collection.Image{bare}}

	_, err := r.Collection(context.Background())
	assert.ErrorIs(t, err, collection.ErrBandNotFound)
}

func TestRunner_Reduce(t *testing.T) {
	r := newRunner(t)
	out, err := r.Reduce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, out.Len(), "february has no scenes")

	first, _ := out.First()
	assert.Equal(t, "2021-01-01", first.ID)
	g, err := first.Band("label_mode")
	require.NoError(t, err)
	assert.Equal(t, float64(landcover.Trees), g.At(0, 0))
}

func TestRunner_ReduceCarriesTimeDelta(t *testing.T) {
	r := newRunner(t)
	r.Config.Baseline = "2021-01-01"
	out, err := r.Reduce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	first, _ := out.First()
	assert.Contains(t, first.BandNames(), collection.TimeDeltaBand+"_mode")
	g, err := first.Band(collection.TimeDeltaBand + "_mode")
	require.NoError(t, err)
	// scenes on 5 and 20 January at 10:30; mode of two distinct values is the smaller
	assert.InDelta(t, 4.4375, g.At(0, 0), 1e-6)
}

func TestRunner_CollectionRejectsMixedFootprints(t *testing.T) {
	r := newRunner(t)
	east := uniform(t, "east", day(1, 7), landcover.Water)
	east.Bounds = orb.Bound{Min: orb.Point{5, 51}, Max: orb.Point{6, 52}}
	r.Source = fakeSource{scenes: []*collection.Image{uniform(t, "west", day(1, 5), landcover.Trees), east}}

	_, err := r.Collection(context.Background())
	assert.ErrorIs(t, err, collection.ErrFootprintMismatch)
	_, err = r.Composites(context.Background())
	assert.ErrorIs(t, err, collection.ErrFootprintMismatch)
}

func TestRunner_CompositesAndOutputs(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t)

	comps, err := r.Composites(ctx)
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, 2, comps[0].Scenes)

	paths, err := r.WriteComposites(ctx, comps)
	require.NoError(t, err)
	assert.Len(t, paths, 5)
	assert.FileExists(t, filepath.Join(r.Config.Output, "20210101_mode.png"))
	assert.FileExists(t, filepath.Join(r.Config.Output, "20210301_max_median.png"))

	raw, err := os.ReadFile(filepath.Join(r.Config.Output, CoverageFile))
	require.NoError(t, err)
	var records []CoverageRecord
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 4)
	assert.Equal(t, "mode", records[0].Product)
	assert.Equal(t, 1.0, records[0].Coverage.Fractions[landcover.Trees])

	gifPath, err := r.Animate(ctx, comps)
	require.NoError(t, err)
	assert.FileExists(t, gifPath)

	chartPath, err := r.Chart(ctx, comps)
	require.NoError(t, err)
	assert.FileExists(t, chartPath)
}

func TestRunner_Compare(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t)
	comps, err := r.Composites(ctx)
	require.NoError(t, err)

	got, err := r.Compare(ctx, comps)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Accuracy)
	assert.Equal(t, int64(4), got[0].Samples)
	assert.FileExists(t, filepath.Join(r.Config.Output, AssessmentFile))
}

func TestRunner_CompareWithReferencePoints(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t)
	csv := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(csv, []byte("lon,lat,label\n-0.75,51.75,1\n-0.25,51.25,6\n5,5,1\n"), 0o644))
	r.Config.Assessment.ReferencePoints = csv

	comps, err := r.Composites(ctx)
	require.NoError(t, err)
	got, err := r.Compare(ctx, comps)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "reference_points", got[0].Reference)
	assert.Equal(t, int64(2), got[0].Samples, "point outside the footprint ignored")
	assert.Equal(t, 0.5, got[0].Accuracy)
}

func TestRunner_Change(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t)
	comps, err := r.Composites(ctx)
	require.NoError(t, err)

	report, err := r.Change(ctx, comps)
	require.NoError(t, err)
	assert.Equal(t, "2021-01-01/mode", report.From)
	assert.Equal(t, "2021-03-01/mode", report.To)
	assert.Equal(t, int64(4), report.Pixels)
	assert.Equal(t, 1.0, report.Changed)
	assert.Equal(t, int64(4), report.Transitions[landcover.Trees][landcover.Built])
	require.Len(t, report.Transitions, landcover.NumClasses)

	_, err = r.Change(ctx, comps[:1])
	assert.ErrorIs(t, err, collection.ErrEmptyCollection)
}
