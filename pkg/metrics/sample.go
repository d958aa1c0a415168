package metrics

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/paulmach/orb"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/data"
	"github.com/chris010970/dynamicworld/pkg/telemetry"
)

// DefaultSeed seeds the draw when SampleOptions.Seed is nil.
const DefaultSeed int64 = 42

// SampleOptions configures stratified sampling. Zero values take the defaults.
type SampleOptions struct {
	Region  *orb.Bound // restrict samples to pixel centres inside Region
	Seed    *int64     // nil means DefaultSeed; zero is a valid seed
	Scale   float64    // sampling resolution in metres, default 10
	NPoints int        // samples per reference class, default 2000
	Band    string     // label band in both images, default "label"
}

func (o SampleOptions) withDefaults() SampleOptions {
	if o.Seed == nil {
		seed := DefaultSeed
		o.Seed = &seed
	}
	if o.Scale <= 0 {
		o.Scale = 10
	}
	if o.NPoints <= 0 {
		o.NPoints = 2000
	}
	if o.Band == "" {
		o.Band = "label"
	}
	return o
}

// Sample is one pixel drawn for assessment.
type Sample struct {
	Row, Col   int
	Reference  int
	Prediction int
}

// StratifiedSample draws up to NPoints pixels per reference class from pixels valid in
// both images. Pixels are visited on a grid of Scale metres; the draw is deterministic
// for a given Seed.
func StratifiedSample(reference, prediction *collection.Image, opts SampleOptions) ([]Sample, error) {
	opts = opts.withDefaults()
	ref, err := reference.Band(opts.Band)
	if err != nil {
		return nil, err
	}
	pred, err := prediction.Band(opts.Band)
	if err != nil {
		return nil, err
	}
	if !ref.SameShape(pred) {
		return nil, core.ErrShapeMismatch
	}

	stride := 1
	if reference.Scale > 0 {
		stride = max(1, int(math.Round(opts.Scale/reference.Scale)))
	}

	strata := map[int][]Sample{}
	for i := 0; i < ref.R; i += stride {
		for j := 0; j < ref.C; j += stride {
			if !ref.IsValid(i, j) || !pred.IsValid(i, j) {
				continue
			}
			if opts.Region != nil && !opts.Region.Contains(reference.PixelCenter(i, j)) {
				continue
			}
			class := int(ref.At(i, j))
			strata[class] = append(strata[class], Sample{Row: i, Col: j, Reference: class, Prediction: int(pred.At(i, j))})
		}
	}

	classes := make([]int, 0, len(strata))
	for c := range strata {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(*opts.Seed))
	var out []Sample
	for _, c := range classes {
		pool := strata[c]
		n := min(opts.NPoints, len(pool))
		for _, idx := range rng.Perm(len(pool))[:n] {
			out = append(out, pool[idx])
		}
	}
	telemetry.SamplesDrawn.Add(float64(len(out)))
	return out, nil
}

// GetErrorMatrix samples reference against prediction and returns the error matrix with
// its overall accuracy.
func GetErrorMatrix(reference, prediction *collection.Image, opts SampleOptions) (ErrorMatrix, float64, error) {
	samples, err := StratifiedSample(reference, prediction, opts)
	if err != nil {
		return ErrorMatrix{}, 0, err
	}
	if len(samples) == 0 {
		return ErrorMatrix{}, 0, ErrNoSamples
	}
	m, err := fromSamples(samples)
	if err != nil {
		return ErrorMatrix{}, 0, err
	}
	return m, m.Accuracy(), nil
}

func fromSamples(samples []Sample) (ErrorMatrix, error) {
	ref := make([]int, len(samples))
	pred := make([]int, len(samples))
	for i, s := range samples {
		ref[i], pred[i] = s.Reference, s.Prediction
	}
	return FromPairs(ref, pred)
}

// PointErrorMatrix compares reference points against the label of the prediction pixel
// under each point. Points outside the image or over masked pixels are ignored.
func PointErrorMatrix(points []data.ReferencePoint, prediction *collection.Image, band string) (ErrorMatrix, error) {
	if band == "" {
		band = "label"
	}
	pred, err := prediction.Band(band)
	if err != nil {
		return ErrorMatrix{}, err
	}
	var ref, got []int
	for _, p := range points {
		r, c, ok := prediction.PixelAt(orb.Point{p.Lon, p.Lat})
		if !ok || !pred.IsValid(r, c) {
			continue
		}
		ref = append(ref, p.Label)
		got = append(got, int(pred.At(r, c)))
	}
	if len(ref) == 0 {
		return ErrorMatrix{}, ErrNoSamples
	}
	m, err := FromPairs(ref, got)
	if err != nil {
		return ErrorMatrix{}, fmt.Errorf("reference points: %w", err)
	}
	return m, nil
}
