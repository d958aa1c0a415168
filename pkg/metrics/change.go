package metrics

import (
	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/landcover"
)

// Coverage summarises how much of a label image each class occupies.
type Coverage struct {
	Counts    [landcover.NumClasses]int64   `json:"counts"`
	Fractions [landcover.NumClasses]float64 `json:"fractions"`
	AreaKm2   [landcover.NumClasses]float64 `json:"area_km2"`
	Valid     int64                         `json:"valid"`
}

// ClassCoverage counts the valid pixels of each class in the label band. Labels outside
// the nine classes are ignored.
func ClassCoverage(im *collection.Image, band string) (Coverage, error) {
	if band == "" {
		band = "label"
	}
	g, err := im.Band(band)
	if err != nil {
		return Coverage{}, err
	}
	var cov Coverage
	for k, ok := range g.Valid {
		if !ok {
			continue
		}
		c := landcover.Class(g.Data[k])
		if g.Data[k] < 0 || !c.Valid() {
			continue
		}
		cov.Counts[c]++
		cov.Valid++
	}
	pixelKm2 := im.Scale * im.Scale / 1e6
	for i, n := range cov.Counts {
		if cov.Valid > 0 {
			cov.Fractions[i] = float64(n) / float64(cov.Valid)
		}
		cov.AreaKm2[i] = float64(n) * pixelKm2
	}
	return cov, nil
}

// TransitionMatrix counts, over every pixel valid in both images, the move from the label
// in from (row) to the label in to (column).
func TransitionMatrix(from, to *collection.Image, band string) (ErrorMatrix, error) {
	if band == "" {
		band = "label"
	}
	a, err := from.Band(band)
	if err != nil {
		return ErrorMatrix{}, err
	}
	b, err := to.Band(band)
	if err != nil {
		return ErrorMatrix{}, err
	}
	if !a.SameShape(b) {
		return ErrorMatrix{}, core.ErrShapeMismatch
	}
	var src, dst []int
	for k := range a.Data {
		if a.Valid[k] && b.Valid[k] {
			src = append(src, int(a.Data[k]))
			dst = append(dst, int(b.Data[k]))
		}
	}
	if len(src) == 0 {
		return ErrorMatrix{}, ErrNoSamples
	}
	return FromPairs(src, dst)
}

// ChangedFraction is the share of transitions off the diagonal.
func ChangedFraction(m ErrorMatrix) float64 {
	if m.Total() == 0 {
		return 0
	}
	return 1 - m.Accuracy()
}
