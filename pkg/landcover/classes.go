// Package landcover describes the nine Dynamic World land-cover classes,
// their probability band names and the standard legend colours.
package landcover

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Class is a Dynamic World label index.
type Class uint8

const (
	Water Class = iota
	Trees
	Grass
	FloodedVegetation
	Crops
	ShrubAndScrub
	Built
	Bare
	SnowAndIce
)

// NumClasses is the length of the per-pixel probability vector.
const NumClasses = 9

// ProbabilityBands are the probability band names, in label order.
var ProbabilityBands = []string{
	"water",
	"trees",
	"grass",
	"flooded_vegetation",
	"crops",
	"shrub_and_scrub",
	"built",
	"bare",
	"snow_and_ice",
}

var displayNames = [NumClasses]string{
	"Water", "Trees", "Grass", "Flooded Vegetation", "Crops",
	"Shrub & Scrub", "Built", "Bare Ground", "Snow & Ice",
}

// LegendEntry pairs a short legend key with its display colour.
type LegendEntry struct {
	Key   string
	Color string
}

// Legend is the standard Dynamic World legend, in label order.
var Legend = []LegendEntry{
	{"water", "#419BDF"},
	{"trees", "#397D49"},
	{"grass", "#88B053"},
	{"flooded", "#7A87C6"},
	{"crops", "#E49635"},
	{"shrubs", "#DFC35A"},
	{"built", "#C4281B"},
	{"bare", "#A59B8F"},
	{"snow", "#B39FE1"},
}

// Valid reports whether c is one of the nine classes.
func (c Class) Valid() bool { return c < NumClasses }

// Band returns the probability band name for c.
func (c Class) Band() string {
	if !c.Valid() {
		return ""
	}
	return ProbabilityBands[c]
}

func (c Class) String() string {
	if !c.Valid() {
		return "Class(" + strconv.Itoa(int(c)) + ")"
	}
	return displayNames[c]
}

// Color returns the legend colour for c.
func (c Class) Color() color.RGBA {
	if !c.Valid() {
		return color.RGBA{}
	}
	rgba, _ := ParseHexColor(Legend[c].Color)
	return rgba
}

// Labels returns the legend keys, used to name error matrix rows and columns.
func Labels() []string {
	out := make([]string, len(Legend))
	for i, e := range Legend {
		out[i] = e.Key
	}
	return out
}

// ParseHexColor parses "#RRGGBB".
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// ErrNotNormalised is returned when a probability vector does not sum to one.
var ErrNotNormalised = errors.New("probabilities do not sum to 1")

// Probabilities is a per-pixel likelihood for each class, in label order.
type Probabilities [NumClasses]float64

// Validate checks every entry lies in [0,1] and the vector sums to 1 within tol.
func (p Probabilities) Validate(tol float64) error {
	sum := 0.0
	for i, v := range p {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%s probability %v outside [0,1]", ProbabilityBands[i], v)
		}
		sum += v
	}
	if math.Abs(sum-1) > tol {
		return fmt.Errorf("%w: sum %.4f", ErrNotNormalised, sum)
	}
	return nil
}

// Argmax returns the most likely class. The first maximum wins on ties.
func (p Probabilities) Argmax() Class {
	best := 0
	for i := 1; i < NumClasses; i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return Class(best)
}
