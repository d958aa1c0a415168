package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/paulmach/orb"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/core"
	"github.com/chris010970/dynamicworld/pkg/landcover"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
)

var ErrInvalidScene = errors.New("invalid scene")

// probabilityTolerance bounds how far a pixel's nine probabilities may sum from 1.
// Exported scenes round probabilities, so exact normalisation is not expected.
const probabilityTolerance = 0.01

// sceneFile is the JSON exchange format for a single scene. Band values are row-major;
// null marks a masked pixel.
type sceneFile struct {
	ID        string      `json:"id"`
	TimeStart time.Time   `json:"time_start"`
	TimeEnd   *time.Time  `json:"time_end,omitempty"`
	Bounds    [4]float64  `json:"bounds"` // min lon, min lat, max lon, max lat
	Scale     float64     `json:"scale"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Bands     []sceneBand `json:"bands"`
}

type sceneBand struct {
	Name   string     `json:"name"`
	Values []*float64 `json:"values"`
}

// DecodeScene reads one JSON scene.
func DecodeScene(r io.Reader) (*collection.Image, error) {
	var sf sceneFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	if sf.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidScene)
	}
	if sf.Width <= 0 || sf.Height <= 0 {
		return nil, fmt.Errorf("%w: %s has size %dx%d", ErrInvalidScene, sf.ID, sf.Width, sf.Height)
	}
	if sf.Bounds[0] >= sf.Bounds[2] || sf.Bounds[1] >= sf.Bounds[3] {
		return nil, fmt.Errorf("%w: %s has empty bounds", ErrInvalidScene, sf.ID)
	}
	if sf.Scale <= 0 {
		sf.Scale = 10
	}

	b := orb.Bound{Min: orb.Point{sf.Bounds[0], sf.Bounds[1]}, Max: orb.Point{sf.Bounds[2], sf.Bounds[3]}}
	im := collection.NewImage(sf.ID, sf.TimeStart.UTC(), b, sf.Scale)
	if sf.TimeEnd != nil {
		im.TimeEnd = sf.TimeEnd.UTC()
	}
	for _, band := range sf.Bands {
		if len(band.Values) != sf.Width*sf.Height {
			return nil, fmt.Errorf("%w: band %s holds %d values, want %d", ErrInvalidScene, band.Name, len(band.Values), sf.Width*sf.Height)
		}
		g := core.NewMaskedGrid(sf.Height, sf.Width)
		for k, v := range band.Values {
			if v != nil {
				g.Data[k] = *v
				g.Valid[k] = true
			}
		}
		if err := im.AddBand(band.Name, g); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
		}
	}
	if err := checkProbabilities(im); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidScene, sf.ID, err)
	}
	return im, nil
}

// checkProbabilities requires every probability band value to lie in [0,1] and, when all
// nine bands are present, every pixel valid in all of them to sum to 1.
func checkProbabilities(im *collection.Image) error {
	var grids []*core.Grid
	for _, name := range landcover.ProbabilityBands {
		g, err := im.Band(name)
		if err != nil {
			continue
		}
		for k, ok := range g.Valid {
			if ok && (g.Data[k] < 0 || g.Data[k] > 1) {
				return fmt.Errorf("%s pixel %d: probability %v outside [0,1]", name, k, g.Data[k])
			}
		}
		grids = append(grids, g)
	}
	if len(grids) != landcover.NumClasses {
		return nil
	}

pixels:
	for k := range grids[0].Data {
		var p landcover.Probabilities
		for i, g := range grids {
			if !g.Valid[k] {
				continue pixels
			}
			p[i] = g.Data[k]
		}
		if err := p.Validate(probabilityTolerance); err != nil {
			return fmt.Errorf("pixel %d: %w", k, err)
		}
	}
	return nil
}

// EncodeScene writes im in the JSON scene format.
func EncodeScene(w io.Writer, im *collection.Image) error {
	rows, cols := im.Shape()
	end := im.TimeEnd
	sf := sceneFile{
		ID:        im.ID,
		TimeStart: im.TimeStart,
		TimeEnd:   &end,
		Bounds:    [4]float64{im.Bounds.Min.X(), im.Bounds.Min.Y(), im.Bounds.Max.X(), im.Bounds.Max.Y()},
		Scale:     im.Scale,
		Width:     cols,
		Height:    rows,
	}
	for _, name := range im.BandNames() {
		g, _ := im.Band(name)
		values := make([]*float64, len(g.Data))
		for k := range g.Data {
			if g.Valid[k] {
				v := g.Data[k]
				values[k] = &v
			}
		}
		sf.Bands = append(sf.Bands, sceneBand{Name: name, Values: values})
	}
	return json.NewEncoder(w).Encode(sf)
}

// Export writes every scene intersecting bound and acquired in [start, end) to dir as
// <id>.json and returns the paths written.
func (s *Store) Export(ctx context.Context, dir string, bound orb.Bound, start, end time.Time) ([]string, error) {
	scenes, err := s.Scenes(ctx, bound, start, end)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	paths := make([]string, 0, len(scenes))
	for _, im := range scenes {
		path := filepath.Join(dir, im.ID+".json")
		if err := writeScene(path, im); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	xlog.FromContext(ctx, "catalog").Info().
		Int(xlog.FieldImages, len(paths)).
		Str(xlog.FieldPath, dir).
		Msg("exported scenes")
	return paths, nil
}

func writeScene(path string, im *collection.Image) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := EncodeScene(pending, im); err != nil {
		return fmt.Errorf("encode %s: %w", im.ID, err)
	}
	return pending.CloseAtomicallyReplace()
}
