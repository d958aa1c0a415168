package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/dynamicworld"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/metrics"
	"github.com/chris010970/dynamicworld/pkg/viz"
)

// Output file names inside Config.Output.
const (
	CoverageFile   = "coverage.json"
	AnimationFile  = "animation.gif"
	ChartFile      = "coverage.png"
	AssessmentFile = "assessment.json"
	ChangeFile     = "change.json"
)

// CoverageRecord is one line of coverage.json.
type CoverageRecord struct {
	Interval string           `json:"interval"`
	Product  string           `json:"product"`
	Scenes   int              `json:"scenes"`
	Coverage metrics.Coverage `json:"coverage"`
}

// products is the order composites are written in.
var products = []dynamicworld.Product{dynamicworld.ModeProduct, dynamicworld.MaxMedianProduct}

// WriteComposites writes a PNG label map per composite and product plus coverage.json,
// returning the paths written.
func (r *Runner) WriteComposites(ctx context.Context, comps []dynamicworld.Composite) ([]string, error) {
	logger := xlog.FromContext(ctx, "workflow")
	if err := os.MkdirAll(r.Config.Output, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var (
		paths   []string
		records []CoverageRecord
	)
	for _, comp := range comps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, p := range products {
			im := comp.Product(p)
			path := filepath.Join(r.Config.Output, labelMapName(comp, p))
			if err := viz.SaveLabelMap(path, im, dynamicworld.LabelBand, r.Config.Animation.Dimensions); err != nil {
				return nil, fmt.Errorf("label map %s: %w", im.ID, err)
			}
			paths = append(paths, path)

			cov, err := metrics.ClassCoverage(im, dynamicworld.LabelBand)
			if err != nil {
				return nil, err
			}
			records = append(records, CoverageRecord{
				Interval: comp.Interval.String(),
				Product:  string(p),
				Scenes:   comp.Scenes,
				Coverage: cov,
			})
			logger.Debug().Str(xlog.FieldPath, path).Str(xlog.FieldProduct, string(p)).Msg("wrote label map")
		}
	}

	path := filepath.Join(r.Config.Output, CoverageFile)
	if err := writeJSON(path, records); err != nil {
		return nil, err
	}
	paths = append(paths, path)
	logger.Info().Int("files", len(paths)).Msg("wrote composites")
	return paths, nil
}

func labelMapName(comp dynamicworld.Composite, p dynamicworld.Product) string {
	return fmt.Sprintf("%s_%s.png", strings.ReplaceAll(comp.Interval.StartDate(), "-", ""), p)
}

// productCollection returns the configured product of each composite, in order.
func (r *Runner) productCollection(comps []dynamicworld.Composite) (*collection.Collection, dynamicworld.Product, error) {
	p, err := dynamicworld.ParseProduct(r.Config.Animation.Product)
	if err != nil {
		return nil, "", err
	}
	images := make([]*collection.Image, len(comps))
	for i, comp := range comps {
		images[i] = comp.Product(p)
	}
	return collection.New(images...), p, nil
}

// Animate writes the animated GIF of the configured product.
func (r *Runner) Animate(ctx context.Context, comps []dynamicworld.Composite) (string, error) {
	c, p, err := r.productCollection(comps)
	if err != nil {
		return "", err
	}
	anim, err := viz.Animation(ctx, c, viz.AnimationOptions{
		Dimensions:      r.Config.Animation.Dimensions,
		FramesPerSecond: r.Config.Animation.FramesPerSecond,
		Band:            dynamicworld.LabelBand,
		Annotate:        r.Config.Animation.Annotate,
	})
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.Config.Output, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(r.Config.Output, AnimationFile)
	if err := viz.SaveAnimation(path, anim); err != nil {
		return "", err
	}
	xlog.FromContext(ctx, "workflow").Info().
		Str(xlog.FieldPath, path).
		Str(xlog.FieldProduct, string(p)).
		Int(xlog.FieldFrames, len(anim.Image)).
		Msg("wrote animation")
	return path, nil
}

// Chart writes the class coverage chart of the configured product.
func (r *Runner) Chart(ctx context.Context, comps []dynamicworld.Composite) (string, error) {
	c, p, err := r.productCollection(comps)
	if err != nil {
		return "", err
	}
	series := make([]viz.CoveragePoint, 0, c.Len())
	for _, im := range c.Images() {
		cov, err := metrics.ClassCoverage(im, dynamicworld.LabelBand)
		if err != nil {
			return "", err
		}
		series = append(series, viz.CoveragePoint{Time: im.TimeStart, Coverage: cov})
	}
	if err := os.MkdirAll(r.Config.Output, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(r.Config.Output, ChartFile)
	title := fmt.Sprintf("Dynamic World %s coverage", p)
	if err := viz.SaveCoverageChart(path, series, title); err != nil {
		return "", err
	}
	xlog.FromContext(ctx, "workflow").Info().Str(xlog.FieldPath, path).Msg("wrote coverage chart")
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
