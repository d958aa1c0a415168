package viz

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/chris010970/dynamicworld/pkg/landcover"
	"github.com/chris010970/dynamicworld/pkg/metrics"
)

// CoveragePoint is the class coverage of one composite.
type CoveragePoint struct {
	Time     time.Time
	Coverage metrics.Coverage
}

// CoverageChart plots the fraction of each class over time, one line per class in its
// legend colour. Classes never observed are left out.
func CoverageChart(series []CoveragePoint, title string) (*plot.Plot, error) {
	if len(series) == 0 {
		return nil, errors.New("no coverage points")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Fraction of valid pixels"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	p.Y.Min, p.Y.Max = 0, 1
	p.Legend.Top = true

	for c := landcover.Class(0); c < landcover.NumClasses; c++ {
		pts := make(plotter.XYs, len(series))
		seen := false
		for i, pt := range series {
			pts[i].X = float64(pt.Time.Unix())
			pts[i].Y = pt.Coverage.Fractions[c]
			if pt.Coverage.Counts[c] > 0 {
				seen = true
			}
		}
		if !seen {
			continue
		}
		l, s, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("plot %s: %w", c, err)
		}
		l.Color = c.Color()
		l.LineStyle.Width = vg.Points(2)
		s.Color = c.Color()
		s.Shape = draw.CircleGlyph{}
		p.Add(l, s)
		p.Legend.Add(c.String(), l, s)
	}
	return p, nil
}

// SaveCoverageChart renders the coverage chart to path as PNG.
func SaveCoverageChart(path string, series []CoveragePoint, title string) error {
	p, err := CoverageChart(series, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return writeAtomic(path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
}
