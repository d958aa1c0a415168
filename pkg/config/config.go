// Package config loads the YAML run configuration of the dwchange toolkit.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"github.com/chris010970/dynamicworld/pkg/collection"
	"github.com/chris010970/dynamicworld/pkg/dynamicworld"
	"github.com/chris010970/dynamicworld/pkg/stats"
	"github.com/chris010970/dynamicworld/pkg/temporal"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds a compositing run.
type Config struct {
	// Catalog is the SQLite scene catalog path.
	Catalog string `yaml:"catalog"`

	// Output is the directory products are written to.
	Output string `yaml:"output"`

	Region RegionConfig `yaml:"roi"`

	// Date window, YYYY-MM-DD. End is inclusive when generating intervals.
	Start string `yaml:"start"`
	End   string `yaml:"end"`

	Frequency string `yaml:"frequency"` // D, W, M, Q or Y
	Method    string `yaml:"method"`    // temporal reducer
	MetaType  string `yaml:"meta_type"` // aggregation_period or midpoint

	// Baseline enables the time_delta band when set.
	Baseline      string `yaml:"baseline"`
	TimeDeltaUnit string `yaml:"time_delta_unit"`

	Concurrency int `yaml:"concurrency"`

	Animation  AnimationConfig  `yaml:"animation"`
	Assessment AssessmentConfig `yaml:"assessment"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RegionConfig is a bounding box or an inline GeoJSON geometry.
type RegionConfig struct {
	BBox    []float64 `yaml:"bbox"` // min lon, min lat, max lon, max lat
	GeoJSON string    `yaml:"geojson"`
}

// AnimationConfig configures the GIF writer.
type AnimationConfig struct {
	Dimensions      int    `yaml:"dimensions"`
	FramesPerSecond int    `yaml:"fps"`
	Annotate        bool   `yaml:"annotate"`
	Product         string `yaml:"product"`
}

// AssessmentConfig configures stratified sampling.
type AssessmentConfig struct {
	Seed            int64   `yaml:"seed"`
	NPoints         int     `yaml:"npoints"`
	Scale           float64 `yaml:"scale"`
	ReferencePoints string  `yaml:"reference_points"` // optional CSV of lon,lat,label
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the defaults every loaded file is merged over.
func DefaultConfig() *Config {
	return &Config{
		Catalog:       "dynamicworld.db",
		Output:        "out",
		Frequency:     string(temporal.Monthly),
		Method:        "mode",
		MetaType:      string(collection.AggregationPeriod),
		TimeDeltaUnit: string(temporal.Days),
		Animation: AnimationConfig{
			Dimensions:      512,
			FramesPerSecond: 2,
			Annotate:        true,
			Product:         string(dynamicworld.ModeProduct),
		},
		Assessment: AssessmentConfig{
			Seed:    42,
			NPoints: 2000,
			Scale:   10,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. A missing
// file yields the defaults. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DW_CATALOG"); v != "" {
		c.Catalog = v
	}
	if v := os.Getenv("DW_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks every field that a run depends on.
func (c *Config) Validate() error {
	if c.Catalog == "" {
		return fmt.Errorf("%w: catalog is required", ErrInvalidConfig)
	}
	start, end, err := c.Window()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidConfig, c.End, c.Start)
	}
	if _, err := temporal.ParseFrequency(c.Frequency); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := stats.Lookup(c.Method); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := collection.ParseMetaType(c.MetaType); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.BaselineTime(); err != nil {
		return err
	}
	if _, err := temporal.ParseUnit(c.TimeDeltaUnit); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.ROI(); err != nil {
		return err
	}
	if _, err := dynamicworld.ParseProduct(c.Animation.Product); err != nil {
		return fmt.Errorf("%w: animation: %v", ErrInvalidConfig, err)
	}
	if c.Animation.Dimensions <= 0 || c.Animation.FramesPerSecond <= 0 {
		return fmt.Errorf("%w: animation dimensions and fps must be positive", ErrInvalidConfig)
	}
	if c.Assessment.NPoints <= 0 || c.Assessment.Scale <= 0 {
		return fmt.Errorf("%w: assessment npoints and scale must be positive", ErrInvalidConfig)
	}
	return nil
}

// Window parses the start and end dates.
func (c *Config) Window() (time.Time, time.Time, error) {
	start, err := temporal.ParseDate(c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start: %v", ErrInvalidConfig, err)
	}
	end, err := temporal.ParseDate(c.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end: %v", ErrInvalidConfig, err)
	}
	return start, end, nil
}

// BaselineTime parses the time-delta baseline. The zero time means no time_delta band.
func (c *Config) BaselineTime() (time.Time, error) {
	if c.Baseline == "" {
		return time.Time{}, nil
	}
	t, err := temporal.ParseDate(c.Baseline)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: baseline: %v", ErrInvalidConfig, err)
	}
	return t, nil
}

// ROI returns the region of interest. A nil geometry means the whole catalog.
func (c *Config) ROI() (orb.Geometry, error) {
	r := c.Region
	switch {
	case len(r.BBox) > 0 && r.GeoJSON != "":
		return nil, fmt.Errorf("%w: roi takes bbox or geojson, not both", ErrInvalidConfig)
	case len(r.BBox) > 0:
		if len(r.BBox) != 4 {
			return nil, fmt.Errorf("%w: roi bbox needs 4 values, got %d", ErrInvalidConfig, len(r.BBox))
		}
		b := orb.Bound{Min: orb.Point{r.BBox[0], r.BBox[1]}, Max: orb.Point{r.BBox[2], r.BBox[3]}}
		if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
			return nil, fmt.Errorf("%w: roi bbox min exceeds max", ErrInvalidConfig)
		}
		return b, nil
	case r.GeoJSON != "":
		return parseGeoJSON([]byte(r.GeoJSON))
	}
	return nil, nil
}

// parseGeoJSON accepts a bare geometry, a feature or a feature collection.
func parseGeoJSON(data []byte) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: roi geojson: %v", ErrInvalidConfig, err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: roi geojson: %v", ErrInvalidConfig, err)
		}
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("%w: roi feature collection is empty", ErrInvalidConfig)
		}
		geoms := make(orb.Collection, 0, len(fc.Features))
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
		return geoms, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: roi geojson: %v", ErrInvalidConfig, err)
		}
		return f.Geometry, nil
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: roi geojson: %v", ErrInvalidConfig, err)
		}
		return g.Geometry(), nil
	}
}
