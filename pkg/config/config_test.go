package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
catalog: scenes.db
start: 2021-01-01
end: 2021-12-31
frequency: Q
roi:
  bbox: [-0.2, 51.4, 0.1, 51.6]
animation:
  fps: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "scenes.db", cfg.Catalog)
	assert.Equal(t, "Q", cfg.Frequency)
	assert.Equal(t, 4, cfg.Animation.FramesPerSecond)
	assert.Equal(t, 512, cfg.Animation.Dimensions)
	assert.Equal(t, int64(42), cfg.Assessment.Seed)
	assert.Equal(t, 2000, cfg.Assessment.NPoints)

	roi, err := cfg.ROI()
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{-0.2, 51.4}, Max: orb.Point{0.1, 51.6}}, roi)
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Catalog, cfg.Catalog)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DW_CATALOG", "/data/dw.db")
	t.Setenv("DW_OUTPUT", "/tmp/out")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "catalog: ignored.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/data/dw.db", cfg.Catalog)
	assert.Equal(t, "/tmp/out", cfg.Output)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "catalog: [unterminated\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Start, c.End = "2021-01-01", "2021-06-30"
		return c
	}
	require.NoError(t, valid().Validate())

	day := valid()
	day.Start, day.End = "2021-03-14", "2021-03-14"
	require.NoError(t, day.Validate(), "a single-day window is valid")

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no catalog", func(c *Config) { c.Catalog = "" }},
		{"bad start", func(c *Config) { c.Start = "01/01/2021" }},
		{"reversed window", func(c *Config) { c.Start, c.End = c.End, c.Start }},
		{"bad frequency", func(c *Config) { c.Frequency = "fortnight" }},
		{"bad method", func(c *Config) { c.Method = "variance" }},
		{"bad meta type", func(c *Config) { c.MetaType = "end" }},
		{"bad baseline", func(c *Config) { c.Baseline = "yesterday" }},
		{"bad unit", func(c *Config) { c.TimeDeltaUnit = "fortnight" }},
		{"short bbox", func(c *Config) { c.Region.BBox = []float64{0, 0, 1} }},
		{"inverted bbox", func(c *Config) { c.Region.BBox = []float64{1, 1, 0, 0} }},
		{"bbox and geojson", func(c *Config) {
			c.Region.BBox = []float64{0, 0, 1, 1}
			c.Region.GeoJSON = `{"type":"Point","coordinates":[0,0]}`
		}},
		{"bad product", func(c *Config) { c.Animation.Product = "majority" }},
		{"zero fps", func(c *Config) { c.Animation.FramesPerSecond = 0 }},
		{"zero npoints", func(c *Config) { c.Assessment.NPoints = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestROI_GeoJSON(t *testing.T) {
	c := DefaultConfig()

	c.Region.GeoJSON = `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`
	g, err := c.ROI()
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, g.Bound())

	c.Region.GeoJSON = `{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[2,3]}}`
	g, err = c.ROI()
	require.NoError(t, err)
	assert.Equal(t, orb.Point{2, 3}, g)

	c.Region.GeoJSON = `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[4,5]}}]}`
	g, err = c.ROI()
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 5}}, g.Bound())

	c.Region.GeoJSON = `{"type":"FeatureCollection","features":[]}`
	_, err = c.ROI()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c.Region.GeoJSON = `not json`
	_, err = c.ROI()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c.Region.GeoJSON = ""
	g, err = c.ROI()
	require.NoError(t, err)
	assert.Nil(t, g)
}
