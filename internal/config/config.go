// Package config loads the pipeline configuration from a JSON file.
// Fields omitted from the JSON keep their defaults, so partial configs
// are safe. A few deployment-specific values (database path, output
// directory) may be overridden through the environment, optionally
// loaded from a .env file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// GridConfig overrides the raster bounding box.
type GridConfig struct {
	MinLat   float64 `json:"minlat"`
	MinLon   float64 `json:"minlon"`
	MaxLat   float64 `json:"maxlat"`
	MaxLon   float64 `json:"maxlon"`
	CellSize float64 `json:"cellsize"`
	NAValue  int     `json:"na_value"`
}

// Config is the root pipeline configuration.
type Config struct {
	// Directory tree of raw per-vehicle trace CSV files.
	RawPath string `json:"raw_path"`
	// Directory all artifacts are written under.
	OutPath string `json:"out_path"`
	// Directory holding geometry layers, one <name>.geojson per geography.
	BoundariesPath string `json:"boundaries_path"`
	// Valhalla service configuration file, passed to every oracle call.
	ValhallaConfig string `json:"valhalla_config"`
	// Path of the sqlite traversal database.
	DatabasePath string `json:"database_path"`
	// Worker pool size; 0 means one worker per CPU.
	Workers int `json:"workers"`
	// Idle interval that splits a vehicle's fixes into separate trips,
	// as a duration string like "30m".
	TripGap string `json:"trip_gap,omitempty"`
	// IANA timezone used to derive hour/weekday buckets. Default UTC.
	Timezone string `json:"timezone,omitempty"`
	// Geography name -> identity property of its geometry layer. Every
	// geography named on the command line must appear here.
	Geographies map[string]string `json:"geographies,omitempty"`
	// Optional raster override; nil uses the built-in bounding box.
	Grid *GridConfig `json:"grid,omitempty"`
}

// Load reads and validates a config file. Before parsing it loads .env
// (if present) into the environment; CVTS_DATABASE, CVTS_OUT_PATH and
// CVTS_RAW_PATH then override the corresponding file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if v := os.Getenv("CVTS_DATABASE"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("CVTS_OUT_PATH"); v != "" {
		cfg.OutPath = v
	}
	if v := os.Getenv("CVTS_RAW_PATH"); v != "" {
		cfg.RawPath = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and value shapes.
func (c *Config) Validate() error {
	if c.RawPath == "" {
		return fmt.Errorf("raw_path is required")
	}
	if c.OutPath == "" {
		return fmt.Errorf("out_path is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.TripGap != "" {
		if _, err := time.ParseDuration(c.TripGap); err != nil {
			return fmt.Errorf("invalid trip_gap %q: %w", c.TripGap, err)
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	if c.Grid != nil {
		g := c.Grid
		if g.CellSize <= 0 {
			return fmt.Errorf("grid cellsize must be positive, got %v", g.CellSize)
		}
		if g.MaxLat <= g.MinLat || g.MaxLon <= g.MinLon {
			return fmt.Errorf("grid bounding box is empty")
		}
	}
	return nil
}

// TripGapDuration returns the parsed trip gap, or zero when unset (the
// trace reader applies its own default).
func (c *Config) TripGapDuration() time.Duration {
	if c.TripGap == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.TripGap) // validated in Validate
	return d
}

// Location returns the configured timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, _ := time.LoadLocation(c.Timezone) // validated in Validate
	return loc
}

// GeometryColumn resolves the identity property for a geography,
// failing fast when it is not configured.
func (c *Config) GeometryColumn(geography string) (string, error) {
	col, ok := c.Geographies[geography]
	if !ok || col == "" {
		return "", fmt.Errorf("geography %q has no configured identity column", geography)
	}
	return col, nil
}

// GeographyPath returns the geometry layer file for a geography.
func (c *Config) GeographyPath(geography string) string {
	return filepath.Join(c.BoundariesPath, geography+".geojson")
}
