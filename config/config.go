// Package config defines the JSON file that describes a voxel world: its size, its array form,
// where its voxels come from and where it is written.
package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/svo/logging"
	"go.viam.com/svo/octree"
	"go.viam.com/svo/pointcloud"
	"go.viam.com/svo/worldgen"
)

// Representation selects the array form a world is kept in.
type Representation string

const (
	// Compiled worlds are read only and use the offset addressed layout.
	Compiled Representation = "compiled"
	// Dense worlds accept edits.
	Dense Representation = "dense"
)

// Config describes a world.
type Config struct {
	Depth          uint8          `json:"depth"`
	Representation Representation `json:"representation,omitempty"`
	// StrictBounds defaults to true. False clamps out of bounds coordinates into the world.
	StrictBounds *bool      `json:"strict_bounds,omitempty"`
	LogLevel     string     `json:"log_level,omitempty"`
	Generator    *Generator `json:"generator,omitempty"`
	Import       *Import    `json:"import,omitempty"`
	Output       *Output    `json:"output,omitempty"`

	ConfigFilePath string `json:"-"`
}

// Generator configures procedural terrain. Zero fields take the worldgen defaults.
type Generator struct {
	Seed       int64   `json:"seed,omitempty"`
	Frequency  float64 `json:"frequency,omitempty"`
	Octaves    int     `json:"octaves,omitempty"`
	Amplitude  float64 `json:"amplitude,omitempty"`
	BaseHeight float64 `json:"base_height,omitempty"`
	Floor      *bool   `json:"floor,omitempty"`
	Margin     *uint32 `json:"margin,omitempty"`
}

// Import configures voxelizing point cloud files.
type Import struct {
	Path  string   `json:"path,omitempty"`
	Paths []string `json:"paths,omitempty"`
	// VoxelSize is in cloud units; zero fits the combined clouds into the world.
	VoxelSize float64 `json:"voxel_size,omitempty"`
	MinPoints int     `json:"min_points,omitempty"`
	Type      string  `json:"type,omitempty"`
	// Texture forces one texture; empty derives it from point colors.
	Texture string `json:"texture,omitempty"`
}

// Output configures where a built world is saved.
type Output struct {
	Path     string `json:"path"`
	Compress bool   `json:"compress,omitempty"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (c *Config) Validate(path string) error {
	if c.Depth == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "depth")
	}
	if c.Representation == "" {
		c.Representation = Compiled
	}
	switch c.Representation {
	case Compiled:
		if c.Depth > octree.MaxDepth {
			return utils.NewConfigValidationError(path,
				errors.Errorf("depth %d exceeds the maximum of %d", c.Depth, octree.MaxDepth))
		}
	case Dense:
		if c.Depth > octree.MaxDenseDepth {
			return utils.NewConfigValidationError(path,
				errors.Errorf("depth %d exceeds the dense maximum of %d", c.Depth, octree.MaxDenseDepth))
		}
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown representation %q", c.Representation))
	}
	if c.LogLevel != "" {
		if _, err := logging.LevelFromString(c.LogLevel); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	if c.Generator != nil && c.Import != nil {
		return utils.NewConfigValidationError(path, errors.New("generator and import are mutually exclusive"))
	}
	if c.Generator != nil {
		if err := c.Generator.Validate(joinPath(path, "generator")); err != nil {
			return err
		}
	}
	if c.Import != nil {
		if err := c.Import.Validate(joinPath(path, "import")); err != nil {
			return err
		}
	}
	if c.Output != nil {
		if err := c.Output.Validate(joinPath(path, "output")); err != nil {
			return err
		}
	}
	return nil
}

// BoundsPolicy returns the policy edits and setters use.
func (c *Config) BoundsPolicy() octree.BoundsPolicy {
	if c.StrictBounds != nil && !*c.StrictBounds {
		return octree.BoundsClamp
	}
	return octree.BoundsStrict
}

// Level returns the configured log level, INFO when unset.
func (c *Config) Level() logging.Level {
	if c.LogLevel == "" {
		return logging.INFO
	}
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// Validate ensures the generator settings are usable.
func (g *Generator) Validate(path string) error {
	if g.Octaves < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("octaves must not be negative, got %d", g.Octaves))
	}
	if g.Frequency < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("frequency must not be negative, got %v", g.Frequency))
	}
	return nil
}

// WorldgenConfig merges the settings over worldgen.DefaultConfig.
func (g *Generator) WorldgenConfig() worldgen.Config {
	cfg := worldgen.DefaultConfig()
	if g == nil {
		return cfg
	}
	if g.Seed != 0 {
		cfg.Seed = g.Seed
	}
	if g.Frequency != 0 {
		cfg.Frequency = g.Frequency
	}
	if g.Octaves != 0 {
		cfg.Octaves = g.Octaves
	}
	if g.Amplitude != 0 {
		cfg.Amplitude = g.Amplitude
	}
	if g.BaseHeight != 0 {
		cfg.BaseHeight = g.BaseHeight
	}
	if g.Floor != nil {
		cfg.Floor = *g.Floor
	}
	if g.Margin != nil {
		cfg.Margin = *g.Margin
	}
	return cfg
}

// Validate ensures the import settings are usable.
func (i *Import) Validate(path string) error {
	if i.Path == "" && len(i.Paths) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "path")
	}
	for idx, p := range i.AllPaths() {
		if p == "" {
			return utils.NewConfigValidationFieldRequiredError(fmt.Sprintf("%s.paths.%d", path, idx), "path")
		}
	}
	if i.VoxelSize < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("voxel_size must not be negative, got %v", i.VoxelSize))
	}
	if _, err := i.VoxelizeOptions(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// AllPaths returns Path followed by Paths.
func (i *Import) AllPaths() []string {
	var paths []string
	if i.Path != "" {
		paths = append(paths, i.Path)
	}
	return append(paths, i.Paths...)
}

// VoxelizeOptions converts the settings for pointcloud.Voxelize.
func (i *Import) VoxelizeOptions() (pointcloud.VoxelizeOptions, error) {
	opts := pointcloud.VoxelizeOptions{VoxelSize: i.VoxelSize, MinPoints: i.MinPoints, Type: octree.Solid}
	if i.Type != "" {
		t, err := octree.CellTypeFromString(i.Type)
		if err != nil {
			return opts, err
		}
		if t == octree.Empty {
			return opts, errors.New("imported voxels cannot be empty")
		}
		opts.Type = t
	}
	if i.Texture != "" {
		tex, err := octree.TextureFromString(i.Texture)
		if err != nil {
			return opts, err
		}
		opts.Texture = tex
	}
	return opts, nil
}

// Validate ensures the output settings are usable.
func (o *Output) Validate(path string) error {
	if o.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "path")
	}
	return nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return strings.Join([]string{path, field}, ".")
}
