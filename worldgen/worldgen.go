// Package worldgen fills an octree with procedural terrain: an optional floor slab under a fractal
// simplex height map. The world's Y axis points up.
package worldgen

import (
	"context"

	"github.com/ojrac/opensimplex-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/svo/logging"
	"go.viam.com/svo/octree"
	"go.viam.com/svo/utils"
)

// Config describes the terrain to generate.
type Config struct {
	Seed int64
	// Frequency scales voxel coordinates before sampling the noise.
	Frequency float64
	// Octaves is the number of noise layers summed, each at twice the frequency and half the
	// amplitude of the previous one.
	Octaves int
	// Amplitude is the height swing, in voxels, of the first octave.
	Amplitude float64
	// BaseHeight is the column height where the noise is zero.
	BaseHeight float64
	// Floor places a one voxel thick stone slab at y = 1 under every column.
	Floor bool
	// Margin is the number of voxel columns left empty along each side of the world.
	Margin uint32
}

// DefaultConfig returns the rolling hills used when no generator settings are given.
func DefaultConfig() Config {
	return Config{
		Seed:       1,
		Frequency:  0.0075,
		Octaves:    3,
		Amplitude:  64,
		BaseHeight: 32,
		Floor:      true,
		Margin:     1,
	}
}

// Stats summarizes a generated world.
type Stats struct {
	Columns   int
	Cells     int
	MinHeight uint32
	MaxHeight uint32
}

// Heights samples the height map for a world of the given side. heights[x*side+z] is the number of
// voxels above y = 1 of the column at (x, z) before clamping to the world.
func Heights(ctx context.Context, side uint32, cfg Config) ([]int32, error) {
	if cfg.Octaves < 1 {
		return nil, errors.Errorf("octaves must be at least 1, got %d", cfg.Octaves)
	}
	noise := opensimplex.New(cfg.Seed)
	heights := make([]int32, int(side)*int(side))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(utils.ParallelFactor)
	for x := uint32(0); x < side; x++ {
		x := x
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for z := uint32(0); z < side; z++ {
				heights[int(x)*int(side)+int(z)] = int32(cfg.BaseHeight + cfg.Amplitude*fbm(noise, cfg, float64(x), float64(z)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return heights, nil
}

// fbm sums cfg.Octaves layers of noise, normalized back to [-1, 1].
func fbm(noise opensimplex.Noise, cfg Config, x, z float64) float64 {
	sum, amp, norm := 0.0, 1.0, 0.0
	freq := cfg.Frequency
	for i := 0; i < cfg.Octaves; i++ {
		sum += amp * noise.Eval2(x*freq, z*freq)
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return sum / norm
}

// textureAt picks the surface texture of a voxel depth voxels below the top of its column.
func textureAt(depth int32) octree.Texture {
	switch {
	case depth == 0:
		return octree.Grass
	case depth <= 3:
		return octree.Dirt
	default:
		return octree.Stone
	}
}

// Generate writes terrain into target. Heights are sampled in parallel; cells are written from
// the calling goroutine since CellSetters are single writer.
func Generate(ctx context.Context, target octree.CellSetter, cfg Config, logger logging.Logger) (Stats, error) {
	side := uint32(1) << target.Depth()
	if 2*cfg.Margin >= side {
		return Stats{}, errors.Errorf("margin %d leaves no columns in a world of side %d", cfg.Margin, side)
	}
	heights, err := Heights(ctx, side, cfg)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{MinHeight: side}
	for x := cfg.Margin; x < side-cfg.Margin; x++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		for z := cfg.Margin; z < side-cfg.Margin; z++ {
			stats.Columns++
			if cfg.Floor && side > 1 {
				if err := target.SetCell(octree.Solid, octree.Stone, x, 1, z); err != nil {
					return stats, err
				}
				stats.Cells++
			}
			top := uint32(min(max(heights[int(x)*int(side)+int(z)], 2), int32(side)))
			for y := uint32(2); y < top; y++ {
				if err := target.SetCell(octree.Solid, textureAt(int32(top-1-y)), x, y, z); err != nil {
					return stats, err
				}
				stats.Cells++
			}
			stats.MinHeight = min(stats.MinHeight, top)
			stats.MaxHeight = max(stats.MaxHeight, top)
		}
	}
	logger.Infow("generated terrain",
		"seed", cfg.Seed, "side", side, "columns", stats.Columns, "cells", stats.Cells,
		"min_height", stats.MinHeight, "max_height", stats.MaxHeight)
	return stats, nil
}
