package octree

import (
	"github.com/pkg/errors"

	"go.viam.com/svo/logging"
)

// ErrOutOfBounds is returned when voxel coordinates fall outside [0, 2^depth) under BoundsStrict.
var ErrOutOfBounds = errors.New("voxel coordinates out of bounds")

// BoundsPolicy decides what edits do with coordinates outside the world.
type BoundsPolicy uint8

const (
	// BoundsStrict rejects the edit with ErrOutOfBounds.
	BoundsStrict BoundsPolicy = iota
	// BoundsClamp moves each coordinate onto the nearest face of the world and logs a warning.
	BoundsClamp
)

func (p BoundsPolicy) String() string {
	if p == BoundsClamp {
		return "clamp"
	}
	return "strict"
}

// Coord is an integer voxel coordinate.
type Coord struct {
	X, Y, Z uint32
}

// resolveBounds applies policy to (x, y, z) for a world of side 2^depth.
func resolveBounds(policy BoundsPolicy, depth uint8, x, y, z uint32, logger logging.Logger) (Coord, error) {
	limit := uint32(1) << depth
	if x < limit && y < limit && z < limit {
		return Coord{x, y, z}, nil
	}
	if policy == BoundsStrict {
		return Coord{}, errors.Wrapf(ErrOutOfBounds, "(%d, %d, %d) with side %d", x, y, z, limit)
	}
	clamped := Coord{min(x, limit-1), min(y, limit-1), min(z, limit-1)}
	logger.Warnw("clamping out of bounds voxel", "requested", Coord{x, y, z}, "clamped", clamped, "side", limit)
	return clamped, nil
}
