// Package octree implements a sparse voxel octree in two array forms that can be handed to an
// external renderer as raw buffers: a compiled, offset addressed form built once from a Builder,
// and a dense, arithmetically addressed form that supports in place edits. Both answer ray queries
// with the same non-recursive traversal.
package octree

import (
	"github.com/golang/geo/r3"
)

const (
	// MaxDepth is the deepest tree the traversal supports. Positions are walked as float32 values
	// in [1,2) so each level consumes one mantissa bit; a few bits are left for t precision.
	MaxDepth uint8 = 20

	// MaxDenseDepth bounds dense octrees, whose size grows as 8^depth bytes.
	MaxDenseDepth uint8 = 10
)

// An Octree answers ray queries against a voxel world of side 2^Depth.
type Octree interface {
	Depth() uint8
	CastRay(origin, direction r3.Vector) HitPoint
	MarshalBinary() ([]byte, error)
}

// A CellSetter is anything a world can be authored into. Builder and Dense both qualify.
type CellSetter interface {
	Depth() uint8
	SetCell(t CellType, tex Texture, x, y, z uint32) error
}

// subIndex returns the sub-octant index of the given half selectors.
func subIndex(x, y, z uint32) uint8 {
	return uint8(x | y<<1 | z<<2)
}
