package octree

import (
	"github.com/golang/geo/r3"
)

// HitPoint is the result of a ray query.
type HitPoint struct {
	Hit bool
	// Position is the world space point where the ray entered the struck voxel.
	Position r3.Vector
	// Normal is the axis aligned unit normal of the face crossed last. It is zero when the ray
	// started inside the voxel it hit.
	Normal r3.Vector
	// Distance is the ray parameter of the hit scaled to world units, that is the Euclidean distance
	// when the direction has unit length.
	Distance float64
	Cell     Cell
	// Voxel is the integer coordinate of the struck voxel.
	Voxel Coord
	// Slot is the array index holding the struck leaf.
	Slot uint32
	// Complexity counts traversal iterations. Profiling only.
	Complexity int
}

// Adjacent returns the voxel on the near side of the struck face, i.e. where a new voxel placed
// against the hit would go. ok is false when that voxel is outside a world of the given depth or
// the hit has no face.
func (hp HitPoint) Adjacent(depth uint8) (Coord, bool) {
	if !hp.Hit || hp.Normal == (r3.Vector{}) {
		return Coord{}, false
	}
	limit := int64(1) << depth
	step := func(v uint32, n float64) (uint32, bool) {
		next := int64(v)
		switch {
		case n > 0:
			next++
		case n < 0:
			next--
		}
		return uint32(next), next >= 0 && next < limit
	}
	x, okX := step(hp.Voxel.X, hp.Normal.X)
	y, okY := step(hp.Voxel.Y, hp.Normal.Y)
	z, okZ := step(hp.Voxel.Z, hp.Normal.Z)
	return Coord{x, y, z}, okX && okY && okZ
}
