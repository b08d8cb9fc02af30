package octree

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/golang/geo/r3"
)

// rayEpsilon replaces direction components closer to zero than itself, keeping their sign.
const rayEpsilon = float32(1.0) / float32(1<<maxScale)

// A resolver maps the traversal's abstract (slot, level, sub-octant) addressing onto one concrete
// array layout. level is the depth of the node at slot, 0 for the root.
type resolver interface {
	// masks returns the occupancy and leaf masks of the node at slot.
	masks(slot uint32, level int) (child, leaf uint8)
	// child returns the slot of sub-octant sub of the node at slot.
	child(slot uint32, level int, sub uint8) uint32
	// cell returns the payload and slot of leaf sub of the node at slot.
	cell(slot uint32, level int, sub uint8) (Cell, uint32)
}

type stackEntry struct {
	parent uint32
	tMax   float32
}

// castRay walks an octree without recursion or allocation.
//
// The world is mapped onto the cube [1,2]^3. Every axis along which the ray travels in the positive
// direction is mirrored (c -> 3-c) so that the walk always moves toward smaller coordinates. flip
// records the mirrored axes, and sub-octants are translated back with idx ^ flip before any mask
// lookup. pos is the corner of the current child cube of side scaleF = 2^(scale-23), idx its
// octant inside parent, and [tMin, tMax] the part of the ray still inside parent.
//
// Each iteration is one of: descend into an occupied child (pushing parent), report a hit on a leaf
// child, advance to the sibling across the nearest exit plane, or pop to the common ancestor of the
// old and new positions when that advance leaves parent. Popping past the root ends the walk.
func castRay[R resolver](r R, depth uint8, origin, direction r3.Vector) HitPoint {
	var result HitPoint

	if hasNaN(origin) || hasNaN(direction) {
		return result
	}

	one := mgl32.Vec3{1, 1, 1}
	worldSize := float32(uint32(1) << depth)
	position := mgl32.Vec3{float32(origin.X), float32(origin.Y), float32(origin.Z)}.Mul(1 / worldSize).Add(one)
	d := mgl32.Vec3{float32(direction.X), float32(direction.Y), float32(direction.Z)}
	for i := range d {
		if abs32(d[i]) < rayEpsilon {
			d[i] = float32(math.Copysign(float64(rayEpsilon), float64(d[i])))
		}
	}

	var tCoef, tOffset mgl32.Vec3
	var flip uint8
	for i := range d {
		tCoef[i] = -1 / abs32(d[i])
		tOffset[i] = position[i] * tCoef[i]
		if d[i] > 0 {
			flip |= 1 << i
			tOffset[i] = 3*tCoef[i] - tOffset[i]
		}
	}

	entry := tCoef.Mul(2).Sub(tOffset)
	exit := tCoef.Sub(tOffset)
	tMin := max(entry.X(), entry.Y(), entry.Z())
	tMax := min(exit.X(), exit.Y(), exit.Z())
	if math.IsNaN(float64(tMin)) || math.IsNaN(float64(tMax)) {
		return result
	}
	h := tMax

	// A ray starting outside the world crosses its boundary on the axis of the latest entry plane.
	var normalMask uint8
	if tMin > 0 {
		for i := range entry {
			if entry[i] == tMin {
				normalMask |= 1 << i
			}
		}
	}
	tMin = max(tMin, 0)

	var stack [maxScale]stackEntry
	parent := uint32(0)
	scale := maxScale - 1
	scaleF := float32(0.5)
	stack[scale] = stackEntry{parent: parent, tMax: tMax}

	var idx uint8
	pos := mgl32.Vec3{1, 1, 1}
	for i := range pos {
		if 1.5*tCoef[i]-tOffset[i] > tMin {
			idx ^= 1 << i
			pos[i] = 1.5
		}
	}

	hit := false
	for scale < maxScale {
		result.Complexity++
		level := maxScale - 1 - scale
		childMask, leafMask := r.masks(parent, level)

		var tCorner mgl32.Vec3
		for i := range tCorner {
			tCorner[i] = pos[i]*tCoef[i] - tOffset[i]
		}
		tcMax := min(tCorner[0], tCorner[1], tCorner[2])

		sub := idx ^ flip
		if childMask&(1<<sub) != 0 && tMin <= tMax {
			tvMax := min(tMax, tcMax)
			half := scaleF * 0.5
			if tMin <= tvMax {
				if leafMask&(1<<sub) != 0 {
					result.Cell, result.Slot = r.cell(parent, level, sub)
					hit = true
					break
				}

				// DESCEND
				if tcMax < h {
					stack[scale] = stackEntry{parent: parent, tMax: tMax}
				}
				h = tcMax
				parent = r.child(parent, level, sub)
				idx = 0
				scale--
				scaleF = half
				for i := range pos {
					if half*tCoef[i]+tCorner[i] > tMin {
						idx ^= 1 << i
						pos[i] += scaleF
					}
				}
				tMax = tvMax
				continue
			}
		}

		// ADVANCE_SIBLING
		var step uint8
		for i := range pos {
			if tCorner[i] <= tcMax {
				step ^= 1 << i
				pos[i] -= scaleF
			}
		}
		tMin = tcMax
		idx ^= step
		normalMask = step
		if idx&step == 0 {
			continue
		}

		// POP
		var differing uint32
		for i := range pos {
			if step&(1<<i) != 0 {
				differing |= floatAsUint(pos[i]) ^ floatAsUint(pos[i]+scaleF)
			}
		}
		scale = highestDifferingScale(differing)
		if scale >= maxScale {
			break
		}
		scaleF = scaleToFloat(scale)
		parent = stack[scale].parent
		tMax = stack[scale].tMax
		idx = 0
		for i := range pos {
			var shifted uint32
			pos[i], shifted = floorToScale(pos[i], scale)
			idx |= uint8(shifted&1) << i
		}
		h = 0
	}

	if !hit {
		return result
	}

	result.Hit = true
	for i := range pos {
		if flip&(1<<i) != 0 {
			pos[i] = 3 - scaleF - pos[i]
		}
	}
	var normal mgl32.Vec3
	p := position.Add(d.Mul(tMin))
	for i := range p {
		if normalMask&(1<<i) != 0 {
			normal[i] = -sign32(d[i])
		}
		p[i] = min(max(p[i], pos[i]+rayEpsilon), pos[i]+scaleF-rayEpsilon)
	}
	hitPos := p.Sub(one).Mul(worldSize)
	center := pos.Add(mgl32.Vec3{0.5 * scaleF, 0.5 * scaleF, 0.5 * scaleF}).Sub(one).Mul(worldSize)
	var voxel [3]uint32
	for i := range center {
		voxel[i] = uint32(center[i])
	}
	result.Distance = float64(tMin * worldSize)
	result.Position = r3.Vector{X: float64(hitPos[0]), Y: float64(hitPos[1]), Z: float64(hitPos[2])}
	result.Normal = r3.Vector{X: float64(normal[0]), Y: float64(normal[1]), Z: float64(normal[2])}
	result.Voxel = Coord{voxel[0], voxel[1], voxel[2]}
	return result
}

func hasNaN(v r3.Vector) bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z)
}

func abs32(f float32) float32 {
	return math.Float32frombits(math.Float32bits(f) &^ (1 << 31))
}

func sign32(f float32) float32 {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	}
	return 0
}
