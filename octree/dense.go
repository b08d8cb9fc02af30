package octree

import (
	"github.com/docker/go-units"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/svo/logging"
)

// DenseLen returns the number of slots of a dense octree of the given depth: sum of 8^l for l in
// [0, depth].
func DenseLen(depth uint8) uint64 {
	return ((uint64(1) << (3 * (uint64(depth) + 1))) - 1) / 7
}

// Dense is a complete octree of fixed depth stored level by level in a single byte array. Level L
// occupies 8^L consecutive slots starting at LevelStart(L). Slots of levels [0, depth) hold the
// occupancy mask of a node; slots of level depth hold the CellType of a voxel. The child of the
// node with index r inside level L, at sub-octant s, has index 8r+s inside level L+1.
//
// A Dense octree is edited in place and has a single writer: edits must not run concurrently with
// each other or with ray casts.
type Dense struct {
	logger      logging.Logger
	depth       uint8
	policy      BoundsPolicy
	data        []uint8
	levelStarts []uint32
}

// NewDense allocates an empty dense octree for a world of side 2^depth.
func NewDense(depth uint8, logger logging.Logger) (*Dense, error) {
	if depth == 0 || depth > MaxDenseDepth {
		return nil, errors.Errorf("invalid dense depth %d, must be in [1, %d]", depth, MaxDenseDepth)
	}
	d := newDense(depth, logger, make([]uint8, DenseLen(depth)))
	logger.Debugw("allocated dense octree", "depth", depth, "slots", len(d.data),
		"size", units.HumanSize(float64(len(d.data))))
	return d, nil
}

// UnmarshalDense wraps a copy of an exported dense buffer and validates it.
func UnmarshalDense(depth uint8, data []byte, logger logging.Logger) (*Dense, error) {
	if depth == 0 || depth > MaxDenseDepth {
		return nil, errors.Errorf("invalid dense depth %d, must be in [1, %d]", depth, MaxDenseDepth)
	}
	if uint64(len(data)) != DenseLen(depth) {
		return nil, errors.Errorf("dense buffer has %d slots, depth %d needs %d", len(data), depth, DenseLen(depth))
	}
	d := newDense(depth, logger, append([]uint8(nil), data...))
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func newDense(depth uint8, logger logging.Logger, data []uint8) *Dense {
	starts := make([]uint32, depth+1)
	for l := uint8(1); l <= depth; l++ {
		starts[l] = starts[l-1] + uint32(1)<<(3*(l-1))
	}
	return &Dense{logger: logger, depth: depth, data: data, levelStarts: starts}
}

// Depth returns the depth of the tree.
func (d *Dense) Depth() uint8 {
	return d.depth
}

// Len returns the number of slots.
func (d *Dense) Len() int {
	return len(d.data)
}

// Bytes returns the live backing array. Callers must treat it as read-only.
func (d *Dense) Bytes() []byte {
	return d.data
}

// MarshalBinary returns a copy of the backing array.
func (d *Dense) MarshalBinary() ([]byte, error) {
	return append([]byte(nil), d.data...), nil
}

// SetBoundsPolicy changes how out of bounds coordinates are handled.
func (d *Dense) SetBoundsPolicy(policy BoundsPolicy) {
	d.policy = policy
}

// LevelStart returns the index of the first slot of level.
func (d *Dense) LevelStart(level int) uint32 {
	return d.levelStarts[level]
}

// ChildIndex returns the slot of sub-octant sub of the node at slot parent, which lives at level.
func (d *Dense) ChildIndex(parent uint32, level int, sub uint8) uint32 {
	return d.levelStarts[level+1] + (parent-d.levelStarts[level])*8 + uint32(sub)
}

// path fills slots[l] with the node visited at level l for l in [0, depth] (slots[depth] is the
// leaf) and subs[l] with the sub-octant taken below it.
func (d *Dense) path(c Coord, slots []uint32, subs []uint8) {
	x, y, z := c.X, c.Y, c.Z
	rel := uint32(0)
	half := uint32(1) << (d.depth - 1)
	for level := 0; level < int(d.depth); level++ {
		cx, cy, cz := x/half, y/half, z/half
		sub := subIndex(cx, cy, cz)
		slots[level] = d.levelStarts[level] + rel
		subs[level] = sub
		x -= cx * half
		y -= cy * half
		z -= cz * half
		rel = rel*8 + uint32(sub)
		half >>= 1
	}
	slots[d.depth] = d.levelStarts[d.depth] + rel
}

// AddCell stores t at (x, y, z) and returns depth+1 records, root first. Every level whose mask
// gained a bit reports Changed; levels already marking the path report unchanged. The leaf record is
// always Changed. Adding Empty is a removal.
func (d *Dense) AddCell(x, y, z uint32, t CellType) ([]MutationRecord, error) {
	if t == Empty {
		return d.RemoveCell(x, y, z)
	}
	c, err := resolveBounds(d.policy, d.depth, x, y, z, d.logger)
	if err != nil {
		return nil, err
	}

	var slots [MaxDenseDepth + 1]uint32
	var subs [MaxDenseDepth]uint8
	d.path(c, slots[:], subs[:])

	records := make([]MutationRecord, d.depth+1)
	for level := 0; level < int(d.depth); level++ {
		slot := slots[level]
		bit := uint8(1) << subs[level]
		changed := d.data[slot]&bit == 0
		d.data[slot] |= bit
		records[level] = MutationRecord{Changed: changed, Value: d.data[slot], Slot: slot}
	}
	leaf := slots[d.depth]
	d.data[leaf] = uint8(t)
	records[d.depth] = MutationRecord{Changed: true, Value: uint8(t), Slot: leaf}
	return records, nil
}

// RemoveCell empties (x, y, z) and returns depth+1 records, root first. After clearing the leaf a
// collapse pass walks back up: each level loses the bit of the child that just became empty, and
// the walk stops at the first node that still has another occupied child. The leaf record is Changed
// only when the voxel was occupied; removing an empty voxel returns no Changed records.
func (d *Dense) RemoveCell(x, y, z uint32) ([]MutationRecord, error) {
	c, err := resolveBounds(d.policy, d.depth, x, y, z, d.logger)
	if err != nil {
		return nil, err
	}

	var slots [MaxDenseDepth + 1]uint32
	var subs [MaxDenseDepth]uint8
	d.path(c, slots[:], subs[:])

	records := make([]MutationRecord, d.depth+1)
	for level := 0; level < int(d.depth); level++ {
		records[level] = MutationRecord{Value: d.data[slots[level]], Slot: slots[level]}
	}
	leaf := slots[d.depth]
	records[d.depth] = MutationRecord{Changed: d.data[leaf] != 0, Slot: leaf}
	d.data[leaf] = 0

	// collapse
	for level := int(d.depth) - 1; level >= 0; level-- {
		slot := slots[level]
		bit := uint8(1) << subs[level]
		if d.data[slot]&bit == 0 {
			break
		}
		d.data[slot] &^= bit
		records[level] = MutationRecord{Changed: true, Value: d.data[slot], Slot: slot}
		if d.data[slot] != 0 {
			break
		}
	}
	return records, nil
}

// SetCell implements CellSetter. Textures are not stored by dense octrees.
func (d *Dense) SetCell(t CellType, _ Texture, x, y, z uint32) error {
	_, err := d.AddCell(x, y, z, t)
	return err
}

// CellAt returns the cell at (x, y, z).
func (d *Dense) CellAt(x, y, z uint32) (Cell, error) {
	limit := uint32(1) << d.depth
	if x >= limit || y >= limit || z >= limit {
		return Cell{}, errors.Wrapf(ErrOutOfBounds, "(%d, %d, %d) with side %d", x, y, z, limit)
	}
	var slots [MaxDenseDepth + 1]uint32
	var subs [MaxDenseDepth]uint8
	d.path(Coord{x, y, z}, slots[:], subs[:])
	return Cell{Type: CellType(d.data[slots[d.depth]])}, nil
}

// Validate checks that every mask bit is set exactly when the child below it is non-empty.
func (d *Dense) Validate() error {
	for level := 0; level < int(d.depth); level++ {
		start, end := d.levelStarts[level], d.levelStarts[level+1]
		for slot := start; slot < end; slot++ {
			mask := d.data[slot]
			for sub := uint8(0); sub < 8; sub++ {
				occupied := d.data[d.ChildIndex(slot, level, sub)] != 0
				if occupied != (mask&(1<<sub) != 0) {
					return errors.Errorf("slot %d (level %d): mask %08b disagrees with child %d", slot, level, mask, sub)
				}
			}
		}
	}
	return nil
}

// CastRay walks the tree along the ray and returns the first non-empty voxel struck.
func (d *Dense) CastRay(origin, direction r3.Vector) HitPoint {
	return castRay(denseResolver{d}, d.depth, origin, direction)
}

type denseResolver struct {
	d *Dense
}

func (r denseResolver) masks(slot uint32, level int) (uint8, uint8) {
	mask := r.d.data[slot]
	if level == int(r.d.depth)-1 {
		return mask, mask
	}
	return mask, 0
}

func (r denseResolver) child(slot uint32, level int, sub uint8) uint32 {
	return r.d.ChildIndex(slot, level, sub)
}

func (r denseResolver) cell(slot uint32, level int, sub uint8) (Cell, uint32) {
	leaf := r.d.ChildIndex(slot, level, sub)
	return Cell{Type: CellType(r.d.data[leaf])}, leaf
}
