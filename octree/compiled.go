package octree

import (
	"encoding/binary"
	"math/bits"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// NodeSize is the size in bytes of one exported Compiled node.
//
// Layout, little endian: [0] child mask, [1] leaf mask, [2] reflective mask, [3] reserved (zero),
// [4:8] child offset. Bit i of every mask is sub-octant i = x + 2y + 4z.
const NodeSize = 8

// CellSize is the size in bytes of one exported cell: [0] type, [1] texture.
const CellSize = 2

// Node is one slot of a Compiled octree.
type Node struct {
	// ChildMask has bit i set when sub-octant i holds anything.
	ChildMask uint8
	// LeafMask has bit i set when sub-octant i is a non-empty leaf. Always a subset of ChildMask.
	LeafMask uint8
	// ReflectiveMask has bit i set when leaf i is a Mirror. Always a subset of LeafMask.
	ReflectiveMask uint8
	// ChildOffset is the distance from this slot to its block of 8 children. Only meaningful when
	// ChildMask != 0.
	ChildOffset uint32
}

// Compiled is the pointer-free array form of an octree. It is immutable once built and safe to
// share between any number of concurrent readers.
type Compiled struct {
	nodes     []Node
	cells     []Cell
	depth     uint8
	maxOffset uint32
}

// Depth returns the depth of the compiled tree; the world has side 2^Depth.
func (c *Compiled) Depth() uint8 {
	return c.depth
}

// Len returns the number of slots.
func (c *Compiled) Len() int {
	return len(c.nodes)
}

// Node returns the node at slot i.
func (c *Compiled) Node(i int) Node {
	return c.nodes[i]
}

// Cell returns the cell stored in slot i. Only leaf slots carry one.
func (c *Compiled) Cell(i int) Cell {
	if c.cells == nil {
		return Cell{}
	}
	return c.cells[i]
}

// MaxOffset returns the largest child offset written by the compiler.
func (c *Compiled) MaxOffset() uint32 {
	return c.maxOffset
}

// OffsetBits returns how many bits a consumer needs to store any child offset of this tree.
func (c *Compiled) OffsetBits() int {
	return bits.Len32(c.maxOffset)
}

// CastRay walks the tree along the ray and returns the first non-empty leaf struck.
func (c *Compiled) CastRay(origin, direction r3.Vector) HitPoint {
	return castRay(compiledResolver{nodes: c.nodes, cells: c.cells}, c.depth, origin, direction)
}

// MarshalBinary encodes the node array in the NodeSize layout.
func (c *Compiled) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(c.nodes)*NodeSize)
	for i, n := range c.nodes {
		b := out[i*NodeSize : (i+1)*NodeSize]
		b[0] = n.ChildMask
		b[1] = n.LeafMask
		b[2] = n.ReflectiveMask
		binary.LittleEndian.PutUint32(b[4:], n.ChildOffset)
	}
	return out, nil
}

// MarshalCells encodes the per-slot cell array in the CellSize layout. It parallels the node
// array: slot i of one is slot i of the other.
func (c *Compiled) MarshalCells() []byte {
	out := make([]byte, len(c.cells)*CellSize)
	for i, cell := range c.cells {
		out[i*CellSize] = byte(cell.Type)
		out[i*CellSize+1] = byte(cell.Texture)
	}
	return out
}

// UnmarshalCompiled decodes a node buffer, and optionally a cell buffer, then validates the result.
// Without cells, leaves report Solid or Mirror based on the reflective mask.
func UnmarshalCompiled(depth uint8, nodeData, cellData []byte) (*Compiled, error) {
	if len(nodeData) == 0 || len(nodeData)%NodeSize != 0 {
		return nil, errors.Errorf("node buffer length %d is not a positive multiple of %d", len(nodeData), NodeSize)
	}
	count := len(nodeData) / NodeSize
	c := &Compiled{nodes: make([]Node, count), depth: depth}
	for i := range c.nodes {
		b := nodeData[i*NodeSize : (i+1)*NodeSize]
		if b[3] != 0 {
			return nil, errors.Errorf("slot %d: reserved byte is %d", i, b[3])
		}
		n := Node{
			ChildMask:      b[0],
			LeafMask:       b[1],
			ReflectiveMask: b[2],
			ChildOffset:    binary.LittleEndian.Uint32(b[4:]),
		}
		if n.ChildMask != 0 && n.ChildOffset > c.maxOffset {
			c.maxOffset = n.ChildOffset
		}
		c.nodes[i] = n
	}
	if cellData != nil {
		if len(cellData) != count*CellSize {
			return nil, errors.Errorf("cell buffer length %d does not match %d slots", len(cellData), count)
		}
		c.cells = make([]Cell, count)
		for i := range c.cells {
			c.cells[i] = Cell{Type: CellType(cellData[i*CellSize]), Texture: Texture(cellData[i*CellSize+1])}
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every structural guarantee the traversal relies on without checking itself:
// masks nest, every reachable block lies inside the array, no block is shared, and no internal node
// sits at or below the leaf level. The compiler always produces valid trees; Validate exists for
// buffers that come from elsewhere.
func (c *Compiled) Validate() error {
	if c.depth > MaxDepth {
		return errors.Errorf("depth %d exceeds maximum %d", c.depth, MaxDepth)
	}
	if len(c.nodes) == 0 {
		return errors.New("compiled octree has no root")
	}
	if c.cells != nil && len(c.cells) != len(c.nodes) {
		return errors.Errorf("%d cells for %d slots", len(c.cells), len(c.nodes))
	}

	type pending struct {
		slot  uint32
		level uint8
	}
	visited := make([]bool, len(c.nodes))
	visited[0] = true
	stack := []pending{{0, 0}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := c.nodes[cur.slot]
		if n.LeafMask&^n.ChildMask != 0 {
			return errors.Errorf("slot %d: leaf mask %08b is not within child mask %08b", cur.slot, n.LeafMask, n.ChildMask)
		}
		if n.ReflectiveMask&^n.LeafMask != 0 {
			return errors.Errorf("slot %d: reflective mask %08b is not within leaf mask %08b",
				cur.slot, n.ReflectiveMask, n.LeafMask)
		}
		if n.ChildMask == 0 {
			continue
		}
		if cur.level >= c.depth {
			return errors.Errorf("slot %d at level %d has children below leaf level %d", cur.slot, cur.level, c.depth)
		}
		block := uint64(cur.slot) + uint64(n.ChildOffset)
		if n.ChildOffset == 0 || block+8 > uint64(len(c.nodes)) {
			return errors.Errorf("slot %d: child block at %d does not fit in %d slots", cur.slot, block, len(c.nodes))
		}
		for sub := uint32(0); sub < 8; sub++ {
			bit := uint8(1) << sub
			if n.ChildMask&bit == 0 {
				continue
			}
			child := uint32(block) + sub
			if visited[child] {
				return errors.Errorf("slot %d is reachable from more than one parent", child)
			}
			visited[child] = true
			if n.LeafMask&bit != 0 {
				if c.cells != nil && c.cells[child].IsEmpty() {
					return errors.Errorf("slot %d: leaf bit set for an empty cell", child)
				}
				continue
			}
			stack = append(stack, pending{child, cur.level + 1})
		}
	}
	return nil
}

type compiledResolver struct {
	nodes []Node
	cells []Cell
}

func (r compiledResolver) masks(slot uint32, _ int) (uint8, uint8) {
	n := &r.nodes[slot]
	return n.ChildMask, n.LeafMask
}

func (r compiledResolver) child(slot uint32, _ int, sub uint8) uint32 {
	return slot + r.nodes[slot].ChildOffset + uint32(sub)
}

func (r compiledResolver) cell(slot uint32, level int, sub uint8) (Cell, uint32) {
	leaf := r.child(slot, level, sub)
	if r.cells != nil {
		return r.cells[leaf], leaf
	}
	if r.nodes[slot].ReflectiveMask&(1<<sub) != 0 {
		return Cell{Type: Mirror}, leaf
	}
	return Cell{Type: Solid}, leaf
}
