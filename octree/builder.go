package octree

import (
	"github.com/pkg/errors"

	"go.viam.com/svo/logging"
)

// noChild marks an absent child slot. The root lives at index 0 and is never anyone's child.
const noChild = 0

type builderNode struct {
	children [8]uint32
	leaf     bool
	cell     Cell
}

func (n *builderNode) hasChildren() bool {
	for _, c := range n.children {
		if c != noChild {
			return true
		}
	}
	return false
}

// Builder is the editable authoring form of an octree. Nodes live in an arena and refer to their
// children by index. A Builder is meant to be filled once, compiled, then dropped.
type Builder struct {
	logger logging.Logger
	depth  uint8
	policy BoundsPolicy
	nodes  []builderNode
}

// NewBuilder returns an empty builder for a world of side 2^depth.
func NewBuilder(depth uint8, logger logging.Logger) (*Builder, error) {
	if depth == 0 || depth > MaxDepth {
		return nil, errors.Errorf("invalid builder depth %d, must be in [1, %d]", depth, MaxDepth)
	}
	return &Builder{
		logger: logger,
		depth:  depth,
		nodes:  make([]builderNode, 1, 64),
	}, nil
}

// Depth returns the depth of the tree.
func (b *Builder) Depth() uint8 {
	return b.depth
}

// Len returns the number of nodes in the arena, the root included.
func (b *Builder) Len() int {
	return len(b.nodes)
}

// SetBoundsPolicy changes how out of bounds coordinates are handled.
func (b *Builder) SetBoundsPolicy(policy BoundsPolicy) {
	b.policy = policy
}

// SetCell stores a cell at (x, y, z), creating the path of internal nodes down to it. Setting an
// Empty cell still creates the leaf; the compiler marks it occupied but not terminal.
func (b *Builder) SetCell(t CellType, tex Texture, x, y, z uint32) error {
	c, err := resolveBounds(b.policy, b.depth, x, y, z, b.logger)
	if err != nil {
		return err
	}
	x, y, z = c.X, c.Y, c.Z

	node := uint32(0)
	for half := uint32(1) << (b.depth - 1); half > 0; half >>= 1 {
		cx, cy, cz := x/half, y/half, z/half
		sub := subIndex(cx, cy, cz)
		child := b.nodes[node].children[sub]
		if child == noChild {
			child = uint32(len(b.nodes))
			b.nodes = append(b.nodes, builderNode{})
			b.nodes[node].children[sub] = child
		}
		x -= cx * half
		y -= cy * half
		z -= cz * half
		node = child
	}

	b.nodes[node].leaf = true
	b.nodes[node].cell = Cell{Type: t, Texture: tex}
	return nil
}

// CellAt returns the cell stored at (x, y, z) and whether a leaf exists there.
func (b *Builder) CellAt(x, y, z uint32) (Cell, bool) {
	limit := uint32(1) << b.depth
	if x >= limit || y >= limit || z >= limit {
		return Cell{}, false
	}
	node := uint32(0)
	for half := limit >> 1; half > 0; half >>= 1 {
		cx, cy, cz := x/half, y/half, z/half
		node = b.nodes[node].children[subIndex(cx, cy, cz)]
		if node == noChild {
			return Cell{}, false
		}
		x -= cx * half
		y -= cy * half
		z -= cz * half
	}
	return b.nodes[node].cell, b.nodes[node].leaf
}
