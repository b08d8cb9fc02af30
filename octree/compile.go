package octree

// Compile flattens a Builder into a Compiled octree. Slot 0 is the root. Each internal node with at
// least one child gets a block of 8 consecutive slots appended at the tail of the array, indexed by
// sub-octant, and records the distance from itself to that block. Leaves are never descended into;
// their slot in the parent's block carries only their Cell.
//
// Internal nodes without any non-empty descendant still get their slots. A nil builder compiles to
// a single empty root.
func Compile(b *Builder) *Compiled {
	out := &Compiled{
		nodes: make([]Node, 1, 64),
		cells: make([]Cell, 1, 64),
	}
	if b == nil {
		return out
	}
	out.depth = b.depth
	c := compiler{src: b, out: out}
	c.visit(&b.nodes[0], 0)
	return out
}

type compiler struct {
	src *Builder
	out *Compiled
}

func (c *compiler) visit(node *builderNode, slot uint32) {
	if !node.hasChildren() {
		return
	}

	block := uint32(len(c.out.nodes))
	offset := block - slot
	if offset > c.out.maxOffset {
		c.out.maxOffset = offset
	}
	c.out.nodes = append(c.out.nodes, make([]Node, 8)...)
	c.out.cells = append(c.out.cells, make([]Cell, 8)...)
	c.out.nodes[slot].ChildOffset = offset

	for sub, id := range node.children {
		if id == noChild {
			continue
		}
		child := &c.src.nodes[id]
		bit := uint8(1) << sub
		c.out.nodes[slot].ChildMask |= bit
		if !child.leaf {
			c.visit(child, block+uint32(sub))
			continue
		}
		c.out.cells[block+uint32(sub)] = child.cell
		if child.cell.Type != Empty {
			c.out.nodes[slot].LeafMask |= bit
		}
		if child.cell.Type == Mirror {
			c.out.nodes[slot].ReflectiveMask |= bit
		}
	}
}
