package octree

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/svo/logging"
)

func TestDenseAddressing(t *testing.T) {
	test.That(t, DenseLen(1), test.ShouldEqual, uint64(9))
	test.That(t, DenseLen(2), test.ShouldEqual, uint64(73))
	test.That(t, DenseLen(3), test.ShouldEqual, uint64(585))

	d, err := NewDense(3, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Len(), test.ShouldEqual, 585)
	test.That(t, d.LevelStart(0), test.ShouldEqual, uint32(0))
	test.That(t, d.LevelStart(1), test.ShouldEqual, uint32(1))
	test.That(t, d.LevelStart(2), test.ShouldEqual, uint32(9))
	test.That(t, d.LevelStart(3), test.ShouldEqual, uint32(73))

	test.That(t, d.ChildIndex(0, 0, 5), test.ShouldEqual, uint32(6))
	test.That(t, d.ChildIndex(6, 1, 0), test.ShouldEqual, uint32(9+5*8))
	test.That(t, d.ChildIndex(9+5*8, 2, 7), test.ShouldEqual, uint32(73+40*8+7))

	_, err = NewDense(0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDense(MaxDenseDepth+1, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDenseAddRemove(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("add into empty world", func(t *testing.T) {
		d, err := NewDense(2, logger)
		test.That(t, err, test.ShouldBeNil)

		records, err := d.AddCell(1, 2, 3, Solid)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, records, test.ShouldHaveLength, 3)
		// (1, 2, 3): sub 6 at the root, sub 5 below it
		test.That(t, records[0], test.ShouldResemble, MutationRecord{Changed: true, Value: 1 << 6, Slot: 0})
		test.That(t, records[1], test.ShouldResemble, MutationRecord{Changed: true, Value: 1 << 5, Slot: 7})
		test.That(t, records[2], test.ShouldResemble, MutationRecord{Changed: true, Value: uint8(Solid), Slot: 9 + 6*8 + 5})

		cell, err := d.CellAt(1, 2, 3)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cell.Type, test.ShouldEqual, Solid)
		test.That(t, d.Validate(), test.ShouldBeNil)
	})

	t.Run("remove restores the empty world", func(t *testing.T) {
		d, err := NewDense(2, logger)
		test.That(t, err, test.ShouldBeNil)
		empty, err := d.MarshalBinary()
		test.That(t, err, test.ShouldBeNil)

		_, err = d.AddCell(3, 0, 2, Mirror)
		test.That(t, err, test.ShouldBeNil)
		records, err := d.RemoveCell(3, 0, 2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, records, test.ShouldHaveLength, 3)
		for _, r := range records {
			test.That(t, r.Changed, test.ShouldBeTrue)
			test.That(t, r.Value, test.ShouldEqual, uint8(0))
		}
		test.That(t, d.Bytes(), test.ShouldResemble, empty)
	})

	t.Run("re-adding only changes the leaf", func(t *testing.T) {
		d, err := NewDense(3, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = d.AddCell(5, 5, 5, Solid)
		test.That(t, err, test.ShouldBeNil)
		records, err := d.AddCell(5, 5, 5, Emissive)
		test.That(t, err, test.ShouldBeNil)
		changed := ChangedOnly(records)
		test.That(t, changed, test.ShouldHaveLength, 1)
		test.That(t, changed[0].Value, test.ShouldEqual, uint8(Emissive))
		test.That(t, changed[0].Slot, test.ShouldEqual, records[3].Slot)
	})

	t.Run("collapse stops at an occupied sibling", func(t *testing.T) {
		d, err := NewDense(2, logger)
		test.That(t, err, test.ShouldBeNil)
		// same level 1 node, different leaves
		_, err = d.AddCell(0, 0, 0, Solid)
		test.That(t, err, test.ShouldBeNil)
		_, err = d.AddCell(1, 0, 0, Solid)
		test.That(t, err, test.ShouldBeNil)

		records, err := d.RemoveCell(1, 0, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, records[0], test.ShouldResemble, MutationRecord{Changed: false, Value: 1, Slot: 0})
		test.That(t, records[1], test.ShouldResemble, MutationRecord{Changed: true, Value: 1, Slot: 1})
		test.That(t, records[2], test.ShouldResemble, MutationRecord{Changed: true, Value: 0, Slot: 9 + 1})
		test.That(t, d.Validate(), test.ShouldBeNil)
	})

	t.Run("collapse stops at an occupied ancestor", func(t *testing.T) {
		d, err := NewDense(3, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = d.AddCell(0, 0, 0, Solid)
		test.That(t, err, test.ShouldBeNil)
		_, err = d.AddCell(2, 0, 0, Solid)
		test.That(t, err, test.ShouldBeNil)

		records, err := d.RemoveCell(2, 0, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, records[0].Changed, test.ShouldBeFalse)
		test.That(t, records[1].Changed, test.ShouldBeTrue)
		test.That(t, records[1].Value, test.ShouldEqual, uint8(1))
		test.That(t, records[2].Changed, test.ShouldBeTrue)
		test.That(t, records[2].Value, test.ShouldEqual, uint8(0))
		test.That(t, records[3].Changed, test.ShouldBeTrue)
		test.That(t, d.Validate(), test.ShouldBeNil)
	})

	t.Run("removing empty space changes nothing", func(t *testing.T) {
		d, err := NewDense(2, logger)
		test.That(t, err, test.ShouldBeNil)
		records, err := d.RemoveCell(2, 2, 2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ChangedOnly(records), test.ShouldBeEmpty)

		// an empty voxel next to an occupied sibling still reports its leaf slot, unchanged
		_, err = d.AddCell(3, 3, 3, Solid)
		test.That(t, err, test.ShouldBeNil)
		before := append([]byte(nil), d.Bytes()...)
		records, err = d.RemoveCell(2, 2, 2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, records, test.ShouldHaveLength, 3)
		test.That(t, ChangedOnly(records), test.ShouldBeEmpty)
		test.That(t, records[2].Slot, test.ShouldEqual, d.ChildIndex(records[1].Slot, 1, 0))
		test.That(t, records[2].Value, test.ShouldEqual, uint8(0))
		test.That(t, d.Bytes(), test.ShouldResemble, before)
	})

	t.Run("adding empty removes", func(t *testing.T) {
		d, err := NewDense(2, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = d.AddCell(1, 1, 1, Solid)
		test.That(t, err, test.ShouldBeNil)
		_, err = d.AddCell(1, 1, 1, Empty)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, d.Bytes(), test.ShouldResemble, make([]byte, DenseLen(2)))
	})
}

func TestDenseRecordsAlignWithLevels(t *testing.T) {
	d := randomDense(t, 4, 50, 3)
	for _, v := range randomVoxels(4, 200, 4) {
		var records []MutationRecord
		var err error
		if v.t == Mirror {
			records, err = d.RemoveCell(v.c.X, v.c.Y, v.c.Z)
		} else {
			records, err = d.AddCell(v.c.X, v.c.Y, v.c.Z, v.t)
		}
		test.That(t, err, test.ShouldBeNil)
		test.That(t, records, test.ShouldHaveLength, 5)
		for level, r := range records {
			test.That(t, r.Slot, test.ShouldBeGreaterThanOrEqualTo, d.LevelStart(level))
			if level < 4 {
				test.That(t, r.Slot, test.ShouldBeLessThan, d.LevelStart(level+1))
			}
			test.That(t, r.Value, test.ShouldEqual, d.Bytes()[r.Slot])
		}
	}
	test.That(t, d.Validate(), test.ShouldBeNil)
}

func TestDenseAddRemoveInverse(t *testing.T) {
	d := randomDense(t, 4, 80, 5)
	before, err := d.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)

	// pick voxels that are currently empty so removal restores them
	var added []Coord
	for _, v := range randomVoxels(4, 40, 6) {
		cell, err := d.CellAt(v.c.X, v.c.Y, v.c.Z)
		test.That(t, err, test.ShouldBeNil)
		if !cell.IsEmpty() {
			continue
		}
		_, err = d.AddCell(v.c.X, v.c.Y, v.c.Z, v.t)
		test.That(t, err, test.ShouldBeNil)
		added = append(added, v.c)
	}
	for i := len(added) - 1; i >= 0; i-- {
		_, err := d.RemoveCell(added[i].X, added[i].Y, added[i].Z)
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, d.Bytes(), test.ShouldResemble, before)
}

func TestDenseBounds(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	d, err := NewDense(2, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = d.AddCell(4, 0, 0, Solid)
	test.That(t, errors.Is(err, ErrOutOfBounds), test.ShouldBeTrue)
	_, err = d.RemoveCell(0, 0, 9)
	test.That(t, errors.Is(err, ErrOutOfBounds), test.ShouldBeTrue)
	_, err = d.CellAt(0, 4, 0)
	test.That(t, errors.Is(err, ErrOutOfBounds), test.ShouldBeTrue)
	test.That(t, d.Bytes(), test.ShouldResemble, make([]byte, DenseLen(2)))

	d.SetBoundsPolicy(BoundsClamp)
	records, err := d.AddCell(7, 1, 0, Solid)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, records, test.ShouldHaveLength, 3)
	cell, err := d.CellAt(3, 1, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cell.Type, test.ShouldEqual, Solid)
	test.That(t, logs.FilterMessage("clamping out of bounds voxel").Len(), test.ShouldEqual, 1)
}

func TestUnmarshalDense(t *testing.T) {
	logger := logging.NewTestLogger(t)
	d := randomDense(t, 3, 40, 7)
	data, err := d.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)

	back, err := UnmarshalDense(3, data, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Bytes(), test.ShouldResemble, d.Bytes())

	_, err = UnmarshalDense(3, data[:len(data)-1], logger)
	test.That(t, err, test.ShouldNotBeNil)

	// a root bit pointing at an empty subtree
	bad := make([]byte, DenseLen(2))
	bad[0] = 1
	_, err = UnmarshalDense(2, bad, logger)
	test.That(t, err, test.ShouldNotBeNil)

	// a voxel without its mask bits
	bad = make([]byte, DenseLen(2))
	bad[DenseLen(2)-1] = uint8(Solid)
	_, err = UnmarshalDense(2, bad, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
