package octree

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/svo/logging"
)

func r3v(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

type voxel struct {
	c Coord
	t CellType
}

func randomVoxels(depth uint8, count int, seed int64) []voxel {
	rnd := rand.New(rand.NewSource(seed))
	side := int32(1) << depth
	types := []CellType{Solid, Solid, Solid, Mirror, Emissive}
	out := make([]voxel, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, voxel{
			c: Coord{uint32(rnd.Int31n(side)), uint32(rnd.Int31n(side)), uint32(rnd.Int31n(side))},
			t: types[rnd.Intn(len(types))],
		})
	}
	return out
}

func randomBuilder(tb testing.TB, depth uint8, count int, seed int64) *Builder {
	tb.Helper()
	b, err := NewBuilder(depth, logging.NewTestLogger(tb))
	test.That(tb, err, test.ShouldBeNil)
	for _, v := range randomVoxels(depth, count, seed) {
		test.That(tb, b.SetCell(v.t, Stone, v.c.X, v.c.Y, v.c.Z), test.ShouldBeNil)
	}
	return b
}

func randomDense(tb testing.TB, depth uint8, count int, seed int64) *Dense {
	tb.Helper()
	d, err := NewDense(depth, logging.NewTestLogger(tb))
	test.That(tb, err, test.ShouldBeNil)
	for _, v := range randomVoxels(depth, count, seed) {
		_, err := d.AddCell(v.c.X, v.c.Y, v.c.Z, v.t)
		test.That(tb, err, test.ShouldBeNil)
	}
	return d
}
