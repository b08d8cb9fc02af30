package pointcloud

import (
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/svo/octree"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()

	p0 := r3.Vector{}
	d0 := NewLabeledData(5)

	test.That(t, pc.Set(p0, d0), test.ShouldBeNil)
	d, got := pc.At(0, 0, 0)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d0)

	_, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeFalse)

	p1 := r3.Vector{X: 1, Z: 1}
	d1 := NewLabeledData(17)
	test.That(t, pc.Set(p1, d1), test.ShouldBeNil)

	d, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d1)
	test.That(t, d, test.ShouldNotResemble, d0)

	p2 := r3.Vector{X: -1, Y: -2, Z: 1}
	d2 := NewLabeledData(81)
	test.That(t, pc.Set(p2, d2), test.ShouldBeNil)

	count := 0
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		count++
		return true
	})
	test.That(t, count, test.ShouldEqual, 3)

	// replacing data keeps the size
	test.That(t, pc.Set(p1, NewLabeledData(3)), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)
	d, _ = pc.At(1, 0, 1)
	test.That(t, d.Label(), test.ShouldEqual, 3)

	test.That(t, pc.Set(r3.Vector{X: math.NaN()}, nil), test.ShouldNotBeNil)
	test.That(t, pc.Set(r3.Vector{Z: math.Inf(1)}, nil), test.ShouldNotBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	meta := pc.MetaData()
	test.That(t, meta.HasLabel, test.ShouldBeTrue)
	test.That(t, meta.HasColor, test.ShouldBeFalse)
	test.That(t, meta.Min(), test.ShouldResemble, r3.Vector{X: -1, Y: -2, Z: 0})
	test.That(t, meta.Extent(), test.ShouldEqual, 2.0)
}

func TestPointCloudIterateBatches(t *testing.T) {
	pc := New()
	for i := 0; i < 10; i++ {
		test.That(t, pc.Set(r3.Vector{X: float64(i)}, nil), test.ShouldBeNil)
	}

	seen := map[float64]int{}
	for batch := 0; batch < 3; batch++ {
		pc.Iterate(3, batch, func(p r3.Vector, d Data) bool {
			seen[p.X]++
			return true
		})
	}
	test.That(t, seen, test.ShouldHaveLength, 10)
	for _, n := range seen {
		test.That(t, n, test.ShouldEqual, 1)
	}

	// more batches than points
	total := 0
	for batch := 0; batch < 16; batch++ {
		pc.Iterate(16, batch, func(p r3.Vector, d Data) bool {
			total++
			return true
		})
	}
	test.That(t, total, test.ShouldEqual, 10)

	stopped := 0
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		stopped++
		return stopped < 4
	})
	test.That(t, stopped, test.ShouldEqual, 4)
}

func TestMetaDataMergeNilData(t *testing.T) {
	meta := NewMetaData()
	meta.Merge(r3.Vector{X: 1, Y: 2, Z: 3}, nil)
	test.That(t, meta.HasColor, test.ShouldBeFalse)
	test.That(t, meta.Min(), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, meta.Extent(), test.ShouldEqual, 0.0)
}

func TestPointData(t *testing.T) {
	d := NewBasicData()
	_, ok := d.CellType()
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = d.Texture()
	test.That(t, ok, test.ShouldBeFalse)

	for label, want := range map[int]bool{-1: false, 0: false, 1: true, 3: true, 4: false} {
		_, ok := NewLabeledData(label).CellType()
		test.That(t, ok, test.ShouldEqual, want)
	}

	d = NewColoredData(color.NRGBA{R: 1, G: 2, B: 3}).SetLabel(int(octree.Emissive))
	test.That(t, d.Color(), test.ShouldResemble, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	cellType, ok := d.CellType()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cellType, test.ShouldEqual, octree.Emissive)
	tex, ok := d.Texture()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, tex, test.ShouldEqual, octree.Dirt)
}

func TestNearestTexture(t *testing.T) {
	for _, entry := range TexturePalette {
		test.That(t, NearestTexture(entry.Color), test.ShouldEqual, entry.Texture)
	}
	test.That(t, NearestTexture(color.NRGBA{R: 40, G: 160, B: 40, A: 255}), test.ShouldEqual, octree.Grass)
	test.That(t, NearestTexture(color.NRGBA{R: 100, G: 60, B: 30, A: 255}), test.ShouldEqual, octree.Dirt)
	test.That(t, NearestTexture(color.NRGBA{R: 240, G: 225, B: 170, A: 255}), test.ShouldEqual, octree.Sand)
	// alpha is ignored
	test.That(t, NearestTexture(color.NRGBA{R: 128, G: 128, B: 128}), test.ShouldEqual, octree.Stone)
}
