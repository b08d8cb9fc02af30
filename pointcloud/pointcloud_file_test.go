package pointcloud

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/svo/logging"
	"go.viam.com/svo/octree"
)

func coloredCloud(t *testing.T) PointCloud {
	t.Helper()
	pc := New()
	test.That(t, pc.Set(r3.Vector{X: -1, Y: -2, Z: 5}, NewColoredData(color.NRGBA{255, 1, 2, 255})), test.ShouldBeNil)
	test.That(t, pc.Set(r3.Vector{X: 582, Y: 12, Z: 0}, NewColoredData(color.NRGBA{0, 255, 2, 255})), test.ShouldBeNil)
	test.That(t, pc.Set(r3.Vector{X: 7, Y: 6, Z: 1}, NewColoredData(color.NRGBA{1, 2, 255, 255})), test.ShouldBeNil)
	test.That(t, pc.Set(r3.Vector{X: 0.5, Y: 0.25, Z: 0.125}, NewColoredData(color.NRGBA{9, 9, 9, 255})), test.ShouldBeNil)
	return pc
}

func TestPCDRoundTrip(t *testing.T) {
	for name, typ := range map[string]PCDType{"ascii": PCDAscii, "binary": PCDBinary, "compressed": PCDCompressed} {
		typ := typ
		t.Run(name, func(t *testing.T) {
			cloud := coloredCloud(t)
			var buf bytes.Buffer
			test.That(t, ToPCD(cloud, &buf, typ), test.ShouldBeNil)

			back, err := ReadPCD(&buf)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, back.Size(), test.ShouldEqual, cloud.Size())
			test.That(t, back.MetaData().HasColor, test.ShouldBeTrue)

			cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
				got, ok := back.At(p.X, p.Y, p.Z)
				test.That(t, ok, test.ShouldBeTrue)
				test.That(t, got.Color(), test.ShouldResemble, d.Color())
				return true
			})
		})
	}
}

func TestPCDPointsOnly(t *testing.T) {
	pc := New()
	for i := 0; i < 50; i++ {
		test.That(t, pc.Set(r3.Vector{X: float64(i), Y: float64(i % 7), Z: -float64(i)}, nil), test.ShouldBeNil)
	}
	var buf bytes.Buffer
	test.That(t, ToPCD(pc, &buf, PCDCompressed), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z\n")

	back, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Size(), test.ShouldEqual, 50)
	test.That(t, back.MetaData().HasColor, test.ShouldBeFalse)
	_, ok := back.At(49, 0, -49)
	test.That(t, ok, test.ShouldBeTrue)
}

const labeledPCD = `# a labeled scan
VERSION .7
FIELDS x y z label
SIZE 4 4 4 4
TYPE F F F U
COUNT 1 1 1 1
WIDTH 3
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 3
DATA ascii
0 0 0 1
1 0 0 2
2 0 0 3
`

func TestPCDLabels(t *testing.T) {
	pc, err := ReadPCD(strings.NewReader(labeledPCD))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)
	test.That(t, pc.MetaData().HasLabel, test.ShouldBeTrue)
	d, ok := pc.At(1, 0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Label(), test.ShouldEqual, 2)
	cellType, ok := d.CellType()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cellType, test.ShouldEqual, octree.Mirror)
}

func TestPCDViewpoint(t *testing.T) {
	// a quarter turn about z, then a shift along x
	half := math.Sqrt2 / 2
	header := strings.Replace(labeledPCD, "VIEWPOINT 0 0 0 1 0 0 0",
		"VIEWPOINT 10 0 0 "+ftoa(half)+" 0 0 "+ftoa(half), 1)
	pc, err := ReadPCD(strings.NewReader(header))
	test.That(t, err, test.ShouldBeNil)

	var found bool
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		if d.Label() == 3 {
			found = true
			test.That(t, p.X, test.ShouldAlmostEqual, 10, 1e-6)
			test.That(t, p.Y, test.ShouldAlmostEqual, 2, 1e-6)
			test.That(t, p.Z, test.ShouldAlmostEqual, 0, 1e-6)
		}
		return true
	})
	test.That(t, found, test.ShouldBeTrue)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func TestPCDHeaderErrors(t *testing.T) {
	for name, tc := range map[string]struct{ from, to string }{
		"version":        {"VERSION .7", "VERSION .6"},
		"fields":         {"FIELDS x y z label", "FIELDS x y z normal_x"},
		"field order":    {"VERSION .7\nFIELDS", "FIELDS"},
		"size count":     {"SIZE 4 4 4 4", "SIZE 4 4 4"},
		"type":           {"TYPE F F F U", "TYPE F F F Q"},
		"float size":     {"SIZE 4 4 4 4", "SIZE 4 4 2 4"},
		"count":          {"COUNT 1 1 1 1", "COUNT 1 1 1 2"},
		"points":         {"POINTS 3", "POINTS 4"},
		"viewpoint":      {"VIEWPOINT 0 0 0 1 0 0 0", "VIEWPOINT 0 0 0 0 0 0 0"},
		"data":           {"DATA ascii", "DATA zip"},
		"missing points": {"2 0 0 3\n", ""},
		"bad value":      {"1 0 0 2", "1 zero 0 2"},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			_, err := ReadPCD(strings.NewReader(strings.Replace(labeledPCD, tc.from, tc.to, 1)))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func TestPCDTruncatedBinary(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, ToPCD(coloredCloud(t), &buf, PCDBinary), test.ShouldBeNil)
	data := buf.Bytes()
	_, err := ReadPCD(bytes.NewReader(data[:len(data)-3]))
	test.That(t, err, test.ShouldNotBeNil)

	buf.Reset()
	test.That(t, ToPCD(coloredCloud(t), &buf, PCDCompressed), test.ShouldBeNil)
	data = buf.Bytes()
	_, err = ReadPCD(bytes.NewReader(data[:len(data)-3]))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPCDOversizedHeaders(t *testing.T) {
	huge := func(data string) string {
		h := strings.Replace(labeledPCD, "WIDTH 3", "WIDTH 4000000000000", 1)
		h = strings.Replace(h, "POINTS 3", "POINTS 4000000000000", 1)
		return strings.Replace(h, "DATA ascii", "DATA "+data, 1)
	}
	compressedSizes := func(compressed, raw uint32) string {
		var sizes [8]byte
		binary.LittleEndian.PutUint32(sizes[:4], compressed)
		binary.LittleEndian.PutUint32(sizes[4:], raw)
		return string(sizes[:])
	}
	header, _, _ := strings.Cut(labeledPCD, "DATA ascii\n")
	for name, data := range map[string]string{
		"ascii": huge("ascii"),
		"binary": func() string {
			h, _, _ := strings.Cut(huge("binary"), "DATA binary\n")
			return h + "DATA binary\n" + strings.Repeat("\x00", 32)
		}(),
		"overflowing size": strings.Replace(strings.Replace(labeledPCD, "WIDTH 3", "WIDTH 4294967296", 1),
			"HEIGHT 1", "HEIGHT 4294967296", 1),
		"compressed points": func() string {
			h, _, _ := strings.Cut(huge("binary_compressed"), "DATA binary_compressed\n")
			return h + "DATA binary_compressed\n" + compressedSizes(16, 0)
		}(),
		"compressed block": header + "DATA binary_compressed\n" + compressedSizes(1<<31, 48) + strings.Repeat("\x00", 8),
		"compressed ratio": strings.Replace(strings.Replace(header, "WIDTH 3", "WIDTH 100000", 1), "POINTS 3", "POINTS 100000", 1) +
			"DATA binary_compressed\n" + compressedSizes(8, 1600000) + strings.Repeat("\x00", 8),
	} {
		data := data
		t.Run(name, func(t *testing.T) {
			_, err := ReadPCD(strings.NewReader(data))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func TestNewFromFile(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()

	t.Run("pcd", func(t *testing.T) {
		fn := filepath.Join(dir, "scan.pcd")
		f, err := os.Create(fn)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ToPCD(coloredCloud(t), f, PCDBinary), test.ShouldBeNil)
		test.That(t, f.Close(), test.ShouldBeNil)

		pc, err := NewFromFile(fn, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pc.Size(), test.ShouldEqual, 4)
	})

	t.Run("las", func(t *testing.T) {
		cloud := New()
		for i := 0; i < 20; i++ {
			d := NewColoredData(color.NRGBA{uint8(i * 10), 20, 30, 255}).SetLabel(i % 4)
			test.That(t, cloud.Set(r3.Vector{X: float64(i), Y: float64(2 * i), Z: 3}, d), test.ShouldBeNil)
		}
		fn := filepath.Join(dir, "scan.las")
		test.That(t, WriteToLASFile(cloud, fn), test.ShouldBeNil)

		back, err := NewFromFile(fn, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, back.Size(), test.ShouldEqual, 20)
		test.That(t, back.MetaData().HasColor, test.ShouldBeTrue)
		test.That(t, back.MetaData().HasLabel, test.ShouldBeTrue)
		test.That(t, back.MetaData().MaxY, test.ShouldAlmostEqual, 38, 1e-3)

		values := map[int]int{}
		back.Iterate(0, 0, func(p r3.Vector, d Data) bool {
			values[d.Label()]++
			return true
		})
		test.That(t, values, test.ShouldResemble, map[int]int{0: 5, 1: 5, 2: 5, 3: 5})
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := NewFromFile(filepath.Join(dir, "scan.ply"), logger)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewFromFile(filepath.Join(dir, "nope.pcd"), logger)
		test.That(t, err, test.ShouldNotBeNil)
	})
}
