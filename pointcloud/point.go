package pointcloud

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"go.viam.com/svo/octree"
)

// Data is what a scanned point carries besides its position. A label (PCD label field, LAS value
// record) that names a non-empty cell type selects the type of the voxel the point falls in, and a
// color selects the voxel's texture through the texture palette.
type Data interface {
	HasColor() bool
	// RGB255 returns the color components; colors are stored opaque.
	RGB255() (uint8, uint8, uint8)
	Color() color.Color
	SetColor(c color.NRGBA) Data

	HasLabel() bool
	Label() int
	SetLabel(label int) Data

	// CellType returns the cell type named by the label, if it names a non-empty one.
	CellType() (octree.CellType, bool)
	// Texture returns the palette texture closest to the color, if the point is colored.
	Texture() (octree.Texture, bool)
}

// PaletteEntry is the reference color scanned surfaces of one texture are matched against.
type PaletteEntry struct {
	Texture octree.Texture
	Color   color.NRGBA
}

// TexturePalette lists the textures colored points can map to.
var TexturePalette = []PaletteEntry{
	{Texture: octree.Grass, Color: color.NRGBA{R: 86, G: 125, B: 70, A: 255}},
	{Texture: octree.Dirt, Color: color.NRGBA{R: 121, G: 85, B: 58, A: 255}},
	{Texture: octree.Stone, Color: color.NRGBA{R: 128, G: 128, B: 128, A: 255}},
	{Texture: octree.Sand, Color: color.NRGBA{R: 219, G: 203, B: 151, A: 255}},
}

// NearestTexture matches c against the palette by CIE Lab distance. Ties go to the earlier entry.
func NearestTexture(c color.NRGBA) octree.Texture {
	target := toColorful(c)
	best, bestDist := octree.TextureNone, math.Inf(1)
	for _, entry := range TexturePalette {
		if dist := target.DistanceLab(toColorful(entry.Color)); dist < bestDist {
			best, bestDist = entry.Texture, dist
		}
	}
	return best
}

func toColorful(c color.NRGBA) colorful.Color {
	c.A = 255
	cc, _ := colorful.MakeColor(c)
	return cc
}

type pointData struct {
	rgb     color.NRGBA
	colored bool

	label   int
	labeled bool
}

// NewBasicData returns data with neither color nor label.
func NewBasicData() Data {
	return &pointData{}
}

// NewColoredData returns data holding an opaque color.
func NewColoredData(c color.NRGBA) Data {
	return (&pointData{}).SetColor(c)
}

// NewLabeledData returns data holding a label.
func NewLabeledData(label int) Data {
	return (&pointData{}).SetLabel(label)
}

func (pd *pointData) HasColor() bool {
	return pd.colored
}

func (pd *pointData) RGB255() (uint8, uint8, uint8) {
	return pd.rgb.R, pd.rgb.G, pd.rgb.B
}

func (pd *pointData) Color() color.Color {
	return pd.rgb
}

func (pd *pointData) SetColor(c color.NRGBA) Data {
	c.A = 255
	pd.rgb, pd.colored = c, true
	return pd
}

func (pd *pointData) HasLabel() bool {
	return pd.labeled
}

func (pd *pointData) Label() int {
	return pd.label
}

func (pd *pointData) SetLabel(label int) Data {
	pd.label, pd.labeled = label, true
	return pd
}

func (pd *pointData) CellType() (octree.CellType, bool) {
	if !pd.labeled || pd.label <= int(octree.Empty) || pd.label > int(octree.Emissive) {
		return octree.Empty, false
	}
	return octree.CellType(pd.label), true
}

func (pd *pointData) Texture() (octree.Texture, bool) {
	if !pd.colored {
		return octree.TextureNone, false
	}
	return NearestTexture(pd.rgb), true
}
