package octree

import (
	"strings"

	"github.com/pkg/errors"
)

// CellType is the material tag of a voxel. The zero value is empty space.
type CellType uint8

// Known cell types.
const (
	Empty CellType = iota
	Solid
	Mirror
	Emissive
)

var cellTypeNames = [...]string{"empty", "solid", "mirror", "emissive"}

func (t CellType) String() string {
	if int(t) < len(cellTypeNames) {
		return cellTypeNames[t]
	}
	return "unknown"
}

// CellTypeFromString parses a case-insensitive cell type name.
func CellTypeFromString(s string) (CellType, error) {
	for i, name := range cellTypeNames {
		if strings.EqualFold(s, name) {
			return CellType(i), nil
		}
	}
	return Empty, errors.Errorf("unknown cell type %q", s)
}

// Texture references a surface texture. Shading is left to the consumer of the hit.
type Texture uint8

// Known textures.
const (
	TextureNone Texture = iota
	Grass
	Dirt
	Stone
	Sand
)

var textureNames = [...]string{"none", "grass", "dirt", "stone", "sand"}

func (tex Texture) String() string {
	if int(tex) < len(textureNames) {
		return textureNames[tex]
	}
	return "unknown"
}

// TextureFromString parses a case-insensitive texture name. The empty string means TextureNone.
func TextureFromString(s string) (Texture, error) {
	if s == "" {
		return TextureNone, nil
	}
	for i, name := range textureNames {
		if strings.EqualFold(s, name) {
			return Texture(i), nil
		}
	}
	return TextureNone, errors.Errorf("unknown texture %q", s)
}

// Cell is the payload of a leaf.
type Cell struct {
	Type    CellType
	Texture Texture
}

// IsEmpty reports whether the cell holds no material.
func (c Cell) IsEmpty() bool {
	return c.Type == Empty
}
