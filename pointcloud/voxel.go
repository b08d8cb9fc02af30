package pointcloud

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/svo/logging"
	"go.viam.com/svo/octree"
	"go.viam.com/svo/utils"
)

// VoxelCoords stores Voxel coordinates in VoxelGrid axes.
type VoxelCoords struct {
	I, J, K int64
}

// GetVoxelCoordinates computes the voxel holding pt, for a grid of the given voxel size whose
// voxel (0, 0, 0) has its lowest corner at ptMin.
func GetVoxelCoordinates(pt, ptMin r3.Vector, voxelSize float64) VoxelCoords {
	return VoxelCoords{
		I: int64(math.Floor((pt.X - ptMin.X) / voxelSize)),
		J: int64(math.Floor((pt.Y - ptMin.Y) / voxelSize)),
		K: int64(math.Floor((pt.Z - ptMin.Z) / voxelSize)),
	}
}

// Voxel accumulates the points of a cloud falling into one grid cell.
type Voxel struct {
	Key    VoxelCoords
	Points int
	// Type is the cell type most point labels in the voxel name, Empty if none does.
	Type octree.CellType
	// Texture is the texture most point colors in the voxel match, TextureNone if no point is colored.
	Texture octree.Texture

	types    map[octree.CellType]int
	textures map[octree.Texture]int
}

func (v *Voxel) add(d Data) {
	v.Points++
	if d == nil {
		return
	}
	if t, ok := d.CellType(); ok {
		v.types = vote(v.types, t, 1)
		v.Type = mostFrequent(v.types)
	}
	if tex, ok := d.Texture(); ok {
		v.textures = vote(v.textures, tex, 1)
		v.Texture = mostFrequent(v.textures)
	}
}

func (v *Voxel) merge(other *Voxel) {
	v.Points += other.Points
	for t, n := range other.types {
		v.types = vote(v.types, t, n)
	}
	for tex, n := range other.textures {
		v.textures = vote(v.textures, tex, n)
	}
	v.Type = mostFrequent(v.types)
	v.Texture = mostFrequent(v.textures)
}

func vote[K octree.CellType | octree.Texture](counts map[K]int, k K, n int) map[K]int {
	if counts == nil {
		counts = map[K]int{}
	}
	counts[k] += n
	return counts
}

// mostFrequent picks the key with the highest count, the smallest on ties, and the zero key for
// no votes.
func mostFrequent[K octree.CellType | octree.Texture](counts map[K]int) K {
	var best K
	bestCount := 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && k < best) {
			best, bestCount = k, n
		}
	}
	return best
}

// VoxelGrid is a sparse grid of voxels keyed by their coordinates.
type VoxelGrid struct {
	Voxels    map[VoxelCoords]*Voxel
	VoxelSize float64
	Origin    r3.Vector
}

// NewVoxelGrid returns an empty grid.
func NewVoxelGrid(origin r3.Vector, voxelSize float64) *VoxelGrid {
	return &VoxelGrid{Voxels: map[VoxelCoords]*Voxel{}, VoxelSize: voxelSize, Origin: origin}
}

// Keys returns the voxel coordinates in a stable order.
func (vg *VoxelGrid) Keys() []VoxelCoords {
	keys := make([]VoxelCoords, 0, len(vg.Voxels))
	for k := range vg.Voxels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		ka, kb := keys[a], keys[b]
		if ka.K != kb.K {
			return ka.K < kb.K
		}
		if ka.J != kb.J {
			return ka.J < kb.J
		}
		return ka.I < kb.I
	})
	return keys
}

// NewVoxelGridFromPointCloud creates and fills a VoxelGrid from a point cloud. The cloud is split
// into batches binned in parallel, then merged.
func NewVoxelGridFromPointCloud(ctx context.Context, pc PointCloud, origin r3.Vector, voxelSize float64) (*VoxelGrid, error) {
	if voxelSize <= 0 || math.IsNaN(voxelSize) || math.IsInf(voxelSize, 0) {
		return nil, errors.Errorf("invalid voxel size %v", voxelSize)
	}
	grid := NewVoxelGrid(origin, voxelSize)

	var mu sync.Mutex
	err := utils.GroupWorkParallel(
		ctx,
		utils.ParallelFactor,
		func(numGroups int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			local := map[VoxelCoords]*Voxel{}
			return func(memberNum, workNum int) {
					pc.Iterate(utils.ParallelFactor, workNum, func(p r3.Vector, d Data) bool {
						coords := GetVoxelCoordinates(p, origin, voxelSize)
						vox, ok := local[coords]
						if !ok {
							vox = &Voxel{Key: coords}
							local[coords] = vox
						}
						vox.add(d)
						return true
					})
				}, func() {
					mu.Lock()
					defer mu.Unlock()
					for k, vox := range local {
						if existing, ok := grid.Voxels[k]; ok {
							existing.merge(vox)
							continue
						}
						grid.Voxels[k] = vox
					}
				}
		},
	)
	if err != nil {
		return nil, err
	}
	return grid, nil
}

// VoxelizeOptions controls how a point cloud is written into an octree.
type VoxelizeOptions struct {
	// VoxelSize is the edge length of one voxel in cloud units. Zero fits the cloud's bounding box
	// into the world.
	VoxelSize float64
	// Origin is the cloud position mapped to voxel (0, 0, 0). Nil uses the bounding box minimum.
	Origin *r3.Vector
	// MinPoints drops voxels holding fewer points. Values below 1 keep every voxel.
	MinPoints int
	// Type is the cell type written for voxels without a point value naming one.
	Type octree.CellType
	// Texture is written with every cell. TextureNone takes each voxel's texture from its point
	// colors.
	Texture octree.Texture
}

// VoxelizeStats reports what Voxelize did.
type VoxelizeStats struct {
	Points    int
	Voxels    int
	Written   int
	Sparse    int
	Outside   int
	VoxelSize float64
}

// Voxelize bins the cloud into voxels and writes every occupied voxel into target. A voxel whose
// point labels name a non-empty cell type uses that type.
func Voxelize(
	ctx context.Context,
	cloud PointCloud,
	target octree.CellSetter,
	opts VoxelizeOptions,
	logger logging.Logger,
) (VoxelizeStats, error) {
	stats := VoxelizeStats{Points: cloud.Size()}
	if cloud.Size() == 0 {
		return stats, nil
	}
	meta := cloud.MetaData()
	side := int64(1) << target.Depth()

	origin := meta.Min()
	if opts.Origin != nil {
		origin = *opts.Origin
	}
	voxelSize := opts.VoxelSize
	if voxelSize == 0 {
		// nudge up so the maximum lands inside the last voxel
		voxelSize = math.Nextafter(meta.Extent()/float64(side), math.Inf(1))
		if meta.Extent() == 0 {
			voxelSize = 1
		}
	}
	stats.VoxelSize = voxelSize
	cellType := opts.Type
	if cellType == octree.Empty {
		cellType = octree.Solid
	}

	grid, err := NewVoxelGridFromPointCloud(ctx, cloud, origin, voxelSize)
	if err != nil {
		return stats, err
	}
	stats.Voxels = len(grid.Voxels)

	for i, key := range grid.Keys() {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		vox := grid.Voxels[key]
		if vox.Points < opts.MinPoints {
			stats.Sparse++
			continue
		}
		if key.I < 0 || key.J < 0 || key.K < 0 || key.I >= side || key.J >= side || key.K >= side {
			stats.Outside++
			continue
		}
		t := cellType
		if vox.Type != octree.Empty {
			t = vox.Type
		}
		tex := opts.Texture
		if tex == octree.TextureNone {
			tex = vox.Texture
		}
		if err := target.SetCell(t, tex, uint32(key.I), uint32(key.J), uint32(key.K)); err != nil {
			return stats, errors.Wrapf(err, "writing voxel %v", key)
		}
		stats.Written++
	}

	if stats.Outside > 0 {
		logger.Warnw("point cloud voxels outside the world were dropped", "dropped", stats.Outside, "side", side)
	}
	logger.Infow("voxelized point cloud",
		"points", stats.Points, "voxels", stats.Voxels, "written", stats.Written,
		"sparse", stats.Sparse, "voxel_size", voxelSize)
	return stats, nil
}
