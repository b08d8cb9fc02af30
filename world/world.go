// Package world is the handle applications hold on a voxel world. It builds the world from a
// config, serializes edits against batched ray casts and forwards edit records to a mirror queue.
package world

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/svo/config"
	"go.viam.com/svo/logging"
	"go.viam.com/svo/mirror"
	"go.viam.com/svo/octree"
	"go.viam.com/svo/pointcloud"
	"go.viam.com/svo/utils"
	"go.viam.com/svo/worldfile"
	"go.viam.com/svo/worldgen"
)

// ErrReadOnly is returned when editing a compiled world.
var ErrReadOnly = errors.New("world is read only")

// A Ray is an origin and a direction.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// World owns an octree. Casts take a read lock; edits take the write lock, so a batch of casts sees
// either all or none of an edit.
type World struct {
	logger logging.Logger

	mu    sync.RWMutex
	tree  octree.Octree
	dense *octree.Dense
	queue *mirror.Queue
}

// New builds the world described by cfg. cfg must have been validated.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*World, error) {
	var (
		target  octree.CellSetter
		builder *octree.Builder
		dense   *octree.Dense
		err     error
	)
	switch cfg.Representation {
	case config.Dense:
		if dense, err = octree.NewDense(cfg.Depth, logger.Sublogger("octree")); err != nil {
			return nil, err
		}
		dense.SetBoundsPolicy(cfg.BoundsPolicy())
		target = dense
	default:
		if builder, err = octree.NewBuilder(cfg.Depth, logger.Sublogger("octree")); err != nil {
			return nil, err
		}
		builder.SetBoundsPolicy(cfg.BoundsPolicy())
		target = builder
	}

	switch {
	case cfg.Generator != nil:
		if _, err := worldgen.Generate(ctx, target, cfg.Generator.WorldgenConfig(), logger.Sublogger("worldgen")); err != nil {
			return nil, errors.Wrap(err, "generating terrain")
		}
	case cfg.Import != nil:
		if err := importClouds(ctx, target, cfg.Import, logger.Sublogger("import")); err != nil {
			return nil, err
		}
	}

	if dense != nil {
		return FromOctree(dense, logger), nil
	}
	compiled := octree.Compile(builder)
	logger.Infow("compiled world", "depth", cfg.Depth, "nodes", compiled.Len(), "offset_bits", compiled.OffsetBits())
	return FromOctree(compiled, logger), nil
}

// FromOctree wraps an existing octree. Only a *octree.Dense can be edited.
func FromOctree(tree octree.Octree, logger logging.Logger) *World {
	w := &World{logger: logger, tree: tree, queue: mirror.NewQueue(logger.Sublogger("mirror"))}
	if d, ok := tree.(*octree.Dense); ok {
		w.dense = d
	}
	return w
}

// Load opens a world file.
func Load(path string, logger logging.Logger) (*World, error) {
	tree, err := worldfile.Load(path, logger)
	if err != nil {
		return nil, err
	}
	return FromOctree(tree, logger), nil
}

// importClouds reads every configured cloud concurrently, merges them and voxelizes the result.
func importClouds(ctx context.Context, target octree.CellSetter, imp *config.Import, logger logging.Logger) error {
	opts, err := imp.VoxelizeOptions()
	if err != nil {
		return err
	}
	paths := imp.AllPaths()
	clouds := make([]pointcloud.PointCloud, len(paths))
	fs := make([]utils.SimpleFunc, 0, len(paths))
	for i, path := range paths {
		i, path := i, path
		fs = append(fs, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cloud, err := pointcloud.NewFromFile(path, logger)
			if err != nil {
				return err
			}
			clouds[i] = cloud
			return nil
		})
	}
	elapsed, err := utils.RunInParallel(ctx, fs)
	if err != nil {
		return errors.Wrap(err, "reading point clouds")
	}

	merged := clouds[0]
	if len(clouds) > 1 {
		total := 0
		for _, c := range clouds {
			total += c.Size()
		}
		merged = pointcloud.NewWithPrealloc(total)
		for _, c := range clouds {
			var setErr error
			c.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
				setErr = merged.Set(p, d)
				return setErr == nil
			})
			if setErr != nil {
				return setErr
			}
		}
	}
	logger.Debugw("read point clouds", "files", len(paths), "points", merged.Size(), "elapsed", elapsed)

	_, err = pointcloud.Voxelize(ctx, merged, target, opts, logger)
	return err
}

// Depth returns the depth of the world.
func (w *World) Depth() uint8 {
	return w.tree.Depth()
}

// Editable reports whether the world accepts edits.
func (w *World) Editable() bool {
	return w.dense != nil
}

// Octree returns the underlying tree. Callers must not edit it while the world is in use.
func (w *World) Octree() octree.Octree {
	return w.tree
}

// Mutations returns the queue that receives the changed records of every edit.
func (w *World) Mutations() *mirror.Queue {
	return w.queue
}

// CastRay casts one ray.
func (w *World) CastRay(origin, direction r3.Vector) octree.HitPoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tree.CastRay(origin, direction)
}

// CastBatch casts rays in parallel. Results are in ray order.
func (w *World) CastBatch(ctx context.Context, rays []Ray) ([]octree.HitPoint, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	hits := make([]octree.HitPoint, len(rays))
	err := utils.GroupWorkParallel(
		ctx,
		len(rays),
		func(numGroups int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				hits[workNum] = w.tree.CastRay(rays[workNum].Origin, rays[workNum].Direction)
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// AddCell stores a cell and queues the changed records.
func (w *World) AddCell(x, y, z uint32, t octree.CellType) ([]octree.MutationRecord, error) {
	if w.dense == nil {
		return nil, ErrReadOnly
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	records, err := w.dense.AddCell(x, y, z, t)
	if err != nil {
		return nil, err
	}
	w.queue.Push(records)
	return records, nil
}

// RemoveCell clears a cell and queues the changed records.
func (w *World) RemoveCell(x, y, z uint32) ([]octree.MutationRecord, error) {
	if w.dense == nil {
		return nil, ErrReadOnly
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	records, err := w.dense.RemoveCell(x, y, z)
	if err != nil {
		return nil, err
	}
	w.queue.Push(records)
	return records, nil
}

// EditOp selects what EditAtRay does with the struck voxel.
type EditOp int

const (
	// EditRemove clears the struck voxel.
	EditRemove EditOp = iota
	// EditPlace fills the voxel in front of the struck face.
	EditPlace
)

// EditAtRay casts a ray and edits the world where it lands. A miss, or a placement with no free
// voxel in front of the struck face, edits nothing and returns no records.
func (w *World) EditAtRay(origin, direction r3.Vector, op EditOp, t octree.CellType) (octree.HitPoint, []octree.MutationRecord, error) {
	if w.dense == nil {
		return octree.HitPoint{}, nil, ErrReadOnly
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	hp := w.dense.CastRay(origin, direction)
	if !hp.Hit {
		return hp, nil, nil
	}
	var records []octree.MutationRecord
	var err error
	switch op {
	case EditRemove:
		records, err = w.dense.RemoveCell(hp.Voxel.X, hp.Voxel.Y, hp.Voxel.Z)
	case EditPlace:
		at, ok := hp.Adjacent(w.dense.Depth())
		if !ok {
			return hp, nil, nil
		}
		records, err = w.dense.AddCell(at.X, at.Y, at.Z, t)
	default:
		return hp, nil, errors.Errorf("unknown edit op %d", op)
	}
	if err != nil {
		return hp, nil, err
	}
	w.queue.Push(records)
	return hp, records, nil
}

// Export writes the world to path.
func (w *World) Export(path string, compress bool) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return worldfile.Save(path, w.tree, compress, w.logger)
}
