package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"go.viam.com/svo/config"
	"go.viam.com/svo/logging"
	"go.viam.com/svo/octree"
	"go.viam.com/svo/world"
)

// newLogger writes to the app's error writer so command output stays parseable.
func newLogger(c *cli.Context) logging.Logger {
	level := logging.WARN
	if c.Bool(flagDebug) {
		level = logging.DEBUG
	}
	return logging.NewLoggerWithAppenders("svo", level, logging.NewWriterAppender(zapcore.AddSync(c.App.ErrWriter)))
}

func printf(c *cli.Context, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(c.App.Writer, format+"\n", a...)
}

// parseVector parses "x,y,z".
func parseVector(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, errors.Errorf("expected X,Y,Z but got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "parsing %q", s)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return r3.Vector{}, errors.Errorf("component %d of %q is not finite", i, s)
		}
		v[i] = f
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

func representation(c *cli.Context) config.Representation {
	if c.Bool(flagDense) {
		return config.Dense
	}
	return config.Compiled
}

func depthFlag(c *cli.Context) (uint8, error) {
	depth := c.Uint(flagDepth)
	if depth > 255 {
		return 0, errors.Errorf("depth %d out of range", depth)
	}
	return uint8(depth), nil
}

// buildAndSave validates cfg, builds the world and writes it to cfg.Output.
func buildAndSave(c *cli.Context, cfg *config.Config, logger logging.Logger) error {
	if err := cfg.Validate(""); err != nil {
		return err
	}
	if cfg.Output == nil {
		return errors.New("no output path given")
	}
	w, err := world.New(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	if err := w.Export(cfg.Output.Path, cfg.Output.Compress); err != nil {
		return err
	}
	printf(c, "wrote %s world of depth %d to %s", cfg.Representation, cfg.Depth, cfg.Output.Path)
	return nil
}

// BuildAction builds the world described by a config file.
func BuildAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := config.Read(c.String(flagConfig), logger)
	if err != nil {
		return err
	}
	if !c.Bool(flagDebug) {
		logger.SetLevel(cfg.Level())
	}
	if out := c.String(flagOut); out != "" {
		if cfg.Output == nil {
			cfg.Output = &config.Output{}
		}
		cfg.Output.Path = out
	}
	return buildAndSave(c, cfg, logger)
}

// GenerateAction generates procedural terrain.
func GenerateAction(c *cli.Context) error {
	depth, err := depthFlag(c)
	if err != nil {
		return err
	}
	cfg := &config.Config{
		Depth:          depth,
		Representation: representation(c),
		Generator:      &config.Generator{Seed: c.Int64(flagSeed)},
		Output:         &config.Output{Path: c.String(flagOut), Compress: c.Bool(flagCompress)},
	}
	return buildAndSave(c, cfg, newLogger(c))
}

// ImportAction voxelizes point cloud files.
func ImportAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one point cloud file is required")
	}
	depth, err := depthFlag(c)
	if err != nil {
		return err
	}
	cfg := &config.Config{
		Depth:          depth,
		Representation: representation(c),
		Import: &config.Import{
			Paths:     c.Args().Slice(),
			VoxelSize: c.Float64(flagVoxelSize),
			MinPoints: c.Int(flagMinPoints),
			Type:      c.String(flagType),
			Texture:   c.String(flagTexture),
		},
		Output: &config.Output{Path: c.String(flagOut), Compress: c.Bool(flagCompress)},
	}
	return buildAndSave(c, cfg, newLogger(c))
}

func loadWorld(c *cli.Context, logger logging.Logger) (*world.World, string, error) {
	if c.NArg() != 1 {
		return nil, "", errors.New("exactly one world file is required")
	}
	path := c.Args().First()
	w, err := world.Load(path, logger)
	if err != nil {
		return nil, "", err
	}
	return w, path, nil
}

// InspectAction prints the layout of a world file.
func InspectAction(c *cli.Context) error {
	w, path, err := loadWorld(c, newLogger(c))
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Property", "Value"})
	t.AppendRow(table.Row{"File", path})
	t.AppendRow(table.Row{"Depth", w.Depth()})
	t.AppendRow(table.Row{"Side", uint64(1) << w.Depth()})

	switch tree := w.Octree().(type) {
	case *octree.Compiled:
		t.AppendRow(table.Row{"Representation", config.Compiled})
		t.AppendRow(table.Row{"Nodes", tree.Len()})
		t.AppendRow(table.Row{"Node buffer", units.HumanSize(float64(tree.Len() * octree.NodeSize))})
		t.AppendRow(table.Row{"Cell buffer", units.HumanSize(float64(tree.Len() * octree.CellSize))})
		t.AppendRow(table.Row{"Max offset", tree.MaxOffset()})
		t.AppendRow(table.Row{"Offset bits", tree.OffsetBits()})
	case *octree.Dense:
		t.AppendRow(table.Row{"Representation", config.Dense})
		t.AppendRow(table.Row{"Slots", tree.Len()})
		t.AppendRow(table.Row{"Buffer", units.HumanSize(float64(tree.Len()))})
		occupied := 0
		for _, b := range tree.Bytes()[tree.LevelStart(int(tree.Depth())):] {
			if b != 0 {
				occupied++
			}
		}
		t.AppendRow(table.Row{"Voxels", occupied})
	}
	printf(c, "%s", t.Render())
	return nil
}

func describeHit(c *cli.Context, hp octree.HitPoint) {
	if !hp.Hit {
		printf(c, "miss (%d steps)", hp.Complexity)
		return
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Property", "Value"})
	t.AppendRow(table.Row{"Voxel", fmt.Sprintf("%d,%d,%d", hp.Voxel.X, hp.Voxel.Y, hp.Voxel.Z)})
	t.AppendRow(table.Row{"Cell", fmt.Sprintf("%s %s", hp.Cell.Type, hp.Cell.Texture)})
	t.AppendRow(table.Row{"Distance", fmt.Sprintf("%.4f", hp.Distance)})
	t.AppendRow(table.Row{"Position", fmt.Sprintf("%.4f,%.4f,%.4f", hp.Position.X, hp.Position.Y, hp.Position.Z)})
	t.AppendRow(table.Row{"Normal", fmt.Sprintf("%g,%g,%g", hp.Normal.X, hp.Normal.Y, hp.Normal.Z)})
	t.AppendRow(table.Row{"Steps", hp.Complexity})
	printf(c, "%s", t.Render())
}

func rayFromFlags(c *cli.Context) (r3.Vector, r3.Vector, error) {
	origin, err := parseVector(c.String(flagOrigin))
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	dir, err := parseVector(c.String(flagDirection))
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	if dir.Norm() == 0 {
		return r3.Vector{}, r3.Vector{}, errors.New("direction must not be zero")
	}
	return origin, dir.Normalize(), nil
}

// CastAction casts one ray into a world file.
func CastAction(c *cli.Context) error {
	origin, dir, err := rayFromFlags(c)
	if err != nil {
		return err
	}
	w, _, err := loadWorld(c, newLogger(c))
	if err != nil {
		return err
	}
	describeHit(c, w.CastRay(origin, dir))
	return nil
}

// EditAction edits a dense world file where a ray lands and saves it in place.
func EditAction(c *cli.Context) error {
	origin, dir, err := rayFromFlags(c)
	if err != nil {
		return err
	}
	var op world.EditOp
	switch c.String(flagOp) {
	case "remove":
		op = world.EditRemove
	case "place":
		op = world.EditPlace
	default:
		return errors.Errorf("unknown edit op %q, must be remove or place", c.String(flagOp))
	}
	cellType, err := octree.CellTypeFromString(c.String(flagType))
	if err != nil {
		return err
	}

	w, path, err := loadWorld(c, newLogger(c))
	if err != nil {
		return err
	}
	hp, records, err := w.EditAtRay(origin, dir, op, cellType)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		printf(c, "nothing to edit")
		return nil
	}
	changed := w.Mutations().Drain()
	if err := w.Export(path, c.Bool(flagCompress)); err != nil {
		return err
	}
	printf(c, "%s at %d,%d,%d changed %d slots", c.String(flagOp), hp.Voxel.X, hp.Voxel.Y, hp.Voxel.Z, len(changed))
	return nil
}

// ProfileAction casts a frame of camera rays and prints traversal statistics.
func ProfileAction(c *cli.Context) error {
	pos, err := parseVector(c.String(flagPosition))
	if err != nil {
		return err
	}
	w, _, err := loadWorld(c, newLogger(c))
	if err != nil {
		return err
	}
	cam := world.Camera{Position: pos, Yaw: c.Float64(flagYaw), Pitch: c.Float64(flagPitch), FOV: c.Float64(flagFOV)}
	ps, err := w.Profile(cam, c.Int(flagWidth), c.Int(flagHeight))
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Rays", ps.Pixels})
	t.AppendRow(table.Row{"Hits", ps.Hits})
	t.AppendRow(table.Row{"Elapsed", ps.Elapsed})
	t.AppendRow(table.Row{"Mean steps", fmt.Sprintf("%.2f", ps.MeanComplexity)})
	t.AppendRow(table.Row{"Median steps", fmt.Sprintf("%.2f", ps.MedianComplexity)})
	t.AppendRow(table.Row{"P95 steps", fmt.Sprintf("%.2f", ps.P95Complexity)})
	t.AppendRow(table.Row{"Max steps", fmt.Sprintf("%.0f", ps.MaxComplexity)})
	t.AppendRow(table.Row{"Std dev", fmt.Sprintf("%.2f", ps.StdDevComplexity)})
	printf(c, "%s", t.Render())
	return nil
}
