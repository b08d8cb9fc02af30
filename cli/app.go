// Package cli contains the svo command line: building worlds from configs, generators and point
// clouds, inspecting world files, and casting, editing and profiling against them.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagDebug     = "debug"
	flagConfig    = "config"
	flagDepth     = "depth"
	flagDense     = "dense"
	flagSeed      = "seed"
	flagOut       = "out"
	flagCompress  = "compress"
	flagVoxelSize = "voxel-size"
	flagMinPoints = "min-points"
	flagType      = "type"
	flagTexture   = "texture"
	flagOrigin    = "origin"
	flagDirection = "direction"
	flagOp        = "op"
	flagPosition  = "position"
	flagYaw       = "yaw"
	flagPitch     = "pitch"
	flagFOV       = "fov"
	flagWidth     = "width"
	flagHeight    = "height"
)

var buildFlags = []cli.Flag{
	&cli.UintFlag{
		Name:  flagDepth,
		Usage: "world depth; the world is 2^depth voxels on a side",
		Value: 8,
	},
	&cli.BoolFlag{
		Name:  flagDense,
		Usage: "build an editable dense world instead of a compiled one",
	},
	&cli.StringFlag{
		Name:     flagOut,
		Aliases:  []string{"o"},
		Usage:    "write the world to `FILE`",
		Required: true,
	},
	&cli.BoolFlag{
		Name:  flagCompress,
		Usage: "LZF compress the world file",
	},
}

var rayFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     flagOrigin,
		Usage:    "ray origin as `X,Y,Z`",
		Required: true,
	},
	&cli.StringFlag{
		Name:     flagDirection,
		Usage:    "ray direction as `X,Y,Z`; normalized before casting",
		Required: true,
	},
}

var app = &cli.App{
	Name:            "svo",
	Usage:           "build and query sparse voxel octree worlds",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "build",
			Usage:     "build the world described by a config file",
			UsageText: "svo build --config <world.json>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagConfig,
					Aliases:  []string{"c"},
					Usage:    "load configuration from `FILE`",
					Required: true,
				},
				&cli.StringFlag{
					Name:    flagOut,
					Aliases: []string{"o"},
					Usage:   "write the world to `FILE`, overriding the config's output",
				},
			},
			Action: BuildAction,
		},
		{
			Name:  "generate",
			Usage: "generate procedural terrain",
			Flags: append([]cli.Flag{
				&cli.Int64Flag{
					Name:  flagSeed,
					Usage: "noise seed",
					Value: 1,
				},
			}, buildFlags...),
			Action: GenerateAction,
		},
		{
			Name:      "import",
			Usage:     "voxelize point cloud files (.pcd, .las)",
			UsageText: "svo import [options] <cloud> [cloud...]",
			Flags: append([]cli.Flag{
				&cli.Float64Flag{
					Name:  flagVoxelSize,
					Usage: "voxel edge length in cloud units; 0 fits the clouds into the world",
				},
				&cli.IntFlag{
					Name:  flagMinPoints,
					Usage: "drop voxels holding fewer points",
				},
				&cli.StringFlag{
					Name:  flagType,
					Usage: "cell type of imported voxels (solid, mirror, emissive)",
					Value: "solid",
				},
				&cli.StringFlag{
					Name:  flagTexture,
					Usage: "texture of imported voxels; empty matches point colors against the texture palette",
				},
			}, buildFlags...),
			Action: ImportAction,
		},
		{
			Name:      "inspect",
			Usage:     "print the layout of a world file",
			UsageText: "svo inspect <world.svo>",
			Action:    InspectAction,
		},
		{
			Name:      "cast",
			Usage:     "cast one ray into a world file",
			UsageText: "svo cast --origin X,Y,Z --direction X,Y,Z <world.svo>",
			Flags:     rayFlags,
			Action:    CastAction,
		},
		{
			Name:      "edit",
			Usage:     "remove the voxel a ray hits, or place one against it, and save the dense world",
			UsageText: "svo edit --origin X,Y,Z --direction X,Y,Z [--op place --type solid] <world.svo>",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  flagOp,
					Usage: "remove or place",
					Value: "remove",
				},
				&cli.StringFlag{
					Name:  flagType,
					Usage: "cell type placed",
					Value: "solid",
				},
				&cli.BoolFlag{
					Name:  flagCompress,
					Usage: "LZF compress the saved world file",
				},
			}, rayFlags...),
			Action: EditAction,
		},
		{
			Name:      "profile",
			Usage:     "cast a frame of camera rays and report traversal statistics",
			UsageText: "svo profile --position X,Y,Z [options] <world.svo>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     flagPosition,
					Usage:    "camera position as `X,Y,Z`",
					Required: true,
				},
				&cli.Float64Flag{Name: flagYaw, Usage: "camera yaw in degrees; 0 looks down +x"},
				&cli.Float64Flag{Name: flagPitch, Usage: "camera pitch in degrees"},
				&cli.Float64Flag{Name: flagFOV, Usage: "vertical field of view in degrees", Value: 60},
				&cli.IntFlag{Name: flagWidth, Usage: "frame width in pixels", Value: 320},
				&cli.IntFlag{Name: flagHeight, Usage: "frame height in pixels", Value: 240},
			},
			Action: ProfileAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
