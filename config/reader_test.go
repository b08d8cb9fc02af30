package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/svo/logging"
	"go.viam.com/svo/octree"
	"go.viam.com/svo/worldgen"
)

func TestFromReaderValidate(t *testing.T) {
	logger := logging.NewTestLogger(t)

	_, err := FromReader("somepath", strings.NewReader(""), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath", strings.NewReader(`{"depth": "deep"}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unmarshal")

	_, err = FromReader("somepath", strings.NewReader(`{"depth": 4, "cloud": {}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown field")

	_, err = FromReader("somepath", strings.NewReader(`{}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"depth" is required`)

	conf, err := FromReader("somepath", strings.NewReader(`{"depth": 4}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf, test.ShouldResemble, &Config{
		Depth:          4,
		Representation: Compiled,
		ConfigFilePath: "somepath",
	})
	test.That(t, conf.BoundsPolicy(), test.ShouldEqual, octree.BoundsStrict)
	test.That(t, conf.Level(), test.ShouldEqual, logging.INFO)
}

func TestValidate(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for name, tc := range map[string]struct {
		json string
		err  string
	}{
		"too deep":           {`{"depth": 21}`, "exceeds the maximum"},
		"too deep for dense": {`{"depth": 11, "representation": "dense"}`, "dense maximum"},
		"representation":     {`{"depth": 4, "representation": "sparse"}`, "unknown representation"},
		"log level":          {`{"depth": 4, "log_level": "loud"}`, "unknown log level"},
		"exclusive": {
			`{"depth": 4, "generator": {}, "import": {"path": "a.pcd"}}`,
			"mutually exclusive",
		},
		"octaves":      {`{"depth": 4, "generator": {"octaves": -1}}`, "octaves"},
		"import path":  {`{"depth": 4, "import": {}}`, `"path" is required`},
		"empty paths":  {`{"depth": 4, "import": {"paths": ["a.pcd", ""]}}`, "import.paths.1"},
		"voxel size":   {`{"depth": 4, "import": {"path": "a.pcd", "voxel_size": -1}}`, "voxel_size"},
		"import type":  {`{"depth": 4, "import": {"path": "a.pcd", "type": "glass"}}`, "unknown cell type"},
		"empty type":   {`{"depth": 4, "import": {"path": "a.pcd", "type": "empty"}}`, "cannot be empty"},
		"texture":      {`{"depth": 4, "import": {"path": "a.pcd", "texture": "lava"}}`, "unknown texture"},
		"output path":  {`{"depth": 4, "output": {"compress": true}}`, `"path" is required`},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			_, err := FromReader("somepath", strings.NewReader(tc.json), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}
}

func TestGeneratorDefaults(t *testing.T) {
	var unset *Generator
	test.That(t, unset.WorldgenConfig(), test.ShouldResemble, worldgen.DefaultConfig())

	noFloor := false
	margin := uint32(0)
	g := &Generator{Seed: 7, Amplitude: 10, Floor: &noFloor, Margin: &margin}
	cfg := g.WorldgenConfig()
	test.That(t, cfg.Seed, test.ShouldEqual, int64(7))
	test.That(t, cfg.Amplitude, test.ShouldEqual, 10.0)
	test.That(t, cfg.Floor, test.ShouldBeFalse)
	test.That(t, cfg.Margin, test.ShouldEqual, uint32(0))
	// untouched settings keep their defaults
	test.That(t, cfg.Octaves, test.ShouldEqual, worldgen.DefaultConfig().Octaves)
	test.That(t, cfg.Frequency, test.ShouldEqual, worldgen.DefaultConfig().Frequency)
}

func TestImportOptions(t *testing.T) {
	i := &Import{Path: "a.pcd", Paths: []string{"b.las"}, VoxelSize: 0.5, MinPoints: 3, Type: "Mirror", Texture: "sand"}
	test.That(t, i.AllPaths(), test.ShouldResemble, []string{"a.pcd", "b.las"})
	opts, err := i.VoxelizeOptions()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts.Type, test.ShouldEqual, octree.Mirror)
	test.That(t, opts.Texture, test.ShouldEqual, octree.Sand)
	test.That(t, opts.VoxelSize, test.ShouldEqual, 0.5)
	test.That(t, opts.MinPoints, test.ShouldEqual, 3)

	opts, err = (&Import{Path: "a.pcd"}).VoxelizeOptions()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts.Type, test.ShouldEqual, octree.Solid)
}

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	t.Setenv("SVO_TEST_SCAN", "scans/room.pcd")

	fn := filepath.Join(dir, "world.json")
	test.That(t, os.WriteFile(fn, []byte(`{
		"depth": 8,
		"representation": "dense",
		"strict_bounds": false,
		"log_level": "debug",
		"import": {"path": "${SVO_TEST_SCAN}", "texture": "stone"},
		"output": {"path": "room.svo", "compress": true}
	}`), 0o600), test.ShouldBeNil)

	conf, err := Read(fn, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, fn)
	test.That(t, conf.Representation, test.ShouldEqual, Dense)
	test.That(t, conf.BoundsPolicy(), test.ShouldEqual, octree.BoundsClamp)
	test.That(t, conf.Level(), test.ShouldEqual, logging.DEBUG)
	test.That(t, conf.Import.Path, test.ShouldEqual, "scans/room.pcd")
	test.That(t, conf.Output, test.ShouldResemble, &Output{Path: "room.svo", Compress: true})

	_, err = Read(filepath.Join(dir, "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}
