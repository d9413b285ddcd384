package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/neurodesk/shaderprep/pkg/config"
	"github.com/neurodesk/shaderprep/pkg/precompiler"
	"github.com/neurodesk/shaderprep/pkg/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"shaders/basic.vert":  "#include common.glsl\nvoid main() {}\n",
		"shaders/basic.frag":  "#if SHADOWS\nshadow();\n#else\nflat();\n#endif\nint n = #{NUM_LIGHTS};\n",
		"shaders/common.glsl": "#if not FOG\nno_fog();\n#endif\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return &config.Config{
		Flags:   precompiler.Flags{"SHADOWS": false, "FOG": false},
		Values:  precompiler.Values{"NUM_LIGHTS": "4"},
		Shaders: []config.ShaderEntry{{Name: "basic", Path: "shaders/basic"}},
		Permutations: []config.Permutation{
			{Name: "low"},
			{Name: "high", Flags: precompiler.Flags{"SHADOWS": true, "BLOOM": true}, Values: precompiler.Values{"NUM_LIGHTS": "8"}},
		},
		OutputDir: "out",
		Root:      dir,
	}
}

func TestRunWritesEveryPermutation(t *testing.T) {
	cfg := testConfig(t)
	results, err := Run(context.Background(), cfg, Options{Jobs: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "low", results[0].Permutation)
	assert.Equal(t, "high", results[1].Permutation)

	out := filepath.Join(cfg.Root, "out")
	low, err := os.ReadFile(filepath.Join(out, "basic.low.frag"))
	require.NoError(t, err)
	assert.Equal(t, "flat();\nint n = 4;\n", string(low))

	high, err := os.ReadFile(filepath.Join(out, "basic.high.frag"))
	require.NoError(t, err)
	assert.Equal(t, "shadow();\nint n = 8;\n", string(high))

	vert, err := os.ReadFile(filepath.Join(out, "basic.low.vert"))
	require.NoError(t, err)
	assert.Equal(t, "no_fog();\n\nvoid main() {}\n", string(vert))

	assert.Equal(t, []string{
		filepath.Join(out, "basic.high.vert"),
		filepath.Join(out, "basic.high.frag"),
	}, results[1].Outputs)
}

func TestRunReportsUnusedFlags(t *testing.T) {
	results, err := Run(context.Background(), testConfig(t), Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, results[0].UnusedFlags)
	assert.Equal(t, []string{"BLOOM"}, results[1].UnusedFlags)
	assert.Empty(t, results[1].Outputs)
}

func TestRunOverrides(t *testing.T) {
	cfg := testConfig(t)
	outDir := t.TempDir()
	_, err := Run(context.Background(), cfg, Options{
		OutputDir: outDir,
		Flags:     precompiler.Flags{"SHADOWS": true},
		Values:    precompiler.Values{"NUM_LIGHTS": "1"},
	})
	require.NoError(t, err)

	low, err := os.ReadFile(filepath.Join(outDir, "basic.low.frag"))
	require.NoError(t, err)
	assert.Equal(t, "shadow();\nint n = 1;\n", string(low))
}

func TestRunCompiles(t *testing.T) {
	var calls atomic.Int32
	compiler := shader.CompilerFunc(func(_ context.Context, vertex, fragment string) (*shader.Program, error) {
		calls.Add(1)
		return &shader.Program{Vertex: []byte("V"), Fragment: []byte("F")}, nil
	})

	cfg := testConfig(t)
	results, err := Run(context.Background(), cfg, Options{Compiler: compiler})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	require.NotNil(t, results[0].Program)
	assert.Equal(t, filepath.Join(cfg.Root, "shaders/basic"), results[0].Program.Path)

	bin, err := os.ReadFile(filepath.Join(cfg.Root, "out", "basic.low.frag.spv"))
	require.NoError(t, err)
	assert.Equal(t, "F", string(bin))
	assert.Len(t, results[0].Outputs, 4)
}

func TestRunCollectsFailures(t *testing.T) {
	cfg := testConfig(t)
	compiler := shader.CompilerFunc(func(_ context.Context, vertex, fragment string) (*shader.Program, error) {
		if fragment == "shadow();\nint n = 8;\n" {
			return nil, errors.New("Compilation failed: fragment: 2: bad")
		}
		return &shader.Program{}, nil
	})

	results, err := Run(context.Background(), cfg, Options{Compiler: compiler, DryRun: true})
	require.ErrorIs(t, err, ErrFailed)
	assert.NoError(t, results[0].Err)

	var ce *shader.CompileError
	require.ErrorAs(t, results[1].Err, &ce)
	assert.Equal(t, "int n = 8;", ce.Diagnostic.FragmentLine)
	assert.Equal(t, 6, ce.Diagnostic.FragmentOrigin.Line)
	assert.Equal(t, "int n = #{NUM_LIGHTS};", ce.Diagnostic.RawFragmentLine)
}

func TestRunPrecompileError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Values = nil

	results, err := Run(context.Background(), cfg, Options{DryRun: true, FailFast: true, Jobs: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, precompiler.ErrUndefinedValue)
	assert.ErrorIs(t, results[0].Err, precompiler.ErrUndefinedValue)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := Run(ctx, testConfig(t), Options{DryRun: true})
	require.ErrorIs(t, err, ErrFailed)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRunWithoutOutputDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = ""

	results, err := Run(context.Background(), cfg, Options{Jobs: 1})
	require.NoError(t, err)
	require.Len(t, results, 2)

	low, err := os.ReadFile(filepath.Join(cfg.Root, "basic.low.frag"))
	require.NoError(t, err)
	assert.Equal(t, "flat();\nint n = 4;\n", string(low))
}

func TestOutputDir(t *testing.T) {
	assert.Equal(t, "dist", OutputDir(&config.Config{Root: "r", OutputDir: "o"}, Options{OutputDir: "dist"}))
	assert.Equal(t, filepath.Join("r", "o"), OutputDir(&config.Config{Root: "r", OutputDir: "o"}, Options{}))
	assert.Equal(t, "r", OutputDir(&config.Config{Root: "r"}, Options{}))
	assert.Equal(t, ".", OutputDir(&config.Config{}, Options{}))
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "water.high.frag"), OutputPath("out", "water", "high", shader.StageFragment))
	assert.Equal(t, filepath.Join("out", "water.high.vert"), OutputPath("out", "water", "high", shader.StageVertex))
}
