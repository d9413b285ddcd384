// Package batch precompiles every configured shader in every permutation,
// in parallel.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/neurodesk/shaderprep/pkg/config"
	"github.com/neurodesk/shaderprep/pkg/precompiler"
	"github.com/neurodesk/shaderprep/pkg/shader"

	"golang.org/x/sync/errgroup"
)

var ErrFailed = errors.New("shader build failed")

type Options struct {
	// Jobs bounds the number of units built at once; 0 uses the config's
	// jobs setting, then GOMAXPROCS.
	Jobs int
	// Compiler, when set, compiles each expanded pair.
	Compiler shader.Compiler
	// OutputDir overrides the config's output directory.
	OutputDir string
	// DryRun expands and compiles without writing output files.
	DryRun bool
	// FailFast cancels the remaining units after the first failure.
	FailFast bool
	// Loader reads shader and include files; nil means the OS file system.
	Loader precompiler.Loader
	// Flags and Values are applied on top of every permutation.
	Flags  precompiler.Flags
	Values precompiler.Values
	Logger *slog.Logger
}

// Result reports one shader built in one permutation.
type Result struct {
	Shader      string
	Permutation string
	Pair        *shader.Pair
	Program     *shader.Program
	// Outputs lists the files written.
	Outputs []string
	// UnusedFlags lists permutation flags no conditional in the pair (or
	// its includes) refers to.
	UnusedFlags []string
	Duration    time.Duration
	Err         error
}

type unit struct {
	index int
	entry config.ShaderEntry
	perm  config.Permutation
}

// Run builds every shader x permutation unit of cfg. Results are returned in
// configuration order whatever order the units finish in. The error is
// non-nil when any unit failed.
func Run(ctx context.Context, cfg *config.Config, opts Options) ([]Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var units []unit
	for _, entry := range cfg.Shaders {
		for _, perm := range cfg.PermutationsFor(entry) {
			units = append(units, unit{index: len(units), entry: entry, perm: perm})
		}
	}
	results := make([]Result, len(units))

	outDir := OutputDir(cfg, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs(opts.Jobs, cfg.Jobs))
	for _, u := range units {
		g.Go(func() error {
			res := build(gctx, cfg, opts, outDir, u, logger)
			results[u.index] = res
			if res.Err != nil && opts.FailFast {
				return res.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d units", ErrFailed, failed, len(results))
	}
	return results, nil
}

// OutputDir is where Run writes: the OutputDir option, else the config's
// output_dir, else the config's directory.
func OutputDir(cfg *config.Config, opts Options) string {
	switch {
	case opts.OutputDir != "":
		return opts.OutputDir
	case cfg.OutputDir != "":
		return cfg.Resolve(cfg.OutputDir)
	case cfg.Root != "":
		return cfg.Root
	}
	return "."
}

func jobs(opt, cfg int) int {
	switch {
	case opt > 0:
		return opt
	case cfg > 0:
		return cfg
	}
	return runtime.GOMAXPROCS(0)
}

func build(ctx context.Context, cfg *config.Config, opts Options, outDir string, u unit, logger *slog.Logger) Result {
	start := time.Now()
	res := Result{Shader: u.entry.Name, Permutation: u.perm.Name}
	log := logger.With("shader", u.entry.Name, "permutation", u.perm.Name)

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	flags, values := u.perm.Merge(cfg.Flags, cfg.Values)
	flags, values = config.Permutation{Flags: opts.Flags, Values: opts.Values}.Merge(flags, values)
	session := &precompiler.Session{
		Flags:  flags,
		Values: values,
		Loader: opts.Loader,
		Logger: logger,
	}

	pair, err := shader.LoadPair(cfg.Resolve(u.entry.Path), session)
	if err != nil {
		res.Err = err
		log.Error("precompile failed", "error", err)
		return res
	}
	res.Pair = pair
	res.UnusedFlags = unusedFlags(u.perm, pair)
	if len(res.UnusedFlags) > 0 {
		log.Warn("permutation sets flags the shader never tests", "flags", res.UnusedFlags)
	}

	if opts.Compiler != nil {
		prog, err := shader.Build(ctx, opts.Compiler, pair)
		if err != nil {
			res.Err = err
			log.Error("compile failed", "error", err)
			return res
		}
		res.Program = prog
	}

	if !opts.DryRun {
		res.Outputs, res.Err = write(outDir, u, pair, res.Program)
		if res.Err != nil {
			log.Error("writing outputs failed", "error", res.Err)
			return res
		}
	}
	res.Duration = time.Since(start)
	log.Debug("built", "duration", res.Duration, "outputs", res.Outputs)
	return res
}

func unusedFlags(perm config.Permutation, pair *shader.Pair) []string {
	used := map[string]bool{}
	for _, src := range []shader.Source{pair.Vertex, pair.Fragment} {
		if src.Expansion == nil {
			continue
		}
		for _, name := range src.Expansion.Flags {
			used[name] = true
		}
	}
	var unused []string
	for _, name := range sortedFlags(perm.Flags) {
		if !used[name] {
			unused = append(unused, name)
		}
	}
	return unused
}

// OutputPath names the file a stage of a unit is written to:
// <dir>/<shader>.<permutation>.<vert|frag>.
func OutputPath(dir, shaderName, permutation string, stage shader.Stage) string {
	return filepath.Join(dir, shaderName+"."+permutation+stage.Ext())
}

// write stores the expanded sources, and the compiled binaries next to them
// with a .spv suffix when there are any.
func write(dir string, u unit, pair *shader.Pair, prog *shader.Program) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	var outputs []string
	for _, src := range []shader.Source{pair.Vertex, pair.Fragment} {
		path := OutputPath(dir, u.entry.Name, u.perm.Name, src.Stage)
		if err := os.WriteFile(path, []byte(src.Expanded()), 0o644); err != nil {
			return outputs, fmt.Errorf("writing %s: %w", path, err)
		}
		outputs = append(outputs, path)

		if prog == nil {
			continue
		}
		bin := prog.Vertex
		if src.Stage == shader.StageFragment {
			bin = prog.Fragment
		}
		if len(bin) == 0 {
			continue
		}
		if err := os.WriteFile(path+".spv", bin, 0o644); err != nil {
			return outputs, fmt.Errorf("writing %s.spv: %w", path, err)
		}
		outputs = append(outputs, path+".spv")
	}
	return outputs, nil
}

func sortedFlags(flags precompiler.Flags) []string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
