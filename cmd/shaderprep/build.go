package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/neurodesk/shaderprep/pkg/batch"
	"github.com/neurodesk/shaderprep/pkg/cache"
	"github.com/neurodesk/shaderprep/pkg/config"
	"github.com/neurodesk/shaderprep/pkg/precompiler"
	"github.com/neurodesk/shaderprep/pkg/shader"
	"github.com/neurodesk/shaderprep/pkg/watch"
	"github.com/spf13/cobra"
)

type buildFlags struct {
	jobs     int
	output   string
	compiler string
	dryRun   bool
	failFast bool
	cacheDir string
	flags    []string
	values   []string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "Units built in parallel (default: config jobs, then CPU count)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output directory (default: config output_dir, then the config file's directory)")
	cmd.Flags().StringVar(&f.compiler, "compiler", "", "Downstream compiler: none or naga (default: config compiler)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Precompile and compile without writing files")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "Stop at the first failing unit")
	cmd.Flags().StringVar(&f.cacheDir, "cache", "", "Compile cache directory (default: config cache_dir)")
	cmd.Flags().StringArrayVar(&f.flags, "flag", nil, "Override a flag in every permutation as NAME[=bool] (repeatable)")
	cmd.Flags().StringArrayVar(&f.values, "value", nil, "Override a value in every permutation as NAME=TEXT (repeatable)")
}

func (f *buildFlags) options(cfg *config.Config) (batch.Options, error) {
	flags, values, err := config.Overrides(nil, nil, f.flags, f.values)
	if err != nil {
		return batch.Options{}, err
	}
	opts := batch.Options{
		Jobs:      f.jobs,
		OutputDir: f.output,
		DryRun:    f.dryRun,
		FailFast:  f.failFast,
		Flags:     flags,
		Values:    values,
		Logger:    slog.Default(),
	}

	name := cfg.Compiler
	if f.compiler != "" {
		name = f.compiler
	}
	switch name {
	case "", config.CompilerNone:
	case config.CompilerNaga:
		c := shader.NewNagaCompiler()
		c.Logger = slog.Default()
		opts.Compiler = c
	default:
		return batch.Options{}, fmt.Errorf("unknown compiler %q", name)
	}

	dir := f.cacheDir
	if dir == "" && cfg.CacheDir != "" {
		dir = cfg.Resolve(cfg.CacheDir)
	}
	if opts.Compiler != nil && dir != "" {
		opts.Compiler = &cache.Compiler{
			Cache:  cache.New(dir),
			Inner:  opts.Compiler,
			ID:     name,
			Logger: slog.Default(),
		}
	}
	return opts, nil
}

// runBatch builds everything and prints one line per unit.
func runBatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts batch.Options) ([]batch.Result, error) {
	results, err := batch.Run(ctx, cfg, opts)
	out := cmd.OutOrStdout()
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "FAILED"
		}
		fmt.Fprintf(out, "%-6s %s [%s] %s\n", status, r.Shader, r.Permutation, r.Duration.Round(time.Millisecond))
		var ce *shader.CompileError
		if errors.As(r.Err, &ce) {
			fmt.Fprint(cmd.ErrOrStderr(), ce.Report())
		}
	}
	return results, err
}

var buildOpts buildFlags

var buildCmd = cobra.Command{
	Use:   "build",
	Short: "Build every shader of the config file in every permutation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := buildOpts.options(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		_, err = runBatch(ctx, cmd, cfg, opts)
		return err
	},
}

var watchOpts buildFlags

var watchCmd = cobra.Command{
	Use:   "watch",
	Short: "Rebuild the config file's shaders whenever a source changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := watchOpts.options(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		results, err := runBatch(ctx, cmd, cfg, opts)
		if err != nil {
			slog.Warn("initial build failed", "error", err)
		}

		outDir := batch.OutputDir(cfg, opts)
		dirs := watchDirs(cfg, results)
		outputs := outputFiles(cfg, outDir)
		w := &watch.Watcher{
			Recursive: true,
			Ignore:    ignoreDirs(outDir, dirs),
			Skip: func(path string) bool {
				_, ok := outputs[filepath.Clean(path)]
				return ok
			},
			Logger: slog.Default(),
			OnChange: func(ctx context.Context, paths []string) error {
				slog.Info("rebuilding", "changed", paths)
				var err error
				results, err = runBatch(ctx, cmd, cfg, opts)
				return err
			},
			// Includes added since the last build may live elsewhere.
			Refresh: func() []string { return watchDirs(cfg, results) },
		}
		return w.Run(ctx, dirs)
	},
}

// outputFiles lists every file a build of cfg can write into outDir.
func outputFiles(cfg *config.Config, outDir string) map[string]struct{} {
	files := map[string]struct{}{}
	for _, s := range cfg.Shaders {
		for _, p := range cfg.PermutationsFor(s) {
			for _, stage := range []shader.Stage{shader.StageVertex, shader.StageFragment} {
				path := filepath.Clean(batch.OutputPath(outDir, s.Name, p.Name, stage))
				files[path] = struct{}{}
				files[path+".spv"] = struct{}{}
			}
		}
	}
	return files
}

// ignoreDirs ignores the whole output directory unless sources live inside
// it, in which case only the output files themselves are skipped.
func ignoreDirs(outDir string, dirs []string) []string {
	for _, d := range dirs {
		rel, err := filepath.Rel(outDir, d)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return []string{outDir}
}

// watchDirs lists the directories of every shader source and every file
// the last build included.
func watchDirs(cfg *config.Config, results []batch.Result) []string {
	var files []string
	for _, s := range cfg.Shaders {
		p := cfg.Resolve(s.Path)
		files = append(files, p+shader.StageVertex.Ext(), p+shader.StageFragment.Ext())
	}
	for _, r := range results {
		if r.Pair == nil {
			continue
		}
		for _, exp := range []*precompiler.Expansion{r.Pair.Vertex.Expansion, r.Pair.Fragment.Expansion} {
			for _, o := range exp.Origins {
				files = append(files, o.File)
			}
		}
	}
	return watch.Dirs(files...)
}

func init() {
	buildOpts.register(&buildCmd)
	rootCmd.AddCommand(&buildCmd)

	watchOpts.register(&watchCmd)
	rootCmd.AddCommand(&watchCmd)
}
