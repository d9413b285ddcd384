package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/neurodesk/shaderprep/pkg/config"
	"github.com/neurodesk/shaderprep/pkg/precompiler"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = cobra.Command{
	Use:           "shaderprep",
	Short:         "Precompile shader sources: conditionals, includes and value substitution",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// sessionFlags are the options shared by the commands that expand a single
// file or pair.
type sessionFlags struct {
	flags       []string
	values      []string
	permutation string
	maxDepth    int
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.flags, "flag", nil, "Set a flag as NAME, NAME=true or NAME=false (repeatable)")
	cmd.Flags().StringArrayVar(&f.values, "value", nil, "Set a value as NAME=TEXT (repeatable)")
	cmd.Flags().StringVarP(&f.permutation, "permutation", "p", "", "Start from a permutation of the config file")
	cmd.Flags().IntVar(&f.maxDepth, "max-include-depth", precompiler.DefaultMaxIncludeDepth, "Maximum include nesting")
}

// session builds the precompiler session: config flags and values, then the
// selected permutation, then command line overrides.
func (f *sessionFlags) session() (*precompiler.Session, error) {
	flags, values := precompiler.Flags{}, precompiler.Values{}
	if configPath != "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		flags, values = cfg.Flags, cfg.Values
		if f.permutation != "" {
			perm, ok := cfg.Permutation(f.permutation)
			if !ok {
				return nil, fmt.Errorf("unknown permutation %q", f.permutation)
			}
			flags, values = perm.Merge(flags, values)
		}
	} else if f.permutation != "" {
		return nil, fmt.Errorf("--permutation needs --config")
	}

	flags, values, err := config.Overrides(flags, values, f.flags, f.values)
	if err != nil {
		return nil, err
	}
	return &precompiler.Session{
		Flags:           flags,
		Values:          values,
		MaxIncludeDepth: f.maxDepth,
		Logger:          slog.Default(),
	}, nil
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("no config file given (use --config)")
	}
	cfg, err := config.Load(configPath, slog.Default())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a build configuration (.yaml, .toml or .star)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
