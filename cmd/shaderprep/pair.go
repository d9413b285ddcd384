package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/shaderprep/pkg/shader"
	"github.com/spf13/cobra"
)

var pairOpts sessionFlags

var pairCmd = cobra.Command{
	Use:   "pair [path]",
	Short: "Precompile path.vert and path.frag with the same flags and values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := pairOpts.session()
		if err != nil {
			return err
		}
		pair, err := shader.LoadPair(shaderPath(args[0]), session)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, src := range []shader.Source{pair.Vertex, pair.Fragment} {
			fmt.Fprintf(out, "// ---- %s (%s) ----\n", src.Stage, src.File)
			fmt.Fprint(out, src.Expanded())
		}
		return nil
	},
}

var (
	compileOpts   sessionFlags
	compileOutput string
)

var compileCmd = cobra.Command{
	Use:   "compile [path]",
	Short: "Precompile a shader pair and compile it to SPIR-V",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := compileOpts.session()
		if err != nil {
			return err
		}
		pair, err := shader.LoadPair(shaderPath(args[0]), session)
		if err != nil {
			return err
		}

		compiler := shader.NewNagaCompiler()
		compiler.Logger = session.Logger
		prog, err := shader.Build(context.Background(), compiler, pair)
		if err != nil {
			var ce *shader.CompileError
			if errors.As(err, &ce) {
				fmt.Fprint(cmd.ErrOrStderr(), ce.Report())
			}
			return err
		}

		dir := compileOutput
		if dir == "" {
			dir = filepath.Dir(pair.Path)
		}
		base := filepath.Join(dir, filepath.Base(pair.Path))
		for _, out := range []struct {
			stage shader.Stage
			data  []byte
		}{
			{shader.StageVertex, prog.Vertex},
			{shader.StageFragment, prog.Fragment},
		} {
			path := base + out.stage.Ext() + ".spv"
			if err := os.WriteFile(path, out.data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(out.data))
		}
		return nil
	},
}

// shaderPath accepts a pair path with or without a stage extension.
func shaderPath(arg string) string {
	for _, ext := range []string{shader.StageVertex.Ext(), shader.StageFragment.Ext()} {
		if strings.HasSuffix(arg, ext) {
			return strings.TrimSuffix(arg, ext)
		}
	}
	return arg
}

func init() {
	pairOpts.register(&pairCmd)
	rootCmd.AddCommand(&pairCmd)

	compileOpts.register(&compileCmd)
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "Directory for the .spv files (default: next to the sources)")
	rootCmd.AddCommand(&compileCmd)
}
