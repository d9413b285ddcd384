package main

import (
	"fmt"
	"io"
	"os"

	"github.com/neurodesk/shaderprep/pkg/precompiler"
	"github.com/spf13/cobra"
)

var (
	expandOpts   sessionFlags
	expandOutput string
	expandMap    bool
)

var expandCmd = cobra.Command{
	Use:   "expand [file]",
	Short: "Precompile a single shader source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := expandOpts.session()
		if err != nil {
			return err
		}
		exp, err := session.ExpandFile(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if expandOutput != "" {
			f, err := os.Create(expandOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		if expandMap {
			return writeMapped(out, exp)
		}
		_, err = io.WriteString(out, exp.Text)
		return err
	},
}

// writeMapped prefixes every output line with the location it came from.
func writeMapped(w io.Writer, exp *precompiler.Expansion) error {
	for i, line := range splitLines(exp.Text) {
		o, _ := exp.Origin(i + 1)
		if _, err := fmt.Fprintf(w, "%s\t%s\n", o, line); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	expandOpts.register(&expandCmd)
	expandCmd.Flags().StringVarP(&expandOutput, "output", "o", "", "Write the result to a file instead of stdout")
	expandCmd.Flags().BoolVar(&expandMap, "map", false, "Prefix each line with its source file and line")
	rootCmd.AddCommand(&expandCmd)
}
