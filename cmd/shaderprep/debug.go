package main

import (
	"fmt"
	"strings"

	"github.com/neurodesk/shaderprep/pkg/precompiler"
	"github.com/spf13/cobra"
)

var tokensOpts sessionFlags

var tokensCmd = cobra.Command{
	Use:   "tokens [file]",
	Short: "Print the tokens of a shader source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := tokensOpts.session()
		if err != nil {
			return err
		}
		src, err := session.ReadFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, tok := range precompiler.TokenizeSource(src, args[0]) {
			fmt.Fprintf(out, "%4d %-8s %q\n", tok.Line, tok.Kind, tok.Text)
		}
		return nil
	},
}

var astOpts sessionFlags

var astCmd = cobra.Command{
	Use:   "ast [file]",
	Short: "Print the parsed directive tree of a shader source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := astOpts.session()
		if err != nil {
			return err
		}
		src, err := session.ReadFile(args[0])
		if err != nil {
			return err
		}
		doc, err := session.Parse(src, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), precompiler.Pretty(doc))
		if flags := precompiler.ReferencedFlags(doc); len(flags) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "flags: %s\n", strings.Join(flags, ", "))
		}
		return nil
	},
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func init() {
	tokensOpts.register(&tokensCmd)
	rootCmd.AddCommand(&tokensCmd)

	astOpts.register(&astCmd)
	rootCmd.AddCommand(&astCmd)
}
