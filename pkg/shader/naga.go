package shader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/wgsl"
)

// NagaCompiler compiles WGSL pairs to SPIR-V with the pure Go naga compiler.
// Each stage is compiled as its own module.
type NagaCompiler struct {
	Options naga.CompileOptions
	Logger  *slog.Logger
}

// NewNagaCompiler returns a compiler using naga's default options, which
// include IR validation.
func NewNagaCompiler() *NagaCompiler {
	return &NagaCompiler{Options: naga.DefaultOptions()}
}

func (c *NagaCompiler) Compile(ctx context.Context, vertex, fragment string) (*Program, error) {
	prog := &Program{}
	for _, u := range []struct {
		stage Stage
		src   string
		out   *[]byte
	}{
		{StageVertex, vertex, &prog.Vertex},
		{StageFragment, fragment, &prog.Fragment},
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spv, err := naga.CompileWithOptions(u.src, c.Options)
		if err != nil {
			return nil, nagaFailure(u.stage, err)
		}
		if c.Logger != nil {
			c.Logger.Debug("compiled stage", "stage", u.stage, "spirv_bytes", len(spv))
		}
		*u.out = spv
	}
	return prog, nil
}

// NagaError is a naga failure restated in the
// "Compilation failed: <type>: <line>: <message>" form. Line is 0 when naga
// reported no position, and the line field is then left out of the message.
type NagaError struct {
	Stage Stage
	Phase string
	Line  int
	Err   error
}

func (e *NagaError) Error() string {
	msg := strings.ReplaceAll(e.Err.Error(), "\n", " ")
	if e.Line == 0 {
		return fmt.Sprintf("Compilation failed: %s/%s: %s", e.Stage, e.Phase, msg)
	}
	return fmt.Sprintf("Compilation failed: %s/%s: %d: %s", e.Stage, e.Phase, e.Line, msg)
}

func (e *NagaError) Unwrap() error { return e.Err }

var (
	parseLinePattern  = regexp.MustCompile(`line (\d+), column \d+`)
	sourceLinePattern = regexp.MustCompile(`(?:^|: )(\d+):\d+: `)
)

func nagaFailure(stage Stage, err error) *NagaError {
	e := &NagaError{Stage: stage, Phase: "compile", Err: err}

	var pe wgsl.ParseError
	var se *wgsl.SourceErrors
	var ve *ir.ValidationError
	switch {
	case errors.As(err, &pe):
		e.Phase, e.Line = "parse", pe.Token.Line
	case errors.As(err, &se) && len(*se) > 0:
		e.Phase, e.Line = "lowering", (*se)[0].Span.Start.Line
	case errors.As(err, &ve):
		e.Phase = "validation"
	}
	if e.Line == 0 {
		e.Line = lineFromMessage(err.Error())
	}
	return e
}

// lineFromMessage recovers a line number from naga's formatted messages when
// no typed error carries it. It returns 0 when there is none.
func lineFromMessage(msg string) int {
	for _, re := range []*regexp.Regexp{parseLinePattern, sourceLinePattern} {
		if m := re.FindStringSubmatch(msg); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return 0
}
