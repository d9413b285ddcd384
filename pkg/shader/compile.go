package shader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neurodesk/shaderprep/pkg/precompiler"
)

// ErrCompileFailed matches every *CompileError.
var ErrCompileFailed = errors.New("shader compilation failed")

// Program is the compiled artifact of a pair.
type Program struct {
	Path     string
	Vertex   []byte
	Fragment []byte
}

// Compiler turns expanded vertex and fragment sources into a program. On
// failure the error message should have the form
// "Compilation failed: <type>: <line>: <message>" so that the failing line
// can be located in the expanded sources.
type Compiler interface {
	Compile(ctx context.Context, vertex, fragment string) (*Program, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, vertex, fragment string) (*Program, error)

func (f CompilerFunc) Compile(ctx context.Context, vertex, fragment string) (*Program, error) {
	return f(ctx, vertex, fragment)
}

// CompileError is a compiler rejection of a precompiled pair. It carries the
// raw and expanded sources and whatever line context could be recovered from
// the compiler message.
type CompileError struct {
	Path             string
	RawVertex        string
	RawFragment      string
	ExpandedVertex   string
	ExpandedFragment string
	// Diagnostic.HasLine is false when the message named no line.
	Diagnostic precompiler.Diagnostic
	Err        error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compiling shader %s: %v", e.Path, e.Err)
	if d := e.Diagnostic; d.HasLine {
		fmt.Fprintf(&b, " (line %d: vertex %q, fragment %q)", d.Line, d.VertexLine, d.FragmentLine)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

func (e *CompileError) Is(target error) bool { return target == ErrCompileFailed }

// Report renders the failure with the offending lines and where they came
// from, for display on a terminal.
func (e *CompileError) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "shader %s failed to compile: %v\n", e.Path, e.Err)
	d := e.Diagnostic
	if !d.HasLine {
		b.WriteString("  no line information available\n")
		return b.String()
	}
	fmt.Fprintf(&b, "  error type: %s\n", d.Type)
	writeLine := func(stage Stage, text string, origin precompiler.Origin, raw string) {
		fmt.Fprintf(&b, "  %s line %d: %s\n", stage, d.Line, text)
		if origin.File != "" {
			fmt.Fprintf(&b, "    from %s", origin)
			if raw != "" {
				fmt.Fprintf(&b, ": %s", raw)
			}
			b.WriteString("\n")
		}
	}
	writeLine(StageVertex, d.VertexLine, d.VertexOrigin, d.RawVertexLine)
	writeLine(StageFragment, d.FragmentLine, d.FragmentOrigin, d.RawFragmentLine)
	return b.String()
}

// Build compiles a precompiled pair. Compiler failures are returned as
// *CompileError and are not retried: the same inputs fail the same way.
func Build(ctx context.Context, c Compiler, p *Pair) (*Program, error) {
	vertex, fragment := p.Vertex.Expanded(), p.Fragment.Expanded()
	prog, err := c.Compile(ctx, vertex, fragment)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, &CompileError{
			Path:             p.Path,
			RawVertex:        p.Vertex.Raw,
			RawFragment:      p.Fragment.Raw,
			ExpandedVertex:   vertex,
			ExpandedFragment: fragment,
			Diagnostic:       precompiler.MapExpansions(err.Error(), p.Vertex.unit(), p.Fragment.unit()),
			Err:              err,
		}
	}
	if prog == nil {
		prog = &Program{}
	}
	if prog.Path == "" {
		prog.Path = p.Path
	}
	return prog, nil
}
