package precompiler

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// DefaultMaxIncludeDepth bounds include nesting so that circular includes end
// in ErrIncludeDepth rather than exhausting the stack.
const DefaultMaxIncludeDepth = 64

// Origin is the file and 1-based line an output line was produced from.
type Origin struct {
	File string
	Line int
}

func (o Origin) String() string { return fmt.Sprintf("%s:%d", o.File, o.Line) }

// Expansion is rendered output together with its source map.
type Expansion struct {
	Text string
	// Origins holds one entry per output line: Origins[i] is where line i+1
	// of Text came from.
	Origins []Origin
	// Flags lists, sorted, every flag referenced by the expanded file or
	// by a file it included.
	Flags []string
}

// Origin returns the source location of the 1-based output line n.
func (e *Expansion) Origin(n int) (Origin, bool) {
	if e == nil || n < 1 || n > len(e.Origins) {
		return Origin{}, false
	}
	return e.Origins[n-1], true
}

// Renderer serializes a Document, inlining includes with the same flags and
// values.
type Renderer struct {
	Loader   Loader
	Flags    Flags
	Values   Values
	MaxDepth int
	Logger   *slog.Logger
}

func (r *Renderer) Render(doc *Document) (*Expansion, error) {
	var w lineWriter
	w.reference(doc)
	if err := r.renderNodes(&w, doc.Nodes, 0); err != nil {
		return nil, err
	}
	return w.finish(), nil
}

func (r *Renderer) renderNodes(w *lineWriter, nodes []Node, depth int) error {
	for _, n := range nodes {
		switch t := n.(type) {
		case *TextNode:
			for _, seg := range t.Segments {
				if seg.Var == "" {
					w.write(seg.Text, seg.File, seg.Line)
					continue
				}
				v, ok := r.Values[seg.Var]
				if !ok {
					return &Error{Kind: ErrUndefinedValue, File: seg.File, Line: seg.Line, Name: seg.Var,
						Msg: fmt.Sprintf("undefined value %q", seg.Var)}
				}
				w.write(v, seg.File, seg.Line)
			}
		case *ConditionalNode:
			if t.Selected < 0 {
				break
			}
			if err := r.renderNodes(w, t.Branches[t.Selected].Body, depth); err != nil {
				return err
			}
		case *IncludeNode:
			if err := r.renderInclude(w, t, depth); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unhandled node type: %T", n)
		}
	}
	return nil
}

func (r *Renderer) renderInclude(w *lineWriter, n *IncludeNode, depth int) error {
	limit := r.MaxDepth
	if limit <= 0 {
		limit = DefaultMaxIncludeDepth
	}
	if depth >= limit {
		return &Error{Kind: ErrIncludeDepth, File: n.Base, Line: n.Line,
			Msg: fmt.Sprintf("including %q exceeds the maximum include depth of %d (circular include?)", n.Path, limit)}
	}

	path := ResolveInclude(n.Path, n.Base)
	loader := r.Loader
	if loader == nil {
		loader = FileLoader{}
	}
	if r.Logger != nil {
		r.Logger.Debug("including file", "path", path, "from", n.Base, "line", n.Line, "depth", depth+1)
	}
	src, err := loader.Load(path)
	if err != nil {
		return &Error{Kind: ErrIncludeRead, File: n.Base, Line: n.Line,
			Msg: fmt.Sprintf("reading include %q", path), Err: err}
	}
	doc, err := Parse(TokenizeSource(src, path), path, r.Flags)
	if err != nil {
		return err
	}
	w.reference(doc)
	return r.renderNodes(w, doc.Nodes, depth+1)
}

// lineWriter accumulates output and records the origin of each line: the
// location of the first text written on it.
type lineWriter struct {
	b       strings.Builder
	origins []Origin
	cur     Origin
	open    bool
	flags   map[string]struct{}
}

func (w *lineWriter) reference(doc *Document) {
	if w.flags == nil {
		w.flags = map[string]struct{}{}
	}
	for _, name := range ReferencedFlags(doc) {
		w.flags[name] = struct{}{}
	}
}

func (w *lineWriter) write(s, file string, line int) {
	for s != "" {
		if !w.open {
			w.cur = Origin{File: file, Line: line}
			w.open = true
		}
		i := strings.Index(s, lineTerminator)
		if i < 0 {
			w.b.WriteString(s)
			return
		}
		w.b.WriteString(s[:i+len(lineTerminator)])
		w.origins = append(w.origins, w.cur)
		w.open = false
		s = s[i+len(lineTerminator):]
	}
}

func (w *lineWriter) finish() *Expansion {
	if w.open {
		w.origins = append(w.origins, w.cur)
	}
	flags := make([]string, 0, len(w.flags))
	for name := range w.flags {
		flags = append(flags, name)
	}
	sort.Strings(flags)
	return &Expansion{Text: w.b.String(), Origins: w.origins, Flags: flags}
}
