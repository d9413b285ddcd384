package precompiler

import "strings"

// Flags drive conditional inclusion; Values are substituted at #{name} sites.
// Both are read only for the duration of a precompile call, including every
// nested include.
type (
	Flags  map[string]bool
	Values map[string]string
)

// Node is any AST node in a parsed shader source.
type Node interface {
	node()
}

// Document is the root node produced by Parse.
type Document struct {
	File  string
	Nodes []Node
}

func (*Document) node() {}

// Segment is one piece of a text span: either literal text or a value
// reference resolved during rendering.
type Segment struct {
	Text string
	// Var is the referenced value name; when set, Text is unused.
	Var  string
	Line int
	File string
}

// TextNode is a run of literal text with any #{name} references folded in as
// segments.
type TextNode struct {
	Segments []Segment
}

func (*TextNode) node() {}

// Raw returns the text with value references written back in #{name} form.
func (n *TextNode) Raw() string {
	var b strings.Builder
	for _, seg := range n.Segments {
		if seg.Var != "" {
			b.WriteString("#{" + seg.Var + "}")
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

// IncludeNode references another file. Path is resolved against the directory
// of Base (the including file) unless it is absolute. The file is only read
// when the node is rendered.
type IncludeNode struct {
	Path string
	Base string
	Line int
}

func (*IncludeNode) node() {}

// Branch is one arm of a conditional. Cond is the flag value resolved at
// parse time, already inverted when Negated is set. An #else arm has no Flag
// and a true Cond.
type Branch struct {
	Flag    string
	Negated bool
	Cond    bool
	Line    int
	Body    []Node
}

// ConditionalNode is an #if/#elseif/#else/#endif region. Selected is the index
// of the first branch whose condition held, or -1 when none did.
type ConditionalNode struct {
	Branches []Branch
	Selected int
	File     string
	Line     int
}

func (*ConditionalNode) node() {}
