package precompiler

import (
	"bytes"
	"fmt"
	"sort"
)

type Visitor interface {
	Visit(n Node) error
}

// Walk visits n and then its children depth first, including the bodies of
// branches that were not selected.
func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		return err
	}
	switch t := n.(type) {
	case *Document:
		for _, c := range t.Nodes {
			if err := Walk(v, c); err != nil {
				return err
			}
		}
	case *ConditionalNode:
		for _, b := range t.Branches {
			for _, c := range b.Body {
				if err := Walk(v, c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// ReferencedFlags returns the sorted, de-duplicated flag names used by the
// conditionals of doc. Included files are not followed.
func ReferencedFlags(doc *Document) []string {
	seen := map[string]struct{}{}
	_ = Walk(VisitorFunc(func(n Node) error {
		if c, ok := n.(*ConditionalNode); ok {
			for _, b := range c.Branches {
				if b.Flag != "" {
					seen[b.Flag] = struct{}{}
				}
			}
		}
		return nil
	}), doc)
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pretty returns a line-oriented string representation of the AST.
func Pretty(doc *Document) string {
	var buf bytes.Buffer
	ppNode(&buf, 0, doc)
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	ind := func() {
		for i := 0; i < indent; i++ {
			buf.WriteByte(' ')
		}
	}
	switch t := n.(type) {
	case *Document:
		ind()
		fmt.Fprintf(buf, "Document(%s)\n", t.File)
		for _, c := range t.Nodes {
			ppNode(buf, indent+2, c)
		}
	case *TextNode:
		ind()
		fmt.Fprintf(buf, "Text(%q)\n", t.Raw())
	case *IncludeNode:
		ind()
		fmt.Fprintf(buf, "Include(%q)\n", t.Path)
	case *ConditionalNode:
		for i, b := range t.Branches {
			ind()
			mark := ""
			if i == t.Selected {
				mark = " *"
			}
			switch {
			case i == 0:
				fmt.Fprintf(buf, "If(%s%s = %t)%s\n", negation(b), b.Flag, b.Cond, mark)
			case b.Flag == "":
				fmt.Fprintf(buf, "Else%s\n", mark)
			default:
				fmt.Fprintf(buf, "ElseIf(%s%s = %t)%s\n", negation(b), b.Flag, b.Cond, mark)
			}
			for _, c := range b.Body {
				ppNode(buf, indent+2, c)
			}
		}
	}
}

func negation(b Branch) string {
	if b.Negated {
		return "!"
	}
	return ""
}
