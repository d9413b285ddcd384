package precompiler

import (
	"regexp"
	"strconv"
	"strings"
)

// compileMessagePattern matches "Compilation failed: <type>: <line>: ..." as
// produced by the shader compiler collaborator.
var compileMessagePattern = regexp.MustCompile(`Compilation failed: ([^:\n]+): (\d+):`)

// CompileMessage is the type label and 1-based line parsed from a compiler
// error message.
type CompileMessage struct {
	Type string
	Line int
}

// ParseCompileMessage extracts the type label and line number from msg. It
// reports false when msg does not have the expected shape.
func ParseCompileMessage(msg string) (CompileMessage, bool) {
	m := compileMessagePattern.FindStringSubmatch(msg)
	if m == nil {
		return CompileMessage{}, false
	}
	line, err := strconv.Atoi(m[2])
	if err != nil {
		return CompileMessage{}, false
	}
	return CompileMessage{Type: strings.TrimSpace(m[1]), Line: line}, true
}

// Diagnostic is the line context recovered for a compiler failure. When
// HasLine is false no other field is set.
type Diagnostic struct {
	HasLine bool
	Line    int
	Type    string

	VertexLine   string
	FragmentLine string

	// Set only by MapExpansions.
	VertexOrigin    Origin
	FragmentOrigin  Origin
	RawVertexLine   string
	RawFragmentLine string
}

// MapCompileError looks up the line named by a compiler error message in both
// expanded sources. It never fails: a message without a line gives an empty
// Diagnostic and an out of range line gives empty line text.
func MapCompileError(msg, vertex, fragment string) Diagnostic {
	cm, ok := ParseCompileMessage(msg)
	if !ok {
		return Diagnostic{}
	}
	return Diagnostic{
		HasLine:      true,
		Line:         cm.Line,
		Type:         cm.Type,
		VertexLine:   sourceLine(vertex, cm.Line),
		FragmentLine: sourceLine(fragment, cm.Line),
	}
}

// Unit is one precompiled shader stage: its raw text, the file it was read
// from and its expansion.
type Unit struct {
	File      string
	Raw       string
	Expansion *Expansion
}

// MapExpansions is MapCompileError plus the source map: for each unit it also
// reports which file and line produced the failing output line and, when that
// line came from the unit's own file, the raw pre-expansion text of it.
func MapExpansions(msg string, vertex, fragment Unit) Diagnostic {
	d := MapCompileError(msg, vertex.text(), fragment.text())
	if !d.HasLine {
		return d
	}
	d.VertexOrigin, d.RawVertexLine = vertex.origin(d.Line)
	d.FragmentOrigin, d.RawFragmentLine = fragment.origin(d.Line)
	return d
}

func (u Unit) text() string {
	if u.Expansion == nil {
		return ""
	}
	return u.Expansion.Text
}

func (u Unit) origin(line int) (Origin, string) {
	o, ok := u.Expansion.Origin(line)
	if !ok {
		return Origin{}, ""
	}
	if o.File != u.File {
		return o, ""
	}
	return o, sourceLine(u.Raw, o.Line)
}

// sourceLine returns the 1-based line n of src, or "" when out of range.
func sourceLine(src string, n int) string {
	if n < 1 {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", lineTerminator), lineTerminator)
	if n > len(lines) {
		return ""
	}
	return lines[n-1]
}
