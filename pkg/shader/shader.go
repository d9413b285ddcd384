// Package shader precompiles vertex/fragment shader pairs and hands them to a
// shader compiler. A logical shader path names two files, path+".vert" and
// path+".frag", which are expanded with the same flags and values.
package shader

import (
	"fmt"

	"github.com/neurodesk/shaderprep/pkg/precompiler"
)

// Stage identifies which programmable stage a source unit belongs to.
type Stage int

const (
	// StageVertex is the vertex stage, read from path+".vert".
	StageVertex Stage = iota

	// StageFragment is the fragment stage, read from path+".frag".
	StageFragment
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Ext returns the file extension of the stage, including the dot.
func (s Stage) Ext() string {
	if s == StageFragment {
		return ".frag"
	}
	return ".vert"
}

// Source is one stage of a pair: the raw file contents and their expansion.
type Source struct {
	Stage     Stage
	File      string
	Raw       string
	Expansion *precompiler.Expansion
}

// Expanded returns the precompiled text handed to the compiler.
func (s Source) Expanded() string {
	if s.Expansion == nil {
		return ""
	}
	return s.Expansion.Text
}

func (s Source) unit() precompiler.Unit {
	return precompiler.Unit{File: s.File, Raw: s.Raw, Expansion: s.Expansion}
}

// Pair is a precompiled vertex/fragment shader pair.
type Pair struct {
	Path     string
	Vertex   Source
	Fragment Source
}

// LoadPair reads and precompiles path+".vert" and path+".frag" with the
// flags, values and loader of the session.
func LoadPair(path string, s *precompiler.Session) (*Pair, error) {
	p := &Pair{Path: path}
	var err error
	if p.Vertex, err = loadStage(path, StageVertex, s); err != nil {
		return nil, err
	}
	if p.Fragment, err = loadStage(path, StageFragment, s); err != nil {
		return nil, err
	}
	return p, nil
}

func loadStage(path string, stage Stage, s *precompiler.Session) (Source, error) {
	file := path + stage.Ext()
	raw, err := s.ReadFile(file)
	if err != nil {
		return Source{}, fmt.Errorf("loading %s shader: %w", stage, err)
	}
	exp, err := s.Expand(raw, file)
	if err != nil {
		return Source{}, fmt.Errorf("precompiling %s shader: %w", stage, err)
	}
	return Source{Stage: stage, File: file, Raw: raw, Expansion: exp}, nil
}
