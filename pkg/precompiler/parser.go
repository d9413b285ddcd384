package precompiler

// Parse builds a Document from the tokens of one file. Every #if/#elseif
// condition is resolved against flags while parsing, including conditions in
// branches that will never be rendered, so a missing flag fails the parse
// wherever it appears. Includes are only recorded, never read.
func Parse(toks []Token, file string, flags Flags) (*Document, error) {
	p := &parser{toks: toks, flags: flags}
	nodes, stop, err := p.parseNodes()
	if err != nil {
		return nil, err
	}
	if stop != nil {
		return nil, errorAt(ErrStructuralImbalance, *stop, "%s without matching #if", stop.Text)
	}
	return &Document{File: file, Nodes: nodes}, nil
}

type parser struct {
	toks  []Token
	i     int
	flags Flags
}

func (p *parser) next() (Token, bool) {
	if p.i >= len(p.toks) {
		return Token{}, false
	}
	t := p.toks[p.i]
	p.i++
	return t, true
}

func (p *parser) peek() (Token, bool) {
	if p.i >= len(p.toks) {
		return Token{}, false
	}
	return p.toks[p.i], true
}

// parseNodes parses until the end of input or until an #elseif, #else or
// #endif at the current nesting level, which is returned as stop. Nested
// regions are consumed by parseConditional, so their terminators never end
// the outer body.
func (p *parser) parseNodes() (nodes []Node, stop *Token, err error) {
	var text *TextNode
	flush := func() {
		if text != nil {
			nodes = append(nodes, text)
			text = nil
		}
	}
	appendSeg := func(seg Segment) {
		if text == nil {
			text = &TextNode{}
		}
		text.Segments = append(text.Segments, seg)
	}

	for {
		tok, ok := p.next()
		if !ok {
			flush()
			return nodes, nil, nil
		}
		switch tok.Kind {
		case TokenText, TokenNot:
			appendSeg(Segment{Text: tok.Text, Line: tok.Line, File: tok.File})
		case TokenVariable:
			appendSeg(Segment{Var: tok.Text, Line: tok.Line, File: tok.File})
		case TokenInclude:
			flush()
			n, err := p.parseInclude(tok)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, n)
		case TokenIf:
			flush()
			n, err := p.parseConditional(tok)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, n)
		case TokenElseIf, TokenElse, TokenEndIf:
			flush()
			return nodes, &tok, nil
		}
	}
}

func (p *parser) parseConditional(open Token) (*ConditionalNode, error) {
	n := &ConditionalNode{Selected: -1, File: open.File, Line: open.Line}
	br, err := p.condition(open)
	if err != nil {
		return nil, err
	}
	for {
		body, stop, err := p.parseNodes()
		if err != nil {
			return nil, err
		}
		br.Body = body
		if br.Cond && n.Selected < 0 {
			n.Selected = len(n.Branches)
		}
		n.Branches = append(n.Branches, br)

		if stop == nil {
			return nil, errorAt(ErrStructuralImbalance, open, "#if without matching #endif")
		}
		switch stop.Kind {
		case TokenElseIf:
			if n.hasElse() {
				return nil, errorAt(ErrStructuralImbalance, *stop, "#elseif after #else")
			}
			if br, err = p.condition(*stop); err != nil {
				return nil, err
			}
		case TokenElse:
			if n.hasElse() {
				return nil, errorAt(ErrStructuralImbalance, *stop, "duplicate #else")
			}
			if err := p.endOfDirective(*stop); err != nil {
				return nil, err
			}
			br = Branch{Cond: true, Line: stop.Line}
		case TokenEndIf:
			if err := p.endOfDirective(*stop); err != nil {
				return nil, err
			}
			return n, nil
		}
	}
}

func (n *ConditionalNode) hasElse() bool {
	k := len(n.Branches)
	return k > 0 && n.Branches[k-1].Flag == ""
}

// condition reads the optional negation and the flag name following an #if or
// #elseif and resolves the flag immediately.
func (p *parser) condition(dir Token) (Branch, error) {
	br := Branch{Line: dir.Line}
	tok, ok := p.peek()
	if ok && tok.Kind == TokenNot && tok.Line == dir.Line {
		br.Negated = true
		p.i++
		tok, ok = p.peek()
	}
	if !ok || tok.Kind != TokenText || tok.Line != dir.Line || tok.eol() || tok.space() {
		return br, errorAt(ErrUnexpectedToken, dir, "a flag name must follow %s", dir.Text)
	}
	p.i++
	br.Flag = tok.Text

	v, ok := p.flags[br.Flag]
	if !ok {
		e := errorAt(ErrUndefinedFlag, tok, "undefined flag %q", br.Flag)
		e.Name = br.Flag
		return br, e
	}
	br.Cond = v != br.Negated
	return br, p.endOfDirective(dir)
}

// endOfDirective consumes the remainder of a conditional directive's line.
// Only blanks may follow; the line terminator belongs to the directive.
func (p *parser) endOfDirective(dir Token) error {
	for {
		tok, ok := p.next()
		if !ok || tok.Line != dir.Line {
			if ok {
				p.i--
			}
			return nil
		}
		if tok.eol() {
			return nil
		}
		if tok.space() {
			continue
		}
		if tok.Kind == TokenVariable {
			return errorAt(ErrUnexpectedToken, tok, "unexpected #{%s} after %s", tok.Text, dir.Text)
		}
		return errorAt(ErrUnexpectedToken, tok, "unexpected %q after %s", tok.Text, dir.Text)
	}
}

func (p *parser) parseInclude(dir Token) (*IncludeNode, error) {
	tok, ok := p.peek()
	if !ok || tok.Kind != TokenText || tok.Line != dir.Line || tok.eol() || tok.space() {
		return nil, errorAt(ErrMissingIncludePath, dir, "a file path must follow the include statement")
	}
	p.i++
	return &IncludeNode{Path: tok.Text, Base: dir.File, Line: dir.Line}, nil
}
