package precompiler

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// The tokenizer works one line at a time. Each line is split into words and
// whitespace runs; directive keywords, negation markers and #{name} value
// references become typed tokens and everything else stays Text. A Text token
// holding the line terminator closes every line.

const lineTerminator = "\n"

type TokenKind int

const (
	TokenText TokenKind = iota
	TokenIf
	TokenElseIf
	TokenElse
	TokenEndIf
	TokenNot
	TokenInclude
	TokenVariable
)

var tokenKindNames = [...]string{
	TokenText:     "Text",
	TokenIf:       "If",
	TokenElseIf:   "ElseIf",
	TokenElse:     "Else",
	TokenEndIf:    "EndIf",
	TokenNot:      "Not",
	TokenInclude:  "Include",
	TokenVariable: "Variable",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// conditional reports whether the kind opens, continues or closes an #if region.
func (k TokenKind) conditional() bool {
	switch k {
	case TokenIf, TokenElseIf, TokenElse, TokenEndIf:
		return true
	}
	return false
}

// Token is a single lexical unit of a source line. For TokenVariable, Text is
// the referenced value name without the #{ } markup.
type Token struct {
	Kind TokenKind
	Text string
	Line int
	File string
}

func (t Token) String() string {
	return fmt.Sprintf("%s:%d %s %q", t.File, t.Line, t.Kind, t.Text)
}

// eol reports whether t is the synthetic line terminator token.
func (t Token) eol() bool {
	return t.Kind == TokenText && t.Text == lineTerminator
}

// space reports whether t is a Text token made only of blanks.
func (t Token) space() bool {
	return t.Kind == TokenText && t.Text != "" && !t.eol() && strings.TrimSpace(t.Text) == ""
}

var keywords = map[string]TokenKind{
	"#if":      TokenIf,
	"#elseif":  TokenElseIf,
	"#else":    TokenElse,
	"#endif":   TokenEndIf,
	"#include": TokenInclude,
}

var variablePattern = regexp.MustCompile(`#\{(\w+?)\}`)

// Tokenize splits one source line (without its terminator) into tokens.
// It never fails: input that matches no pattern becomes Text.
func Tokenize(line string, lineNumber int, file string) []Token {
	var toks []Token
	emit := func(kind TokenKind, text string) {
		toks = append(toks, Token{Kind: kind, Text: text, Line: lineNumber, File: file})
	}

	var (
		leading    = true  // only whitespace seen so far on this line
		afterCond  = false // previous word was #if or #elseif
		afterToken = false // previous word was a keyword or negation marker
		indent     string
	)
	for _, w := range splitWords(line) {
		if w.space {
			switch {
			case afterToken:
				// separator between a directive and its argument
			case leading:
				indent = w.text
			default:
				emit(TokenText, w.text)
			}
			continue
		}

		if kind, ok := keywords[w.text]; ok {
			if indent != "" && !kind.conditional() {
				emit(TokenText, indent)
			}
			indent, leading = "", false
			emit(kind, w.text)
			afterCond = kind == TokenIf || kind == TokenElseIf
			afterToken = true
			continue
		}
		if indent != "" {
			emit(TokenText, indent)
			indent = ""
		}
		leading = false

		word := w.text
		if afterCond {
			afterCond = false
			if word == "not" {
				emit(TokenNot, word)
				continue
			}
			if rest, ok := strings.CutPrefix(word, "!"); ok {
				emit(TokenNot, "!")
				if rest == "" {
					continue
				}
				word = rest
			}
		}
		afterToken = false
		tokenizeWord(word, emit)
	}
	if indent != "" {
		emit(TokenText, indent)
	}
	emit(TokenText, lineTerminator)
	return toks
}

// tokenizeWord emits Text and Variable tokens for a single word, splitting it
// around every #{name} reference it contains.
func tokenizeWord(word string, emit func(TokenKind, string)) {
	start := 0
	for _, m := range variablePattern.FindAllStringSubmatchIndex(word, -1) {
		if m[0] > start {
			emit(TokenText, word[start:m[0]])
		}
		emit(TokenVariable, word[m[2]:m[3]])
		start = m[1]
	}
	if start < len(word) {
		emit(TokenText, word[start:])
	}
}

// TokenizeSource tokenizes a whole file. Lines are numbered from 1 and CRLF
// terminators are normalized to LF.
func TokenizeSource(src, file string) []Token {
	src = strings.ReplaceAll(src, "\r\n", lineTerminator)
	if src == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(src, lineTerminator), lineTerminator)
	toks := make([]Token, 0, len(lines)*4)
	for i, line := range lines {
		toks = append(toks, Tokenize(line, i+1, file)...)
	}
	return toks
}

type word struct {
	text  string
	space bool
}

// splitWords cuts a line into alternating runs of whitespace and non-whitespace.
func splitWords(line string) []word {
	var words []word
	start := 0
	for start < len(line) {
		r, _ := utf8.DecodeRuneInString(line[start:])
		space := unicode.IsSpace(r)
		end := start
		for end < len(line) {
			r, size := utf8.DecodeRuneInString(line[end:])
			if unicode.IsSpace(r) != space {
				break
			}
			end += size
		}
		words = append(words, word{text: line[start:end], space: space})
		start = end
	}
	return words
}
