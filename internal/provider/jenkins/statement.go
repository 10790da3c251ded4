package jenkins

import (
	"github.com/bgricker/pipeviz/internal/pipeline"
)

// statement is one Groovy command-style call: a name, its arguments and an
// optional trailing closure. This is enough structure for the declarative
// pipeline grammar without interpreting general Groovy.
type statement struct {
	name string
	line int
	// call holds the tokens between the parentheses of name(...).
	call   []token
	parens bool
	// rest holds any tokens after the call up to the end of the line.
	rest  []token
	block []*statement
	// closure is true when the statement ends with a { ... } block.
	closure bool
}

type statementParser struct {
	toks []token
	pos  int
}

func parseStatements(tokens []token) ([]*statement, error) {
	p := &statementParser{toks: tokens}
	return p.parseBlock(false, 0)
}

func (p *statementParser) peek() token {
	return p.toks[p.pos]
}

func (p *statementParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *statementParser) parseBlock(closing bool, openLine int) ([]*statement, error) {
	var out []*statement
	for {
		t := p.peek()
		switch t.kind {
		case tokEOF:
			if closing {
				return nil, pipeline.Syntax(openLine, "unclosed '{'")
			}
			return out, nil
		case tokRBrace:
			if !closing {
				return nil, pipeline.Syntax(t.line, "unexpected '}'")
			}
			p.next()
			return out, nil
		case tokNewline, tokSemicolon:
			p.next()
		case tokAt:
			p.skipAnnotation()
		default:
			s, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
}

func (p *statementParser) skipAnnotation() {
	p.next()
	if p.peek().kind == tokIdent {
		p.next()
	}
	if p.peek().kind == tokLParen {
		_, _ = p.group()
	}
}

func (p *statementParser) parseStatement() (*statement, error) {
	first := p.peek()
	s := &statement{line: first.line}

	switch first.kind {
	case tokIdent:
		p.next()
		s.name = first.text
		if p.peek().kind == tokLParen {
			inner, err := p.group()
			if err != nil {
				return nil, err
			}
			s.call = inner[1 : len(inner)-1]
			s.parens = true
		}
	case tokRParen, tokRBracket:
		return nil, pipeline.Syntax(first.line, "unexpected %q", first.text)
	}

	for {
		t := p.peek()
		switch t.kind {
		case tokNewline, tokSemicolon, tokEOF, tokRBrace:
			return s, nil
		case tokLBrace:
			p.next()
			block, err := p.parseBlock(true, t.line)
			if err != nil {
				return nil, err
			}
			s.block = block
			s.closure = true
			return s, nil
		case tokLParen, tokLBracket:
			group, err := p.group()
			if err != nil {
				return nil, err
			}
			s.rest = append(s.rest, group...)
		case tokRParen, tokRBracket:
			return nil, pipeline.Syntax(t.line, "unexpected %q", t.text)
		default:
			s.rest = append(s.rest, p.next())
		}
	}
}

// group consumes a balanced (...) or [...] run including its delimiters.
// Newlines inside the group are dropped.
func (p *statementParser) group() ([]token, error) {
	open := p.next()
	closers := []tokenKind{closerOf(open.kind)}
	out := []token{open}
	for len(closers) > 0 {
		t := p.next()
		switch t.kind {
		case tokEOF:
			return nil, pipeline.Syntax(open.line, "unclosed %q", open.text)
		case tokNewline:
			if p.peek().kind != tokEOF {
				p.toks[p.pos].space = true
			}
			continue
		case tokLParen, tokLBracket, tokLBrace:
			closers = append(closers, closerOf(t.kind))
		case tokRParen, tokRBracket, tokRBrace:
			if t.kind != closers[len(closers)-1] {
				return nil, pipeline.Syntax(t.line, "unexpected %q", t.text)
			}
			closers = closers[:len(closers)-1]
		}
		out = append(out, t)
	}
	return out, nil
}

func closerOf(kind tokenKind) tokenKind {
	switch kind {
	case tokLParen:
		return tokRParen
	case tokLBracket:
		return tokRBracket
	default:
		return tokRBrace
	}
}

// args returns the statement's argument tokens, whether or not they were parenthesised.
func (s *statement) args() []token {
	if s.parens {
		return s.call
	}
	return s.rest
}

// text renders the statement back to a single line of source.
func (s *statement) text() string {
	var toks []token
	if s.name != "" {
		toks = append(toks, token{kind: tokIdent, text: s.name})
	}
	if s.parens {
		toks = append(toks, token{kind: tokLParen, text: "("})
		toks = append(toks, s.call...)
		toks = append(toks, token{kind: tokRParen, text: ")"})
	}
	toks = append(toks, s.rest...)
	out := render(toks)
	if s.closure {
		out += " {...}"
	}
	return out
}

// argument is a positional or named argument.
type argument struct {
	key    string
	tokens []token
}

// value returns the unquoted string for a single string literal, or the rendered tokens.
func (a argument) value() string {
	if len(a.tokens) == 1 && a.tokens[0].kind == tokString {
		return a.tokens[0].value
	}
	return render(a.tokens)
}

func (a argument) literal() bool {
	return len(a.tokens) == 1 && a.tokens[0].kind == tokString
}

// arguments splits the argument tokens on top-level commas.
func (s *statement) arguments() []argument {
	toks := s.args()
	var out []argument
	var cur []token
	depth := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		a := argument{tokens: cur}
		if len(cur) >= 2 && (cur[0].kind == tokIdent || cur[0].kind == tokString) && cur[1].kind == tokColon {
			a.key = cur[0].text
			if cur[0].kind == tokString {
				a.key = cur[0].value
			}
			a.tokens = cur[2:]
		}
		out = append(out, a)
		cur = nil
	}
	for _, t := range toks {
		switch t.kind {
		case tokLParen, tokLBracket, tokLBrace:
			depth++
		case tokRParen, tokRBracket, tokRBrace:
			depth--
		case tokComma:
			if depth == 0 {
				flush()
				continue
			}
		}
		cur = append(cur, t)
	}
	flush()
	return out
}

// named returns the named argument with the given key.
func (s *statement) named(key string) (argument, bool) {
	for _, a := range s.arguments() {
		if a.key == key {
			return a, true
		}
	}
	return argument{}, false
}

// positional returns the first positional argument.
func (s *statement) positional() (argument, bool) {
	for _, a := range s.arguments() {
		if a.key == "" {
			return a, true
		}
	}
	return argument{}, false
}

// find returns the first child statement with the given name.
func (s *statement) find(name string) *statement {
	for _, child := range s.block {
		if child.name == name {
			return child
		}
	}
	return nil
}
