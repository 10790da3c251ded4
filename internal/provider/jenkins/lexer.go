package jenkins

import (
	"strings"

	"github.com/bgricker/pipeviz/internal/pipeline"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIdent
	tokString
	tokNumber
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokColon
	tokSemicolon
	tokAt
	tokOperator
)

// token is a lexical unit of the Groovy subset used by declarative pipelines.
type token struct {
	kind  tokenKind
	text  string // raw source text
	value string // unquoted value for strings
	line  int
	space bool // preceded by whitespace
}

const operatorChars = "=!<>&|+-*/%?.~^"

type lexer struct {
	src    string
	pos    int
	line   int
	tokens []token
	space  bool
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1}
	if strings.HasPrefix(src, "#!") {
		l.skipLine()
	}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			l.pos++
			l.space = true
		case c == '\n':
			l.emit(tokNewline, "\n", "")
			l.pos++
			l.line++
		case c == '\\' && l.peekAt(1) == '\n':
			l.pos += 2
			l.line++
			l.space = true
		case c == '/' && l.peekAt(1) == '/':
			l.skipLine()
		case c == '/' && l.peekAt(1) == '*':
			if err := l.skipBlockComment(); err != nil {
				return nil, err
			}
		case c == '\'' || c == '"':
			if err := l.lexString(c); err != nil {
				return nil, err
			}
		case isIdentStart(c):
			start := l.pos
			for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
				l.pos++
			}
			l.emit(tokIdent, l.src[start:l.pos], "")
		case c >= '0' && c <= '9':
			start := l.pos
			for l.pos < len(l.src) && (isIdentPart(l.src[l.pos]) || l.src[l.pos] == '.') {
				l.pos++
			}
			l.emit(tokNumber, l.src[start:l.pos], "")
		case strings.IndexByte(operatorChars, c) >= 0:
			start := l.pos
			for l.pos < len(l.src) && strings.IndexByte(operatorChars, l.src[l.pos]) >= 0 {
				if l.src[l.pos] == '/' && (l.peekAt(1) == '/' || l.peekAt(1) == '*') {
					break
				}
				l.pos++
			}
			l.emit(tokOperator, l.src[start:l.pos], "")
		default:
			kind, ok := punctuation[c]
			if !ok {
				return nil, pipeline.Syntax(l.line, "unexpected character %q", c)
			}
			l.emit(kind, string(c), "")
			l.pos++
		}
	}
	l.emit(tokEOF, "", "")
	return l.tokens, nil
}

var punctuation = map[byte]tokenKind{
	'{': tokLBrace,
	'}': tokRBrace,
	'(': tokLParen,
	')': tokRParen,
	'[': tokLBracket,
	']': tokRBracket,
	',': tokComma,
	':': tokColon,
	';': tokSemicolon,
	'@': tokAt,
}

func (l *lexer) emit(kind tokenKind, text, value string) {
	l.tokens = append(l.tokens, token{kind: kind, text: text, value: value, line: l.line, space: l.space})
	l.space = false
}

func (l *lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) skipLine() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func (l *lexer) skipBlockComment() error {
	startLine := l.line
	end := strings.Index(l.src[l.pos+2:], "*/")
	if end < 0 {
		return pipeline.Syntax(startLine, "unterminated block comment")
	}
	body := l.src[l.pos : l.pos+2+end+2]
	l.line += strings.Count(body, "\n")
	l.pos += len(body)
	l.space = true
	return nil
}

func (l *lexer) lexString(quote byte) error {
	startLine := l.line
	start := l.pos
	triple := strings.Repeat(string(quote), 3)

	if strings.HasPrefix(l.src[l.pos:], triple) {
		end := strings.Index(l.src[l.pos+3:], triple)
		if end < 0 {
			return pipeline.Syntax(startLine, "unterminated string")
		}
		body := l.src[l.pos+3 : l.pos+3+end]
		l.pos += 3 + end + 3
		text := l.src[start:l.pos]
		l.line += strings.Count(text, "\n")
		l.tokens = append(l.tokens, token{kind: tokString, text: text, value: unescape(body), line: startLine, space: l.space})
		l.space = false
		return nil
	}

	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.src):
			if l.src[l.pos+1] == '\n' {
				l.line++
			}
			l.pos += 2
			continue
		case c == '\n':
			return pipeline.Syntax(startLine, "unterminated string")
		case c == quote:
			l.pos++
			text := l.src[start:l.pos]
			l.tokens = append(l.tokens, token{kind: tokString, text: text, value: unescape(text[1 : len(text)-1]), line: startLine, space: l.space})
			l.space = false
			return nil
		}
		l.pos++
	}
	return pipeline.Syntax(startLine, "unterminated string")
}

var unescaper = strings.NewReplacer(`\'`, `'`, `\"`, `"`, `\\`, `\`, `\n`, "\n", `\t`, "\t", `\$`, `$`)

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return unescaper.Replace(s)
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// render reproduces token text, keeping the source spacing between tokens.
func render(tokens []token) string {
	var b strings.Builder
	for i, t := range tokens {
		if t.kind == tokNewline || t.kind == tokEOF {
			continue
		}
		if i > 0 && t.space {
			b.WriteByte(' ')
		}
		b.WriteString(t.text)
	}
	return strings.TrimSpace(b.String())
}
