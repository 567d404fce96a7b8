package lexer

import (
	"slices"
	"strconv"
	"strings"

	"github.com/xplshn/simplec/pkg/token"
	"github.com/xplshn/simplec/pkg/util"
)

type macro struct {
	name string
	body []token.Token
}

type cursor struct {
	macro int
	index int
}

// State is everything the parser needs to rewind the lexer.
type State struct {
	pos       int
	row       int
	col       int
	lineStart int

	peeked     token.Token
	hasPeek    bool
	pending    token.Token
	hasPending bool
	last       token.Token

	macros    []macro
	expansion []cursor
}

type Lexer struct {
	file   string
	source string
	st     State
}

func NewLexer(file, source string) *Lexer {
	return &Lexer{file: file, source: source, st: State{row: 1, col: 1}}
}

func (l *Lexer) Snapshot() State {
	s := l.st
	s.macros = slices.Clip(s.macros)
	s.expansion = slices.Clone(s.expansion)
	return s
}

func (l *Lexer) Restore(s State) {
	l.st = s
	l.st.expansion = slices.Clone(s.expansion)
}

// Last returns the most recently consumed token.
func (l *Lexer) Last() token.Token { return l.st.last }

func (l *Lexer) Next() (token.Token, error) {
	if l.st.hasPeek {
		l.st.hasPeek = false
		l.st.last = l.st.peeked
		return l.st.peeked, nil
	}
	tok, err := l.next()
	if err != nil {
		return tok, err
	}
	l.st.last = tok
	return tok, nil
}

func (l *Lexer) Peek() (token.Token, error) {
	if !l.st.hasPeek {
		tok, err := l.next()
		if err != nil {
			return tok, err
		}
		l.st.peeked, l.st.hasPeek = tok, true
	}
	return l.st.peeked, nil
}

func (l *Lexer) Expect(t token.Type) (token.Token, error) {
	tok, err := l.Next()
	if err != nil {
		return tok, err
	}
	if tok.Type != t {
		return tok, util.Errorf(tok.Loc, "expected '%s' found '%s'", t, tok.Type)
	}
	return tok, nil
}

// Accept consumes the next token when it has type t.
func (l *Lexer) Accept(t token.Type) (bool, error) {
	tok, err := l.Peek()
	if err != nil {
		return false, err
	}
	if tok.Type != t {
		return false, nil
	}
	_, err = l.Next()
	return true, err
}

// Tokens drains the lexer. It is used by the tok dump.
func (l *Lexer) Tokens() ([]token.Token, error) {
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return toks, err
		}
		if tok.Type == token.None {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

func (l *Lexer) next() (token.Token, error) {
	for {
		if n := len(l.st.expansion); n > 0 {
			cur := &l.st.expansion[n-1]
			body := l.st.macros[cur.macro].body
			if cur.index >= len(body) {
				l.st.expansion = l.st.expansion[:n-1]
				continue
			}
			tok := body[cur.index]
			cur.index++
			if l.expand(tok) {
				continue
			}
			return tok, nil
		}

		var tok token.Token
		if l.st.hasPending {
			tok, l.st.hasPending = l.st.pending, false
		} else {
			var err error
			if tok, err = l.scan(); err != nil {
				return tok, err
			}
		}
		if tok.Type == token.Define {
			if err := l.define(); err != nil {
				return tok, err
			}
			continue
		}
		if l.expand(tok) {
			continue
		}
		return tok, nil
	}
}

func (l *Lexer) lookup(name string) int {
	for i := len(l.st.macros) - 1; i >= 0; i-- {
		if l.st.macros[i].name == name {
			return i
		}
	}
	return -1
}

func (l *Lexer) expand(tok token.Token) bool {
	if tok.Type != token.Sym {
		return false
	}
	m := l.lookup(tok.Value)
	if m < 0 {
		return false
	}
	for _, c := range l.st.expansion {
		if c.macro == m {
			return false
		}
	}
	l.st.expansion = append(l.st.expansion, cursor{macro: m})
	return true
}

// define reads the rest of a #define row. The first token of the next row
// is kept pending and returned by the following call.
func (l *Lexer) define() error {
	name, err := l.scan()
	if err != nil {
		return err
	}
	if name.Type != token.Sym {
		return util.Errorf(name.Loc, "expected '%s' found '%s'", token.Sym, name.Type)
	}
	var body []token.Token
	for {
		tok, err := l.scan()
		if err != nil {
			return err
		}
		if tok.Type == token.None || tok.Loc.Row != name.Loc.Row {
			l.st.pending, l.st.hasPending = tok, true
			break
		}
		body = append(body, tok)
	}
	body = l.substitute(body, 0)
	for _, tok := range body {
		if tok.Type == token.Sym && tok.Value == name.Value {
			return util.Errorf(tok.Loc, "invalid recursive macro")
		}
	}
	l.st.macros = append(l.st.macros, macro{name: name.Value, body: body})
	return nil
}

func (l *Lexer) substitute(body []token.Token, depth int) []token.Token {
	util.Assert(depth <= len(l.st.macros), "macro substitution does not terminate")
	out := make([]token.Token, 0, len(body))
	for _, tok := range body {
		if m := l.lookup(tok.Value); tok.Type == token.Sym && m >= 0 {
			out = append(out, l.substitute(l.st.macros[m].body, depth+1)...)
			continue
		}
		out = append(out, tok)
	}
	return out
}

func (l *Lexer) peekByte(off int) byte {
	if l.st.pos+off >= len(l.source) {
		return 0
	}
	return l.source[l.st.pos+off]
}

func (l *Lexer) advance() {
	if l.st.pos >= len(l.source) {
		return
	}
	if l.source[l.st.pos] == '\n' {
		l.st.row++
		l.st.col = 1
		l.st.pos++
		l.st.lineStart = l.st.pos
		return
	}
	l.st.pos++
	l.st.col++
}

func (l *Lexer) line() string {
	end := strings.IndexByte(l.source[l.st.lineStart:], '\n')
	if end < 0 {
		return l.source[l.st.lineStart:]
	}
	return strings.TrimSuffix(l.source[l.st.lineStart:l.st.lineStart+end], "\r")
}

func (l *Lexer) here(n int) token.Location {
	return token.Location{File: l.file, Line: l.line(), Row: l.st.row, Col: l.st.col, Len: n}
}

func (l *Lexer) skipSpace() error {
	for {
		switch c := l.peekByte(0); {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peekByte(1) == '/':
			for l.st.pos < len(l.source) && l.peekByte(0) != '\n' {
				l.advance()
			}
		case c == '/' && l.peekByte(1) == '*':
			loc := l.here(2)
			l.advance()
			l.advance()
			for !(l.peekByte(0) == '*' && l.peekByte(1) == '/') {
				if l.st.pos >= len(l.source) {
					return util.Errorf(loc, "unterminated comment")
				}
				l.advance()
			}
			l.advance()
			l.advance()
		default:
			return nil
		}
	}
}

var punct = map[byte]token.Type{
	'(': token.ParO, ')': token.ParC, '[': token.SqO, ']': token.SqC,
	'{': token.BrO, '}': token.BrC, ';': token.Semicolon, '+': token.Plus,
	'-': token.Minus, '*': token.Star, '/': token.Slash, '&': token.And,
	',': token.Comma, '.': token.Dot, '=': token.Equal, '!': token.Not,
}

func isAlpha(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isHex(c byte) bool   { return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F' }

// take consumes n bytes as a token of type t.
func (l *Lexer) take(t token.Type, n int) token.Token {
	loc := l.here(n)
	value := l.source[l.st.pos : l.st.pos+n]
	for i := 0; i < n; i++ {
		l.advance()
	}
	return token.Token{Type: t, Value: value, Loc: loc}
}

func (l *Lexer) span(n int) int {
	for isAlpha(l.peekByte(n)) || isDigit(l.peekByte(n)) {
		n++
	}
	return n
}

func (l *Lexer) scan() (token.Token, error) {
	if err := l.skipSpace(); err != nil {
		return token.Token{}, err
	}
	c := l.peekByte(0)
	switch {
	case l.st.pos >= len(l.source):
		return token.Token{Type: token.None, Loc: l.here(1)}, nil

	case c == '#':
		tok := l.take(token.Define, l.span(1))
		if tok.Value != "#define" {
			return tok, util.Errorf(tok.Loc, "invalid directive")
		}
		return tok, nil

	case c == '<' || c == '>':
		if l.peekByte(1) != c {
			return token.Token{}, util.Errorf(l.here(1), "unknown char: '%c'", c)
		}
		if c == '<' {
			return l.take(token.Shl, 2), nil
		}
		return l.take(token.Shr, 2), nil

	case (c == '=' || c == '!') && l.peekByte(1) == '=':
		if c == '=' {
			return l.take(token.Eq, 2), nil
		}
		return l.take(token.Neq, 2), nil

	case c == '"':
		n := 1
		for l.peekByte(n) != '"' {
			switch l.peekByte(n) {
			case 0, '\n':
				return token.Token{}, util.Errorf(l.here(n), "unterminated string")
			case '\\':
				n++
			}
			n++
		}
		return l.take(token.String, n+1), nil

	case c == '\'':
		return l.char()

	case c == '0' && (l.peekByte(1) == 'x' || l.peekByte(1) == 'X'):
		n := 2
		for isHex(l.peekByte(n)) {
			n++
		}
		if isAlpha(l.peekByte(n)) {
			return token.Token{}, util.Errorf(l.here(n), "invalid integer")
		}
		tok := l.take(token.Hex, n)
		if n-2 != 2 && n-2 != 4 {
			return tok, util.Errorf(tok.Loc, "HEX can be 1 or 2 bytes")
		}
		v, _ := strconv.ParseInt(tok.Value[2:], 16, 32)
		tok.Num = int(v)
		return tok, nil

	case isDigit(c):
		n := 1
		for isDigit(l.peekByte(n)) {
			n++
		}
		if isAlpha(l.peekByte(n)) {
			return token.Token{}, util.Errorf(l.here(n), "invalid integer")
		}
		tok := l.take(token.Int, n)
		v, err := strconv.Atoi(tok.Value)
		if err != nil {
			return tok, util.Errorf(tok.Loc, "invalid integer")
		}
		if v > 0xFFFF {
			return tok, util.Errorf(tok.Loc, "INT does not fit in 2 bytes")
		}
		tok.Num = v
		return tok, nil

	case isAlpha(c):
		tok := l.take(token.Sym, l.span(1))
		if kw, ok := token.KeywordMap[tok.Value]; ok {
			tok.Type = kw
		}
		return tok, nil
	}

	if t, ok := punct[c]; ok {
		return l.take(t, 1), nil
	}
	return token.Token{}, util.Errorf(l.here(1), "unknown char: '%c'", c)
}

var escapes = map[byte]int{'n': '\n', 't': '\t', 'r': '\r', '0': 0, '\\': '\\', '\'': '\'', '"': '"'}

func (l *Lexer) char() (token.Token, error) {
	n, v := 2, int(l.peekByte(1))
	if l.peekByte(1) == '\\' {
		e, ok := escapes[l.peekByte(2)]
		if !ok {
			return token.Token{}, util.Errorf(l.here(3), "CHAR can have only one char")
		}
		n, v = 3, e
	}
	if v == 0 && n == 2 || l.peekByte(n) != '\'' {
		return token.Token{}, util.Errorf(l.here(n+1), "CHAR can have only one char")
	}
	tok := l.take(token.Char, n+1)
	tok.Num = v
	return tok, nil
}
