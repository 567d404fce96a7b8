package token

import "fmt"

type Type int

const (
	None Type = iota
	Sym
	Int
	Hex
	String
	ParO
	ParC
	SqO
	SqC
	BrO
	BrC
	Return
	Typedef
	Struct
	Semicolon
	Plus
	Minus
	Star
	Slash
	Equal
	And
	Comma
	Dot
	VoidKw
	IntKw
	CharKw
	Char
	Enum
	Asm
	If
	Else
	Eq
	Neq
	Not
	For
	While
	Extern
	Shl
	Shr
	Break
	Define
)

// The comma is dumped as COLON; dumps are compared byte for byte by the
// casebooks so the name is kept.
var typeNames = [...]string{
	None:      "NONE",
	Sym:       "SYM",
	Int:       "INT",
	Hex:       "HEX",
	String:    "STRING",
	ParO:      "PARO",
	ParC:      "PARC",
	SqO:       "SQO",
	SqC:       "SQC",
	BrO:       "BRO",
	BrC:       "BRC",
	Return:    "RETURN",
	Typedef:   "TYPEDEF",
	Struct:    "STRUCT",
	Semicolon: "SEMICOLON",
	Plus:      "PLUS",
	Minus:     "MINUS",
	Star:      "STAR",
	Slash:     "SLASH",
	Equal:     "EQUAL",
	And:       "AND",
	Comma:     "COLON",
	Dot:       "DOT",
	VoidKw:    "VOIDKW",
	IntKw:     "INTKW",
	CharKw:    "CHARKW",
	Char:      "CHAR",
	Enum:      "ENUM",
	Asm:       "ASM",
	If:        "IF",
	Else:      "ELSE",
	Eq:        "EQ",
	Neq:       "NEQ",
	Not:       "NOT",
	For:       "FOR",
	While:     "WHILE",
	Extern:    "EXTERN",
	Shl:       "SHL",
	Shr:       "SHR",
	Break:     "BREAK",
	Define:    "DEFINE",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

var KeywordMap = map[string]Type{
	"return":  Return,
	"typedef": Typedef,
	"struct":  Struct,
	"void":    VoidKw,
	"int":     IntKw,
	"char":    CharKw,
	"enum":    Enum,
	"__asm__": Asm,
	"if":      If,
	"else":    Else,
	"for":     For,
	"while":   While,
	"extern":  Extern,
	"break":   Break,
}

// Location is a span of source text on a single row. Line holds the full
// text of that row so diagnostics can be rendered without the source.
type Location struct {
	File string
	Line string
	Row  int
	Col  int
	Len  int
}

func (l Location) IsZero() bool { return l.Row == 0 }

func (l Location) String() string { return fmt.Sprintf("%s:%d:%d", l.File, l.Row, l.Col) }

// Union spans from the start of a to the end of b. When the two sit on
// different rows the span is clamped to the rest of a's row.
func Union(a, b Location) Location {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	u := a
	if a.Row != b.Row {
		u.Len = len(a.Line) - a.Col + 1
		if u.Len < 1 {
			u.Len = 1
		}
		return u
	}
	u.Len = b.Col + b.Len - a.Col
	if u.Len < a.Len {
		u.Len = a.Len
	}
	return u
}

type Token struct {
	Type  Type
	Value string
	Loc   Location
	// Num is the decoded value of INT, HEX and CHAR literals.
	Num int
}

// Dump renders the token the way the tok module prints it.
func (t Token) Dump() string {
	return fmt.Sprintf("%s '%s' @ %d:%d", t.Type, t.Value, t.Loc.Row, t.Loc.Col)
}
