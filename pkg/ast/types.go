package ast

import (
	"fmt"
	"strings"

	"github.com/xplshn/simplec/pkg/token"
)

type Kind int

const (
	TyNone Kind = iota
	TyVoid
	TyChar
	TyInt
	TyFunc
	TyPtr
	TyParam
	TyArray
	TyAlias
	TyFieldList
	TyStruct
	TyEnum
)

// LenKind tells how the length of an array type was written.
type LenKind int

const (
	NotArray LenKind = iota
	LenUnset
	LenNum
	LenExpr
)

type Field struct {
	Typ  *Type
	Name token.Token
}

// Type is shared by pointer between declarations; the checker resolves
// aliases in place and nothing mutates a type after that.
type Type struct {
	Kind Kind
	Elem *Type // pointee or array element

	LenKind LenKind
	Len     int

	Ret    *Type
	Params []*Type // FUNC and PARAM

	Name     token.Token // alias, struct and enum names
	Target   *Type       // resolved alias
	IsStruct bool        // alias written as 'struct X'

	Fields  []Field
	Members []token.Token
}

var (
	TypeVoid = &Type{Kind: TyVoid}
	TypeChar = &Type{Kind: TyChar}
	TypeInt  = &Type{Kind: TyInt}
)

func PointerTo(elem *Type) *Type { return &Type{Kind: TyPtr, Elem: elem} }

func ArrayOf(elem *Type, kind LenKind, n int) *Type {
	return &Type{Kind: TyArray, Elem: elem, LenKind: kind, Len: n}
}

func NewAlias(name token.Token, isStruct bool) *Type {
	return &Type{Kind: TyAlias, Name: name, IsStruct: isStruct}
}

func NewFunc(ret *Type, params []*Type) *Type { return &Type{Kind: TyFunc, Ret: ret, Params: params} }

func NewParamList(params []*Type) *Type { return &Type{Kind: TyParam, Params: params} }

// Unalias follows resolved aliases down to a concrete type.
func (t *Type) Unalias() *Type {
	for t != nil && t.Kind == TyAlias {
		if t.Target == nil {
			return t
		}
		t = t.Target
	}
	return t
}

func (t *Type) Is(k Kind) bool { return t != nil && t.Unalias().Kind == k }

// IsIntLike reports types that live in a word and support arithmetic.
func (t *Type) IsIntLike() bool { return t.Is(TyInt) || t.Is(TyChar) || t.Is(TyEnum) }

// IsComplete reports whether a struct has its field list.
func (t *Type) IsComplete() bool { return len(t.Fields) > 0 }

func (t *Type) Size() int {
	if t == nil {
		return 0
	}
	switch t.Kind {
	case TyChar:
		return 1
	case TyInt, TyPtr, TyEnum:
		return 2
	case TyFunc:
		return t.Ret.Size()
	case TyArray:
		if t.LenKind == LenNum {
			return t.Elem.Size() * t.Len
		}
		return 0
	case TyAlias:
		return t.Target.Size()
	case TyStruct, TyFieldList:
		size, _ := t.layout(-1)
		return size
	}
	return 0
}

// Aligned is the number of stack bytes a value of t occupies.
func (t *Type) Aligned() int { return Align(t.Size()) }

func Align(n int) int { return n + n%2 }

// layout walks the fields with the packing rule: two consecutive chars
// share a word and a lone char is padded to one. It returns the total size
// and the offset of field i.
func (t *Type) layout(i int) (int, int) {
	size, at := 0, -1
	fs := t.Fields
	for k := 0; k < len(fs); {
		if fs[k].Typ.Is(TyChar) {
			if k == i {
				at = size
			}
			if k+1 < len(fs) && fs[k+1].Typ.Is(TyChar) {
				if k+1 == i {
					at = size + 1
				}
				k += 2
			} else {
				k++
			}
			size += 2
			continue
		}
		if k == i {
			at = size
		}
		size += fs[k].Typ.Aligned()
		k++
	}
	return size, at
}

// Field returns the field called name and its byte offset.
func (t *Type) Field(name string) (*Field, int) {
	s := t.Unalias()
	for i := range s.Fields {
		if s.Fields[i].Name.Value == name {
			_, off := s.layout(i)
			return &s.Fields[i], off
		}
	}
	return nil, 0
}

// Groups splits the fields of a struct into the words they occupy. A
// group is one or two field indexes.
func (t *Type) Groups() [][]int {
	var groups [][]int
	fs := t.Unalias().Fields
	for k := 0; k < len(fs); {
		if fs[k].Typ.Is(TyChar) && k+1 < len(fs) && fs[k+1].Typ.Is(TyChar) {
			groups = append(groups, []int{k, k + 1})
			k += 2
			continue
		}
		groups = append(groups, []int{k})
		k++
	}
	return groups
}

func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	a, b = a.Unalias(), b.Unalias()
	if a == b {
		return true
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case TyNone, TyVoid, TyChar, TyInt:
		return true
	case TyPtr:
		return Equal(a.Elem, b.Elem)
	case TyArray:
		return Equal(a.Elem, b.Elem) && a.LenKind == b.LenKind
	case TyFunc:
		return Equal(a.Ret, b.Ret) && equalList(a.Params, b.Params)
	case TyParam:
		return equalList(a.Params, b.Params)
	case TyAlias:
		return a.Name.Value == b.Name.Value
	case TyStruct, TyFieldList:
		if a.Name.Type != token.None && a.Name.Value == b.Name.Value {
			return true
		}
		if len(a.Fields) != len(b.Fields) || len(a.Fields) == 0 {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name.Value != b.Fields[i].Name.Value || !Equal(a.Fields[i].Typ, b.Fields[i].Typ) {
				return false
			}
		}
		return true
	case TyEnum:
		if len(a.Members) != len(b.Members) {
			return false
		}
		for i := range a.Members {
			if a.Members[i].Value != b.Members[i].Value {
				return false
			}
		}
		return true
	}
	return false
}

func equalList(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Expandable reports whether a value of type src may be stored where dst
// is expected.
func Expandable(dst, src *Type) bool {
	dst, src = dst.Unalias(), src.Unalias()
	switch {
	case dst.Kind == TyInt && (src.Kind == TyChar || src.Kind == TyEnum):
		return true
	case dst.Kind == TyArray && src.Kind == TyArray:
		if !Equal(dst.Elem, src.Elem) || src.LenKind != LenNum {
			return false
		}
		return dst.LenKind == LenUnset || dst.LenKind == LenNum && dst.Len >= src.Len
	case dst.Kind == TyPtr && src.Kind == TyArray:
		return Equal(dst.Elem, src.Elem)
	}
	return Equal(dst, src)
}

// Castable extends Expandable with the conversions only an explicit cast
// may perform.
func Castable(dst, src *Type) bool {
	if Expandable(dst, src) {
		return true
	}
	d, s := dst.Unalias(), src.Unalias()
	switch {
	case d.Kind == TyChar && s.Kind == TyInt:
		return true
	case d.Kind == TyPtr && s.Kind == TyPtr:
		return true
	}
	return false
}

func (t *Type) String() string {
	if t == nil {
		return "NULL"
	}
	switch t.Kind {
	case TyNone:
		return "NONE"
	case TyVoid:
		return "VOID"
	case TyChar:
		return "CHAR"
	case TyInt:
		return "INT"
	case TyFunc:
		if len(t.Params) == 0 {
			return fmt.Sprintf("FUNC {%s}", t.Ret)
		}
		return fmt.Sprintf("FUNC {%s %s}", t.Ret, paramString(t.Params))
	case TyPtr:
		if t.Elem.Kind == TyAlias {
			return "PTR " + t.Elem.Name.Value
		}
		return "PTR " + t.Elem.String()
	case TyParam:
		return paramString(t.Params)
	case TyArray:
		switch t.LenKind {
		case LenUnset:
			return t.Elem.String() + "[]"
		case LenNum:
			return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
		case LenExpr:
			return t.Elem.String() + "[...]"
		}
		return t.Elem.String()
	case TyAlias:
		target := "NULL"
		if t.Target != nil {
			target = "..."
		}
		suffix := ""
		if t.IsStruct {
			suffix = " struct"
		}
		return fmt.Sprintf("ALIAS {%s %s%s}", t.Name.Value, target, suffix)
	case TyFieldList:
		return fieldString(t.Fields)
	case TyStruct:
		named := t.Name.Type != token.None
		switch {
		case len(t.Fields) > 0 && named:
			return fmt.Sprintf("STRUCT {%s %s}", t.Name.Value, fieldString(t.Fields))
		case len(t.Fields) > 0:
			return fmt.Sprintf("STRUCT {%s}", fieldString(t.Fields))
		case named:
			return fmt.Sprintf("STRUCT {%s}", t.Name.Value)
		}
		return "STRUCT {}"
	case TyEnum:
		return enumString(t.Members)
	}
	return "NONE"
}

func paramString(ps []*Type) string {
	if len(ps) == 1 {
		return fmt.Sprintf("PARAM {%s}", ps[0])
	}
	return fmt.Sprintf("PARAM {%s %s}", ps[0], paramString(ps[1:]))
}

func fieldString(fs []Field) string {
	if len(fs) == 0 {
		return "FIELDLIST {}"
	}
	if len(fs) == 1 {
		return fmt.Sprintf("FIELDLIST {%s %s}", fs[0].Typ, fs[0].Name.Value)
	}
	return fmt.Sprintf("FIELDLIST {%s %s %s}", fs[0].Typ, fs[0].Name.Value, fieldString(fs[1:]))
}

func enumString(ms []token.Token) string {
	var sb strings.Builder
	for i, m := range ms {
		sb.WriteString("ENUM {" + m.Value)
		if i < len(ms)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString(strings.Repeat("}", len(ms)))
	return sb.String()
}
