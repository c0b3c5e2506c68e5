package classfile

import (
	"fmt"
	"strings"
)

// FieldType is a parsed field descriptor: a BaseType, an ObjectType or an
// ArrayType. All variants are comparable, so == is structural equality.
type FieldType interface {
	// Descriptor renders the type back into descriptor form.
	Descriptor() string
	isFieldType()
}

// BaseType is a primitive type, identified by its descriptor letter.
type BaseType byte

const (
	Byte    BaseType = 'B'
	Char    BaseType = 'C'
	Double  BaseType = 'D'
	Float   BaseType = 'F'
	Int     BaseType = 'I'
	Long    BaseType = 'J'
	Short   BaseType = 'S'
	Boolean BaseType = 'Z'
)

func (t BaseType) Descriptor() string { return string(rune(t)) }
func (t BaseType) isFieldType()       {}

func (t BaseType) String() string {
	switch t {
	case Byte:
		return "byte"
	case Char:
		return "char"
	case Double:
		return "double"
	case Float:
		return "float"
	case Int:
		return "int"
	case Long:
		return "long"
	case Short:
		return "short"
	case Boolean:
		return "boolean"
	}
	return fmt.Sprintf("BaseType(%q)", byte(t))
}

// IsWide reports whether values of the type take two local/stack slots.
func (t BaseType) IsWide() bool { return t == Long || t == Double }

// ObjectType is a class or interface type.
type ObjectType struct {
	ClassName string
}

func (t ObjectType) Descriptor() string { return "L" + t.ClassName + ";" }
func (t ObjectType) isFieldType()       {}
func (t ObjectType) String() string     { return t.ClassName }

// ArrayType is an array of Elem.
type ArrayType struct {
	Elem FieldType
}

func (t ArrayType) Descriptor() string { return "[" + t.Elem.Descriptor() }
func (t ArrayType) isFieldType()       {}
func (t ArrayType) String() string     { return t.Descriptor() }

// IsWide reports whether values of t take two local/stack slots.
func IsWide(t FieldType) bool {
	b, ok := t.(BaseType)
	return ok && b.IsWide()
}

// IsReference reports whether t is an object or array type.
func IsReference(t FieldType) bool {
	switch t.(type) {
	case ObjectType, ArrayType:
		return true
	}
	return false
}

// MethodDescriptor is a parsed method descriptor. Return is nil for void.
// Two descriptors are equal when their raw strings are.
type MethodDescriptor struct {
	Raw    string
	Params []FieldType
	Return FieldType
}

func (md MethodDescriptor) String() string { return md.Raw }

// Equal compares descriptors by their raw form.
func (md MethodDescriptor) Equal(other MethodDescriptor) bool { return md.Raw == other.Raw }

// IsVoid reports whether the method returns nothing.
func (md MethodDescriptor) IsVoid() bool { return md.Return == nil }

// ParseFieldType parses a field descriptor such as "I", "[J" or "Ljava/lang/String;".
func ParseFieldType(desc string) (FieldType, error) {
	p := &descParser{s: desc}
	ft, err := p.fieldType()
	if err != nil {
		return nil, err
	}
	if p.pos != len(desc) {
		return nil, p.errorf("unexpected trailing characters")
	}
	return ft, nil
}

// ParseMethodDescriptor parses a method descriptor such as "(I[Ljava/lang/String;)V".
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	p := &descParser{s: desc}
	md := MethodDescriptor{Raw: desc}
	if p.peek() != '(' {
		return MethodDescriptor{}, p.errorf("expected '('")
	}
	p.pos++
	for p.peek() != ')' {
		if p.pos >= len(desc) {
			return MethodDescriptor{}, p.errorf("unterminated parameter list")
		}
		ft, err := p.fieldType()
		if err != nil {
			return MethodDescriptor{}, err
		}
		md.Params = append(md.Params, ft)
	}
	p.pos++

	if p.peek() == 'V' {
		p.pos++
	} else {
		ft, err := p.fieldType()
		if err != nil {
			return MethodDescriptor{}, err
		}
		md.Return = ft
	}
	if p.pos != len(desc) {
		return MethodDescriptor{}, p.errorf("unexpected trailing characters")
	}
	return md, nil
}

// MustParseMethodDescriptor is like ParseMethodDescriptor but panics on error.
func MustParseMethodDescriptor(desc string) MethodDescriptor {
	md, err := ParseMethodDescriptor(desc)
	if err != nil {
		panic(err)
	}
	return md
}

type descParser struct {
	s   string
	pos int
}

func (p *descParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *descParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %q at %d: %s", ErrInvalidDescriptor, p.s, p.pos, fmt.Sprintf(format, args...))
}

func (p *descParser) fieldType() (FieldType, error) {
	c := p.peek()
	switch c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		p.pos++
		return BaseType(c), nil
	case 'L':
		end := strings.IndexByte(p.s[p.pos:], ';')
		if end == -1 {
			return nil, p.errorf("unterminated class name")
		}
		name := p.s[p.pos+1 : p.pos+end]
		if name == "" {
			return nil, p.errorf("empty class name")
		}
		p.pos += end + 1
		return ObjectType{ClassName: name}, nil
	case '[':
		p.pos++
		elem, err := p.fieldType()
		if err != nil {
			return nil, err
		}
		return ArrayType{Elem: elem}, nil
	case 0:
		return nil, p.errorf("unexpected end of descriptor")
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}
