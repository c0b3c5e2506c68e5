package vm

import (
	"fmt"
	"strings"

	"github.com/daimatz/jjvm/pkg/classfile"
)

// Value represents a value on the operand stack, in local variables or in a
// field. Int-category types (int, char, short, byte, boolean) use Int. The
// zero Value is null.
type Value struct {
	Type   classfile.FieldType
	Int    int32
	Long   int64
	Float  float32
	Double float64
	Ref    any
}

// IntValue creates an int Value.
func IntValue(v int32) Value {
	return Value{Type: classfile.Int, Int: v}
}

// TypedIntValue creates an int-category Value of type t, narrowing v to it.
func TypedIntValue(t classfile.BaseType, v int32) Value {
	return Value{Type: t, Int: narrow(t, v)}
}

// BoolValue creates a boolean Value.
func BoolValue(b bool) Value {
	if b {
		return Value{Type: classfile.Boolean, Int: 1}
	}
	return Value{Type: classfile.Boolean}
}

// LongValue creates a long Value.
func LongValue(v int64) Value {
	return Value{Type: classfile.Long, Long: v}
}

// FloatValue creates a float Value.
func FloatValue(v float32) Value {
	return Value{Type: classfile.Float, Float: v}
}

// DoubleValue creates a double Value.
func DoubleValue(v float64) Value {
	return Value{Type: classfile.Double, Double: v}
}

// RefValue creates a reference Value. A nil ref yields null.
func RefValue(ref any) Value {
	switch r := ref.(type) {
	case nil:
		return Value{}
	case *Object:
		if r == nil {
			return Value{}
		}
		return Value{Type: classfile.ObjectType{ClassName: r.ClassName}, Ref: r}
	case *Array:
		if r == nil {
			return Value{}
		}
		return Value{Type: classfile.ArrayType{Elem: r.Elem}, Ref: r}
	case *ClassRef:
		return Value{Type: classfile.ObjectType{ClassName: "java/lang/Class"}, Ref: r}
	default:
		panic(fmt.Sprintf("RefValue: unsupported reference %T", ref))
	}
}

// NullValue returns the null reference.
func NullValue() Value {
	return Value{}
}

// IsNull reports whether v is a null reference.
func (v Value) IsNull() bool {
	return v.Ref == nil && (v.Type == nil || classfile.IsReference(v.Type))
}

// IsWide reports whether v takes two slots.
func (v Value) IsWide() bool {
	return v.Type != nil && classfile.IsWide(v.Type)
}

// isIntCategory reports whether v is carried in the Int payload.
func (v Value) isIntCategory() bool {
	switch v.Type {
	case classfile.Int, classfile.Char, classfile.Short, classfile.Byte, classfile.Boolean:
		return true
	}
	return false
}

func (v Value) String() string {
	switch t := v.Type.(type) {
	case nil:
		return "null"
	case classfile.BaseType:
		switch t {
		case classfile.Long:
			return fmt.Sprintf("%dL", v.Long)
		case classfile.Float:
			return fmt.Sprintf("%vf", v.Float)
		case classfile.Double:
			return fmt.Sprintf("%vd", v.Double)
		case classfile.Boolean:
			return fmt.Sprint(v.Int != 0)
		case classfile.Char:
			return fmt.Sprintf("%q", rune(v.Int))
		}
		return fmt.Sprint(v.Int)
	default:
		if v.Ref == nil {
			return "null"
		}
		if s, ok := GoString(v); ok {
			return fmt.Sprintf("%q", s)
		}
		return fmt.Sprintf("%s@%p", t.Descriptor(), v.Ref)
	}
}

// narrow truncates an int to the width of an int-category type.
func narrow(t classfile.BaseType, v int32) int32 {
	switch t {
	case classfile.Byte:
		return int32(int8(v))
	case classfile.Short:
		return int32(int16(v))
	case classfile.Char:
		return int32(uint16(v))
	case classfile.Boolean:
		return v & 1
	}
	return v
}

// coerce converts v for storage in a slot of the declared type: int-category
// values are narrowed and retagged.
func coerce(declared classfile.FieldType, v Value) Value {
	bt, ok := declared.(classfile.BaseType)
	if !ok || !v.isIntCategory() {
		return v
	}
	switch bt {
	case classfile.Int, classfile.Char, classfile.Short, classfile.Byte, classfile.Boolean:
		return TypedIntValue(bt, v.Int)
	}
	return v
}

// DefaultValue returns the zero value of a field type.
func DefaultValue(t classfile.FieldType) Value {
	switch t {
	case classfile.Long:
		return LongValue(0)
	case classfile.Float:
		return FloatValue(0)
	case classfile.Double:
		return DoubleValue(0)
	case classfile.Int, classfile.Char, classfile.Short, classfile.Byte, classfile.Boolean:
		return Value{Type: t}
	}
	return NullValue()
}

// Object is a heap instance. Native holds a host peer such as the Go string
// behind a java/lang/String.
type Object struct {
	ClassName string
	Fields    map[string]Value
	Native    any
}

// Array is a fixed-size homogeneous array.
type Array struct {
	Elem     classfile.FieldType
	Elements []Value
}

// NewArray allocates an array of n default elements.
func NewArray(elem classfile.FieldType, n int) *Array {
	arr := &Array{Elem: elem, Elements: make([]Value, n)}
	def := DefaultValue(elem)
	for i := range arr.Elements {
		arr.Elements[i] = def
	}
	return arr
}

// ClassRef is a class literal pushed by ldc. The class is resolved lazily.
type ClassRef struct {
	Name string
}

const stringClass = "java/lang/String"

// NewString wraps a Go string in a java/lang/String object.
func NewString(s string) *Object {
	return &Object{ClassName: stringClass, Fields: map[string]Value{}, Native: s}
}

// StringValue returns a reference Value for a new java/lang/String.
func StringValue(s string) Value {
	return RefValue(NewString(s))
}

// GoString extracts the host string from a java/lang/String reference.
func GoString(v Value) (string, bool) {
	obj, ok := v.Ref.(*Object)
	if !ok || obj == nil {
		return "", false
	}
	s, ok := obj.Native.(string)
	return s, ok
}

// NewStringArray builds a String[] from host strings.
func NewStringArray(ss []string) *Array {
	arr := &Array{Elem: classfile.ObjectType{ClassName: stringClass}, Elements: make([]Value, len(ss))}
	for i, s := range ss {
		arr.Elements[i] = StringValue(s)
	}
	return arr
}

func (o *Object) String() string {
	if s, ok := o.Native.(string); ok {
		return s
	}
	var sb strings.Builder
	sb.WriteString(o.ClassName)
	sb.WriteByte('{')
	first := true
	for name, v := range o.Fields {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&sb, "%s=%s", name, v)
	}
	sb.WriteByte('}')
	return sb.String()
}
