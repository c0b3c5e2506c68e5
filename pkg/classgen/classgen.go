// Package classgen assembles class files in memory.
package classgen

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/daimatz/jjvm/pkg/classfile"
)

// Builder accumulates a class file. Constant pool entries are interned, so
// asking for the same constant twice returns the same index.
type Builder struct {
	pool      [][]byte
	poolCount uint16
	interned  map[string]uint16

	access     classfile.AccessFlags
	thisClass  uint16
	superClass uint16
	interfaces []uint16
	fields     []*Member
	methods    []*Member
	attributes []attribute

	major, minor uint16
}

type attribute struct {
	name uint16
	body []byte
}

// New starts a public class named name extending super. An empty super
// produces a root class with super_class 0.
func New(name, super string) *Builder {
	b := &Builder{
		poolCount: 1,
		interned:  make(map[string]uint16),
		access:    classfile.AccPublic | classfile.AccSuper,
		major:     52,
	}
	b.thisClass = b.Class(name)
	if super != "" {
		b.superClass = b.Class(super)
	}
	return b
}

// Access replaces the class access flags.
func (b *Builder) Access(flags classfile.AccessFlags) *Builder {
	b.access = flags
	return b
}

// Version sets the class file version.
func (b *Builder) Version(major, minor uint16) *Builder {
	b.major, b.minor = major, minor
	return b
}

// Implements adds a direct superinterface.
func (b *Builder) Implements(names ...string) *Builder {
	for _, n := range names {
		b.interfaces = append(b.interfaces, b.Class(n))
	}
	return b
}

// SourceFile adds a SourceFile attribute.
func (b *Builder) SourceFile(name string) *Builder {
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, b.Utf8(name))
	return b.Attribute(classfile.AttrSourceFile, body)
}

// Attribute adds a class attribute with an arbitrary body.
func (b *Builder) Attribute(name string, body []byte) *Builder {
	b.attributes = append(b.attributes, attribute{name: b.Utf8(name), body: body})
	return b
}

func (b *Builder) intern(key string, slots uint16, entry []byte) uint16 {
	if idx, ok := b.interned[key]; ok {
		return idx
	}
	idx := b.poolCount
	b.pool = append(b.pool, entry)
	b.poolCount += slots
	b.interned[key] = idx
	return idx
}

func u2(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }

// Utf8 interns a CONSTANT_Utf8.
func (b *Builder) Utf8(s string) uint16 {
	enc := encodeModifiedUtf8(s)
	entry := append([]byte{byte(classfile.TagUtf8)}, u2(uint16(len(enc)))...)
	return b.intern("u:"+s, 1, append(entry, enc...))
}

// Class interns a CONSTANT_Class.
func (b *Builder) Class(name string) uint16 {
	n := b.Utf8(name)
	return b.intern("c:"+name, 1, append([]byte{byte(classfile.TagClass)}, u2(n)...))
}

// String interns a CONSTANT_String.
func (b *Builder) String(s string) uint16 {
	n := b.Utf8(s)
	return b.intern("s:"+s, 1, append([]byte{byte(classfile.TagString)}, u2(n)...))
}

// Integer interns a CONSTANT_Integer.
func (b *Builder) Integer(v int32) uint16 {
	entry := binary.BigEndian.AppendUint32([]byte{byte(classfile.TagInteger)}, uint32(v))
	return b.intern(fmt.Sprintf("i:%d", v), 1, entry)
}

// Float interns a CONSTANT_Float.
func (b *Builder) Float(v float32) uint16 {
	bits := math.Float32bits(v)
	entry := binary.BigEndian.AppendUint32([]byte{byte(classfile.TagFloat)}, bits)
	return b.intern(fmt.Sprintf("f:%x", bits), 1, entry)
}

// Long interns a CONSTANT_Long, which takes two pool slots.
func (b *Builder) Long(v int64) uint16 {
	entry := binary.BigEndian.AppendUint64([]byte{byte(classfile.TagLong)}, uint64(v))
	return b.intern(fmt.Sprintf("j:%d", v), 2, entry)
}

// Double interns a CONSTANT_Double, which takes two pool slots.
func (b *Builder) Double(v float64) uint16 {
	bits := math.Float64bits(v)
	entry := binary.BigEndian.AppendUint64([]byte{byte(classfile.TagDouble)}, bits)
	return b.intern(fmt.Sprintf("d:%x", bits), 2, entry)
}

// NameAndType interns a CONSTANT_NameAndType.
func (b *Builder) NameAndType(name, descriptor string) uint16 {
	n, d := b.Utf8(name), b.Utf8(descriptor)
	entry := append(append([]byte{byte(classfile.TagNameAndType)}, u2(n)...), u2(d)...)
	return b.intern("nt:"+name+":"+descriptor, 1, entry)
}

func (b *Builder) memberRef(tag classfile.ConstantTag, class, name, descriptor string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, descriptor)
	entry := append(append([]byte{byte(tag)}, u2(c)...), u2(nt)...)
	return b.intern(fmt.Sprintf("%d:%s.%s:%s", tag, class, name, descriptor), 1, entry)
}

// Fieldref interns a CONSTANT_Fieldref.
func (b *Builder) Fieldref(class, name, descriptor string) uint16 {
	return b.memberRef(classfile.TagFieldref, class, name, descriptor)
}

// Methodref interns a CONSTANT_Methodref.
func (b *Builder) Methodref(class, name, descriptor string) uint16 {
	return b.memberRef(classfile.TagMethodref, class, name, descriptor)
}

// InterfaceMethodref interns a CONSTANT_InterfaceMethodref.
func (b *Builder) InterfaceMethodref(class, name, descriptor string) uint16 {
	return b.memberRef(classfile.TagInterfaceMethodref, class, name, descriptor)
}

// Member is a field or method under construction.
type Member struct {
	b          *Builder
	access     classfile.AccessFlags
	name       uint16
	descriptor uint16
	attributes []attribute
}

// Field adds a field.
func (b *Builder) Field(access classfile.AccessFlags, name, descriptor string) *Member {
	m := &Member{b: b, access: access, name: b.Utf8(name), descriptor: b.Utf8(descriptor)}
	b.fields = append(b.fields, m)
	return m
}

// Method adds a method. Native and abstract methods get no Code.
func (b *Builder) Method(access classfile.AccessFlags, name, descriptor string) *Member {
	m := &Member{b: b, access: access, name: b.Utf8(name), descriptor: b.Utf8(descriptor)}
	b.methods = append(b.methods, m)
	return m
}

// ConstantValue attaches a ConstantValue attribute pointing at pool index idx.
func (m *Member) ConstantValue(idx uint16) *Member {
	return m.Attribute(classfile.AttrConstantValue, u2(idx))
}

// Attribute attaches an arbitrary attribute.
func (m *Member) Attribute(name string, body []byte) *Member {
	m.attributes = append(m.attributes, attribute{name: m.b.Utf8(name), body: body})
	return m
}

// LineNumber maps a bytecode offset to a source line.
type LineNumber struct {
	StartPC, Line uint16
}

// Code attaches a Code attribute with an empty exception table.
func (m *Member) Code(maxStack, maxLocals uint16, code []byte, lines ...LineNumber) *Member {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, maxStack)
	body = binary.BigEndian.AppendUint16(body, maxLocals)
	body = binary.BigEndian.AppendUint32(body, uint32(len(code)))
	body = append(body, code...)
	body = binary.BigEndian.AppendUint16(body, 0)
	if len(lines) == 0 {
		body = binary.BigEndian.AppendUint16(body, 0)
	} else {
		var lnt []byte
		lnt = binary.BigEndian.AppendUint16(lnt, uint16(len(lines)))
		for _, l := range lines {
			lnt = binary.BigEndian.AppendUint16(lnt, l.StartPC)
			lnt = binary.BigEndian.AppendUint16(lnt, l.Line)
		}
		body = binary.BigEndian.AppendUint16(body, 1)
		body = appendAttribute(body, attribute{name: m.b.Utf8(classfile.AttrLineNumberTable), body: lnt})
	}
	return m.Attribute(classfile.AttrCode, body)
}

func appendAttribute(out []byte, a attribute) []byte {
	out = binary.BigEndian.AppendUint16(out, a.name)
	out = binary.BigEndian.AppendUint32(out, uint32(len(a.body)))
	return append(out, a.body...)
}

func appendMembers(out []byte, members []*Member) []byte {
	out = binary.BigEndian.AppendUint16(out, uint16(len(members)))
	for _, m := range members {
		out = binary.BigEndian.AppendUint16(out, uint16(m.access))
		out = binary.BigEndian.AppendUint16(out, m.name)
		out = binary.BigEndian.AppendUint16(out, m.descriptor)
		out = binary.BigEndian.AppendUint16(out, uint16(len(m.attributes)))
		for _, a := range m.attributes {
			out = appendAttribute(out, a)
		}
	}
	return out
}

// Bytes encodes the class file.
func (b *Builder) Bytes() []byte {
	var out []byte
	out = binary.BigEndian.AppendUint32(out, 0xCAFEBABE)
	out = binary.BigEndian.AppendUint16(out, b.minor)
	out = binary.BigEndian.AppendUint16(out, b.major)
	out = binary.BigEndian.AppendUint16(out, b.poolCount)
	for _, e := range b.pool {
		out = append(out, e...)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(b.access))
	out = binary.BigEndian.AppendUint16(out, b.thisClass)
	out = binary.BigEndian.AppendUint16(out, b.superClass)
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.interfaces)))
	for _, i := range b.interfaces {
		out = binary.BigEndian.AppendUint16(out, i)
	}
	out = appendMembers(out, b.fields)
	out = appendMembers(out, b.methods)
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.attributes)))
	for _, a := range b.attributes {
		out = appendAttribute(out, a)
	}
	return out
}

// Parse encodes and parses the class, panicking on error. Useful in tests.
func (b *Builder) Parse() *classfile.ClassFile {
	cf, err := classfile.ParseBytes(b.Bytes())
	if err != nil {
		panic(err)
	}
	return cf
}

func encodeModifiedUtf8(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xC0|byte(u>>6), 0x80|byte(u&0x3F))
		default:
			out = append(out, 0xE0|byte(u>>12), 0x80|byte((u>>6)&0x3F), 0x80|byte(u&0x3F))
		}
	}
	return out
}
