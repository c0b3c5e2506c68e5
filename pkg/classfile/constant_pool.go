package classfile

import (
	"fmt"
	"math"
	"unicode/utf16"
)

// ConstantTag identifies the kind of a constant pool entry.
type ConstantTag uint8

// Constant pool tags
const (
	TagUtf8               ConstantTag = 1
	TagInteger            ConstantTag = 3
	TagFloat              ConstantTag = 4
	TagLong               ConstantTag = 5
	TagDouble             ConstantTag = 6
	TagClass              ConstantTag = 7
	TagString             ConstantTag = 8
	TagFieldref           ConstantTag = 9
	TagMethodref          ConstantTag = 10
	TagInterfaceMethodref ConstantTag = 11
	TagNameAndType        ConstantTag = 12
	TagMethodHandle       ConstantTag = 15
	TagMethodType         ConstantTag = 16
	TagDynamic            ConstantTag = 17
	TagInvokeDynamic      ConstantTag = 18
	TagModule             ConstantTag = 19
	TagPackage            ConstantTag = 20
)

// ConstantPoolEntry is an interface implemented by all constant pool types.
type ConstantPoolEntry interface {
	Tag() ConstantTag
}

type ConstantUtf8 struct {
	Value string
}

func (c *ConstantUtf8) Tag() ConstantTag { return TagUtf8 }

type ConstantInteger struct {
	Value int32
}

func (c *ConstantInteger) Tag() ConstantTag { return TagInteger }

type ConstantFloat struct {
	Value float32
}

func (c *ConstantFloat) Tag() ConstantTag { return TagFloat }

type ConstantLong struct {
	Value int64
}

func (c *ConstantLong) Tag() ConstantTag { return TagLong }

type ConstantDouble struct {
	Value float64
}

func (c *ConstantDouble) Tag() ConstantTag { return TagDouble }

type ConstantClass struct {
	NameIndex uint16
}

func (c *ConstantClass) Tag() ConstantTag { return TagClass }

type ConstantString struct {
	StringIndex uint16
}

func (c *ConstantString) Tag() ConstantTag { return TagString }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() ConstantTag { return TagFieldref }

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() ConstantTag { return TagMethodref }

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() ConstantTag { return TagInterfaceMethodref }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() ConstantTag { return TagNameAndType }

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() ConstantTag { return TagMethodHandle }

type ConstantMethodType struct {
	DescriptorIndex uint16
}

func (c *ConstantMethodType) Tag() ConstantTag { return TagMethodType }

// ConstantInvokeDynamic covers both CONSTANT_Dynamic and CONSTANT_InvokeDynamic.
type ConstantInvokeDynamic struct {
	Dynamic                  bool
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantInvokeDynamic) Tag() ConstantTag {
	if c.Dynamic {
		return TagDynamic
	}
	return TagInvokeDynamic
}

// ConstantModule covers both CONSTANT_Module and CONSTANT_Package.
type ConstantModule struct {
	Package   bool
	NameIndex uint16
}

func (c *ConstantModule) Tag() ConstantTag {
	if c.Package {
		return TagPackage
	}
	return TagModule
}

// ConstantPool is the 1-indexed constant pool: index 0 and the slot after
// every Long/Double entry are nil.
type ConstantPool []ConstantPoolEntry

// parseConstantPool reads constant_pool_count-1 entries.
func parseConstantPool(r *reader, count uint16) (ConstantPool, error) {
	pool := make(ConstantPool, count)

	for i := uint16(1); i < count; i++ {
		tag := ConstantTag(r.u1())
		switch tag {
		case TagUtf8:
			length := r.u2()
			pool[i] = &ConstantUtf8{Value: decodeModifiedUtf8(r.bytes(int(length)))}
		case TagInteger:
			pool[i] = &ConstantInteger{Value: int32(r.u4())}
		case TagFloat:
			pool[i] = &ConstantFloat{Value: math.Float32frombits(r.u4())}
		case TagLong:
			pool[i] = &ConstantLong{Value: int64(r.u8())}
			i++ // long takes 2 slots
		case TagDouble:
			pool[i] = &ConstantDouble{Value: math.Float64frombits(r.u8())}
			i++ // double takes 2 slots
		case TagClass:
			pool[i] = &ConstantClass{NameIndex: r.u2()}
		case TagString:
			pool[i] = &ConstantString{StringIndex: r.u2()}
		case TagFieldref:
			pool[i] = &ConstantFieldref{ClassIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagMethodref:
			pool[i] = &ConstantMethodref{ClassIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagInterfaceMethodref:
			pool[i] = &ConstantInterfaceMethodref{ClassIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagNameAndType:
			pool[i] = &ConstantNameAndType{NameIndex: r.u2(), DescriptorIndex: r.u2()}
		case TagMethodHandle:
			pool[i] = &ConstantMethodHandle{ReferenceKind: r.u1(), ReferenceIndex: r.u2()}
		case TagMethodType:
			pool[i] = &ConstantMethodType{DescriptorIndex: r.u2()}
		case TagDynamic, TagInvokeDynamic:
			pool[i] = &ConstantInvokeDynamic{
				Dynamic:                  tag == TagDynamic,
				BootstrapMethodAttrIndex: r.u2(),
				NameAndTypeIndex:         r.u2(),
			}
		case TagModule, TagPackage:
			pool[i] = &ConstantModule{Package: tag == TagPackage, NameIndex: r.u2()}
		default:
			if r.err != nil {
				return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, r.err)
			}
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		if r.err != nil {
			return nil, fmt.Errorf("reading constant pool entry %d (tag=%d): %w", i, tag, r.err)
		}
	}

	return pool, nil
}

// Entry returns the entry at the given index.
func (p ConstantPool) Entry(index uint16) (ConstantPoolEntry, error) {
	if int(index) >= len(p) || p[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	return p[index], nil
}

// Utf8 returns the Utf8 string at the given constant pool index.
func (p ConstantPool) Utf8(index uint16) (string, error) {
	entry, err := p.Entry(index)
	if err != nil {
		return "", err
	}
	utf8, ok := entry.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, entry.Tag())
	}
	return utf8.Value, nil
}

// ClassName returns the class name referenced by a CONSTANT_Class entry.
func (p ConstantPool) ClassName(index uint16) (string, error) {
	entry, err := p.Entry(index)
	if err != nil {
		return "", err
	}
	class, ok := entry.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class (tag=%d)", index, entry.Tag())
	}
	return p.Utf8(class.NameIndex)
}

// String returns the text referenced by a CONSTANT_String entry.
func (p ConstantPool) String(index uint16) (string, error) {
	entry, err := p.Entry(index)
	if err != nil {
		return "", err
	}
	str, ok := entry.(*ConstantString)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not String (tag=%d)", index, entry.Tag())
	}
	return p.Utf8(str.StringIndex)
}

// NameAndType returns the name and descriptor of a CONSTANT_NameAndType entry.
func (p ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	entry, err := p.Entry(index)
	if err != nil {
		return "", "", err
	}
	nat, ok := entry.(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType (tag=%d)", index, entry.Tag())
	}
	if name, err = p.Utf8(nat.NameIndex); err != nil {
		return "", "", fmt.Errorf("resolving name: %w", err)
	}
	if descriptor, err = p.Utf8(nat.DescriptorIndex); err != nil {
		return "", "", fmt.Errorf("resolving descriptor: %w", err)
	}
	return name, descriptor, nil
}

// MemberRef holds a resolved field, method or interface method reference.
type MemberRef struct {
	ClassName  string
	Name       string
	Descriptor string
}

func (m *MemberRef) String() string {
	return m.ClassName + "." + m.Name + ":" + m.Descriptor
}

func (p ConstantPool) memberRef(classIndex, natIndex uint16) (*MemberRef, error) {
	className, err := p.ClassName(classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving class: %w", err)
	}
	name, descriptor, err := p.NameAndType(natIndex)
	if err != nil {
		return nil, err
	}
	return &MemberRef{ClassName: className, Name: name, Descriptor: descriptor}, nil
}

// Fieldref resolves a CONSTANT_Fieldref entry.
func (p ConstantPool) Fieldref(index uint16) (*MemberRef, error) {
	entry, err := p.Entry(index)
	if err != nil {
		return nil, err
	}
	ref, ok := entry.(*ConstantFieldref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not Fieldref (tag=%d)", index, entry.Tag())
	}
	return p.memberRef(ref.ClassIndex, ref.NameAndTypeIndex)
}

// Methodref resolves a CONSTANT_Methodref entry. CONSTANT_InterfaceMethodref is
// accepted as well since invokestatic and invokespecial may name either.
func (p ConstantPool) Methodref(index uint16) (*MemberRef, error) {
	entry, err := p.Entry(index)
	if err != nil {
		return nil, err
	}
	switch ref := entry.(type) {
	case *ConstantMethodref:
		return p.memberRef(ref.ClassIndex, ref.NameAndTypeIndex)
	case *ConstantInterfaceMethodref:
		return p.memberRef(ref.ClassIndex, ref.NameAndTypeIndex)
	default:
		return nil, fmt.Errorf("constant pool index %d is not Methodref (tag=%d)", index, entry.Tag())
	}
}

// InterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func (p ConstantPool) InterfaceMethodref(index uint16) (*MemberRef, error) {
	entry, err := p.Entry(index)
	if err != nil {
		return nil, err
	}
	ref, ok := entry.(*ConstantInterfaceMethodref)
	if !ok {
		return nil, fmt.Errorf("constant pool index %d is not InterfaceMethodref (tag=%d)", index, entry.Tag())
	}
	return p.memberRef(ref.ClassIndex, ref.NameAndTypeIndex)
}

// decodeModifiedUtf8 decodes the class file's modified UTF-8: NUL is encoded
// in two bytes and supplementary characters as surrogate pairs.
func decodeModifiedUtf8(b []byte) string {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, uint16(c))
			i++
		}
	}
	return string(utf16.Decode(units))
}
