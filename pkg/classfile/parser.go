package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

var (
	// ErrMalformedClassFile is returned for any structurally invalid class file.
	ErrMalformedClassFile = errors.New("malformed class file")
	// ErrInvalidDescriptor is returned for malformed field or method descriptors.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// reader is a big-endian reader over a byte slice. The first failure sticks
// in err and later reads return zero values.
type reader struct {
	buf []byte
	pos int
	err error
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.pos, len(r.buf)-r.pos, io.ErrUnexpectedEOF)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u1() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u2() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u4() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u8() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) bytes(n int) []byte {
	return r.take(n)
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading class file: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses an in-memory class file.
func ParseBytes(data []byte) (*ClassFile, error) {
	cf, err := parse(newReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedClassFile, err)
	}
	return cf, nil
}

func parse(r *reader) (*ClassFile, error) {
	magic := r.u4()
	if r.err != nil {
		return nil, fmt.Errorf("reading magic number: %w", r.err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	cf := &ClassFile{
		MinorVersion: r.u2(),
		MajorVersion: r.u2(),
	}

	cpCount := r.u2()
	if r.err != nil {
		return nil, fmt.Errorf("reading header: %w", r.err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	cf.AccessFlags = AccessFlags(r.u2())
	cf.ThisClass = r.u2()
	cf.SuperClass = r.u2()

	interfacesCount := r.u2()
	cf.Interfaces = make([]uint16, 0, interfacesCount)
	for i := uint16(0); i < interfacesCount && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.u2())
	}
	if r.err != nil {
		return nil, fmt.Errorf("reading class info: %w", r.err)
	}
	if _, err := cf.ClassName(); err != nil {
		return nil, fmt.Errorf("resolving this_class: %w", err)
	}

	fieldsCount := r.u2()
	cf.Fields, err = parseFields(r, pool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	methodsCount := r.u2()
	cf.Methods, err = parseMethods(r, pool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	attrCount := r.u2()
	cf.Attributes, err = parseAttributes(r, pool, attrCount)
	if err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after class attributes", r.remaining())
	}
	return cf, nil
}

func parseFields(r *reader, pool ConstantPool, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := range fields {
		accessFlags := AccessFlags(r.u2())
		nameIndex := r.u2()
		descIndex := r.u2()
		attrCount := r.u2()
		if r.err != nil {
			return nil, fmt.Errorf("reading field %d: %w", i, r.err)
		}

		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d name: %w", i, err)
		}
		desc, err := pool.Utf8(descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d descriptor: %w", i, err)
		}
		ft, err := ParseFieldType(desc)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}

		attrs, err := parseAttributes(r, pool, attrCount)
		if err != nil {
			return nil, fmt.Errorf("parsing field %s attributes: %w", name, err)
		}

		fields[i] = FieldInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Type:        ft,
			Attributes:  attrs,
		}
	}
	return fields, nil
}

func parseMethods(r *reader, pool ConstantPool, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := range methods {
		accessFlags := AccessFlags(r.u2())
		nameIndex := r.u2()
		descIndex := r.u2()
		attrCount := r.u2()
		if r.err != nil {
			return nil, fmt.Errorf("reading method %d: %w", i, r.err)
		}

		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d name: %w", i, err)
		}
		desc, err := pool.Utf8(descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d descriptor: %w", i, err)
		}
		md, err := ParseMethodDescriptor(desc)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", name, err)
		}

		attrs, err := parseAttributes(r, pool, attrCount)
		if err != nil {
			return nil, fmt.Errorf("parsing method %s%s attributes: %w", name, desc, err)
		}

		methods[i] = MethodInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Descriptor:  md,
			Attributes:  attrs,
		}
	}
	return methods, nil
}

