package classfile

import "fmt"

// Attribute names understood by the parser.
const (
	AttrCode            = "Code"
	AttrLineNumberTable = "LineNumberTable"
	AttrStackMapTable   = "StackMapTable"
	AttrSourceFile      = "SourceFile"
	AttrConstantValue   = "ConstantValue"
)

// Attribute is implemented by every parsed attribute.
type Attribute interface {
	Name() string
}

// CodeAttribute holds a method body.
type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	Instructions   []Instruction
	ExceptionTable []ExceptionTableEntry
	Attributes     map[string]Attribute

	// index maps a byte offset to its position in Instructions, -1 between
	// instruction boundaries.
	index []int
}

func (a *CodeAttribute) Name() string { return AttrCode }

// InstructionAt returns the index into Instructions of the instruction that
// starts at byte offset pc.
func (a *CodeAttribute) InstructionAt(pc int) (int, bool) {
	if pc < 0 || pc >= len(a.index) || a.index[pc] < 0 {
		return 0, false
	}
	return a.index[pc], true
}

// LineNumber returns the source line for pc, or 0 when unknown.
func (a *CodeAttribute) LineNumber(pc int) int {
	lnt, ok := a.Attributes[AttrLineNumberTable].(*LineNumberTableAttribute)
	if !ok {
		return 0
	}
	line := 0
	best := -1
	for _, e := range lnt.Entries {
		if int(e.StartPC) <= pc && int(e.StartPC) > best {
			best = int(e.StartPC)
			line = int(e.LineNumber)
		}
	}
	return line
}

func (a *CodeAttribute) buildIndex() {
	a.index = make([]int, len(a.Code))
	for i := range a.index {
		a.index[i] = -1
	}
	for i, in := range a.Instructions {
		a.index[in.Offset] = i
	}
}

// ExceptionTableEntry is one row of a Code attribute's exception table.
type ExceptionTableEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

type LineNumberTableAttribute struct {
	Entries []LineNumberEntry
}

func (a *LineNumberTableAttribute) Name() string { return AttrLineNumberTable }

type LineNumberEntry struct {
	StartPC    uint16
	LineNumber uint16
}

// StackMapTableAttribute is parsed for completeness; frames are not verified.
type StackMapTableAttribute struct {
	Frames []StackMapFrame
}

func (a *StackMapTableAttribute) Name() string { return AttrStackMapTable }

// StackMapFrame is one entry of a StackMapTable. Locals holds the appended
// locals for append frames and the full list for full frames.
type StackMapFrame struct {
	FrameType   uint8
	OffsetDelta uint16
	Chop        int
	Locals      []VerificationType
	Stack       []VerificationType
}

// Verification type tags
const (
	VerifyTop               = 0
	VerifyInteger           = 1
	VerifyFloat             = 2
	VerifyDouble            = 3
	VerifyLong              = 4
	VerifyNull              = 5
	VerifyUninitializedThis = 6
	VerifyObject            = 7
	VerifyUninitialized     = 8
)

// VerificationType is a verification_type_info. CpoolIndex is set for
// Object, Offset for Uninitialized.
type VerificationType struct {
	Tag        uint8
	CpoolIndex uint16
	Offset     uint16
}

type SourceFileAttribute struct {
	SourceFileIndex uint16
}

func (a *SourceFileAttribute) Name() string { return AttrSourceFile }

type ConstantValueAttribute struct {
	ValueIndex uint16
}

func (a *ConstantValueAttribute) Name() string { return AttrConstantValue }

// RawAttribute stands in for attributes the parser does not interpret. Its
// body is skipped.
type RawAttribute struct {
	AttrName string
	Length   uint32
}

func (a *RawAttribute) Name() string { return a.AttrName }

// parseAttributes reads count attribute_info structures. Each known body is
// parsed from its own bounded reader and must consume exactly its declared
// length.
func parseAttributes(r *reader, pool ConstantPool, count uint16) (map[string]Attribute, error) {
	attrs := make(map[string]Attribute, count)
	for i := uint16(0); i < count; i++ {
		nameIndex := r.u2()
		length := r.u4()
		body := r.bytes(int(length))
		if r.err != nil {
			return nil, fmt.Errorf("reading attribute %d: %w", i, r.err)
		}
		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}

		attr, err := parseAttribute(name, body, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing %s attribute: %w", name, err)
		}
		// A Code attribute may carry several LineNumberTables.
		if lnt, ok := attr.(*LineNumberTableAttribute); ok {
			if prev, ok := attrs[name].(*LineNumberTableAttribute); ok {
				prev.Entries = append(prev.Entries, lnt.Entries...)
				continue
			}
		}
		attrs[name] = attr
	}
	return attrs, nil
}

func parseAttribute(name string, body []byte, pool ConstantPool) (Attribute, error) {
	br := newReader(body)
	var attr Attribute
	var err error
	switch name {
	case AttrCode:
		attr, err = parseCodeAttribute(br, pool)
	case AttrLineNumberTable:
		attr = parseLineNumberTable(br)
	case AttrStackMapTable:
		attr, err = parseStackMapTable(br)
	case AttrSourceFile:
		attr = &SourceFileAttribute{SourceFileIndex: br.u2()}
	case AttrConstantValue:
		attr = &ConstantValueAttribute{ValueIndex: br.u2()}
	default:
		return &RawAttribute{AttrName: name, Length: uint32(len(body))}, nil
	}
	if err != nil {
		return nil, err
	}
	if br.err != nil {
		return nil, br.err
	}
	if br.remaining() != 0 {
		return nil, fmt.Errorf("declared length %d, parsed %d", len(body), br.pos)
	}
	return attr, nil
}

func parseCodeAttribute(r *reader, pool ConstantPool) (*CodeAttribute, error) {
	code := &CodeAttribute{
		MaxStack:  r.u2(),
		MaxLocals: r.u2(),
	}
	codeLength := r.u4()
	code.Code = r.bytes(int(codeLength))
	if r.err != nil {
		return nil, fmt.Errorf("reading bytecode: %w", r.err)
	}

	insns, err := decodeInstructions(code.Code)
	if err != nil {
		return nil, err
	}
	code.Instructions = insns
	code.buildIndex()

	exceptionTableLength := r.u2()
	code.ExceptionTable = make([]ExceptionTableEntry, exceptionTableLength)
	for i := range code.ExceptionTable {
		code.ExceptionTable[i] = ExceptionTableEntry{
			StartPC:   r.u2(),
			EndPC:     r.u2(),
			HandlerPC: r.u2(),
			CatchType: r.u2(),
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("reading exception table: %w", r.err)
	}

	attrCount := r.u2()
	code.Attributes, err = parseAttributes(r, pool, attrCount)
	if err != nil {
		return nil, err
	}
	return code, nil
}

func parseLineNumberTable(r *reader) *LineNumberTableAttribute {
	n := r.u2()
	lnt := &LineNumberTableAttribute{Entries: make([]LineNumberEntry, 0, n)}
	for i := uint16(0); i < n && r.err == nil; i++ {
		lnt.Entries = append(lnt.Entries, LineNumberEntry{StartPC: r.u2(), LineNumber: r.u2()})
	}
	return lnt
}

func parseStackMapTable(r *reader) (*StackMapTableAttribute, error) {
	n := r.u2()
	smt := &StackMapTableAttribute{Frames: make([]StackMapFrame, 0, n)}
	for i := uint16(0); i < n && r.err == nil; i++ {
		ft := r.u1()
		frame := StackMapFrame{FrameType: ft}
		switch {
		case ft <= 63: // same
			frame.OffsetDelta = uint16(ft)
		case ft <= 127: // same_locals_1_stack_item
			frame.OffsetDelta = uint16(ft - 64)
			frame.Stack = []VerificationType{readVerificationType(r)}
		case ft <= 246:
			return nil, fmt.Errorf("reserved stack map frame type %d", ft)
		case ft == 247: // same_locals_1_stack_item_extended
			frame.OffsetDelta = r.u2()
			frame.Stack = []VerificationType{readVerificationType(r)}
		case ft <= 250: // chop
			frame.OffsetDelta = r.u2()
			frame.Chop = int(251 - ft)
		case ft == 251: // same_frame_extended
			frame.OffsetDelta = r.u2()
		case ft <= 254: // append
			frame.OffsetDelta = r.u2()
			frame.Locals = readVerificationTypes(r, int(ft-251))
		default: // full_frame
			frame.OffsetDelta = r.u2()
			frame.Locals = readVerificationTypes(r, int(r.u2()))
			frame.Stack = readVerificationTypes(r, int(r.u2()))
		}
		smt.Frames = append(smt.Frames, frame)
	}
	return smt, nil
}

func readVerificationTypes(r *reader, n int) []VerificationType {
	types := make([]VerificationType, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		types = append(types, readVerificationType(r))
	}
	return types
}

func readVerificationType(r *reader) VerificationType {
	vt := VerificationType{Tag: r.u1()}
	switch vt.Tag {
	case VerifyObject:
		vt.CpoolIndex = r.u2()
	case VerifyUninitialized:
		vt.Offset = r.u2()
	}
	return vt
}
