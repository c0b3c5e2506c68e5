package classgen

import (
	"encoding/binary"
	"fmt"

	"github.com/daimatz/jjvm/pkg/classfile"
)

// Asm is a small bytecode assembler with symbolic branch targets.
type Asm struct {
	buf    []byte
	labels map[string]int
	fixups []fixup
}

type fixup struct {
	at    int // operand position
	from  int // branching instruction offset
	label string
	wide  bool
}

// Op emits an opcode followed by raw operand bytes.
func (a *Asm) Op(op classfile.Opcode, operands ...byte) *Asm {
	a.buf = append(a.buf, byte(op))
	a.buf = append(a.buf, operands...)
	return a
}

// U16 emits an opcode with a two-byte operand such as a pool index.
func (a *Asm) U16(op classfile.Opcode, v uint16) *Asm {
	a.buf = append(a.buf, byte(op))
	a.buf = binary.BigEndian.AppendUint16(a.buf, v)
	return a
}

// Invokeinterface emits invokeinterface with its count operand.
func (a *Asm) Invokeinterface(idx uint16, count uint8) *Asm {
	a.U16(classfile.OpInvokeinterface, idx)
	a.buf = append(a.buf, count, 0)
	return a
}

// Label marks the current offset.
func (a *Asm) Label(name string) *Asm {
	if a.labels == nil {
		a.labels = make(map[string]int)
	}
	a.labels[name] = len(a.buf)
	return a
}

// Jump emits a branch to label. goto_w and jsr_w take four-byte offsets.
func (a *Asm) Jump(op classfile.Opcode, label string) *Asm {
	wide := op == classfile.OpGotoW || op == classfile.OpJsrW
	f := fixup{at: len(a.buf) + 1, from: len(a.buf), label: label, wide: wide}
	a.fixups = append(a.fixups, f)
	a.buf = append(a.buf, byte(op), 0, 0)
	if wide {
		a.buf = append(a.buf, 0, 0)
	}
	return a
}

// Len returns the current offset.
func (a *Asm) Len() int { return len(a.buf) }

// Bytes resolves labels and returns the bytecode. It panics on an undefined
// label.
func (a *Asm) Bytes() []byte {
	out := append([]byte(nil), a.buf...)
	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			panic(fmt.Sprintf("classgen: undefined label %q", f.label))
		}
		delta := target - f.from
		if f.wide {
			binary.BigEndian.PutUint32(out[f.at:], uint32(int32(delta)))
		} else {
			binary.BigEndian.PutUint16(out[f.at:], uint16(int16(delta)))
		}
	}
	return out
}
