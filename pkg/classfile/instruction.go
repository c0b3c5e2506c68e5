package classfile

import (
	"encoding/binary"
	"fmt"
)

// Instruction is one decoded instruction of a Code attribute. Operands holds
// the raw operand bytes; for tableswitch and lookupswitch the alignment
// padding is dropped so that the 4-byte fields start at Operands[0].
type Instruction struct {
	Offset   int
	Opcode   Opcode
	Operands []byte
}

func (in Instruction) String() string {
	return fmt.Sprintf("%d: %s", in.Offset, in.Opcode)
}

// U8 returns the unsigned byte operand at i.
func (in Instruction) U8(i int) uint8 { return in.Operands[i] }

// I8 returns the signed byte operand at i.
func (in Instruction) I8(i int) int8 { return int8(in.Operands[i]) }

// U16 returns the big-endian unsigned short operand at i.
func (in Instruction) U16(i int) uint16 { return binary.BigEndian.Uint16(in.Operands[i:]) }

// I16 returns the big-endian signed short operand at i.
func (in Instruction) I16(i int) int16 { return int16(in.U16(i)) }

// I32 returns the big-endian signed int operand at i.
func (in Instruction) I32(i int) int32 { return int32(binary.BigEndian.Uint32(in.Operands[i:])) }

// switchPadding is the number of pad bytes after a switch opcode at offset so
// that the next field is 4-byte aligned relative to the start of the code.
func switchPadding(offset int) int {
	return (4 - (offset+1)%4) % 4
}

// decodeInstructions splits a method's bytecode into instructions.
func decodeInstructions(code []byte) ([]Instruction, error) {
	var insns []Instruction
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		if !op.Valid() {
			return nil, fmt.Errorf("undefined opcode 0x%02X at offset %d", uint8(op), pc)
		}

		start := pc + 1
		var end int
		switch op {
		case OpTableswitch:
			start += switchPadding(pc)
			if start+12 > len(code) {
				return nil, fmt.Errorf("truncated tableswitch at offset %d", pc)
			}
			low := int32(binary.BigEndian.Uint32(code[start+4:]))
			high := int32(binary.BigEndian.Uint32(code[start+8:]))
			if high < low {
				return nil, fmt.Errorf("tableswitch at offset %d: high %d < low %d", pc, high, low)
			}
			end = start + 12 + int(int64(high)-int64(low)+1)*4
		case OpLookupswitch:
			start += switchPadding(pc)
			if start+8 > len(code) {
				return nil, fmt.Errorf("truncated lookupswitch at offset %d", pc)
			}
			npairs := int32(binary.BigEndian.Uint32(code[start+4:]))
			if npairs < 0 {
				return nil, fmt.Errorf("lookupswitch at offset %d: negative npairs %d", pc, npairs)
			}
			end = start + 8 + int(npairs)*8
		case OpWide:
			if start >= len(code) {
				return nil, fmt.Errorf("truncated wide at offset %d", pc)
			}
			switch Opcode(code[start]) {
			case OpIload, OpLload, OpFload, OpDload, OpAload,
				OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
				end = start + 3
			case OpIinc:
				end = start + 5
			default:
				return nil, fmt.Errorf("wide at offset %d modifies %s", pc, Opcode(code[start]))
			}
		default:
			end = start + op.Width()
		}
		if end > len(code) {
			return nil, fmt.Errorf("truncated %s at offset %d", op, pc)
		}

		insns = append(insns, Instruction{Offset: pc, Opcode: op, Operands: code[start:end]})
		pc = end
	}
	return insns, nil
}
