package vm

import (
	"fmt"

	"github.com/daimatz/jjvm/pkg/classfile"
)

// Frame represents a stack frame for one method execution. Long and double
// values take two slots both on the operand stack and in the locals.
type Frame struct {
	LocalVars    []Value
	OperandStack []Value
	SP           int
	Code         *classfile.CodeAttribute
	PC           int
	Class        *Class
	Method       *Method

	// slots counts operand stack depth in JVM slots, bounded by MaxStack.
	slots    int
	maxStack int
	// nextPC is where execution continues after the current instruction.
	nextPC int
}

// NewFrame creates a new Frame sized by the code attribute.
func NewFrame(class *Class, method *Method, code *classfile.CodeAttribute) *Frame {
	return &Frame{
		LocalVars:    make([]Value, code.MaxLocals),
		OperandStack: make([]Value, code.MaxStack),
		Code:         code,
		Class:        class,
		Method:       method,
		maxStack:     int(code.MaxStack),
	}
}

func fault(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInterpreterFault, fmt.Sprintf(format, args...))
}

func slotSize(v Value) int {
	if v.IsWide() {
		return 2
	}
	return 1
}

// Push pushes a value onto the operand stack.
func (f *Frame) Push(v Value) {
	size := slotSize(v)
	if f.slots+size > f.maxStack {
		panic(fault("operand stack overflow: depth=%d, max=%d", f.slots+size, f.maxStack))
	}
	f.OperandStack[f.SP] = v
	f.SP++
	f.slots += size
}

// Pop pops a value from the operand stack.
func (f *Frame) Pop() Value {
	if f.SP <= 0 {
		panic(fault("operand stack underflow"))
	}
	f.SP--
	v := f.OperandStack[f.SP]
	f.OperandStack[f.SP] = Value{}
	f.slots -= slotSize(v)
	return v
}

// Peek returns the value n entries below the top without popping it.
func (f *Frame) Peek(n int) Value {
	if n < 0 || n >= f.SP {
		panic(fault("operand stack underflow: peek %d of %d", n, f.SP))
	}
	return f.OperandStack[f.SP-1-n]
}

// PopInt pops an int-category value.
func (f *Frame) PopInt() int32 {
	v := f.Pop()
	if !v.isIntCategory() {
		panic(fault("expected int, got %s", v))
	}
	return v.Int
}

// PopLong pops a long.
func (f *Frame) PopLong() int64 {
	v := f.Pop()
	if v.Type != classfile.Long {
		panic(fault("expected long, got %s", v))
	}
	return v.Long
}

// PopFloat pops a float.
func (f *Frame) PopFloat() float32 {
	v := f.Pop()
	if v.Type != classfile.Float {
		panic(fault("expected float, got %s", v))
	}
	return v.Float
}

// PopDouble pops a double.
func (f *Frame) PopDouble() float64 {
	v := f.Pop()
	if v.Type != classfile.Double {
		panic(fault("expected double, got %s", v))
	}
	return v.Double
}

// PopRef pops a reference, which may be null.
func (f *Frame) PopRef() Value {
	v := f.Pop()
	if v.Type != nil && !classfile.IsReference(v.Type) {
		panic(fault("expected reference, got %s", v))
	}
	return v
}

// GetLocal returns the value at the given local variable index.
func (f *Frame) GetLocal(index int) Value {
	if index < 0 || index >= len(f.LocalVars) {
		panic(fault("local variable index out of range: index=%d, max=%d", index, len(f.LocalVars)))
	}
	return f.LocalVars[index]
}

// SetLocal sets the value at the given local variable index. A long or
// double also claims index+1.
func (f *Frame) SetLocal(index int, v Value) {
	last := index + slotSize(v) - 1
	if index < 0 || last >= len(f.LocalVars) {
		panic(fault("local variable index out of range: index=%d, max=%d", last, len(f.LocalVars)))
	}
	f.LocalVars[index] = v
	if last != index {
		f.LocalVars[last] = Value{}
	}
}

// Jump makes execution continue at the branching instruction's offset plus delta.
func (f *Frame) Jump(from int, delta int32) {
	f.nextPC = from + int(delta)
}
