package vm

import (
	"errors"
	"fmt"

	"github.com/daimatz/jjvm/pkg/classfile"
)

// Execute runs method's bytecode in a new frame. args fill the locals in
// order, the receiver first for instance methods; long and double arguments
// take two slots.
func (vm *VM) Execute(class *Class, method *classfile.MethodInfo, args []Value) (ret Value, err error) {
	code := method.Code()
	if code == nil {
		return Value{}, fault("%s.%s%s has no Code attribute", class.Name, method.Name, method.Descriptor.Raw)
	}

	m := class.FindMethod(method.Name, method.Descriptor.Raw)
	if m == nil {
		m = &Method{Class: class, MethodInfo: method}
	}
	frame := NewFrame(class, m, code)

	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok || !errors.Is(e, ErrInterpreterFault) {
				e = fault("%v", r)
			}
			ret, err = Value{}, withFrame(e, vm.traceFrame(frame))
		}
	}()

	slot := 0
	for _, arg := range args {
		frame.SetLocal(slot, arg)
		slot += slotSize(arg)
	}

	for frame.PC < len(code.Code) {
		idx, ok := code.InstructionAt(frame.PC)
		if !ok {
			return Value{}, withFrame(fault("pc %d is not an instruction boundary", frame.PC), vm.traceFrame(frame))
		}
		in := code.Instructions[idx]
		if idx+1 < len(code.Instructions) {
			frame.nextPC = code.Instructions[idx+1].Offset
		} else {
			frame.nextPC = len(code.Code)
		}

		retVal, hasReturn, err := vm.executeInstruction(frame, in)
		if err != nil {
			return Value{}, withFrame(err, vm.traceFrame(frame))
		}
		if hasReturn {
			return retVal, nil
		}
		frame.PC = frame.nextPC
	}

	// Fell off the end of the method (implicit return for void methods)
	return Value{}, nil
}

func (vm *VM) traceFrame(frame *Frame) TraceFrame {
	return TraceFrame{
		Class:  frame.Class.Name,
		Method: frame.Method.Name,
		PC:     frame.PC,
		Line:   frame.Code.LineNumber(frame.PC),
		Source: frame.Class.File.SourceFile(),
	}
}

// executeLdc handles ldc, ldc_w and ldc2_w.
func (vm *VM) executeLdc(frame *Frame, index uint16) (Value, bool, error) {
	v, err := ldcValue(frame.Class.File.ConstantPool, index)
	if err != nil {
		return Value{}, false, err
	}
	frame.Push(v)
	return Value{}, false, nil
}

func (vm *VM) fieldref(frame *Frame, index uint16) (*classfile.MemberRef, error) {
	ref, err := frame.Class.File.ConstantPool.Fieldref(index)
	if err != nil {
		return nil, fault("%v", err)
	}
	return ref, nil
}

// executeGetstatic handles the getstatic instruction.
func (vm *VM) executeGetstatic(frame *Frame, index uint16) (Value, bool, error) {
	ref, err := vm.fieldref(frame, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("getstatic: %w", err)
	}
	class, err := vm.Class(ref.ClassName)
	if err != nil {
		return Value{}, false, fmt.Errorf("getstatic %s: %w", ref, err)
	}
	v, err := vm.GetStatic(class, ref.Name)
	if err != nil {
		return Value{}, false, fmt.Errorf("getstatic: %w", err)
	}
	frame.Push(v)
	return Value{}, false, nil
}

// executePutstatic handles the putstatic instruction.
func (vm *VM) executePutstatic(frame *Frame, index uint16) (Value, bool, error) {
	ref, err := vm.fieldref(frame, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("putstatic: %w", err)
	}
	v := frame.Pop()
	class, err := vm.Class(ref.ClassName)
	if err != nil {
		return Value{}, false, fmt.Errorf("putstatic %s: %w", ref, err)
	}
	if err := vm.PutStatic(class, ref.Name, v); err != nil {
		return Value{}, false, fmt.Errorf("putstatic: %w", err)
	}
	return Value{}, false, nil
}

func popObject(frame *Frame, what string) (*Object, error) {
	v := frame.PopRef()
	if v.IsNull() {
		return nil, fmt.Errorf("%w: %s", ErrNullPointer, what)
	}
	obj, ok := v.Ref.(*Object)
	if !ok {
		return nil, fault("%s: receiver is not an object: %s", what, v)
	}
	return obj, nil
}

// executeGetfield handles the getfield instruction.
func (vm *VM) executeGetfield(frame *Frame, index uint16) (Value, bool, error) {
	ref, err := vm.fieldref(frame, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("getfield: %w", err)
	}
	obj, err := popObject(frame, "getfield "+ref.String())
	if err != nil {
		return Value{}, false, err
	}
	v, ok := obj.Fields[ref.Name]
	if !ok {
		return Value{}, false, fmt.Errorf("%w: %s.%s", ErrNoSuchField, obj.ClassName, ref.Name)
	}
	frame.Push(v)
	return Value{}, false, nil
}

// executePutfield handles the putfield instruction.
func (vm *VM) executePutfield(frame *Frame, index uint16) (Value, bool, error) {
	ref, err := vm.fieldref(frame, index)
	if err != nil {
		return Value{}, false, fmt.Errorf("putfield: %w", err)
	}
	ft, err := classfile.ParseFieldType(ref.Descriptor)
	if err != nil {
		return Value{}, false, fault("putfield: %v", err)
	}
	v := frame.Pop()
	obj, err := popObject(frame, "putfield "+ref.String())
	if err != nil {
		return Value{}, false, err
	}
	if obj.Fields == nil {
		obj.Fields = make(map[string]Value)
	}
	obj.Fields[ref.Name] = coerce(ft, v)
	return Value{}, false, nil
}

// executeInvoke handles the four invoke instructions. Arguments are popped
// last-first, then the receiver for everything but invokestatic.
func (vm *VM) executeInvoke(frame *Frame, op classfile.Opcode, index uint16) (Value, bool, error) {
	pool := frame.Class.File.ConstantPool
	var ref *classfile.MemberRef
	var err error
	if op == classfile.OpInvokeinterface {
		ref, err = pool.InterfaceMethodref(index)
	} else {
		ref, err = pool.Methodref(index)
	}
	if err != nil {
		return Value{}, false, fault("%s: %v", op, err)
	}
	md, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return Value{}, false, fault("%s: %v", op, err)
	}

	n := len(md.Params)
	if op != classfile.OpInvokestatic {
		n++
	}
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = frame.Pop()
	}

	var ret Value
	switch op {
	case classfile.OpInvokestatic:
		class, err := vm.Class(ref.ClassName)
		if err != nil {
			return Value{}, false, fmt.Errorf("invokestatic %s: %w", ref, err)
		}
		ret, err = vm.CallStatic(class, ref.Name, ref.Descriptor, args)
		if err != nil {
			return Value{}, false, err
		}
	case classfile.OpInvokespecial:
		class, err := vm.Class(ref.ClassName)
		if err != nil {
			return Value{}, false, fmt.Errorf("invokespecial %s: %w", ref, err)
		}
		ret, err = vm.CallSpecial(class, ref.Name, ref.Descriptor, args)
		if err != nil {
			return Value{}, false, err
		}
	case classfile.OpInvokevirtual:
		ret, err = vm.CallVirtual(ref.Name, ref.Descriptor, args)
		if err != nil {
			return Value{}, false, err
		}
	case classfile.OpInvokeinterface:
		ret, err = vm.CallInterface(ref.Name, ref.Descriptor, args)
		if err != nil {
			return Value{}, false, err
		}
	}

	if !md.IsVoid() {
		frame.Push(ret)
	}
	return Value{}, false, nil
}

// executeNew handles the new instruction.
func (vm *VM) executeNew(frame *Frame, index uint16) (Value, bool, error) {
	name, err := frame.Class.File.ConstantPool.ClassName(index)
	if err != nil {
		return Value{}, false, fault("new: %v", err)
	}
	obj, err := vm.ConstructObject(name)
	if err != nil {
		return Value{}, false, fmt.Errorf("new %s: %w", name, err)
	}
	frame.Push(RefValue(obj))
	return Value{}, false, nil
}

// executeCheckcast handles checkcast; null always passes.
func (vm *VM) executeCheckcast(frame *Frame, index uint16) (Value, bool, error) {
	name, err := frame.Class.File.ConstantPool.ClassName(index)
	if err != nil {
		return Value{}, false, fault("checkcast: %v", err)
	}
	v := frame.Peek(0)
	if v.IsNull() {
		return Value{}, false, nil
	}
	from := runtimeClassName(v)
	ok, err := vm.IsAssignable(from, name)
	if err != nil {
		return Value{}, false, fmt.Errorf("checkcast: %w", err)
	}
	if !ok {
		return Value{}, false, fmt.Errorf("%w: %s cannot be cast to %s", ErrClassCast, from, name)
	}
	return Value{}, false, nil
}

// executeInstanceof handles instanceof; null yields 0.
func (vm *VM) executeInstanceof(frame *Frame, index uint16) (Value, bool, error) {
	name, err := frame.Class.File.ConstantPool.ClassName(index)
	if err != nil {
		return Value{}, false, fault("instanceof: %v", err)
	}
	v := frame.PopRef()
	if v.IsNull() {
		frame.Push(IntValue(0))
		return Value{}, false, nil
	}
	ok, err := vm.IsAssignable(runtimeClassName(v), name)
	if err != nil {
		return Value{}, false, fmt.Errorf("instanceof: %w", err)
	}
	if ok {
		frame.Push(IntValue(1))
	} else {
		frame.Push(IntValue(0))
	}
	return Value{}, false, nil
}
