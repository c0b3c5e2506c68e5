package vm

import (
	"fmt"
	"math"

	"github.com/daimatz/jjvm/pkg/classfile"
)

// executeInstruction executes a single instruction. It returns the method's
// return value and true when the instruction returns.
func (vm *VM) executeInstruction(frame *Frame, in classfile.Instruction) (Value, bool, error) {
	op := in.Opcode
	switch op {
	case classfile.OpNop:
		// do nothing

	// constants
	case classfile.OpAconstNull:
		frame.Push(NullValue())
	case classfile.OpIconstM1, classfile.OpIconst0, classfile.OpIconst1, classfile.OpIconst2,
		classfile.OpIconst3, classfile.OpIconst4, classfile.OpIconst5:
		frame.Push(IntValue(int32(op) - int32(classfile.OpIconst0)))
	case classfile.OpLconst0, classfile.OpLconst1:
		frame.Push(LongValue(int64(op - classfile.OpLconst0)))
	case classfile.OpFconst0, classfile.OpFconst1, classfile.OpFconst2:
		frame.Push(FloatValue(float32(op - classfile.OpFconst0)))
	case classfile.OpDconst0, classfile.OpDconst1:
		frame.Push(DoubleValue(float64(op - classfile.OpDconst0)))
	case classfile.OpBipush:
		frame.Push(IntValue(int32(in.I8(0))))
	case classfile.OpSipush:
		frame.Push(IntValue(int32(in.I16(0))))
	case classfile.OpLdc:
		return vm.executeLdc(frame, uint16(in.U8(0)))
	case classfile.OpLdcW, classfile.OpLdc2W:
		return vm.executeLdc(frame, in.U16(0))

	// loads
	case classfile.OpIload, classfile.OpLload, classfile.OpFload, classfile.OpDload, classfile.OpAload:
		frame.Push(frame.GetLocal(int(in.U8(0))))
	case classfile.OpIload0, classfile.OpIload1, classfile.OpIload2, classfile.OpIload3:
		frame.Push(frame.GetLocal(int(op - classfile.OpIload0)))
	case classfile.OpLload0, classfile.OpLload1, classfile.OpLload2, classfile.OpLload3:
		frame.Push(frame.GetLocal(int(op - classfile.OpLload0)))
	case classfile.OpFload0, classfile.OpFload1, classfile.OpFload2, classfile.OpFload3:
		frame.Push(frame.GetLocal(int(op - classfile.OpFload0)))
	case classfile.OpDload0, classfile.OpDload1, classfile.OpDload2, classfile.OpDload3:
		frame.Push(frame.GetLocal(int(op - classfile.OpDload0)))
	case classfile.OpAload0, classfile.OpAload1, classfile.OpAload2, classfile.OpAload3:
		frame.Push(frame.GetLocal(int(op - classfile.OpAload0)))

	// stores
	case classfile.OpIstore, classfile.OpLstore, classfile.OpFstore, classfile.OpDstore, classfile.OpAstore:
		frame.SetLocal(int(in.U8(0)), frame.Pop())
	case classfile.OpIstore0, classfile.OpIstore1, classfile.OpIstore2, classfile.OpIstore3:
		frame.SetLocal(int(op-classfile.OpIstore0), frame.Pop())
	case classfile.OpLstore0, classfile.OpLstore1, classfile.OpLstore2, classfile.OpLstore3:
		frame.SetLocal(int(op-classfile.OpLstore0), frame.Pop())
	case classfile.OpFstore0, classfile.OpFstore1, classfile.OpFstore2, classfile.OpFstore3:
		frame.SetLocal(int(op-classfile.OpFstore0), frame.Pop())
	case classfile.OpDstore0, classfile.OpDstore1, classfile.OpDstore2, classfile.OpDstore3:
		frame.SetLocal(int(op-classfile.OpDstore0), frame.Pop())
	case classfile.OpAstore0, classfile.OpAstore1, classfile.OpAstore2, classfile.OpAstore3:
		frame.SetLocal(int(op-classfile.OpAstore0), frame.Pop())
	case classfile.OpIinc:
		return Value{}, false, executeIinc(frame, int(in.U8(0)), int32(in.I8(1)))
	case classfile.OpWide:
		return Value{}, false, executeWide(frame, in)

	// arrays
	case classfile.OpIaload, classfile.OpLaload, classfile.OpFaload, classfile.OpDaload,
		classfile.OpAaload, classfile.OpBaload, classfile.OpCaload, classfile.OpSaload:
		return Value{}, false, executeArrayLoad(frame)
	case classfile.OpIastore, classfile.OpLastore, classfile.OpFastore, classfile.OpDastore,
		classfile.OpAastore, classfile.OpBastore, classfile.OpCastore, classfile.OpSastore:
		return Value{}, false, executeArrayStore(frame)
	case classfile.OpNewarray:
		return Value{}, false, executeNewarray(frame, in.U8(0))
	case classfile.OpAnewarray:
		return vm.executeAnewarray(frame, in.U16(0))
	case classfile.OpMultianewarray:
		return vm.executeMultianewarray(frame, in.U16(0), int(in.U8(2)))
	case classfile.OpArraylength:
		arr, err := popArray(frame)
		if err != nil {
			return Value{}, false, err
		}
		frame.Push(IntValue(int32(len(arr.Elements))))

	// stack
	case classfile.OpPop, classfile.OpPop2, classfile.OpDup, classfile.OpDupX1, classfile.OpDupX2,
		classfile.OpDup2, classfile.OpDup2X1, classfile.OpDup2X2, classfile.OpSwap:
		executeStackOp(frame, op)

	// int arithmetic
	case classfile.OpIadd:
		b, a := frame.PopInt(), frame.PopInt()
		frame.Push(IntValue(a + b))
	case classfile.OpIsub:
		b, a := frame.PopInt(), frame.PopInt()
		frame.Push(IntValue(a - b))
	case classfile.OpImul:
		b, a := frame.PopInt(), frame.PopInt()
		frame.Push(IntValue(a * b))
	case classfile.OpIdiv:
		b, a := frame.PopInt(), frame.PopInt()
		if b == 0 {
			return Value{}, false, fmt.Errorf("%w: idiv", ErrDivideByZero)
		}
		frame.Push(IntValue(a / b))
	case classfile.OpIrem:
		b, a := frame.PopInt(), frame.PopInt()
		if b == 0 {
			return Value{}, false, fmt.Errorf("%w: irem", ErrDivideByZero)
		}
		frame.Push(IntValue(a % b))
	case classfile.OpIneg:
		frame.Push(IntValue(-frame.PopInt()))
	case classfile.OpIshl:
		s, a := frame.PopInt(), frame.PopInt()
		frame.Push(IntValue(a << uint(s&0x1f)))
	case classfile.OpIshr:
		s, a := frame.PopInt(), frame.PopInt()
		frame.Push(IntValue(a >> uint(s&0x1f)))
	case classfile.OpIushr:
		s, a := frame.PopInt(), frame.PopInt()
		frame.Push(IntValue(int32(uint32(a) >> uint(s&0x1f))))
	case classfile.OpIand:
		b, a := frame.PopInt(), frame.PopInt()
		frame.Push(IntValue(a & b))
	case classfile.OpIor:
		b, a := frame.PopInt(), frame.PopInt()
		frame.Push(IntValue(a | b))
	case classfile.OpIxor:
		b, a := frame.PopInt(), frame.PopInt()
		frame.Push(IntValue(a ^ b))

	// long arithmetic
	case classfile.OpLadd:
		b, a := frame.PopLong(), frame.PopLong()
		frame.Push(LongValue(a + b))
	case classfile.OpLsub:
		b, a := frame.PopLong(), frame.PopLong()
		frame.Push(LongValue(a - b))
	case classfile.OpLmul:
		b, a := frame.PopLong(), frame.PopLong()
		frame.Push(LongValue(a * b))
	case classfile.OpLdiv:
		b, a := frame.PopLong(), frame.PopLong()
		if b == 0 {
			return Value{}, false, fmt.Errorf("%w: ldiv", ErrDivideByZero)
		}
		frame.Push(LongValue(a / b))
	case classfile.OpLrem:
		b, a := frame.PopLong(), frame.PopLong()
		if b == 0 {
			return Value{}, false, fmt.Errorf("%w: lrem", ErrDivideByZero)
		}
		frame.Push(LongValue(a % b))
	case classfile.OpLneg:
		frame.Push(LongValue(-frame.PopLong()))
	case classfile.OpLshl:
		s, a := frame.PopInt(), frame.PopLong()
		frame.Push(LongValue(a << uint(s&0x3f)))
	case classfile.OpLshr:
		s, a := frame.PopInt(), frame.PopLong()
		frame.Push(LongValue(a >> uint(s&0x3f)))
	case classfile.OpLushr:
		s, a := frame.PopInt(), frame.PopLong()
		frame.Push(LongValue(int64(uint64(a) >> uint(s&0x3f))))
	case classfile.OpLand:
		b, a := frame.PopLong(), frame.PopLong()
		frame.Push(LongValue(a & b))
	case classfile.OpLor:
		b, a := frame.PopLong(), frame.PopLong()
		frame.Push(LongValue(a | b))
	case classfile.OpLxor:
		b, a := frame.PopLong(), frame.PopLong()
		frame.Push(LongValue(a ^ b))

	// float arithmetic
	case classfile.OpFadd:
		b, a := frame.PopFloat(), frame.PopFloat()
		frame.Push(FloatValue(a + b))
	case classfile.OpFsub:
		b, a := frame.PopFloat(), frame.PopFloat()
		frame.Push(FloatValue(a - b))
	case classfile.OpFmul:
		b, a := frame.PopFloat(), frame.PopFloat()
		frame.Push(FloatValue(a * b))
	case classfile.OpFdiv:
		b, a := frame.PopFloat(), frame.PopFloat()
		frame.Push(FloatValue(a / b))
	case classfile.OpFrem:
		b, a := frame.PopFloat(), frame.PopFloat()
		frame.Push(FloatValue(float32(math.Mod(float64(a), float64(b)))))
	case classfile.OpFneg:
		frame.Push(FloatValue(-frame.PopFloat()))

	// double arithmetic
	case classfile.OpDadd:
		b, a := frame.PopDouble(), frame.PopDouble()
		frame.Push(DoubleValue(a + b))
	case classfile.OpDsub:
		b, a := frame.PopDouble(), frame.PopDouble()
		frame.Push(DoubleValue(a - b))
	case classfile.OpDmul:
		b, a := frame.PopDouble(), frame.PopDouble()
		frame.Push(DoubleValue(a * b))
	case classfile.OpDdiv:
		b, a := frame.PopDouble(), frame.PopDouble()
		frame.Push(DoubleValue(a / b))
	case classfile.OpDrem:
		b, a := frame.PopDouble(), frame.PopDouble()
		frame.Push(DoubleValue(math.Mod(a, b)))
	case classfile.OpDneg:
		frame.Push(DoubleValue(-frame.PopDouble()))

	// conversions
	case classfile.OpI2l:
		frame.Push(LongValue(int64(frame.PopInt())))
	case classfile.OpI2f:
		frame.Push(FloatValue(float32(frame.PopInt())))
	case classfile.OpI2d:
		frame.Push(DoubleValue(float64(frame.PopInt())))
	case classfile.OpL2i:
		frame.Push(IntValue(int32(frame.PopLong())))
	case classfile.OpL2f:
		frame.Push(FloatValue(float32(frame.PopLong())))
	case classfile.OpL2d:
		frame.Push(DoubleValue(float64(frame.PopLong())))
	case classfile.OpF2i:
		frame.Push(IntValue(f2i(float64(frame.PopFloat()))))
	case classfile.OpF2l:
		frame.Push(LongValue(f2l(float64(frame.PopFloat()))))
	case classfile.OpF2d:
		frame.Push(DoubleValue(float64(frame.PopFloat())))
	case classfile.OpD2i:
		frame.Push(IntValue(f2i(frame.PopDouble())))
	case classfile.OpD2l:
		frame.Push(LongValue(f2l(frame.PopDouble())))
	case classfile.OpD2f:
		frame.Push(FloatValue(float32(frame.PopDouble())))
	case classfile.OpI2b:
		frame.Push(IntValue(int32(int8(frame.PopInt()))))
	case classfile.OpI2c:
		frame.Push(IntValue(int32(uint16(frame.PopInt()))))
	case classfile.OpI2s:
		frame.Push(IntValue(int32(int16(frame.PopInt()))))

	// comparisons
	case classfile.OpLcmp:
		b, a := frame.PopLong(), frame.PopLong()
		frame.Push(IntValue(compare(a, b)))
	case classfile.OpFcmpl, classfile.OpFcmpg:
		b, a := frame.PopFloat(), frame.PopFloat()
		frame.Push(IntValue(compareFloat(float64(a), float64(b), op == classfile.OpFcmpg)))
	case classfile.OpDcmpl, classfile.OpDcmpg:
		b, a := frame.PopDouble(), frame.PopDouble()
		frame.Push(IntValue(compareFloat(a, b, op == classfile.OpDcmpg)))

	// branches
	case classfile.OpIfeq, classfile.OpIfne, classfile.OpIflt, classfile.OpIfge, classfile.OpIfgt, classfile.OpIfle:
		executeBranchUnary(frame, in)
	case classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt,
		classfile.OpIfIcmpge, classfile.OpIfIcmpgt, classfile.OpIfIcmple:
		executeBranchBinary(frame, in)
	case classfile.OpIfAcmpeq, classfile.OpIfAcmpne:
		b, a := frame.PopRef(), frame.PopRef()
		if (a.Ref == b.Ref) == (op == classfile.OpIfAcmpeq) {
			frame.Jump(in.Offset, int32(in.I16(0)))
		}
	case classfile.OpIfnull, classfile.OpIfnonnull:
		v := frame.PopRef()
		if v.IsNull() == (op == classfile.OpIfnull) {
			frame.Jump(in.Offset, int32(in.I16(0)))
		}
	case classfile.OpGoto:
		frame.Jump(in.Offset, int32(in.I16(0)))
	case classfile.OpGotoW:
		frame.Jump(in.Offset, in.I32(0))
	case classfile.OpTableswitch:
		executeTableswitch(frame, in)
	case classfile.OpLookupswitch:
		executeLookupswitch(frame, in)

	// fields
	case classfile.OpGetstatic:
		return vm.executeGetstatic(frame, in.U16(0))
	case classfile.OpPutstatic:
		return vm.executePutstatic(frame, in.U16(0))
	case classfile.OpGetfield:
		return vm.executeGetfield(frame, in.U16(0))
	case classfile.OpPutfield:
		return vm.executePutfield(frame, in.U16(0))

	// invocation
	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic, classfile.OpInvokeinterface:
		return vm.executeInvoke(frame, op, in.U16(0))

	// objects
	case classfile.OpNew:
		return vm.executeNew(frame, in.U16(0))
	case classfile.OpCheckcast:
		return vm.executeCheckcast(frame, in.U16(0))
	case classfile.OpInstanceof:
		return vm.executeInstanceof(frame, in.U16(0))
	case classfile.OpAthrow:
		v := frame.PopRef()
		if v.IsNull() {
			return Value{}, false, fmt.Errorf("%w: athrow", ErrNullPointer)
		}
		return Value{}, false, fmt.Errorf("%w: %s", ErrUncaughtThrowable, runtimeClassName(v))
	case classfile.OpMonitorenter, classfile.OpMonitorexit:
		frame.PopRef()

	// returns
	case classfile.OpIreturn:
		v := frame.Pop()
		if !v.isIntCategory() {
			return Value{}, false, fault("ireturn of %s", v)
		}
		if rt := frame.Method.Descriptor.Return; rt != nil {
			v = coerce(rt, v)
		}
		return v, true, nil
	case classfile.OpLreturn:
		return LongValue(frame.PopLong()), true, nil
	case classfile.OpFreturn:
		return FloatValue(frame.PopFloat()), true, nil
	case classfile.OpDreturn:
		return DoubleValue(frame.PopDouble()), true, nil
	case classfile.OpAreturn:
		return frame.PopRef(), true, nil
	case classfile.OpReturn:
		return Value{}, true, nil

	default:
		return Value{}, false, fmt.Errorf("%w: %s (0x%02X) at pc %d", ErrUnsupportedOpcode, op, uint8(op), in.Offset)
	}

	return Value{}, false, nil
}

func executeIinc(frame *Frame, index int, delta int32) error {
	v := frame.GetLocal(index)
	if !v.isIntCategory() {
		return fault("iinc on %s", v)
	}
	frame.SetLocal(index, IntValue(v.Int+delta))
	return nil
}

// executeWide executes the widened form of a local variable instruction.
func executeWide(frame *Frame, in classfile.Instruction) error {
	index := int(in.U16(1))
	switch op := classfile.Opcode(in.U8(0)); op {
	case classfile.OpIload, classfile.OpLload, classfile.OpFload, classfile.OpDload, classfile.OpAload:
		frame.Push(frame.GetLocal(index))
	case classfile.OpIstore, classfile.OpLstore, classfile.OpFstore, classfile.OpDstore, classfile.OpAstore:
		frame.SetLocal(index, frame.Pop())
	case classfile.OpIinc:
		return executeIinc(frame, index, int32(in.I16(3)))
	default:
		return fmt.Errorf("%w: wide %s", ErrUnsupportedOpcode, op)
	}
	return nil
}

func popArray(frame *Frame) (*Array, error) {
	v := frame.PopRef()
	if v.IsNull() {
		return nil, fmt.Errorf("%w: array is null", ErrNullPointer)
	}
	arr, ok := v.Ref.(*Array)
	if !ok {
		return nil, fault("expected array, got %s", v)
	}
	return arr, nil
}

func checkIndex(arr *Array, index int32) error {
	if index < 0 || int(index) >= len(arr.Elements) {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfBounds, index, len(arr.Elements))
	}
	return nil
}

func executeArrayLoad(frame *Frame) error {
	index := frame.PopInt()
	arr, err := popArray(frame)
	if err != nil {
		return err
	}
	if err := checkIndex(arr, index); err != nil {
		return err
	}
	v := arr.Elements[index]
	if v.isIntCategory() {
		v = IntValue(v.Int)
	}
	frame.Push(v)
	return nil
}

func executeArrayStore(frame *Frame) error {
	v := frame.Pop()
	index := frame.PopInt()
	arr, err := popArray(frame)
	if err != nil {
		return err
	}
	if err := checkIndex(arr, index); err != nil {
		return err
	}
	arr.Elements[index] = coerce(arr.Elem, v)
	return nil
}

func executeNewarray(frame *Frame, atype uint8) error {
	elem, ok := classfile.NewarrayElem(atype)
	if !ok {
		return fault("newarray: invalid atype %d", atype)
	}
	n := frame.PopInt()
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeArraySize, n)
	}
	frame.Push(RefValue(NewArray(elem, int(n))))
	return nil
}

// classType converts a CONSTANT_Class name, which is an array descriptor for
// array classes, to a field type.
func classType(name string) (classfile.FieldType, error) {
	if len(name) > 0 && name[0] == '[' {
		return classfile.ParseFieldType(name)
	}
	return classfile.ObjectType{ClassName: name}, nil
}

func (vm *VM) executeAnewarray(frame *Frame, index uint16) (Value, bool, error) {
	name, err := frame.Class.File.ConstantPool.ClassName(index)
	if err != nil {
		return Value{}, false, fault("anewarray: %v", err)
	}
	elem, err := classType(name)
	if err != nil {
		return Value{}, false, fault("anewarray: %v", err)
	}
	n := frame.PopInt()
	if n < 0 {
		return Value{}, false, fmt.Errorf("%w: %d", ErrNegativeArraySize, n)
	}
	frame.Push(RefValue(NewArray(elem, int(n))))
	return Value{}, false, nil
}

func (vm *VM) executeMultianewarray(frame *Frame, index uint16, dims int) (Value, bool, error) {
	name, err := frame.Class.File.ConstantPool.ClassName(index)
	if err != nil {
		return Value{}, false, fault("multianewarray: %v", err)
	}
	ft, err := classfile.ParseFieldType(name)
	if err != nil {
		return Value{}, false, fault("multianewarray: %v", err)
	}
	if dims < 1 {
		return Value{}, false, fault("multianewarray: %d dimensions", dims)
	}

	counts := make([]int32, dims)
	for i := dims - 1; i >= 0; i-- {
		counts[i] = frame.PopInt()
	}
	for _, c := range counts {
		if c < 0 {
			return Value{}, false, fmt.Errorf("%w: %d", ErrNegativeArraySize, c)
		}
	}

	arr, err := newMultiArray(ft, counts)
	if err != nil {
		return Value{}, false, err
	}
	frame.Push(RefValue(arr))
	return Value{}, false, nil
}

func newMultiArray(ft classfile.FieldType, counts []int32) (*Array, error) {
	at, ok := ft.(classfile.ArrayType)
	if !ok {
		return nil, fault("multianewarray: %s is not an array type", ft.Descriptor())
	}
	arr := NewArray(at.Elem, int(counts[0]))
	if len(counts) > 1 {
		for i := range arr.Elements {
			sub, err := newMultiArray(at.Elem, counts[1:])
			if err != nil {
				return nil, err
			}
			arr.Elements[i] = RefValue(sub)
		}
	}
	return arr, nil
}

// executeStackOp implements the category-aware stack manipulation opcodes.
// Long and double values are single entries of category 2.
func executeStackOp(frame *Frame, op classfile.Opcode) {
	cat2 := func(n int) bool { return frame.Peek(n).IsWide() }
	pop := func(n int) []Value {
		vs := make([]Value, n)
		for i := 0; i < n; i++ {
			vs[i] = frame.Pop()
		}
		return vs
	}
	push := func(vs ...Value) {
		for _, v := range vs {
			frame.Push(v)
		}
	}
	mustCat1 := func(vs ...Value) {
		for _, v := range vs {
			if v.IsWide() {
				panic(fault("%s on category 2 value %s", op, v))
			}
		}
	}

	switch op {
	case classfile.OpPop:
		mustCat1(frame.Pop())
	case classfile.OpPop2:
		if cat2(0) {
			frame.Pop()
		} else {
			mustCat1(pop(2)...)
		}
	case classfile.OpDup:
		v := frame.Peek(0)
		mustCat1(v)
		frame.Push(v)
	case classfile.OpDupX1:
		v := pop(2)
		mustCat1(v...)
		push(v[0], v[1], v[0])
	case classfile.OpDupX2:
		v1 := frame.Pop()
		mustCat1(v1)
		if cat2(0) {
			v2 := frame.Pop()
			push(v1, v2, v1)
		} else {
			v := pop(2)
			mustCat1(v...)
			push(v1, v[1], v[0], v1)
		}
	case classfile.OpDup2:
		if cat2(0) {
			frame.Push(frame.Peek(0))
		} else {
			v := pop(2)
			mustCat1(v...)
			push(v[1], v[0], v[1], v[0])
		}
	case classfile.OpDup2X1:
		if cat2(0) {
			v1 := frame.Pop()
			v2 := frame.Pop()
			mustCat1(v2)
			push(v1, v2, v1)
		} else {
			v := pop(3)
			mustCat1(v...)
			push(v[1], v[0], v[2], v[1], v[0])
		}
	case classfile.OpDup2X2:
		if cat2(0) {
			v1 := frame.Pop()
			if cat2(0) {
				v2 := frame.Pop()
				push(v1, v2, v1)
			} else {
				v := pop(2)
				mustCat1(v...)
				push(v1, v[1], v[0], v1)
			}
		} else {
			v := pop(2)
			mustCat1(v...)
			if cat2(0) {
				v3 := frame.Pop()
				push(v[1], v[0], v3, v[1], v[0])
			} else {
				w := pop(2)
				mustCat1(w...)
				push(v[1], v[0], w[1], w[0], v[1], v[0])
			}
		}
	case classfile.OpSwap:
		v := pop(2)
		mustCat1(v...)
		push(v[0], v[1])
	}
}

// f2i converts with saturation: NaN becomes 0 and out-of-range values clamp.
func f2i(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func f2l(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func compare(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareFloat implements fcmp/dcmp; nanGreater selects the *g variant.
func compareFloat(a, b float64, nanGreater bool) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		if nanGreater {
			return 1
		}
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// executeBranchUnary handles if<cond> instructions that compare against zero.
func executeBranchUnary(frame *Frame, in classfile.Instruction) {
	v := frame.PopInt()
	var taken bool
	switch in.Opcode {
	case classfile.OpIfeq:
		taken = v == 0
	case classfile.OpIfne:
		taken = v != 0
	case classfile.OpIflt:
		taken = v < 0
	case classfile.OpIfge:
		taken = v >= 0
	case classfile.OpIfgt:
		taken = v > 0
	case classfile.OpIfle:
		taken = v <= 0
	}
	if taken {
		frame.Jump(in.Offset, int32(in.I16(0)))
	}
}

// executeBranchBinary handles if_icmp<cond> instructions.
func executeBranchBinary(frame *Frame, in classfile.Instruction) {
	b, a := frame.PopInt(), frame.PopInt()
	var taken bool
	switch in.Opcode {
	case classfile.OpIfIcmpeq:
		taken = a == b
	case classfile.OpIfIcmpne:
		taken = a != b
	case classfile.OpIfIcmplt:
		taken = a < b
	case classfile.OpIfIcmpge:
		taken = a >= b
	case classfile.OpIfIcmpgt:
		taken = a > b
	case classfile.OpIfIcmple:
		taken = a <= b
	}
	if taken {
		frame.Jump(in.Offset, int32(in.I16(0)))
	}
}

func executeTableswitch(frame *Frame, in classfile.Instruction) {
	index := frame.PopInt()
	low, high := in.I32(4), in.I32(8)
	if index < low || index > high {
		frame.Jump(in.Offset, in.I32(0))
		return
	}
	frame.Jump(in.Offset, in.I32(12+int(index-low)*4))
}

func executeLookupswitch(frame *Frame, in classfile.Instruction) {
	key := frame.PopInt()
	npairs := int(in.I32(4))
	for i := 0; i < npairs; i++ {
		if in.I32(8+i*8) == key {
			frame.Jump(in.Offset, in.I32(12+i*8))
			return
		}
	}
	frame.Jump(in.Offset, in.I32(0))
}
