package native

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/daimatz/jjvm/pkg/classfile"
	"github.com/daimatz/jjvm/pkg/vm"
)

func encodeUTF16(s string) []uint16 { return utf16.Encode([]rune(s)) }

func decodeUTF16(units []uint16) string { return string(utf16.Decode(units)) }

func registerObject(t Table, ids *identities) {
	t.Register(objectClass, "hashCode", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(ids.hash(args[0].Ref)), nil
	})
	t.Register(objectClass, "equals", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.BoolValue(args[0].Ref == args[1].Ref), nil
	})
	t.Register(objectClass, "toString", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		name := args[0].Type.Descriptor()
		if obj, ok := args[0].Ref.(*vm.Object); ok {
			name = strings.ReplaceAll(obj.ClassName, "/", ".")
		}
		return vm.StringValue(fmt.Sprintf("%s@%x", name, uint32(ids.hash(args[0].Ref)))), nil
	})
}

// thisString returns the host string behind a String receiver.
func thisString(m *vm.Method, args []vm.Value) (string, error) {
	if len(args) == 0 || args[0].IsNull() {
		return "", fmt.Errorf("%w: %s on null", vm.ErrNullPointer, m)
	}
	s, ok := vm.GoString(args[0])
	if !ok {
		return "", fmt.Errorf("%w: %s: receiver is not a string", vm.ErrInterpreterFault, m)
	}
	return s, nil
}

func registerString(t Table) {
	t.Register(stringClass, "length", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		s, err := thisString(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.IntValue(int32(len(encodeUTF16(s)))), nil
	})
	t.Register(stringClass, "isEmpty", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		s, err := thisString(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.BoolValue(s == ""), nil
	})
	t.Register(stringClass, "charAt", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		s, err := thisString(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		units := encodeUTF16(s)
		i := args[1].Int
		if i < 0 || int(i) >= len(units) {
			return vm.Value{}, fmt.Errorf("%w: index %d, length %d", vm.ErrIndexOutOfBounds, i, len(units))
		}
		return vm.TypedIntValue(classfile.Char, int32(units[i])), nil
	})
	t.Register(stringClass, "equals", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		s, err := thisString(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		other, ok := vm.GoString(args[1])
		return vm.BoolValue(ok && other == s), nil
	})
	t.Register(stringClass, "hashCode", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		s, err := thisString(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.IntValue(stringHash(s)), nil
	})
	t.Register(stringClass, "concat", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		s, err := thisString(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		other, ok := vm.GoString(args[1])
		if !ok {
			return vm.Value{}, fmt.Errorf("%w: String.concat(null)", vm.ErrNullPointer)
		}
		return vm.StringValue(s + other), nil
	})
	t.Register(stringClass, "toString", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		if _, err := thisString(m, args); err != nil {
			return vm.Value{}, err
		}
		return args[0], nil
	})
	t.Register(stringClass, "valueOf", func(machine *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		s, err := toJavaString(machine, m.Descriptor.Params[0], args[0])
		if err != nil {
			return vm.Value{}, err
		}
		return vm.StringValue(s), nil
	})
}

// stringHash is s[0]*31^(n-1) + ... + s[n-1] over UTF-16 code units.
func stringHash(s string) int32 {
	var h int32
	for _, u := range encodeUTF16(s) {
		h = 31*h + int32(u)
	}
	return h
}

func builderOf(m *vm.Method, args []vm.Value) (*vm.Object, *strings.Builder, error) {
	obj, err := receiver(m, args)
	if err != nil {
		return nil, nil, err
	}
	sb, ok := obj.Native.(*strings.Builder)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s: StringBuilder not constructed", vm.ErrInterpreterFault, m)
	}
	return obj, sb, nil
}

func registerStringBuilder(t Table) {
	t.Register(stringBuilderClass, "<init>", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		obj, err := receiver(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		sb := new(strings.Builder)
		if param(m, 0) == "Ljava/lang/String;" {
			s, ok := vm.GoString(args[1])
			if !ok {
				return vm.Value{}, fmt.Errorf("%w: new StringBuilder(null)", vm.ErrNullPointer)
			}
			sb.WriteString(s)
		}
		obj.Native = sb
		return vm.Value{}, nil
	})
	t.Register(stringBuilderClass, "append", func(machine *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		_, sb, err := builderOf(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		s, err := toJavaString(machine, m.Descriptor.Params[0], args[1])
		if err != nil {
			return vm.Value{}, err
		}
		sb.WriteString(s)
		return args[0], nil
	})
	t.Register(stringBuilderClass, "length", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		_, sb, err := builderOf(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.IntValue(int32(len(encodeUTF16(sb.String())))), nil
	})
	t.Register(stringBuilderClass, "toString", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		_, sb, err := builderOf(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.StringValue(sb.String()), nil
	})
}

func registerMath(t Table) {
	t.Register(mathClass, "abs", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		v := args[0]
		switch param(m, 0) {
		case "J":
			if v.Long < 0 {
				return vm.LongValue(-v.Long), nil
			}
			return v, nil
		case "F":
			return vm.FloatValue(float32(math.Abs(float64(v.Float)))), nil
		case "D":
			return vm.DoubleValue(math.Abs(v.Double)), nil
		}
		if v.Int < 0 {
			return vm.IntValue(-v.Int), nil
		}
		return vm.IntValue(v.Int), nil
	})
	minmax := func(isMax bool) vm.NativeMethod {
		return func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
			a, b := args[0], args[1]
			switch param(m, 0) {
			case "J":
				if (a.Long > b.Long) == isMax {
					return a, nil
				}
				return b, nil
			case "F":
				if isMax {
					return vm.FloatValue(float32(math.Max(float64(a.Float), float64(b.Float)))), nil
				}
				return vm.FloatValue(float32(math.Min(float64(a.Float), float64(b.Float)))), nil
			case "D":
				if isMax {
					return vm.DoubleValue(math.Max(a.Double, b.Double)), nil
				}
				return vm.DoubleValue(math.Min(a.Double, b.Double)), nil
			}
			if (a.Int > b.Int) == isMax {
				return vm.IntValue(a.Int), nil
			}
			return vm.IntValue(b.Int), nil
		}
	}
	t.Register(mathClass, "max", minmax(true))
	t.Register(mathClass, "min", minmax(false))

	unary := map[string]func(float64) float64{
		"sqrt":  math.Sqrt,
		"floor": math.Floor,
		"ceil":  math.Ceil,
	}
	for name, fn := range unary {
		t.Register(mathClass, name, func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
			return vm.DoubleValue(fn(args[0].Double)), nil
		})
	}
	t.Register(mathClass, "pow", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.DoubleValue(math.Pow(args[0].Double, args[1].Double)), nil
	})
}

func registerFloat(t Table) {
	t.Register(floatClass, "floatToRawIntBits", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(int32(math.Float32bits(args[0].Float))), nil
	})
	t.Register(floatClass, "floatToIntBits", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		if math.IsNaN(float64(args[0].Float)) {
			return vm.IntValue(0x7fc00000), nil
		}
		return vm.IntValue(int32(math.Float32bits(args[0].Float))), nil
	})
	t.Register(floatClass, "intBitsToFloat", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.FloatValue(math.Float32frombits(uint32(args[0].Int))), nil
	})
	t.Register(floatClass, "isNaN", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.BoolValue(math.IsNaN(float64(args[0].Float))), nil
	})
	t.Register(floatClass, "toString", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.StringValue(formatFloating(float64(args[0].Float), 32)), nil
	})

	t.Register(doubleClass, "doubleToRawLongBits", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.LongValue(int64(math.Float64bits(args[0].Double))), nil
	})
	t.Register(doubleClass, "doubleToLongBits", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		if math.IsNaN(args[0].Double) {
			return vm.LongValue(0x7ff8000000000000), nil
		}
		return vm.LongValue(int64(math.Float64bits(args[0].Double))), nil
	})
	t.Register(doubleClass, "longBitsToDouble", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.DoubleValue(math.Float64frombits(uint64(args[0].Long))), nil
	})
	t.Register(doubleClass, "isNaN", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.BoolValue(math.IsNaN(args[0].Double)), nil
	})
	t.Register(doubleClass, "toString", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.StringValue(formatFloating(args[0].Double, 64)), nil
	})
}
