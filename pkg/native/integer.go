package native

import (
	"fmt"
	"strconv"

	"github.com/daimatz/jjvm/pkg/vm"
)

// IntegerValueOf boxes v in a new java/lang/Integer.
func IntegerValueOf(machine *vm.VM, v int32) (*vm.Object, error) {
	obj, err := machine.ConstructObject(integerClass)
	if err != nil {
		return nil, err
	}
	obj.Fields["value"] = vm.IntValue(v)
	return obj, nil
}

// IntegerIntValue unboxes a java/lang/Integer reference.
func IntegerIntValue(v vm.Value) (int32, bool) {
	obj, ok := v.Ref.(*vm.Object)
	if !ok || obj == nil || obj.ClassName != integerClass {
		return 0, false
	}
	return obj.Fields["value"].Int, true
}

func registerInteger(t Table) {
	t.Register(integerClass, "valueOf", func(machine *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		v := args[0].Int
		if param(m, 0) == "Ljava/lang/String;" {
			n, err := parseInt(args[0])
			if err != nil {
				return vm.Value{}, err
			}
			v = n
		}
		obj, err := IntegerValueOf(machine, v)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.RefValue(obj), nil
	})
	t.Register(integerClass, "parseInt", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		n, err := parseInt(args[0])
		if err != nil {
			return vm.Value{}, err
		}
		return vm.IntValue(n), nil
	})
	t.Register(integerClass, "toString", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		if m.IsStatic() {
			return vm.StringValue(strconv.Itoa(int(args[0].Int))), nil
		}
		v, ok := IntegerIntValue(args[0])
		if !ok {
			return vm.Value{}, fmt.Errorf("%w: %s: receiver is not an Integer", vm.ErrInterpreterFault, m)
		}
		return vm.StringValue(strconv.Itoa(int(v))), nil
	})
	t.Register(integerClass, "hashCode", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		v, _ := IntegerIntValue(args[0])
		return vm.IntValue(v), nil
	})
	t.Register(integerClass, "equals", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		a, _ := IntegerIntValue(args[0])
		b, ok := IntegerIntValue(args[1])
		return vm.BoolValue(ok && a == b), nil
	})
}

func parseInt(v vm.Value) (int32, error) {
	s, ok := vm.GoString(v)
	if !ok {
		return 0, fmt.Errorf("%w: Integer.parseInt(null)", vm.ErrNullPointer)
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: number format: %w", vm.ErrUncaughtThrowable, err)
	}
	return int32(n), nil
}
