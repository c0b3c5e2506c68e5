package native

import (
	"fmt"
	"io"
	"time"

	"github.com/daimatz/jjvm/pkg/vm"
)

// Host file descriptors behind System.out and System.err.
const (
	fdOut = 1
	fdErr = 2
)

// printStreams resolves a PrintStream's fd field to a host writer.
type printStreams struct {
	out, err io.Writer
}

func (ps printStreams) writer(m *vm.Method, args []vm.Value) (io.Writer, error) {
	obj, err := receiver(m, args)
	if err != nil {
		return nil, err
	}
	switch fd := obj.Fields["fd"].Int; fd {
	case fdOut:
		return ps.out, nil
	case fdErr:
		return ps.err, nil
	default:
		return nil, fmt.Errorf("%w: %s: PrintStream has no host stream for fd %d", vm.ErrInterpreterFault, m, fd)
	}
}

// print writes the single argument, if any, followed by suffix.
func (ps printStreams) print(suffix string) vm.NativeMethod {
	return func(machine *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		w, err := ps.writer(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		var s string
		if len(m.Descriptor.Params) > 0 {
			if s, err = toJavaString(machine, m.Descriptor.Params[0], args[1]); err != nil {
				return vm.Value{}, err
			}
		}
		if _, err := io.WriteString(w, s+suffix); err != nil {
			return vm.Value{}, fmt.Errorf("%s: %w", m, err)
		}
		return vm.Value{}, nil
	}
}

func registerSystem(t Table, ids *identities, stdout, stderr io.Writer) {
	ps := printStreams{out: stdout, err: stderr}
	t.Register(printStreamClass, "println", ps.print("\n"))
	t.Register(printStreamClass, "print", ps.print(""))
	t.Register(printStreamClass, "flush", func(*vm.VM, *vm.Method, []vm.Value) (vm.Value, error) {
		return vm.Value{}, nil
	})

	t.Register(systemClass, "arraycopy", arraycopy)
	t.Register(systemClass, "identityHashCode", func(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(ids.hash(args[0].Ref)), nil
	})
	t.Register(systemClass, "currentTimeMillis", func(*vm.VM, *vm.Method, []vm.Value) (vm.Value, error) {
		return vm.LongValue(time.Now().UnixMilli()), nil
	})
	t.Register(systemClass, "nanoTime", func(*vm.VM, *vm.Method, []vm.Value) (vm.Value, error) {
		return vm.LongValue(time.Now().UnixNano()), nil
	})

	exit := func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		log.Debugf("%s(%d)", m, args[0].Int)
		return vm.Value{}, &vm.ExitError{Code: int(args[0].Int)}
	}
	t.Register(systemClass, "exit", exit)
	t.Register(shutdownClass, "halt0", exit)
}

// arraycopy implements System.arraycopy(src, srcPos, dest, destPos, length).
// Overlapping ranges of the same array copy as if through a temporary.
func arraycopy(_ *vm.VM, _ *vm.Method, args []vm.Value) (vm.Value, error) {
	if args[0].IsNull() || args[2].IsNull() {
		return vm.Value{}, fmt.Errorf("%w: System.arraycopy", vm.ErrNullPointer)
	}
	src, ok1 := args[0].Ref.(*vm.Array)
	dst, ok2 := args[2].Ref.(*vm.Array)
	if !ok1 || !ok2 {
		return vm.Value{}, fmt.Errorf("%w: System.arraycopy: argument is not an array", vm.ErrInterpreterFault)
	}
	srcPos, dstPos, n := int(args[1].Int), int(args[3].Int), int(args[4].Int)
	if srcPos < 0 || dstPos < 0 || n < 0 || srcPos+n > len(src.Elements) || dstPos+n > len(dst.Elements) {
		return vm.Value{}, fmt.Errorf("%w: arraycopy: last source index %d out of bounds for length %d, last destination index %d out of bounds for length %d",
			vm.ErrIndexOutOfBounds, srcPos+n, len(src.Elements), dstPos+n, len(dst.Elements))
	}
	copy(dst.Elements[dstPos:dstPos+n], src.Elements[srcPos:srcPos+n])
	return vm.Value{}, nil
}
