// Package native provides the host side of the class library: intrinsic
// implementations of native methods and a class path entry that synthesizes
// the library classes declaring them.
package native

import (
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jjvm/pkg/vm"
)

var log = commonlog.GetLogger("jjvm.native")

// Table maps (declaring class, method name) to an intrinsic. Overloads share
// one entry and dispatch on the method descriptor.
type Table map[string]vm.NativeMethod

func key(class, method string) string { return class + "." + method }

// Register adds or replaces the intrinsic for class.method.
func (t Table) Register(class, method string, fn vm.NativeMethod) {
	t[key(class, method)] = fn
}

// LookupNative implements vm.NativeRegistry.
func (t Table) LookupNative(class, method string) (vm.NativeMethod, bool) {
	fn, ok := t[key(class, method)]
	return fn, ok
}

// Default returns the intrinsics for the classes served by Library.
// System.out and System.err print to stdout and stderr.
func Default(stdout, stderr io.Writer) Table {
	t := make(Table)
	ids := newIdentities()

	registerObject(t, ids)
	registerString(t)
	registerStringBuilder(t)
	registerSystem(t, ids, stdout, stderr)
	registerInteger(t)
	registerMath(t)
	registerFloat(t)
	registerHashMap(t)

	noop := func(*vm.VM, *vm.Method, []vm.Value) (vm.Value, error) { return vm.Value{}, nil }
	for _, c := range []string{objectClass, systemClass} {
		t.Register(c, "registerNatives", noop)
	}
	log.Debugf("registered %d intrinsics", len(t))
	return t
}

// identities hands out stable identity hash codes.
type identities struct {
	codes map[any]int32
	next  int32
}

func newIdentities() *identities {
	return &identities{codes: make(map[any]int32), next: 0x1b6d3586}
}

func (ids *identities) hash(ref any) int32 {
	if ref == nil {
		return 0
	}
	if h, ok := ids.codes[ref]; ok {
		return h
	}
	h := ids.next
	ids.next = ids.next*1103515245 + 12345
	ids.codes[ref] = h
	return h
}

func receiver(m *vm.Method, args []vm.Value) (*vm.Object, error) {
	if len(args) == 0 || args[0].IsNull() {
		return nil, fmt.Errorf("%w: %s on null", vm.ErrNullPointer, m)
	}
	obj, ok := args[0].Ref.(*vm.Object)
	if !ok {
		return nil, fmt.Errorf("%w: %s: receiver %s is not an object", vm.ErrInterpreterFault, m, args[0])
	}
	return obj, nil
}

// param returns the declared type of the i-th parameter.
func param(m *vm.Method, i int) string {
	if i >= len(m.Descriptor.Params) {
		return ""
	}
	return m.Descriptor.Params[i].Descriptor()
}
