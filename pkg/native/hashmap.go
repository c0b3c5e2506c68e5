package native

import (
	"fmt"

	"github.com/daimatz/jjvm/pkg/vm"
)

// HashMap is the host peer of a java.util.HashMap. Strings and Integers are
// keyed by value, every other reference by identity.
type HashMap struct {
	Data map[any]vm.Value
}

// NewHashMap creates an empty HashMap.
func NewHashMap() *HashMap {
	return &HashMap{Data: make(map[any]vm.Value)}
}

type stringKey string

func mapKey(key vm.Value) any {
	if key.IsNull() {
		return nil
	}
	if s, ok := vm.GoString(key); ok {
		return stringKey(s)
	}
	if n, ok := IntegerIntValue(key); ok {
		return n
	}
	return key.Ref
}

// Get returns the value for key, or null.
func (m *HashMap) Get(key vm.Value) vm.Value {
	return m.Data[mapKey(key)]
}

// Put stores a key-value pair and returns the previous value, or null.
func (m *HashMap) Put(key, value vm.Value) vm.Value {
	k := mapKey(key)
	old := m.Data[k]
	m.Data[k] = value
	return old
}

// ContainsKey reports whether key has a mapping.
func (m *HashMap) ContainsKey(key vm.Value) bool {
	_, ok := m.Data[mapKey(key)]
	return ok
}

func hashMapOf(meth *vm.Method, args []vm.Value) (*HashMap, error) {
	obj, err := receiver(meth, args)
	if err != nil {
		return nil, err
	}
	hm, ok := obj.Native.(*HashMap)
	if !ok {
		return nil, fmt.Errorf("%w: %s: HashMap not constructed", vm.ErrInterpreterFault, meth)
	}
	return hm, nil
}

func registerHashMap(t Table) {
	t.Register(hashMapClass, "<init>", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		obj, err := receiver(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		obj.Native = NewHashMap()
		return vm.Value{}, nil
	})
	t.Register(hashMapClass, "get", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		hm, err := hashMapOf(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		return hm.Get(args[1]), nil
	})
	t.Register(hashMapClass, "put", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		hm, err := hashMapOf(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		return hm.Put(args[1], args[2]), nil
	})
	t.Register(hashMapClass, "containsKey", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		hm, err := hashMapOf(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.BoolValue(hm.ContainsKey(args[1])), nil
	})
	t.Register(hashMapClass, "size", func(_ *vm.VM, m *vm.Method, args []vm.Value) (vm.Value, error) {
		hm, err := hashMapOf(m, args)
		if err != nil {
			return vm.Value{}, err
		}
		return vm.IntValue(int32(len(hm.Data))), nil
	})
}
