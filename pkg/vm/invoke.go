package vm

import (
	"fmt"
	"strings"

	"github.com/daimatz/jjvm/pkg/classfile"
)

// CallStatic invokes a static method declared by class or a superclass.
func (vm *VM) CallStatic(class *Class, name, descriptor string, args []Value) (Value, error) {
	m, err := vm.resolveMethod(class, name, descriptor)
	if err != nil {
		return Value{}, err
	}
	return vm.invoke(m, args)
}

// CallVirtual invokes an instance method, searching from the runtime class
// of the receiver in args[0].
func (vm *VM) CallVirtual(name, descriptor string, args []Value) (Value, error) {
	class, err := vm.receiverClass(name, args)
	if err != nil {
		return Value{}, err
	}
	m, err := vm.resolveMethod(class, name, descriptor)
	if err != nil {
		return Value{}, err
	}
	return vm.invoke(m, args)
}

// CallSpecial invokes an instance method searching from class rather than
// the receiver: constructors, private methods and super calls. A missing
// no-argument constructor is treated as empty.
func (vm *VM) CallSpecial(class *Class, name, descriptor string, args []Value) (Value, error) {
	if len(args) == 0 || args[0].IsNull() {
		return Value{}, fmt.Errorf("%w: invoking %s.%s%s on null", ErrNullPointer, class.Name, name, descriptor)
	}
	m, err := vm.resolveMethod(class, name, descriptor)
	if err != nil {
		if name == "<init>" && descriptor == "()V" {
			return Value{}, nil
		}
		return Value{}, err
	}
	return vm.invoke(m, args)
}

// CallInterface invokes an interface method on the receiver in args[0],
// falling back to default methods of its superinterfaces.
func (vm *VM) CallInterface(name, descriptor string, args []Value) (Value, error) {
	return vm.CallVirtual(name, descriptor, args)
}

func (vm *VM) receiverClass(name string, args []Value) (*Class, error) {
	if len(args) == 0 || args[0].IsNull() {
		return nil, fmt.Errorf("%w: invoking %s on null", ErrNullPointer, name)
	}
	className := runtimeClassName(args[0])
	if className == "" {
		return nil, fault("receiver of %s is not a reference: %s", name, args[0])
	}
	if strings.HasPrefix(className, "[") || className == "java/lang/Class" {
		className = "java/lang/Object"
	}
	return vm.Class(className)
}

// resolveMethod finds an exact name/descriptor match walking the superclass
// chain, then the superinterfaces for a default method.
func (vm *VM) resolveMethod(class *Class, name, descriptor string) (*Method, error) {
	for c := class; c != nil; c = c.Super {
		if m := c.FindMethod(name, descriptor); m != nil {
			return m, nil
		}
	}

	var abstract *Method
	for c := class; c != nil; c = c.Super {
		m, err := vm.findInterfaceMethod(c, name, descriptor)
		if err != nil {
			return nil, err
		}
		if m != nil && !m.AccessFlags.IsAbstract() {
			return m, nil
		}
		if m != nil && abstract == nil {
			abstract = m
		}
	}
	if abstract != nil {
		return abstract, nil
	}
	return nil, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, class.Name, name, descriptor)
}

// findInterfaceMethod searches c's superinterfaces depth first, preferring
// a method with a body.
func (vm *VM) findInterfaceMethod(c *Class, name, descriptor string) (*Method, error) {
	var found *Method
	for _, iname := range c.File.InterfaceNames() {
		iface, err := vm.Class(iname)
		if err != nil {
			return nil, err
		}
		m := iface.FindMethod(name, descriptor)
		if m == nil || m.AccessFlags.IsAbstract() {
			sub, err := vm.findInterfaceMethod(iface, name, descriptor)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				m = sub
			}
		}
		if m != nil && !m.AccessFlags.IsAbstract() {
			return m, nil
		}
		if m != nil && found == nil {
			found = m
		}
	}
	return found, nil
}

// invoke runs a resolved method: bytecode through the interpreter, native
// methods through the registry.
func (vm *VM) invoke(m *Method, args []Value) (Value, error) {
	if m.AccessFlags.IsAbstract() {
		return Value{}, fmt.Errorf("%w: %s", ErrAbstractMethod, m)
	}

	vm.frameDepth++
	defer func() { vm.frameDepth-- }()
	if vm.frameDepth > vm.maxDepth {
		return Value{}, fmt.Errorf("%w: frame depth exceeded %d at %s", ErrStackOverflow, vm.maxDepth, m)
	}

	if vm.trace {
		log.Infof("%s-> %s", strings.Repeat("  ", vm.frameDepth-1), m)
	}

	if m.IsNative() {
		return vm.invokeNative(m, args)
	}
	return vm.Execute(m.Class, m.MethodInfo, args)
}

func (vm *VM) invokeNative(m *Method, args []Value) (Value, error) {
	if vm.natives == nil {
		return Value{}, fmt.Errorf("%w: %s (no native registry)", ErrUnsupportedNative, m)
	}
	fn, ok := vm.natives.LookupNative(m.Class.Name, m.Name)
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedNative, m)
	}
	ret, err := fn(vm, m, args)
	if err != nil {
		return Value{}, err
	}
	if rt := m.Descriptor.Return; rt != nil {
		ret = coerce(rt, ret)
	}
	return ret, nil
}

// ConstructObject allocates an instance of className with every instance
// field, superclass fields first, set to its default value. No constructor
// runs.
func (vm *VM) ConstructObject(className string) (*Object, error) {
	class, err := vm.Class(className)
	if err != nil {
		return nil, err
	}
	if class.IsInterface() || class.File.AccessFlags.IsAbstract() {
		return nil, fault("cannot instantiate %s", className)
	}

	var chain []*Class
	for c := class; c != nil; c = c.Super {
		chain = append(chain, c)
	}
	obj := &Object{ClassName: className, Fields: make(map[string]Value)}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, f := range chain[i].File.Fields {
			if !f.AccessFlags.IsStatic() {
				obj.Fields[f.Name] = DefaultValue(f.Type)
			}
		}
	}
	return obj, nil
}

// staticOwner finds the class declaring static field name: the class
// itself, then its superinterfaces, then its superclass.
func (vm *VM) staticOwner(class *Class, name string) (*Class, *classfile.FieldInfo, error) {
	for c := class; c != nil; c = c.Super {
		if f := c.File.FindField(name); f != nil && f.AccessFlags.IsStatic() {
			return c, f, nil
		}
		owner, f, err := vm.interfaceStaticOwner(c, name)
		if err != nil || owner != nil {
			return owner, f, err
		}
	}
	return nil, nil, fmt.Errorf("%w: static %s.%s", ErrNoSuchField, class.Name, name)
}

func (vm *VM) interfaceStaticOwner(c *Class, name string) (*Class, *classfile.FieldInfo, error) {
	for _, iname := range c.File.InterfaceNames() {
		iface, err := vm.Class(iname)
		if err != nil {
			return nil, nil, err
		}
		if f := iface.File.FindField(name); f != nil && f.AccessFlags.IsStatic() {
			return iface, f, nil
		}
		owner, f, err := vm.interfaceStaticOwner(iface, name)
		if err != nil || owner != nil {
			return owner, f, err
		}
	}
	return nil, nil, nil
}

// GetStatic reads a static field visible from class.
func (vm *VM) GetStatic(class *Class, name string) (Value, error) {
	owner, _, err := vm.staticOwner(class, name)
	if err != nil {
		return Value{}, err
	}
	return owner.Statics[name], nil
}

// PutStatic writes a static field visible from class, narrowing int values
// to the declared type.
func (vm *VM) PutStatic(class *Class, name string, v Value) error {
	owner, f, err := vm.staticOwner(class, name)
	if err != nil {
		return err
	}
	owner.Statics[name] = coerce(f.Type, v)
	return nil
}

