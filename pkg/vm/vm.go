package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jjvm/pkg/classfile"
	"github.com/daimatz/jjvm/pkg/classpath"
)

// DefaultMaxFrameDepth is the default maximum number of nested method calls.
const DefaultMaxFrameDepth = 1024

var log = commonlog.GetLogger("jjvm.vm")

// VM is the virtual machine that executes Java bytecode. It owns the class
// registry and is not safe for concurrent use.
type VM struct {
	loader     ClassLoader
	natives    NativeRegistry
	classes    map[string]*Class
	skipClinit map[string]bool
	maxDepth   int
	trace      bool

	frameDepth int
	linking    map[string]bool
}

// Option configures a VM.
type Option func(*VM)

// WithNatives sets the native method registry.
func WithNatives(n NativeRegistry) Option {
	return func(vm *VM) { vm.natives = n }
}

// WithSkipClinit names classes whose <clinit> must not run.
func WithSkipClinit(names ...string) Option {
	return func(vm *VM) {
		for _, n := range names {
			vm.skipClinit[n] = true
		}
	}
}

// WithMaxFrameDepth bounds call nesting. Values <= 0 keep the default.
func WithMaxFrameDepth(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.maxDepth = n
		}
	}
}

// WithTrace logs every method invocation at info level.
func WithTrace(on bool) Option {
	return func(vm *VM) { vm.trace = on }
}

// New creates a VM that loads classes from loader.
func New(loader ClassLoader, opts ...Option) *VM {
	vm := &VM{
		loader:     loader,
		classes:    make(map[string]*Class),
		skipClinit: make(map[string]bool),
		maxDepth:   DefaultMaxFrameDepth,
		linking:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Run loads className and invokes its main([Ljava/lang/String;)V.
func (vm *VM) Run(className string, args []string) error {
	class, err := vm.Class(className)
	if err != nil {
		return err
	}
	main := class.FindMethod("main", "([Ljava/lang/String;)V")
	if main == nil || !main.IsStatic() {
		return fmt.Errorf("%w: %s.main([Ljava/lang/String;)V", ErrNoSuchMethod, className)
	}
	_, err = vm.invoke(main, []Value{RefValue(NewStringArray(args))})
	return err
}

// LoadedClass returns an already registered class without loading it.
func (vm *VM) LoadedClass(name string) (*Class, bool) {
	c, ok := vm.classes[name]
	return c, ok
}

// Class returns the named class, loading and initializing it on first use.
// A class is registered before its <clinit> runs, so a class that refers to
// itself during initialization sees its default statics.
func (vm *VM) Class(name string) (*Class, error) {
	class, err := vm.load(name)
	if err != nil {
		return nil, err
	}
	if err := vm.initialize(class); err != nil {
		return nil, err
	}
	return class, nil
}

// load reads, parses and registers a class after loading its superclass
// chain. No <clinit> runs here, so every registered class is fully linked.
func (vm *VM) load(name string) (*Class, error) {
	if c, ok := vm.classes[name]; ok {
		return c, nil
	}
	if vm.loader == nil {
		return nil, fmt.Errorf("%w: %s (no class loader)", ErrClassNotFound, name)
	}
	if vm.linking[name] {
		return nil, fmt.Errorf("loading %s: circular superclass chain", name)
	}

	data, err := vm.loader.ReadClass(name)
	if err != nil {
		if errors.Is(err, classpath.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
		}
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	if got, _ := cf.ClassName(); got != name {
		return nil, fmt.Errorf("%w: %s (class file declares %s)", ErrClassNotFound, name, got)
	}

	class := newClass(name, cf)
	if super := cf.SuperClassName(); super != "" {
		vm.linking[name] = true
		class.Super, err = vm.load(super)
		delete(vm.linking, name)
		if err != nil {
			return nil, fmt.Errorf("loading superclass of %s: %w", name, err)
		}
	}
	if err := vm.initStatics(class); err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	vm.classes[name] = class
	log.Debugf("registered class %s", name)
	return class, nil
}

// initialize runs the superclass initializers and then the class's own
// <clinit>. A class already initializing or ready is left alone. On failure
// the class is unregistered so a later lookup reports the error again.
func (vm *VM) initialize(class *Class) error {
	if class.State != StateRegistered {
		return nil
	}
	class.State = StateInitializing

	if class.Super != nil {
		if err := vm.initialize(class.Super); err != nil {
			delete(vm.classes, class.Name)
			return fmt.Errorf("initializing superclass of %s: %w", class.Name, err)
		}
	}

	if vm.skipClinit[class.Name] {
		log.Debugf("skipping <clinit> of %s", class.Name)
	} else if clinit := class.FindMethod("<clinit>", "()V"); clinit != nil {
		log.Debugf("running <clinit> of %s", class.Name)
		if _, err := vm.invoke(clinit, nil); err != nil {
			delete(vm.classes, class.Name)
			return err
		}
	}

	class.State = StateReady
	log.Debugf("class %s ready", class.Name)
	return nil
}

// initStatics gives every static field its default or ConstantValue.
func (vm *VM) initStatics(class *Class) error {
	pool := class.File.ConstantPool
	for i := range class.File.Fields {
		f := &class.File.Fields[i]
		if !f.AccessFlags.IsStatic() {
			continue
		}
		v := DefaultValue(f.Type)
		if cv := f.ConstantValue(); cv != nil {
			var err error
			if v, err = constantValue(pool, cv.ValueIndex, f.Type); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		class.Statics[f.Name] = v
	}
	return nil
}

// constantValue converts a ConstantValue pool entry to a Value of type ft.
func constantValue(pool classfile.ConstantPool, index uint16, ft classfile.FieldType) (Value, error) {
	entry, err := pool.Entry(index)
	if err != nil {
		return Value{}, err
	}
	switch c := entry.(type) {
	case *classfile.ConstantInteger:
		if bt, ok := ft.(classfile.BaseType); ok {
			return TypedIntValue(bt, c.Value), nil
		}
		return IntValue(c.Value), nil
	case *classfile.ConstantLong:
		return LongValue(c.Value), nil
	case *classfile.ConstantFloat:
		return FloatValue(c.Value), nil
	case *classfile.ConstantDouble:
		return DoubleValue(c.Value), nil
	case *classfile.ConstantString:
		s, err := pool.Utf8(c.StringIndex)
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	}
	return Value{}, fault("constant pool index %d (tag=%d) is not a loadable constant", index, entry.Tag())
}

// ldcValue loads a constant for ldc, ldc_w and ldc2_w.
func ldcValue(pool classfile.ConstantPool, index uint16) (Value, error) {
	entry, err := pool.Entry(index)
	if err != nil {
		return Value{}, fault("ldc: %v", err)
	}
	if c, ok := entry.(*classfile.ConstantClass); ok {
		name, err := pool.Utf8(c.NameIndex)
		if err != nil {
			return Value{}, fault("ldc: %v", err)
		}
		return RefValue(&ClassRef{Name: name}), nil
	}
	return constantValue(pool, index, nil)
}

// IsAssignable reports whether a value of class (or array descriptor) from
// can be stored where to is expected.
func (vm *VM) IsAssignable(from, to string) (bool, error) {
	if from == to || to == "java/lang/Object" {
		return true, nil
	}
	if strings.HasPrefix(from, "[") {
		if !strings.HasPrefix(to, "[") {
			return to == "java/lang/Cloneable" || to == "java/io/Serializable", nil
		}
		fromElem, toElem := from[1:], to[1:]
		fromObj := strings.HasPrefix(fromElem, "L") || strings.HasPrefix(fromElem, "[")
		toObj := strings.HasPrefix(toElem, "L") || strings.HasPrefix(toElem, "[")
		if !fromObj || !toObj {
			return false, nil
		}
		return vm.IsAssignable(elemClassName(fromElem), elemClassName(toElem))
	}
	if strings.HasPrefix(to, "[") {
		return false, nil
	}

	class, err := vm.Class(from)
	if err != nil {
		return false, err
	}
	for c := class; c != nil; c = c.Super {
		if c.Name == to {
			return true, nil
		}
		ok, err := vm.implements(c, to)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (vm *VM) implements(c *Class, iface string) (bool, error) {
	for _, name := range c.File.InterfaceNames() {
		if name == iface {
			return true, nil
		}
		ic, err := vm.Class(name)
		if err != nil {
			return false, err
		}
		ok, err := vm.implements(ic, iface)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// elemClassName strips the L...; wrapper from an element descriptor.
func elemClassName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// runtimeClassName returns the class name (or array descriptor) of a reference.
func runtimeClassName(v Value) string {
	switch r := v.Ref.(type) {
	case *Object:
		return r.ClassName
	case *Array:
		return "[" + r.Elem.Descriptor()
	case *ClassRef:
		return "java/lang/Class"
	}
	return ""
}

