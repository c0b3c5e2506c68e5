package vm

import (
	"fmt"

	"github.com/daimatz/jjvm/pkg/classfile"
)

// ClassLoader supplies raw class file bytes by binary class name
// (e.g. "java/lang/String").
type ClassLoader interface {
	ReadClass(name string) ([]byte, error)
}

// NativeMethod implements a native method on the host. args includes the
// receiver for instance methods.
type NativeMethod func(vm *VM, m *Method, args []Value) (Value, error)

// NativeRegistry looks up native method implementations by declaring class
// and method name.
type NativeRegistry interface {
	LookupNative(class, method string) (NativeMethod, bool)
}

// ClassState tracks class initialization.
type ClassState int

const (
	StateRegistered ClassState = iota
	StateInitializing
	StateReady
)

func (s ClassState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("ClassState(%d)", int(s))
}

// Class is a loaded class.
type Class struct {
	Name    string
	File    *classfile.ClassFile
	Super   *Class
	Statics map[string]Value
	State   ClassState

	methods []*Method
}

func newClass(name string, cf *classfile.ClassFile) *Class {
	c := &Class{
		Name:    name,
		File:    cf,
		Statics: make(map[string]Value),
		methods: make([]*Method, len(cf.Methods)),
	}
	for i := range cf.Methods {
		c.methods[i] = &Method{Class: c, MethodInfo: &cf.Methods[i]}
	}
	return c
}

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool {
	return c.File.AccessFlags.IsInterface()
}

// FindMethod returns a method declared by this class, or nil.
func (c *Class) FindMethod(name, descriptor string) *Method {
	for _, m := range c.methods {
		if m.Name == name && m.Descriptor.Raw == descriptor {
			return m
		}
	}
	return nil
}

func (c *Class) String() string { return c.Name }

// Method is a method bound to its declaring class.
type Method struct {
	Class *Class
	*classfile.MethodInfo
}

func (m *Method) String() string {
	return m.Class.Name + "." + m.Name + m.Descriptor.Raw
}
