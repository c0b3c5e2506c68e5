package classfile

// AccessFlags is the access_flags bit set of a class, field or method.
type AccessFlags uint16

// Access flags
const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020
	AccSynchronized AccessFlags = 0x0020
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

func (f AccessFlags) IsPublic() bool    { return f&AccPublic != 0 }
func (f AccessFlags) IsPrivate() bool   { return f&AccPrivate != 0 }
func (f AccessFlags) IsStatic() bool    { return f&AccStatic != 0 }
func (f AccessFlags) IsFinal() bool     { return f&AccFinal != 0 }
func (f AccessFlags) IsNative() bool    { return f&AccNative != 0 }
func (f AccessFlags) IsInterface() bool { return f&AccInterface != 0 }
func (f AccessFlags) IsAbstract() bool  { return f&AccAbstract != 0 }

// ClassFile represents a parsed .class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool ConstantPool
	AccessFlags  AccessFlags
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []FieldInfo
	Methods      []MethodInfo
	Attributes   map[string]Attribute
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return cf.ConstantPool.ClassName(cf.ThisClass)
}

// SuperClassName returns the fully qualified name of the super class.
// Returns "" for the root class (SuperClass == 0).
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	name, err := cf.ConstantPool.ClassName(cf.SuperClass)
	if err != nil {
		return ""
	}
	return name
}

// InterfaceNames returns the names of the directly implemented interfaces.
func (cf *ClassFile) InterfaceNames() []string {
	names := make([]string, 0, len(cf.Interfaces))
	for _, idx := range cf.Interfaces {
		if name, err := cf.ConstantPool.ClassName(idx); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// SourceFile returns the SourceFile attribute value, or "".
func (cf *ClassFile) SourceFile() string {
	sf, ok := cf.Attributes[AttrSourceFile].(*SourceFileAttribute)
	if !ok {
		return ""
	}
	name, _ := cf.ConstantPool.Utf8(sf.SourceFileIndex)
	return name
}

// FindMethod finds a method by name and raw descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor.Raw == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindMethodByName finds a method by name only (first match).
func (cf *ClassFile) FindMethodByName(name string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name.
func (cf *ClassFile) FindField(name string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name {
			return &cf.Fields[i]
		}
	}
	return nil
}

// FieldInfo represents a field in a class file.
type FieldInfo struct {
	AccessFlags AccessFlags
	Name        string
	Type        FieldType
	Attributes  map[string]Attribute
}

// ConstantValue returns the field's ConstantValue attribute, or nil.
func (f *FieldInfo) ConstantValue() *ConstantValueAttribute {
	cv, _ := f.Attributes[AttrConstantValue].(*ConstantValueAttribute)
	return cv
}

// MethodInfo represents a method in a class file.
type MethodInfo struct {
	AccessFlags AccessFlags
	Name        string
	Descriptor  MethodDescriptor
	Attributes  map[string]Attribute
}

// Code returns the method's Code attribute, or nil for native and abstract methods.
func (m *MethodInfo) Code() *CodeAttribute {
	code, _ := m.Attributes[AttrCode].(*CodeAttribute)
	return code
}

// IsStatic reports whether the method is static.
func (m *MethodInfo) IsStatic() bool { return m.AccessFlags.IsStatic() }

// IsNative reports whether the method body is supplied by the host.
func (m *MethodInfo) IsNative() bool { return m.AccessFlags.IsNative() }
