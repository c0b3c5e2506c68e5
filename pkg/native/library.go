package native

import (
	"fmt"
	"sort"

	"github.com/daimatz/jjvm/pkg/classfile"
	"github.com/daimatz/jjvm/pkg/classgen"
	"github.com/daimatz/jjvm/pkg/classpath"
)

const (
	objectClass        = "java/lang/Object"
	stringClass        = "java/lang/String"
	stringBuilderClass = "java/lang/StringBuilder"
	systemClass        = "java/lang/System"
	shutdownClass      = "java/lang/Shutdown"
	integerClass       = "java/lang/Integer"
	mathClass          = "java/lang/Math"
	floatClass         = "java/lang/Float"
	doubleClass        = "java/lang/Double"
	printStreamClass   = "java/io/PrintStream"
	mapClass           = "java/util/Map"
	hashMapClass       = "java/util/HashMap"
)

const (
	pub       = classfile.AccPublic
	pubStatic = classfile.AccPublic | classfile.AccStatic
	pubNative = classfile.AccPublic | classfile.AccNative
	statNat   = classfile.AccPublic | classfile.AccStatic | classfile.AccNative
	pubAbs    = classfile.AccPublic | classfile.AccAbstract
	privNat   = classfile.AccPrivate | classfile.AccStatic | classfile.AccNative
)

// Library is a class path entry serving minimal class files for the host
// class library. Their native methods are implemented by Default.
type Library struct {
	cache map[string][]byte
}

// NewLibrary creates an empty Library. Classes are synthesized on first read.
func NewLibrary() *Library {
	return &Library{cache: make(map[string][]byte)}
}

var libraryClasses = map[string]func() *classgen.Builder{
	objectClass:        buildObject,
	stringClass:        buildString,
	stringBuilderClass: buildStringBuilder,
	systemClass:        buildSystem,
	shutdownClass:      buildShutdown,
	printStreamClass:   buildPrintStream,
	integerClass:       buildInteger,
	mathClass:          buildMath,
	floatClass:         buildFloat,
	doubleClass:        buildDouble,
	mapClass:           buildMap,
	hashMapClass:       buildHashMap,
}

// Classes lists the class names a Library serves, sorted.
func Classes() []string {
	names := make([]string, 0, len(libraryClasses))
	for n := range libraryClasses {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (l *Library) ReadClass(name string) ([]byte, error) {
	if data, ok := l.cache[name]; ok {
		return data, nil
	}
	build, ok := libraryClasses[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in host library", classpath.ErrNotFound, name)
	}
	data := build().SourceFile("<host>").Bytes()
	l.cache[name] = data
	log.Debugf("synthesized %s (%d bytes)", name, len(data))
	return data, nil
}

func (l *Library) String() string { return "<host library>" }

// natives declares one native method per descriptor.
func natives(b *classgen.Builder, access classfile.AccessFlags, name string, descriptors ...string) {
	for _, d := range descriptors {
		b.Method(access|classfile.AccNative, name, d)
	}
}

// emptyInit adds a <init>()V that only calls the superclass constructor, or
// just returns for the root class.
func emptyInit(b *classgen.Builder, super string) {
	a := new(classgen.Asm)
	if super != "" {
		a.Op(classfile.OpAload0).U16(classfile.OpInvokespecial, b.Methodref(super, "<init>", "()V"))
	}
	a.Op(classfile.OpReturn)
	b.Method(pub, "<init>", "()V").Code(1, 1, a.Bytes())
}

func buildObject() *classgen.Builder {
	b := classgen.New(objectClass, "")
	emptyInit(b, "")
	b.Method(pubNative, "hashCode", "()I")
	b.Method(pubNative, "equals", "(Ljava/lang/Object;)Z")
	b.Method(pubNative, "toString", "()Ljava/lang/String;")
	b.Method(privNat, "registerNatives", "()V")
	return b
}

func buildString() *classgen.Builder {
	b := classgen.New(stringClass, objectClass).Access(pub | classfile.AccFinal | classfile.AccSuper)
	b.Method(pubNative, "length", "()I")
	b.Method(pubNative, "isEmpty", "()Z")
	b.Method(pubNative, "charAt", "(I)C")
	b.Method(pubNative, "equals", "(Ljava/lang/Object;)Z")
	b.Method(pubNative, "hashCode", "()I")
	b.Method(pubNative, "concat", "(Ljava/lang/String;)Ljava/lang/String;")
	b.Method(pubNative, "toString", "()Ljava/lang/String;")
	natives(b, pubStatic, "valueOf",
		"(I)Ljava/lang/String;", "(J)Ljava/lang/String;", "(F)Ljava/lang/String;",
		"(D)Ljava/lang/String;", "(C)Ljava/lang/String;", "(Z)Ljava/lang/String;",
		"([C)Ljava/lang/String;", "(Ljava/lang/Object;)Ljava/lang/String;")
	return b
}

func buildStringBuilder() *classgen.Builder {
	b := classgen.New(stringBuilderClass, objectClass).Access(pub | classfile.AccFinal | classfile.AccSuper)
	natives(b, pub, "<init>", "()V", "(I)V", "(Ljava/lang/String;)V")
	const ret = ")Ljava/lang/StringBuilder;"
	natives(b, pub, "append",
		"(I"+ret, "(J"+ret, "(F"+ret, "(D"+ret, "(C"+ret, "(Z"+ret,
		"([C"+ret, "(Ljava/lang/String;"+ret, "(Ljava/lang/Object;"+ret)
	b.Method(pubNative, "length", "()I")
	b.Method(pubNative, "toString", "()Ljava/lang/String;")
	return b
}

// buildSystem declares out and err and creates them in <clinit> as
// PrintStreams over fd 1 and 2.
func buildSystem() *classgen.Builder {
	b := classgen.New(systemClass, objectClass).Access(pub | classfile.AccFinal | classfile.AccSuper)
	const ps = "Ljava/io/PrintStream;"
	a := new(classgen.Asm)
	for _, s := range []struct {
		field string
		fd    byte
	}{{"out", fdOut}, {"err", fdErr}} {
		b.Field(pubStatic|classfile.AccFinal, s.field, ps)
		a.U16(classfile.OpNew, b.Class(printStreamClass)).
			Op(classfile.OpDup).
			Op(classfile.OpBipush, s.fd).
			U16(classfile.OpInvokespecial, b.Methodref(printStreamClass, "<init>", "(I)V")).
			U16(classfile.OpPutstatic, b.Fieldref(systemClass, s.field, ps))
	}
	a.Op(classfile.OpReturn)
	b.Method(classfile.AccStatic, "<clinit>", "()V").Code(3, 0, a.Bytes())

	b.Method(privNat, "registerNatives", "()V")
	b.Method(statNat, "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V")
	b.Method(statNat, "identityHashCode", "(Ljava/lang/Object;)I")
	b.Method(statNat, "currentTimeMillis", "()J")
	b.Method(statNat, "nanoTime", "()J")
	b.Method(statNat, "exit", "(I)V")
	return b
}

func buildShutdown() *classgen.Builder {
	b := classgen.New(shutdownClass, objectClass).Access(classfile.AccFinal | classfile.AccSuper)
	b.Method(classfile.AccStatic|classfile.AccNative, "halt0", "(I)V")
	return b
}

// buildPrintStream keeps the host fd in an int field set by <init>(I)V.
func buildPrintStream() *classgen.Builder {
	b := classgen.New(printStreamClass, objectClass)
	b.Field(classfile.AccPrivate|classfile.AccFinal, "fd", "I")
	ctor := new(classgen.Asm).
		Op(classfile.OpAload0).
		U16(classfile.OpInvokespecial, b.Methodref(objectClass, "<init>", "()V")).
		Op(classfile.OpAload0).
		Op(classfile.OpIload1).
		U16(classfile.OpPutfield, b.Fieldref(printStreamClass, "fd", "I")).
		Op(classfile.OpReturn)
	b.Method(pub, "<init>", "(I)V").Code(2, 2, ctor.Bytes())

	printable := []string{"I", "J", "F", "D", "C", "Z", "[C", "Ljava/lang/String;", "Ljava/lang/Object;"}
	lnDescs := []string{"()V"}
	var descs []string
	for _, p := range printable {
		lnDescs = append(lnDescs, "("+p+")V")
		descs = append(descs, "("+p+")V")
	}
	natives(b, pub, "println", lnDescs...)
	natives(b, pub, "print", descs...)
	b.Method(pubNative, "flush", "()V")
	return b
}

func buildInteger() *classgen.Builder {
	b := classgen.New(integerClass, objectClass).Access(pub | classfile.AccFinal | classfile.AccSuper)
	b.Field(pubStatic|classfile.AccFinal, "MIN_VALUE", "I").ConstantValue(b.Integer(-1 << 31))
	b.Field(pubStatic|classfile.AccFinal, "MAX_VALUE", "I").ConstantValue(b.Integer(1<<31 - 1))
	b.Field(classfile.AccPrivate|classfile.AccFinal, "value", "I")

	ctor := new(classgen.Asm).
		Op(classfile.OpAload0).
		U16(classfile.OpInvokespecial, b.Methodref(objectClass, "<init>", "()V")).
		Op(classfile.OpAload0).
		Op(classfile.OpIload1).
		U16(classfile.OpPutfield, b.Fieldref(integerClass, "value", "I")).
		Op(classfile.OpReturn)
	b.Method(pub, "<init>", "(I)V").Code(2, 2, ctor.Bytes())

	intValue := new(classgen.Asm).
		Op(classfile.OpAload0).
		U16(classfile.OpGetfield, b.Fieldref(integerClass, "value", "I")).
		Op(classfile.OpIreturn)
	b.Method(pub, "intValue", "()I").Code(1, 1, intValue.Bytes())

	natives(b, pubStatic, "valueOf", "(I)Ljava/lang/Integer;", "(Ljava/lang/String;)Ljava/lang/Integer;")
	b.Method(statNat, "parseInt", "(Ljava/lang/String;)I")
	b.Method(statNat, "toString", "(I)Ljava/lang/String;")
	b.Method(pubNative, "toString", "()Ljava/lang/String;")
	b.Method(pubNative, "hashCode", "()I")
	b.Method(pubNative, "equals", "(Ljava/lang/Object;)Z")
	return b
}

func buildMath() *classgen.Builder {
	b := classgen.New(mathClass, objectClass).Access(pub | classfile.AccFinal | classfile.AccSuper)
	b.Field(pubStatic|classfile.AccFinal, "PI", "D").ConstantValue(b.Double(3.141592653589793))
	b.Field(pubStatic|classfile.AccFinal, "E", "D").ConstantValue(b.Double(2.718281828459045))
	natives(b, pubStatic, "abs", "(I)I", "(J)J", "(F)F", "(D)D")
	natives(b, pubStatic, "max", "(II)I", "(JJ)J", "(FF)F", "(DD)D")
	natives(b, pubStatic, "min", "(II)I", "(JJ)J", "(FF)F", "(DD)D")
	for _, name := range []string{"sqrt", "floor", "ceil"} {
		b.Method(statNat, name, "(D)D")
	}
	b.Method(statNat, "pow", "(DD)D")
	return b
}

func buildFloat() *classgen.Builder {
	b := classgen.New(floatClass, objectClass).Access(pub | classfile.AccFinal | classfile.AccSuper)
	b.Method(statNat, "floatToRawIntBits", "(F)I")
	b.Method(statNat, "floatToIntBits", "(F)I")
	b.Method(statNat, "intBitsToFloat", "(I)F")
	b.Method(statNat, "isNaN", "(F)Z")
	b.Method(statNat, "toString", "(F)Ljava/lang/String;")
	return b
}

func buildDouble() *classgen.Builder {
	b := classgen.New(doubleClass, objectClass).Access(pub | classfile.AccFinal | classfile.AccSuper)
	b.Method(statNat, "doubleToRawLongBits", "(D)J")
	b.Method(statNat, "doubleToLongBits", "(D)J")
	b.Method(statNat, "longBitsToDouble", "(J)D")
	b.Method(statNat, "isNaN", "(D)Z")
	b.Method(statNat, "toString", "(D)Ljava/lang/String;")
	return b
}

var mapMethods = [][2]string{
	{"get", "(Ljava/lang/Object;)Ljava/lang/Object;"},
	{"put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;"},
	{"containsKey", "(Ljava/lang/Object;)Z"},
	{"size", "()I"},
}

func buildMap() *classgen.Builder {
	b := classgen.New(mapClass, objectClass).Access(pub | classfile.AccInterface | classfile.AccAbstract)
	for _, m := range mapMethods {
		b.Method(pubAbs, m[0], m[1])
	}
	return b
}

func buildHashMap() *classgen.Builder {
	b := classgen.New(hashMapClass, objectClass).Implements(mapClass)
	b.Method(pubNative, "<init>", "()V")
	for _, m := range mapMethods {
		b.Method(pubNative, m[0], m[1])
	}
	return b
}
