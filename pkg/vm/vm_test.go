package vm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/daimatz/jjvm/pkg/classfile"
	"github.com/daimatz/jjvm/pkg/classgen"
	"github.com/daimatz/jjvm/pkg/classpath"
)

const (
	pub       = classfile.AccPublic
	pubStatic = classfile.AccPublic | classfile.AccStatic
	objClass  = "java/lang/Object"
)

type memLoader map[string][]byte

func (l memLoader) ReadClass(name string) ([]byte, error) {
	if data, ok := l[name]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", classpath.ErrNotFound, name)
}

func newObjectClass() *classgen.Builder {
	b := classgen.New(objClass, "")
	b.Method(pub, "<init>", "()V").Code(0, 1, []byte{0xB1}) // return
	return b
}

// newLoader serves the given classes plus a minimal java/lang/Object.
func newLoader(classes map[string]*classgen.Builder) memLoader {
	l := memLoader{objClass: newObjectClass().Bytes()}
	for name, b := range classes {
		l[name] = b.Bytes()
	}
	return l
}

// newTestClass starts class T whose static method m has the given code.
func newTestClass(desc string, maxStack, maxLocals uint16, code []byte) *classgen.Builder {
	b := classgen.New("T", objClass).SourceFile("T.java")
	b.Method(pubStatic, "m", desc).Code(maxStack, maxLocals, code)
	return b
}

// callStatic loads T from loader and invokes T.m.
func callStatic(t *testing.T, machine *VM, desc string, args ...Value) (Value, error) {
	t.Helper()
	class, err := machine.Class("T")
	if err != nil {
		t.Fatalf("loading T: %v", err)
	}
	return machine.CallStatic(class, "m", desc, args)
}

// runStatic assembles T.m from raw bytecode and invokes it.
func runStatic(t *testing.T, desc string, maxStack, maxLocals uint16, code []byte, args ...Value) (Value, error) {
	t.Helper()
	machine := New(newLoader(map[string]*classgen.Builder{"T": newTestClass(desc, maxStack, maxLocals, code)}))
	return callStatic(t, machine, desc, args...)
}

// executeAndGetInt runs bytecode ending in ireturn and returns the int result.
// Optional locals are passed as int arguments starting at index 0.
func executeAndGetInt(t *testing.T, code []byte, locals ...int32) int32 {
	t.Helper()

	maxLocals := uint16(len(locals))
	if maxLocals < 4 {
		maxLocals = 4
	}
	args := make([]Value, len(locals))
	for i, v := range locals {
		args[i] = IntValue(v)
	}

	desc := "(" + strings.Repeat("I", len(locals)) + ")I"
	v, err := runStatic(t, desc, 10, maxLocals, code, args...)
	if err != nil {
		t.Fatalf("execution error: %v", err)
	}
	if v.Type != classfile.Int {
		t.Fatalf("result: got %v, want an int", v)
	}
	return v.Int
}

type fakeNatives map[string]NativeMethod

func (n fakeNatives) LookupNative(class, method string) (NativeMethod, bool) {
	fn, ok := n[class+"."+method]
	return fn, ok
}

func TestLdcAndNative(t *testing.T) {
	b := classgen.New("T", objClass)
	b.Method(pubStatic|classfile.AccNative, "sink", "(Ljava/lang/String;)V")
	a := new(classgen.Asm).
		Op(classfile.OpLdc, byte(b.String("Hello, world"))).
		U16(classfile.OpInvokestatic, b.Methodref("T", "sink", "(Ljava/lang/String;)V")).
		Op(classfile.OpReturn)
	b.Method(pubStatic, "m", "()V").Code(1, 0, a.Bytes())

	var got []string
	natives := fakeNatives{"T.sink": func(vm *VM, m *Method, args []Value) (Value, error) {
		s, ok := GoString(args[0])
		if !ok {
			return Value{}, fmt.Errorf("not a string: %v", args[0])
		}
		got = append(got, s)
		return Value{}, nil
	}}

	machine := New(newLoader(map[string]*classgen.Builder{"T": b}), WithNatives(natives))
	if _, err := callStatic(t, machine, "()V"); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "Hello, world" {
		t.Errorf("sink: got %q, want [\"Hello, world\"]", got)
	}

	t.Run("missing native", func(t *testing.T) {
		machine := New(newLoader(map[string]*classgen.Builder{"T": b}), WithNatives(fakeNatives{}))
		_, err := callStatic(t, machine, "()V")
		if !errors.Is(err, ErrUnsupportedNative) {
			t.Errorf("got %v, want ErrUnsupportedNative", err)
		}
	})

	t.Run("no registry", func(t *testing.T) {
		machine := New(newLoader(map[string]*classgen.Builder{"T": b}))
		_, err := callStatic(t, machine, "()V")
		if !errors.Is(err, ErrUnsupportedNative) {
			t.Errorf("got %v, want ErrUnsupportedNative", err)
		}
	})
}

func TestNativeResultCoercion(t *testing.T) {
	b := classgen.New("T", objClass)
	b.Method(pubStatic|classfile.AccNative, "m", "()B")
	natives := fakeNatives{"T.m": func(*VM, *Method, []Value) (Value, error) {
		return IntValue(200), nil
	}}
	machine := New(newLoader(map[string]*classgen.Builder{"T": b}), WithNatives(natives))

	v, err := callStatic(t, machine, "()B")
	if err != nil {
		t.Fatal(err)
	}
	if v.Type != classfile.Byte || v.Int != -56 {
		t.Errorf("got %v (%v), want byte -56", v, v.Type)
	}
}

// newHierarchy builds Base with f()I = 1 and g()I = 2, and Derived
// overriding g()I = 20.
func newHierarchy() map[string]*classgen.Builder {
	base := classgen.New("Base", objClass)
	ctor := new(classgen.Asm).
		Op(classfile.OpAload0).
		U16(classfile.OpInvokespecial, base.Methodref(objClass, "<init>", "()V")).
		Op(classfile.OpReturn)
	base.Method(pub, "<init>", "()V").Code(1, 1, ctor.Bytes())
	base.Method(pub, "f", "()I").Code(1, 1, []byte{0x04, 0xAC}) // iconst_1, ireturn
	base.Method(pub, "g", "()I").Code(1, 1, []byte{0x05, 0xAC}) // iconst_2, ireturn

	derived := classgen.New("Derived", "Base")
	ctor = new(classgen.Asm).
		Op(classfile.OpAload0).
		U16(classfile.OpInvokespecial, derived.Methodref("Base", "<init>", "()V")).
		Op(classfile.OpReturn)
	derived.Method(pub, "<init>", "()V").Code(1, 1, ctor.Bytes())
	derived.Method(pub, "g", "()I").Code(1, 1, []byte{0x10, 20, 0xAC}) // bipush 20, ireturn

	return map[string]*classgen.Builder{"Base": base, "Derived": derived}
}

func TestVirtualDispatch(t *testing.T) {
	machine := New(newLoader(newHierarchy()))
	obj, err := machine.ConstructObject("Derived")
	if err != nil {
		t.Fatal(err)
	}
	recv := RefValue(obj)

	tests := []struct {
		method string
		want   int32
	}{
		{"f", 1},
		{"g", 20},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			v, err := machine.CallVirtual(tt.method, "()I", []Value{recv})
			if err != nil {
				t.Fatal(err)
			}
			if v.Int != tt.want {
				t.Errorf("Derived.%s: got %d, want %d", tt.method, v.Int, tt.want)
			}
		})
	}

	t.Run("super call", func(t *testing.T) {
		base, _ := machine.LoadedClass("Base")
		v, err := machine.CallSpecial(base, "g", "()I", []Value{recv})
		if err != nil {
			t.Fatal(err)
		}
		if v.Int != 2 {
			t.Errorf("Base.g: got %d, want 2", v.Int)
		}
	})

	t.Run("missing method", func(t *testing.T) {
		_, err := machine.CallVirtual("h", "()I", []Value{recv})
		if !errors.Is(err, ErrNoSuchMethod) {
			t.Errorf("got %v, want ErrNoSuchMethod", err)
		}
	})

	t.Run("null receiver", func(t *testing.T) {
		_, err := machine.CallVirtual("f", "()I", []Value{NullValue()})
		if !errors.Is(err, ErrNullPointer) {
			t.Errorf("got %v, want ErrNullPointer", err)
		}
	})
}

func TestInvokevirtualBytecode(t *testing.T) {
	classes := newHierarchy()
	b := classgen.New("T", objClass)
	// new Derived; dup; invokespecial <init>; dup; invokevirtual f; swap;
	// invokevirtual g; iadd; ireturn
	a := new(classgen.Asm).
		U16(classfile.OpNew, b.Class("Derived")).
		Op(classfile.OpDup).
		U16(classfile.OpInvokespecial, b.Methodref("Derived", "<init>", "()V")).
		Op(classfile.OpDup).
		U16(classfile.OpInvokevirtual, b.Methodref("Base", "f", "()I")).
		Op(classfile.OpSwap).
		U16(classfile.OpInvokevirtual, b.Methodref("Base", "g", "()I")).
		Op(classfile.OpIadd).
		Op(classfile.OpIreturn)
	b.Method(pubStatic, "m", "()I").Code(3, 0, a.Bytes())
	classes["T"] = b

	v, err := callStatic(t, New(newLoader(classes)), "()I")
	if err != nil {
		t.Fatal(err)
	}
	if v.Int != 21 {
		t.Errorf("f()+g(): got %d, want 21", v.Int)
	}
}

func TestCallSpecial(t *testing.T) {
	t.Run("missing no-arg constructor", func(t *testing.T) {
		root := classgen.New("Root", "")
		machine := New(memLoader{"Root": root.Bytes()})
		class, err := machine.Class("Root")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := machine.CallSpecial(class, "<init>", "()V", []Value{RefValue(&Object{ClassName: "Root"})}); err != nil {
			t.Errorf("got %v, want nil", err)
		}
		_, err = machine.CallSpecial(class, "<init>", "(I)V", []Value{RefValue(&Object{ClassName: "Root"}), IntValue(1)})
		if !errors.Is(err, ErrNoSuchMethod) {
			t.Errorf("<init>(I)V: got %v, want ErrNoSuchMethod", err)
		}
	})

	t.Run("null receiver", func(t *testing.T) {
		machine := New(newLoader(nil))
		class, err := machine.Class(objClass)
		if err != nil {
			t.Fatal(err)
		}
		_, err = machine.CallSpecial(class, "<init>", "()V", []Value{NullValue()})
		if !errors.Is(err, ErrNullPointer) {
			t.Errorf("got %v, want ErrNullPointer", err)
		}
	})
}

func TestClassInitialization(t *testing.T) {
	t.Run("clinit sees its own defaults", func(t *testing.T) {
		// static int x; static { x = x + 5; }
		b := classgen.New("T", objClass)
		b.Field(classfile.AccStatic, "x", "I")
		x := b.Fieldref("T", "x", "I")
		a := new(classgen.Asm).
			U16(classfile.OpGetstatic, x).
			Op(classfile.OpIconst5).
			Op(classfile.OpIadd).
			U16(classfile.OpPutstatic, x).
			Op(classfile.OpReturn)
		b.Method(classfile.AccStatic, "<clinit>", "()V").Code(2, 0, a.Bytes())

		machine := New(newLoader(map[string]*classgen.Builder{"T": b}))
		class, err := machine.Class("T")
		if err != nil {
			t.Fatal(err)
		}
		if class.State != StateReady {
			t.Errorf("state: got %s, want ready", class.State)
		}
		if v := class.Statics["x"]; v.Int != 5 {
			t.Errorf("x: got %v, want 5", v)
		}
	})

	t.Run("skip clinit", func(t *testing.T) {
		b := classgen.New("T", objClass)
		b.Field(classfile.AccStatic, "x", "I")
		a := new(classgen.Asm).
			Op(classfile.OpIconst1).
			U16(classfile.OpPutstatic, b.Fieldref("T", "x", "I")).
			Op(classfile.OpReturn)
		b.Method(classfile.AccStatic, "<clinit>", "()V").Code(1, 0, a.Bytes())

		machine := New(newLoader(map[string]*classgen.Builder{"T": b}), WithSkipClinit("T"))
		class, err := machine.Class("T")
		if err != nil {
			t.Fatal(err)
		}
		if v := class.Statics["x"]; v.Int != 0 || v.Type != classfile.Int {
			t.Errorf("x: got %v, want default 0", v)
		}
	})

	t.Run("ConstantValue statics", func(t *testing.T) {
		b := classgen.New("T", objClass)
		b.Field(pubStatic|classfile.AccFinal, "I", "I").ConstantValue(b.Integer(42))
		b.Field(pubStatic|classfile.AccFinal, "J", "J").ConstantValue(b.Long(-7))
		b.Field(pubStatic|classfile.AccFinal, "D", "D").ConstantValue(b.Double(0.5))
		b.Field(pubStatic|classfile.AccFinal, "S", "Ljava/lang/String;").ConstantValue(b.String("hi"))
		b.Field(pubStatic|classfile.AccFinal, "C", "C").ConstantValue(b.Integer('z'))
		b.Field(pubStatic, "N", "Ljava/lang/Object;")

		machine := New(newLoader(map[string]*classgen.Builder{"T": b}))
		class, err := machine.Class("T")
		if err != nil {
			t.Fatal(err)
		}
		if v := class.Statics["I"]; v.Int != 42 {
			t.Errorf("I: got %v, want 42", v)
		}
		if v := class.Statics["J"]; v.Long != -7 {
			t.Errorf("J: got %v, want -7", v)
		}
		if v := class.Statics["D"]; v.Double != 0.5 {
			t.Errorf("D: got %v, want 0.5", v)
		}
		if s, ok := GoString(class.Statics["S"]); !ok || s != "hi" {
			t.Errorf("S: got %v, want \"hi\"", class.Statics["S"])
		}
		if v := class.Statics["C"]; v.Type != classfile.Char || v.Int != 'z' {
			t.Errorf("C: got %v, want 'z'", v)
		}
		if v := class.Statics["N"]; !v.IsNull() {
			t.Errorf("N: got %v, want null", v)
		}
	})

	t.Run("superclass first", func(t *testing.T) {
		// Each <clinit> appends its digit to Log.order: order = order*10 + n
		logClass := classgen.New("Log", objClass)
		logClass.Field(pubStatic, "order", "I")

		clinit := func(name, super string, n byte) *classgen.Builder {
			b := classgen.New(name, super)
			order := b.Fieldref("Log", "order", "I")
			a := new(classgen.Asm).
				U16(classfile.OpGetstatic, order).
				Op(classfile.OpBipush, 10).
				Op(classfile.OpImul).
				Op(classfile.OpBipush, n).
				Op(classfile.OpIadd).
				U16(classfile.OpPutstatic, order).
				Op(classfile.OpReturn)
			b.Method(classfile.AccStatic, "<clinit>", "()V").Code(2, 0, a.Bytes())
			return b
		}

		machine := New(newLoader(map[string]*classgen.Builder{
			"Log": logClass,
			"A":   clinit("A", objClass, 1),
			"B":   clinit("B", "A", 2),
			"C":   clinit("C", "B", 3),
		}))
		if _, err := machine.Class("C"); err != nil {
			t.Fatal(err)
		}
		logged, _ := machine.LoadedClass("Log")
		if v := logged.Statics["order"]; v.Int != 123 {
			t.Errorf("init order: got %d, want 123", v.Int)
		}
		c, _ := machine.LoadedClass("C")
		if c.Super == nil || c.Super.Name != "B" || c.Super.Super.Name != "A" {
			t.Errorf("superclass chain: got %v", c.Super)
		}
	})
}

// newCyclicInit builds Base, whose <clinit> constructs a Derived and calls
// the inherited f on it:
//
//	class Base { static Base I = new Derived(); static int r = I.f(); int k; int f() { return 7; } }
//	class Derived extends Base {}
func newCyclicInit() map[string]*classgen.Builder {
	base := classgen.New("Base", objClass)
	base.Field(pub, "k", "I")
	base.Field(pubStatic, "I", "LBase;")
	base.Field(pubStatic, "r", "I")
	base.Method(pub, "<init>", "()V").Code(1, 1, new(classgen.Asm).
		Op(classfile.OpAload0).
		U16(classfile.OpInvokespecial, base.Methodref(objClass, "<init>", "()V")).
		Op(classfile.OpReturn).Bytes())
	base.Method(pub, "f", "()I").Code(1, 1, []byte{0x10, 7, 0xAC}) // bipush 7; ireturn
	base.Method(classfile.AccStatic, "<clinit>", "()V").Code(3, 0, new(classgen.Asm).
		U16(classfile.OpNew, base.Class("Derived")).
		Op(classfile.OpDup).
		U16(classfile.OpInvokespecial, base.Methodref("Derived", "<init>", "()V")).
		Op(classfile.OpDup).
		U16(classfile.OpPutstatic, base.Fieldref("Base", "I", "LBase;")).
		U16(classfile.OpInvokevirtual, base.Methodref("Derived", "f", "()I")).
		U16(classfile.OpPutstatic, base.Fieldref("Base", "r", "I")).
		Op(classfile.OpReturn).Bytes())

	derived := classgen.New("Derived", "Base")
	derived.Method(pub, "<init>", "()V").Code(1, 1, new(classgen.Asm).
		Op(classfile.OpAload0).
		U16(classfile.OpInvokespecial, derived.Methodref("Base", "<init>", "()V")).
		Op(classfile.OpReturn).Bytes())

	return map[string]*classgen.Builder{"Base": base, "Derived": derived}
}

func TestSuperclassLinkedBeforeInit(t *testing.T) {
	for _, first := range []string{"Base", "Derived"} {
		t.Run(first+" first", func(t *testing.T) {
			machine := New(newLoader(newCyclicInit()))
			if _, err := machine.Class(first); err != nil {
				t.Fatalf("Class(%s): %v", first, err)
			}

			base, ok := machine.LoadedClass("Base")
			if !ok {
				t.Fatal("Base not registered")
			}
			if v := base.Statics["r"]; v.Int != 7 {
				t.Errorf("Base.r: got %v, want 7", v)
			}
			obj, ok := base.Statics["I"].Ref.(*Object)
			if !ok {
				t.Fatalf("Base.I: got %v, want an object", base.Statics["I"])
			}
			if _, ok := obj.Fields["k"]; !ok {
				t.Errorf("Derived instance is missing inherited field k: %v", obj.Fields)
			}

			derived, _ := machine.LoadedClass("Derived")
			if derived == nil || derived.Super != base {
				t.Errorf("Derived.Super: got %v, want Base", derived)
			}
			if derived != nil && derived.State != StateReady {
				t.Errorf("Derived state: got %s, want ready", derived.State)
			}
		})
	}
}

func TestClassLoadingErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		machine := New(newLoader(nil))
		_, err := machine.Class("Missing")
		if !errors.Is(err, ErrClassNotFound) {
			t.Errorf("got %v, want ErrClassNotFound", err)
		}
		if _, ok := machine.LoadedClass("Missing"); ok {
			t.Error("Missing was registered")
		}
	})

	t.Run("name mismatch", func(t *testing.T) {
		machine := New(memLoader{"Wrong": classgen.New("Other", "").Bytes()})
		_, err := machine.Class("Wrong")
		if !errors.Is(err, ErrClassNotFound) {
			t.Errorf("got %v, want ErrClassNotFound", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		machine := New(memLoader{"Bad": {0xCA, 0xFE, 0xBA, 0xBE, 0x00}})
		_, err := machine.Class("Bad")
		if !errors.Is(err, classfile.ErrMalformedClassFile) {
			t.Errorf("got %v, want ErrMalformedClassFile", err)
		}
	})

	t.Run("missing superclass", func(t *testing.T) {
		machine := New(memLoader{"Orphan": classgen.New("Orphan", "Gone").Bytes()})
		for i := 0; i < 2; i++ {
			_, err := machine.Class("Orphan")
			if !errors.Is(err, ErrClassNotFound) {
				t.Errorf("attempt %d: got %v, want ErrClassNotFound", i+1, err)
			}
		}
		if _, ok := machine.LoadedClass("Orphan"); ok {
			t.Error("Orphan was registered")
		}
	})

	t.Run("circular superclass", func(t *testing.T) {
		machine := New(memLoader{
			"A": classgen.New("A", "B").Bytes(),
			"B": classgen.New("B", "A").Bytes(),
		})
		if _, err := machine.Class("A"); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("failing clinit", func(t *testing.T) {
		// static { int x = 1 / 0; }
		b := classgen.New("T", objClass)
		b.Method(classfile.AccStatic, "<clinit>", "()V").Code(2, 0, []byte{0x04, 0x03, 0x6C, 0x57, 0xB1})
		sub := classgen.New("Sub", "T")

		machine := New(newLoader(map[string]*classgen.Builder{"T": b, "Sub": sub}))
		for _, name := range []string{"Sub", "T", "Sub"} {
			_, err := machine.Class(name)
			if !errors.Is(err, ErrDivideByZero) {
				t.Errorf("Class(%s): got %v, want ErrDivideByZero", name, err)
			}
		}
		for _, name := range []string{"T", "Sub"} {
			if _, ok := machine.LoadedClass(name); ok {
				t.Errorf("%s is still registered", name)
			}
		}
	})

	t.Run("no loader", func(t *testing.T) {
		_, err := New(nil).Class("T")
		if !errors.Is(err, ErrClassNotFound) {
			t.Errorf("got %v, want ErrClassNotFound", err)
		}
	})
}

func TestStackOverflow(t *testing.T) {
	// static void m() { m(); }
	b := classgen.New("T", objClass).SourceFile("T.java")
	a := new(classgen.Asm).
		U16(classfile.OpInvokestatic, b.Methodref("T", "m", "()V")).
		Op(classfile.OpReturn)
	b.Method(pubStatic, "m", "()V").Code(0, 0, a.Bytes())

	machine := New(newLoader(map[string]*classgen.Builder{"T": b}), WithMaxFrameDepth(100))
	_, err := callStatic(t, machine, "()V")
	if !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("got %v, want ErrStackOverflow", err)
	}

	var st *StackTrace
	if !errors.As(err, &st) {
		t.Fatalf("got %T, want a *StackTrace", err)
	}
	if len(st.Frames) != maxTraceFrames {
		t.Errorf("frames: got %d, want %d", len(st.Frames), maxTraceFrames)
	}
	if st.Elided != 100-maxTraceFrames {
		t.Errorf("elided: got %d, want %d", st.Elided, 100-maxTraceFrames)
	}
	if !strings.HasSuffix(st.Format(), fmt.Sprintf("\n\t... %d more", st.Elided)) {
		t.Errorf("Format does not end with the elided count:\n%s", st.Format())
	}
	if machine.frameDepth != 0 {
		t.Errorf("frame depth after unwinding: got %d, want 0", machine.frameDepth)
	}
}

func TestStackTrace(t *testing.T) {
	// static int m() { return n(0); }  line 3
	// static int n(int d) { return 1 / d; }  line 7
	b := classgen.New("T", objClass).SourceFile("T.java")
	a := new(classgen.Asm).
		Op(classfile.OpIconst0).
		U16(classfile.OpInvokestatic, b.Methodref("T", "n", "(I)I")).
		Op(classfile.OpIreturn)
	b.Method(pubStatic, "m", "()I").Code(1, 0, a.Bytes(), classgen.LineNumber{StartPC: 0, Line: 3})
	b.Method(pubStatic, "n", "(I)I").Code(2, 1,
		[]byte{0x04, 0x1A, 0x6C, 0xAC}, // iconst_1, iload_0, idiv, ireturn
		classgen.LineNumber{StartPC: 0, Line: 7})

	machine := New(newLoader(map[string]*classgen.Builder{"T": b}))
	_, err := callStatic(t, machine, "()I")
	if !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("got %v, want ErrDivideByZero", err)
	}
	var st *StackTrace
	if !errors.As(err, &st) {
		t.Fatalf("got %T, want a *StackTrace", err)
	}

	want := []TraceFrame{
		{Class: "T", Method: "n", PC: 2, Line: 7, Source: "T.java"},
		{Class: "T", Method: "m", PC: 1, Line: 3, Source: "T.java"},
	}
	if len(st.Frames) != len(want) {
		t.Fatalf("frames: got %v, want %v", st.Frames, want)
	}
	for i := range want {
		if st.Frames[i] != want[i] {
			t.Errorf("frame %d: got %+v, want %+v", i, st.Frames[i], want[i])
		}
	}
	if got := st.Format(); !strings.Contains(got, "\tat T.n(T.java:7)\n\tat T.m(T.java:3)") {
		t.Errorf("Format:\n%s", got)
	}
}

func TestTraceFrameString(t *testing.T) {
	tests := []struct {
		frame TraceFrame
		want  string
	}{
		{TraceFrame{Class: "com/example/Main", Method: "main", PC: 4, Line: 12, Source: "Main.java"}, "com.example.Main.main(Main.java:12)"},
		{TraceFrame{Class: "Main", Method: "run", PC: 9}, "Main.run(pc 9)"},
	}
	for _, tt := range tests {
		if got := tt.frame.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestAbstractMethod(t *testing.T) {
	b := classgen.New("Shape", objClass).Access(pub | classfile.AccAbstract)
	b.Method(pub|classfile.AccAbstract, "area", "()I")
	machine := New(newLoader(map[string]*classgen.Builder{"Shape": b}))

	class, err := machine.Class("Shape")
	if err != nil {
		t.Fatal(err)
	}
	_, err = machine.CallSpecial(class, "area", "()I", []Value{RefValue(&Object{ClassName: "Shape"})})
	if !errors.Is(err, ErrAbstractMethod) {
		t.Errorf("got %v, want ErrAbstractMethod", err)
	}

	if _, err := machine.ConstructObject("Shape"); !errors.Is(err, ErrInterpreterFault) {
		t.Errorf("instantiating abstract class: got %v, want ErrInterpreterFault", err)
	}
}

// newInterfaces builds Greeter with a default greet()I = 7 and a static
// field ID, plus Impl implementing it with an override of size()I only.
func newInterfaces() map[string]*classgen.Builder {
	greeter := classgen.New("Greeter", objClass).Access(pub | classfile.AccInterface | classfile.AccAbstract)
	greeter.Field(pubStatic|classfile.AccFinal, "ID", "I").ConstantValue(greeter.Integer(99))
	greeter.Method(pub, "greet", "()I").Code(1, 1, []byte{0x10, 7, 0xAC}) // bipush 7, ireturn
	greeter.Method(pub|classfile.AccAbstract, "size", "()I")

	impl := classgen.New("Impl", objClass).Implements("Greeter")
	impl.Method(pub, "size", "()I").Code(1, 1, []byte{0x08, 0xAC}) // iconst_5, ireturn

	return map[string]*classgen.Builder{"Greeter": greeter, "Impl": impl}
}

func TestInterfaces(t *testing.T) {
	machine := New(newLoader(newInterfaces()))
	obj, err := machine.ConstructObject("Impl")
	if err != nil {
		t.Fatal(err)
	}
	recv := []Value{RefValue(obj)}

	t.Run("default method", func(t *testing.T) {
		v, err := machine.CallInterface("greet", "()I", recv)
		if err != nil {
			t.Fatal(err)
		}
		if v.Int != 7 {
			t.Errorf("greet: got %d, want 7", v.Int)
		}
	})

	t.Run("implemented method", func(t *testing.T) {
		v, err := machine.CallVirtual("size", "()I", recv)
		if err != nil {
			t.Fatal(err)
		}
		if v.Int != 5 {
			t.Errorf("size: got %d, want 5", v.Int)
		}
	})

	t.Run("interface static field", func(t *testing.T) {
		impl, _ := machine.LoadedClass("Impl")
		v, err := machine.GetStatic(impl, "ID")
		if err != nil {
			t.Fatal(err)
		}
		if v.Int != 99 {
			t.Errorf("ID: got %v, want 99", v)
		}
	})

	t.Run("missing static field", func(t *testing.T) {
		impl, _ := machine.LoadedClass("Impl")
		if _, err := machine.GetStatic(impl, "NOPE"); !errors.Is(err, ErrNoSuchField) {
			t.Errorf("got %v, want ErrNoSuchField", err)
		}
	})

	t.Run("instantiate interface", func(t *testing.T) {
		if _, err := machine.ConstructObject("Greeter"); !errors.Is(err, ErrInterpreterFault) {
			t.Errorf("got %v, want ErrInterpreterFault", err)
		}
	})
}

func TestIsAssignable(t *testing.T) {
	classes := newHierarchy()
	for name, b := range newInterfaces() {
		classes[name] = b
	}
	machine := New(newLoader(classes))

	tests := []struct {
		from, to string
		want     bool
	}{
		{"Derived", "Derived", true},
		{"Derived", "Base", true},
		{"Derived", objClass, true},
		{"Base", "Derived", false},
		{"Impl", "Greeter", true},
		{"Base", "Greeter", false},
		{"[I", objClass, true},
		{"[I", "java/lang/Cloneable", true},
		{"[I", "[I", true},
		{"[I", "[J", false},
		{"[I", "[Ljava/lang/Object;", false},
		{"[LDerived;", "[LBase;", true},
		{"[LBase;", "[LDerived;", false},
		{"[[I", "[Ljava/lang/Object;", true},
		{"Base", "[LBase;", false},
	}
	for _, tt := range tests {
		t.Run(tt.from+" to "+tt.to, func(t *testing.T) {
			got, err := machine.IsAssignable(tt.from, tt.to)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckcastAndInstanceof(t *testing.T) {
	run := func(t *testing.T, op classfile.Opcode, target string) (Value, error) {
		t.Helper()
		classes := newHierarchy()
		b := classgen.New("T", objClass)
		a := new(classgen.Asm).
			U16(classfile.OpNew, b.Class("Base")).
			U16(op, b.Class(target))
		if op == classfile.OpCheckcast {
			a.Op(classfile.OpPop).Op(classfile.OpIconst1)
		}
		a.Op(classfile.OpIreturn)
		b.Method(pubStatic, "m", "()I").Code(1, 0, a.Bytes())
		classes["T"] = b
		return callStatic(t, New(newLoader(classes)), "()I")
	}

	t.Run("checkcast passes", func(t *testing.T) {
		if _, err := run(t, classfile.OpCheckcast, objClass); err != nil {
			t.Error(err)
		}
	})

	t.Run("checkcast fails", func(t *testing.T) {
		_, err := run(t, classfile.OpCheckcast, "Derived")
		if !errors.Is(err, ErrClassCast) {
			t.Errorf("got %v, want ErrClassCast", err)
		}
	})

	tests := []struct {
		target string
		want   int32
	}{
		{"Base", 1},
		{"Derived", 0},
		{objClass, 1},
	}
	for _, tt := range tests {
		t.Run("instanceof "+tt.target, func(t *testing.T) {
			v, err := run(t, classfile.OpInstanceof, tt.target)
			if err != nil {
				t.Fatal(err)
			}
			if v.Int != tt.want {
				t.Errorf("got %d, want %d", v.Int, tt.want)
			}
		})
	}

	t.Run("null", func(t *testing.T) {
		b := classgen.New("T", objClass)
		cls := b.Class("Missing")
		// aconst_null; checkcast Missing; instanceof Missing; ireturn
		a := new(classgen.Asm).
			Op(classfile.OpAconstNull).
			U16(classfile.OpCheckcast, cls).
			U16(classfile.OpInstanceof, cls).
			Op(classfile.OpIreturn)
		b.Method(pubStatic, "m", "()I").Code(1, 0, a.Bytes())
		v, err := callStatic(t, New(newLoader(map[string]*classgen.Builder{"T": b})), "()I")
		if err != nil {
			t.Fatal(err)
		}
		if v.Int != 0 {
			t.Errorf("null instanceof: got %d, want 0", v.Int)
		}
	})
}

func TestFields(t *testing.T) {
	newPoint := func() *classgen.Builder {
		p := classgen.New("Point", objClass)
		p.Field(pub, "x", "I")
		p.Field(pub, "b", "B")
		return p
	}

	t.Run("putfield narrows", func(t *testing.T) {
		b := classgen.New("T", objClass)
		bf := b.Fieldref("Point", "b", "B")
		// new Point; dup; sipush 200; putfield b; getfield b; ireturn
		a := new(classgen.Asm).
			U16(classfile.OpNew, b.Class("Point")).
			Op(classfile.OpDup).
			Op(classfile.OpSipush, 0x00, 0xC8).
			U16(classfile.OpPutfield, bf).
			U16(classfile.OpGetfield, bf).
			Op(classfile.OpIreturn)
		b.Method(pubStatic, "m", "()I").Code(3, 0, a.Bytes())

		machine := New(newLoader(map[string]*classgen.Builder{"T": b, "Point": newPoint()}))
		v, err := callStatic(t, machine, "()I")
		if err != nil {
			t.Fatal(err)
		}
		if v.Int != -56 {
			t.Errorf("b: got %d, want -56", v.Int)
		}
	})

	t.Run("fields start at defaults", func(t *testing.T) {
		machine := New(newLoader(map[string]*classgen.Builder{"Point": newPoint()}))
		obj, err := machine.ConstructObject("Point")
		if err != nil {
			t.Fatal(err)
		}
		if v, ok := obj.Fields["x"]; !ok || v.Type != classfile.Int || v.Int != 0 {
			t.Errorf("x: got %v, want 0", v)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		b := classgen.New("T", objClass)
		a := new(classgen.Asm).
			U16(classfile.OpNew, b.Class("Point")).
			U16(classfile.OpGetfield, b.Fieldref("Point", "z", "I")).
			Op(classfile.OpIreturn)
		b.Method(pubStatic, "m", "()I").Code(1, 0, a.Bytes())

		machine := New(newLoader(map[string]*classgen.Builder{"T": b, "Point": newPoint()}))
		_, err := callStatic(t, machine, "()I")
		if !errors.Is(err, ErrNoSuchField) {
			t.Errorf("got %v, want ErrNoSuchField", err)
		}
	})

	t.Run("null receiver", func(t *testing.T) {
		b := classgen.New("T", objClass)
		a := new(classgen.Asm).
			Op(classfile.OpAconstNull).
			U16(classfile.OpGetfield, b.Fieldref("Point", "x", "I")).
			Op(classfile.OpIreturn)
		b.Method(pubStatic, "m", "()I").Code(1, 0, a.Bytes())

		machine := New(newLoader(map[string]*classgen.Builder{"T": b, "Point": newPoint()}))
		_, err := callStatic(t, machine, "()I")
		if !errors.Is(err, ErrNullPointer) {
			t.Errorf("got %v, want ErrNullPointer", err)
		}
	})
}

func TestRun(t *testing.T) {
	const mainDesc = "([Ljava/lang/String;)V"

	t.Run("receives args", func(t *testing.T) {
		// static int count; main(args) { count = args.length; }
		b := classgen.New("Main", objClass)
		b.Field(classfile.AccStatic, "count", "I")
		a := new(classgen.Asm).
			Op(classfile.OpAload0).
			Op(classfile.OpArraylength).
			U16(classfile.OpPutstatic, b.Fieldref("Main", "count", "I")).
			Op(classfile.OpReturn)
		b.Method(pubStatic, "main", mainDesc).Code(1, 1, a.Bytes())

		machine := New(newLoader(map[string]*classgen.Builder{"Main": b}))
		if err := machine.Run("Main", []string{"a", "b", "c"}); err != nil {
			t.Fatal(err)
		}
		class, _ := machine.LoadedClass("Main")
		if v := class.Statics["count"]; v.Int != 3 {
			t.Errorf("count: got %v, want 3", v)
		}
	})

	t.Run("instance main", func(t *testing.T) {
		b := classgen.New("Main", objClass)
		b.Method(pub, "main", mainDesc).Code(0, 2, []byte{0xB1}) // return
		err := New(newLoader(map[string]*classgen.Builder{"Main": b})).Run("Main", nil)
		if !errors.Is(err, ErrNoSuchMethod) {
			t.Errorf("got %v, want ErrNoSuchMethod", err)
		}
	})

	t.Run("no main", func(t *testing.T) {
		b := classgen.New("Main", objClass)
		err := New(newLoader(map[string]*classgen.Builder{"Main": b})).Run("Main", nil)
		if !errors.Is(err, ErrNoSuchMethod) {
			t.Errorf("got %v, want ErrNoSuchMethod", err)
		}
	})

	t.Run("exit passes through", func(t *testing.T) {
		b := classgen.New("Main", objClass)
		b.Method(pubStatic|classfile.AccNative, "halt", "()V")
		a := new(classgen.Asm).
			U16(classfile.OpInvokestatic, b.Methodref("Main", "halt", "()V")).
			Op(classfile.OpReturn)
		b.Method(pubStatic, "main", mainDesc).Code(0, 1, a.Bytes())

		natives := fakeNatives{"Main.halt": func(*VM, *Method, []Value) (Value, error) {
			return Value{}, &ExitError{Code: 4}
		}}
		err := New(newLoader(map[string]*classgen.Builder{"Main": b}), WithNatives(natives)).Run("Main", nil)

		var exit *ExitError
		if !errors.As(err, &exit) || exit.Code != 4 {
			t.Fatalf("got %v, want exit status 4", err)
		}
		var st *StackTrace
		if errors.As(err, &st) {
			t.Errorf("exit was wrapped in a stack trace: %s", st.Format())
		}
	})
}

func TestWithFrame(t *testing.T) {
	err := withFrame(ErrNullPointer, TraceFrame{Class: "A", Method: "a"})
	err = withFrame(err, TraceFrame{Class: "B", Method: "b"})

	var st *StackTrace
	if !errors.As(err, &st) {
		t.Fatalf("got %T, want a *StackTrace", err)
	}
	if len(st.Frames) != 2 || st.Frames[0].Class != "A" || st.Frames[1].Class != "B" {
		t.Errorf("frames: got %v, want A then B", st.Frames)
	}
	if !errors.Is(err, ErrNullPointer) {
		t.Error("stack trace does not unwrap to the cause")
	}
	if err.Error() != ErrNullPointer.Error() {
		t.Errorf("Error: got %q, want %q", err.Error(), ErrNullPointer.Error())
	}
}
