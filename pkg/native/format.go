package native

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/daimatz/jjvm/pkg/classfile"
	"github.com/daimatz/jjvm/pkg/vm"
)

// formatFloating renders a float the way Java's Float/Double.toString do
// for the common cases: at least one fractional digit, "E" notation outside
// [1e-3, 1e7).
func formatFloating(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	abs := math.Abs(f)
	if abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(f, 'f', -1, bits)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	s := strconv.FormatFloat(f, 'E', -1, bits)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	n, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(n)
}

// toJavaString converts a value of declared type t to its string form.
// References other than strings and boxed integers go through toString().
func toJavaString(machine *vm.VM, t classfile.FieldType, v vm.Value) (string, error) {
	switch t {
	case classfile.Int, classfile.Short, classfile.Byte:
		return strconv.Itoa(int(v.Int)), nil
	case classfile.Char:
		return string(rune(v.Int)), nil
	case classfile.Boolean:
		return strconv.FormatBool(v.Int != 0), nil
	case classfile.Long:
		return strconv.FormatInt(v.Long, 10), nil
	case classfile.Float:
		return formatFloating(float64(v.Float), 32), nil
	case classfile.Double:
		return formatFloating(v.Double, 64), nil
	}

	if v.IsNull() {
		return "null", nil
	}
	if s, ok := vm.GoString(v); ok {
		return s, nil
	}
	if arr, ok := v.Ref.(*vm.Array); ok && arr.Elem == classfile.Char {
		if at, ok := t.(classfile.ArrayType); ok && at.Elem == classfile.Char {
			return charsToString(arr), nil
		}
	}
	ret, err := machine.CallVirtual("toString", "()Ljava/lang/String;", []vm.Value{v})
	if err != nil {
		return "", err
	}
	if s, ok := vm.GoString(ret); ok {
		return s, nil
	}
	if ret.IsNull() {
		return "null", nil
	}
	return "", fmt.Errorf("%w: toString returned %s", vm.ErrInterpreterFault, ret)
}

func charsToString(arr *vm.Array) string {
	units := make([]uint16, len(arr.Elements))
	for i, e := range arr.Elements {
		units[i] = uint16(e.Int)
	}
	return decodeUTF16(units)
}
