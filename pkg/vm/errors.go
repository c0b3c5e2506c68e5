package vm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	ErrInterpreterFault  = errors.New("interpreter fault")
	ErrNoSuchMethod      = errors.New("no such method")
	ErrNoSuchField       = errors.New("no such field")
	ErrClassNotFound     = errors.New("class not found")
	ErrUnsupportedNative = errors.New("unsupported native method")
	ErrAbstractMethod    = errors.New("abstract method invoked")
	ErrDivideByZero      = errors.New("/ by zero")
	ErrNullPointer       = errors.New("null pointer")
	ErrIndexOutOfBounds  = errors.New("array index out of bounds")
	ErrNegativeArraySize = errors.New("negative array size")
	ErrClassCast         = errors.New("class cast")
	ErrUncaughtThrowable = errors.New("uncaught throwable")
	ErrStackOverflow     = errors.New("stack overflow")
)

// ExitError is returned when the program asks the VM to terminate.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// TraceFrame is one entry of a StackTrace.
type TraceFrame struct {
	Class  string
	Method string
	PC     int
	Line   int
	Source string
}

func (f TraceFrame) String() string {
	loc := fmt.Sprintf("pc %d", f.PC)
	if f.Line > 0 && f.Source != "" {
		loc = fmt.Sprintf("%s:%d", f.Source, f.Line)
	}
	return fmt.Sprintf("%s.%s(%s)", strings.ReplaceAll(f.Class, "/", "."), f.Method, loc)
}

// StackTrace wraps a fatal error with the frames it unwound through,
// innermost first.
type StackTrace struct {
	Err    error
	Frames []TraceFrame
	// Elided counts outer frames dropped beyond maxTraceFrames.
	Elided int
}

const maxTraceFrames = 64

func (e *StackTrace) Error() string {
	return e.Err.Error()
}

func (e *StackTrace) Unwrap() error { return e.Err }

// Format renders the error followed by one "\tat" line per frame.
func (e *StackTrace) Format() string {
	var sb strings.Builder
	sb.WriteString(e.Err.Error())
	for _, f := range e.Frames {
		sb.WriteString("\n\tat ")
		sb.WriteString(f.String())
	}
	if e.Elided > 0 {
		fmt.Fprintf(&sb, "\n\t... %d more", e.Elided)
	}
	return sb.String()
}

// withFrame appends a frame to err's stack trace, creating one if needed.
// ExitError passes through untouched.
func withFrame(err error, f TraceFrame) error {
	var exit *ExitError
	if errors.As(err, &exit) {
		return err
	}
	var st *StackTrace
	if errors.As(err, &st) {
		if len(st.Frames) >= maxTraceFrames {
			st.Elided++
		} else {
			st.Frames = append(st.Frames, f)
		}
		return err
	}
	return &StackTrace{Err: err, Frames: []TraceFrame{f}}
}
