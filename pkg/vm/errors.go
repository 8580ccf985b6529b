package vm

import (
	"fmt"
	"strings"
)

// TraceFrame is one line of a runtime stack trace: the source line being
// executed and the name of the function, empty for the top-level script.
type TraceFrame struct {
	Line     int
	Function string
}

// RuntimeError is a runtime failure together with the call stack at the
// moment it happened, innermost frame first.
type RuntimeError struct {
	Message string
	Trace   []TraceFrame
}

// Error formats the message followed by one line per active call frame.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	for _, frame := range e.Trace {
		b.WriteString("\n")
		if frame.Function == "" {
			b.WriteString(fmt.Sprintf("[line %d] in script", frame.Line))
		} else {
			b.WriteString(fmt.Sprintf("[line %d] in %s()", frame.Line, frame.Function))
		}
	}

	return b.String()
}

// runtimeError builds a RuntimeError capturing the current call stack.
func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	err := &RuntimeError{Message: fmt.Sprintf(format, args...)}

	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		function := frame.function

		line := 0
		if ip := frame.ip - 1; ip >= 0 && ip < len(function.Chunk.Lines) {
			line = function.Chunk.Lines[ip]
		}

		name := ""
		if function.Name != nil {
			name = function.Name.Chars
		}

		err.Trace = append(err.Trace, TraceFrame{Line: line, Function: name})
	}

	return err
}
