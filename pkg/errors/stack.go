package errors

import (
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 32

type stack []uintptr

// callers captures the stack of the function calling into this package.
func callers() stack {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// fullStack returns one "function file:line" entry per frame, skipping runtime frames.
func (s stack) fullStack() []string {
	frames := runtime.CallersFrames(s)
	var lines []string
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			lines = append(lines, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return lines
}

// reportKey picks the frame used to group repeated reports.
func (s stack) reportKey() string {
	lines := s.fullStack()
	if len(lines) > 2 {
		return lines[2]
	}
	if len(lines) > 0 {
		return lines[len(lines)-1]
	}
	return ""
}
