package errors

import (
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 32

type stack []uintptr

// callers records the stack of the function that invoked a reporter.
func callers() stack {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

func (s stack) fullStack() []string {
	if len(s) == 0 {
		return nil
	}
	frames := runtime.CallersFrames(s)
	out := make([]string, 0, len(s))
	for {
		frame, more := frames.Next()
		// runtime frames are noise in reports
		if !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return out
}

// rateLimitKey picks the frame that identifies where the error originated.
func (s stack) rateLimitKey() string {
	frames := s.fullStack()
	switch {
	case len(frames) > 2:
		return frames[2]
	case len(frames) > 0:
		return frames[len(frames)-1]
	default:
		return "unknown"
	}
}
