package machine

import (
	"io"
	"runtime/debug"

	"abyssix/internal/codegen"
)

// RunProgram builds a Machine and runs it to completion with the
// collector switched off for the duration — dispatch loops allocate no
// long-lived garbage, so a GC pass only costs latency. GOGC is
// restored before returning so the setting never leaks past one run.
func RunProgram(codes *codegen.Codes, debugMode bool, stdin io.Reader, stdout io.Writer) error {
	prevGOGC := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(prevGOGC)

	m := New(codes, debugMode, stdin, stdout)
	runErr := m.Run()
	flushErr := m.Stdout().Flush()
	if runErr != nil {
		return runErr
	}
	return flushErr
}
