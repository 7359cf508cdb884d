package machine

import (
	"bufio"
	"io"

	"abyssix/internal/codegen"
)

// Machine holds all execution state for one run of a resolved
// program: the four registers, the single value stack shared by
// parameters, saved frame pointers, return addresses and locals, and
// the byte-oriented stdio streams putc/getc read and write.
type Machine struct {
	registers [4]Value
	stack     []Value
	rbp       int
	rip       int
	halted    bool

	program []codegen.Instruction
	debug   bool

	stdin  *bufio.Reader
	stdout *bufio.Writer
}

// New builds a Machine ready to execute codes from its entry point,
// with an empty stack and zeroed registers.
func New(codes *codegen.Codes, debug bool, stdin io.Reader, stdout io.Writer) *Machine {
	return &Machine{
		program: codes.Opcodes,
		rip:     codes.EntryPoint,
		debug:   debug,
		stdin:   bufio.NewReader(stdin),
		stdout:  bufio.NewWriter(stdout),
	}
}

func (m *Machine) reg(r codegen.Register) Value { return m.registers[r] }

func (m *Machine) setReg(r codegen.Register, v Value) { m.registers[r] = v }

func (m *Machine) push(v Value) { m.stack = append(m.stack, v) }

func (m *Machine) pop() (Value, error) {
	if len(m.stack) == 0 {
		return 0, execErrorf(m.rip, "pop from empty stack")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) alloc(size int64) error {
	if size < 0 {
		return execErrorf(m.rip, "alloc with negative size %d", size)
	}
	for i := int64(0); i < size; i++ {
		m.stack = append(m.stack, 0)
	}
	return nil
}

func (m *Machine) free(size int64) error {
	if size < 0 || int64(len(m.stack)) < size {
		return execErrorf(m.rip, "free %d exceeds stack depth %d", size, len(m.stack))
	}
	m.stack = m.stack[:int64(len(m.stack))-size]
	return nil
}

func (m *Machine) localAt(offset int64) (int, error) {
	idx := m.rbp + int(offset)
	if idx < 0 || idx >= len(m.stack) {
		return 0, execErrorf(m.rip, "local slot %d out of range (stack depth %d, rbp %d)", offset, len(m.stack), m.rbp)
	}
	return idx, nil
}

func (m *Machine) paramAt(distance int64) (int, error) {
	idx := m.rbp - 2 - int(distance)
	if idx < 0 || idx >= len(m.stack) {
		return 0, execErrorf(m.rip, "param slot %d out of range (stack depth %d, rbp %d)", distance, len(m.stack), m.rbp)
	}
	return idx, nil
}

// Stdout exposes the buffered writer so callers can flush it after Run
// returns, including on error.
func (m *Machine) Stdout() *bufio.Writer { return m.stdout }
