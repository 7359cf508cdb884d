package machine

import (
	"math"

	"abyssix/internal/codegen"
)

const byteModulus = 255

// putByteValue reproduces the reference executor's rem_euclid(0xFF):
// a non-negative remainder even for negative operands, so PutByte
// never panics and never writes a value outside [0, 254].
func putByteValue(v int64) byte {
	r := v % byteModulus
	if r < 0 {
		r += byteModulus
	}
	return byte(r)
}

// Run executes from the current rip until Exit, a resolved invariant
// violation, or a recovered panic — a symbolic opcode reaching here is
// always a codegen defect, never a condition a program can trigger.
func (m *Machine) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = execErrorf(m.rip, "unrecoverable fault: %v", r)
		}
	}()

	for !m.halted {
		if m.rip < 0 || m.rip >= len(m.program) {
			return execErrorf(m.rip, "instruction pointer out of program bounds")
		}
		in := m.program[m.rip]
		jumped, stepErr := m.step(in)
		if stepErr != nil {
			return stepErr
		}
		if !jumped {
			m.rip++
		}
	}
	return nil
}

// step executes one instruction. It returns jumped=true when it
// already set m.rip itself (a control-transfer opcode), so Run must
// not auto-increment.
func (m *Machine) step(in codegen.Instruction) (jumped bool, err error) {
	switch in.Op {
	case codegen.OpPush:
		m.push(m.reg(in.Reg1))

	case codegen.OpPop:
		v, err := m.pop()
		if err != nil {
			return false, err
		}
		m.setReg(in.Reg1, v)

	case codegen.OpMov:
		m.setReg(in.Reg2, m.reg(in.Reg1))

	case codegen.OpLoadInt:
		m.setReg(in.Reg1, IntValue(in.IntArg))

	case codegen.OpLoadFloat:
		m.setReg(in.Reg1, FloatValue(in.FltArg))

	case codegen.OpLogiNot:
		v := int64(0)
		if m.reg(in.Reg1).Int() == 0 {
			v = 1
		}
		m.setReg(in.Reg1, IntValue(v))

	case codegen.OpBitNot:
		m.setReg(in.Reg1, IntValue(^m.reg(in.Reg1).Int()))

	case codegen.OpNegInt:
		m.setReg(in.Reg1, IntValue(-m.reg(in.Reg1).Int()))

	case codegen.OpNegFloat:
		m.setReg(in.Reg1, FloatValue(-m.reg(in.Reg1).Float()))

	case codegen.OpFloatToInt:
		m.setReg(in.Reg1, IntValue(int64(m.reg(in.Reg1).Float())))

	case codegen.OpIntToFloat:
		m.setReg(in.Reg1, FloatValue(float64(m.reg(in.Reg1).Int())))

	case codegen.OpAddInt:
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()+m.reg(in.Reg2).Int()))
	case codegen.OpSubInt:
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()-m.reg(in.Reg2).Int()))
	case codegen.OpMulInt:
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()*m.reg(in.Reg2).Int()))
	case codegen.OpDivInt:
		divisor := m.reg(in.Reg2).Int()
		if divisor == 0 {
			return false, execErrorf(m.rip, "%w", ErrDivisionByZero)
		}
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()/divisor))
	case codegen.OpRemInt:
		divisor := m.reg(in.Reg2).Int()
		if divisor == 0 {
			return false, execErrorf(m.rip, "%w", ErrDivisionByZero)
		}
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()%divisor))

	case codegen.OpAddFloat:
		m.setReg(in.Reg1, FloatValue(m.reg(in.Reg1).Float()+m.reg(in.Reg2).Float()))
	case codegen.OpSubFloat:
		m.setReg(in.Reg1, FloatValue(m.reg(in.Reg1).Float()-m.reg(in.Reg2).Float()))
	case codegen.OpMulFloat:
		m.setReg(in.Reg1, FloatValue(m.reg(in.Reg1).Float()*m.reg(in.Reg2).Float()))
	case codegen.OpDivFloat:
		m.setReg(in.Reg1, FloatValue(m.reg(in.Reg1).Float()/m.reg(in.Reg2).Float()))
	case codegen.OpRemFloat:
		m.setReg(in.Reg1, FloatValue(math.Mod(m.reg(in.Reg1).Float(), m.reg(in.Reg2).Float())))

	case codegen.OpEqInt:
		m.setReg(in.Reg1, boolValue(m.reg(in.Reg1).Int() == m.reg(in.Reg2).Int()))
	case codegen.OpNeInt:
		m.setReg(in.Reg1, boolValue(m.reg(in.Reg1).Int() != m.reg(in.Reg2).Int()))
	case codegen.OpLtInt:
		m.setReg(in.Reg1, boolValue(m.reg(in.Reg1).Int() < m.reg(in.Reg2).Int()))
	case codegen.OpLeInt:
		m.setReg(in.Reg1, boolValue(m.reg(in.Reg1).Int() <= m.reg(in.Reg2).Int()))

	case codegen.OpEqFloat:
		m.setReg(in.Reg1, boolValue(m.reg(in.Reg1).Float() == m.reg(in.Reg2).Float()))
	case codegen.OpNeFloat:
		m.setReg(in.Reg1, boolValue(m.reg(in.Reg1).Float() != m.reg(in.Reg2).Float()))
	case codegen.OpLtFloat:
		m.setReg(in.Reg1, boolValue(m.reg(in.Reg1).Float() < m.reg(in.Reg2).Float()))
	case codegen.OpLeFloat:
		m.setReg(in.Reg1, boolValue(m.reg(in.Reg1).Float() <= m.reg(in.Reg2).Float()))

	case codegen.OpAnd:
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()&m.reg(in.Reg2).Int()))
	case codegen.OpOr:
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()|m.reg(in.Reg2).Int()))
	case codegen.OpXor:
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()^m.reg(in.Reg2).Int()))
	case codegen.OpShl:
		shift := uint64(m.reg(in.Reg2).Int()) & 63
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()<<shift))
	case codegen.OpShr:
		shift := uint64(m.reg(in.Reg2).Int()) & 63
		m.setReg(in.Reg1, IntValue(m.reg(in.Reg1).Int()>>shift))
	case codegen.OpShrUnsigned:
		shift := uint64(m.reg(in.Reg2).Int()) & 63
		m.setReg(in.Reg1, IntValue(int64(uint64(m.reg(in.Reg1).Int())>>shift)))

	case codegen.OpGetVar:
		idx, err := m.localAt(in.IntArg)
		if err != nil {
			return false, err
		}
		m.setReg(in.Reg1, m.stack[idx])
	case codegen.OpSetVar:
		idx, err := m.localAt(in.IntArg)
		if err != nil {
			return false, err
		}
		m.stack[idx] = m.reg(in.Reg1)
	case codegen.OpGetVarComputed:
		computed := m.reg(in.Reg1).Int()
		if computed < 0 {
			return false, execErrorf(m.rip, "computed local index %d is negative", computed)
		}
		idx, err := m.localAt(computed)
		if err != nil {
			return false, err
		}
		m.setReg(in.Reg2, m.stack[idx])
	case codegen.OpSetVarComputed:
		computed := m.reg(in.Reg1).Int()
		if computed < 0 {
			return false, execErrorf(m.rip, "computed local index %d is negative", computed)
		}
		idx, err := m.localAt(computed)
		if err != nil {
			return false, err
		}
		m.stack[idx] = m.reg(in.Reg2)
	case codegen.OpGetParam:
		idx, err := m.paramAt(in.IntArg)
		if err != nil {
			return false, err
		}
		m.setReg(in.Reg1, m.stack[idx])

	case codegen.OpAlloc:
		if err := m.alloc(in.IntArg); err != nil {
			return false, err
		}
	case codegen.OpFree:
		if err := m.free(in.IntArg); err != nil {
			return false, err
		}

	case codegen.OpPushRbpAndMovEspToEbp:
		m.push(IntValue(int64(m.rbp)))
		m.rbp = len(m.stack)

	case codegen.OpMovEbpToEspAndPopRbp:
		if m.rbp > len(m.stack) {
			return false, execErrorf(m.rip, "rbp %d exceeds stack depth %d", m.rbp, len(m.stack))
		}
		m.stack = m.stack[:m.rbp]
		old, err := m.pop()
		if err != nil {
			return false, err
		}
		m.rbp = int(old.Int())

	case codegen.OpFunctionCall:
		m.push(IntValue(int64(m.rip) + 1))
		m.rip = int(in.IntArg)
		return true, nil

	case codegen.OpRet:
		addr, err := m.pop()
		if err != nil {
			return false, err
		}
		m.rip = int(addr.Int())
		return true, nil

	case codegen.OpJmpAddr:
		m.rip = int(in.IntArg)
		return true, nil

	case codegen.OpJmpAddrIfZero:
		if m.reg(in.Reg1).Int() == 0 {
			m.rip = int(in.IntArg)
			return true, nil
		}

	case codegen.OpPutByte:
		b := putByteValue(m.reg(in.Reg1).Int())
		if err := m.stdout.WriteByte(b); err != nil && m.debug {
			return false, execErrorf(m.rip, "putc: %w", err)
		}

	case codegen.OpReadByteFromStdin:
		b := putByteValue(m.reg(in.Reg1).Int())
		if err := m.stdout.WriteByte(b); err != nil && m.debug {
			return false, execErrorf(m.rip, "getc prompt: %w", err)
		}
		if err := m.stdout.Flush(); err != nil && m.debug {
			return false, execErrorf(m.rip, "getc flush: %w", err)
		}
		read, err := m.stdin.ReadByte()
		if err != nil {
			if m.debug {
				return false, execErrorf(m.rip, "getc: %w", err)
			}
			read = 0
		}
		m.setReg(in.Reg1, IntValue(int64(read)))

	case codegen.OpExit:
		m.halted = true

	case codegen.OpNop:
		// no-op

	case codegen.OpJmpLabel, codegen.OpJmpLabelIfZero, codegen.OpCallLabel:
		return false, execErrorf(m.rip, "internal error: unresolved symbolic opcode %v reached the executor", in.Op)

	default:
		return false, execErrorf(m.rip, "internal error: unknown opcode %v", in.Op)
	}

	return false, nil
}

func boolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

