package codegen

import (
	"fmt"

	"abyssix/internal/source"
)

// CodegenError is a static, compile-time defect in the program that
// the parser could not detect because it needs the whole-program
// function table: an undefined callee or a call with the wrong number
// of arguments.
type CodegenError struct {
	msg string
}

func (e *CodegenError) Error() string { return e.msg }

func codegenErrorf(format string, args ...any) error {
	return &CodegenError{msg: fmt.Sprintf(format, args...)}
}

// Codes is the fully resolved program: a flat opcode array and the
// absolute index of main's first instruction.
type Codes struct {
	EntryPoint int
	Opcodes    []Instruction
}

type funcMeta struct {
	paramsSize int
	index      int
}

// state threads a single program-wide label counter through
// generation so label values stay unique across function boundaries,
// the same way the reference generator's running label counter does.
type state struct {
	nextLabel int
}

func (s *state) newLabel() Label {
	l := Label(s.nextLabel)
	s.nextLabel++
	return l
}

// Generate lowers a parsed program into Codes. It is the only place
// that needs the whole function table at once, so undefined-function
// and argument-count errors surface here rather than in the parser.
func Generate(prog source.Program) (*Codes, error) {
	names := make(map[string]funcMeta, len(prog.Funcs))
	for i, fn := range prog.Funcs {
		names[fn.Name] = funcMeta{paramsSize: fn.ParamsSize, index: i}
	}

	st := &state{}
	perFunc := make([][]Instruction, len(prog.Funcs))
	for i, fn := range prog.Funcs {
		code, err := generateFunctionCode(fn, names, st)
		if err != nil {
			return nil, err
		}
		perFunc[i] = simplifyFunctionCode(code)
	}

	funcAddrs := make([]int, len(prog.Funcs))
	addr := 0
	for i, code := range perFunc {
		funcAddrs[i] = addr
		addr += len(code)
	}

	var flat []Instruction
	for _, code := range perFunc {
		flat = append(flat, code...)
	}

	labelIndices := make([]int, st.nextLabel)
	for i := range labelIndices {
		labelIndices[i] = -1
	}
	for idx, in := range flat {
		for _, l := range in.Labels {
			if labelIndices[l] != -1 {
				return nil, codegenErrorf("internal error: label %d assigned twice", l)
			}
			labelIndices[l] = idx
		}
	}

	for i, in := range flat {
		switch in.Op {
		case OpJmpLabel:
			flat[i].Op = OpJmpAddr
			flat[i].IntArg = int64(labelIndices[in.IntArg])
		case OpJmpLabelIfZero:
			flat[i].Op = OpJmpAddrIfZero
			flat[i].IntArg = int64(labelIndices[in.IntArg])
		case OpCallLabel:
			flat[i].Op = OpFunctionCall
			flat[i].IntArg = int64(funcAddrs[in.IntArg])
		}
	}

	if len(flat) > 0 && flat[len(flat)-1].Op == OpNop {
		flat = flat[:len(flat)-1]
	}

	main, ok := names["main"]
	if !ok {
		return nil, codegenErrorf("the function main() is missing")
	}

	return &Codes{EntryPoint: funcAddrs[main.index], Opcodes: flat}, nil
}

func generateFunctionCode(fn source.FunctionData, names map[string]funcMeta, st *state) ([]Instruction, error) {
	var code []Instruction
	code = append(code, Instruction{Op: OpPushRbpAndMovEspToEbp})
	code = append(code, Instruction{Op: OpAlloc, IntArg: int64(fn.AllocSize)})

	body, err := generateStatementCode(fn.Body, names, st, fn.Name == "main")
	if err != nil {
		return nil, err
	}
	code = append(code, body...)

	code = append(code, epilogue(fn.Name == "main")...)
	return code, nil
}

func epilogue(isMain bool) []Instruction {
	if isMain {
		return []Instruction{{Op: OpExit}}
	}
	return []Instruction{
		{Op: OpMovEbpToEspAndPopRbp},
		{Op: OpRet},
	}
}

func generateStatementCode(stmt source.Statement, names map[string]funcMeta, st *state, isMain bool) ([]Instruction, error) {
	switch s := stmt.(type) {
	case source.Block:
		var code []Instruction
		for _, inner := range s.Stmts {
			innerCode, err := generateStatementCode(inner, names, st, isMain)
			if err != nil {
				return nil, err
			}
			code = append(code, innerCode...)
		}
		return code, nil

	case source.ExprStmt:
		exprCode, err := generateExpressionCode(s.Expr, names, st)
		if err != nil {
			return nil, err
		}
		return append(exprCode, Instruction{Op: OpPop, Reg1: R1}), nil

	case source.SetLocal:
		valCode, err := generateExpressionCode(s.Value, names, st)
		if err != nil {
			return nil, err
		}
		code := append(valCode, Instruction{Op: OpPop, Reg1: R1})
		code = append(code, Instruction{Op: OpSetVar, Reg1: R1, IntArg: int64(s.Index)})
		return code, nil

	case source.SetIndexed:
		idxCode, err := generateExpressionCode(s.Index, names, st)
		if err != nil {
			return nil, err
		}
		valCode, err := generateExpressionCode(s.Value, names, st)
		if err != nil {
			return nil, err
		}
		var code []Instruction
		code = append(code, idxCode...)
		code = append(code, valCode...)
		code = append(code, Instruction{Op: OpPop, Reg1: R2})
		code = append(code, Instruction{Op: OpPop, Reg1: R1})
		code = append(code, Instruction{Op: OpSetVarComputed, Reg1: R1, Reg2: R2})
		return code, nil

	case source.PutByte:
		valCode, err := generateExpressionCode(s.Value, names, st)
		if err != nil {
			return nil, err
		}
		code := append(valCode, Instruction{Op: OpPop, Reg1: R1})
		return append(code, Instruction{Op: OpPutByte, Reg1: R1}), nil

	case source.Return:
		valCode, err := generateExpressionCode(s.Value, names, st)
		if err != nil {
			return nil, err
		}
		code := append(valCode, Instruction{Op: OpPop, Reg1: RAX})
		code = append(code, epilogue(isMain)...)
		return code, nil

	case source.If:
		condCode, err := generateExpressionCode(s.Cond, names, st)
		if err != nil {
			return nil, err
		}
		thenCode, err := generateStatementCode(s.Then, names, st, isMain)
		if err != nil {
			return nil, err
		}
		elseCode, err := generateStatementCode(s.Else, names, st, isMain)
		if err != nil {
			return nil, err
		}
		elseLabel := st.newLabel()
		endLabel := st.newLabel()

		var code []Instruction
		code = append(code, condCode...)
		code = append(code, Instruction{Op: OpPop, Reg1: R1})
		code = append(code, Instruction{Op: OpJmpLabelIfZero, Reg1: R1, IntArg: int64(elseLabel)})
		code = append(code, thenCode...)
		code = append(code, Instruction{Op: OpJmpLabel, IntArg: int64(endLabel)})
		code = append(code, withLabels(Instruction{Op: OpNop}, elseLabel))
		code = append(code, elseCode...)
		code = append(code, withLabels(Instruction{Op: OpNop}, endLabel))
		return code, nil

	case source.While:
		beginLabel := st.newLabel()
		endLabel := st.newLabel()

		condCode, err := generateExpressionCode(s.Cond, names, st)
		if err != nil {
			return nil, err
		}
		bodyCode, err := generateStatementCode(s.Body, names, st, isMain)
		if err != nil {
			return nil, err
		}

		var code []Instruction
		code = append(code, withLabels(Instruction{Op: OpNop}, beginLabel))
		code = append(code, condCode...)
		code = append(code, Instruction{Op: OpPop, Reg1: R1})
		code = append(code, Instruction{Op: OpJmpLabelIfZero, Reg1: R1, IntArg: int64(endLabel)})
		code = append(code, bodyCode...)
		code = append(code, Instruction{Op: OpJmpLabel, IntArg: int64(beginLabel)})
		code = append(code, withLabels(Instruction{Op: OpNop}, endLabel))
		return code, nil

	default:
		return nil, codegenErrorf("internal error: unhandled statement type %T", stmt)
	}
}

var binaryIntOps = map[source.BinaryOp]Op{
	source.OpAdd: OpAddInt, source.OpSub: OpSubInt, source.OpMul: OpMulInt,
	source.OpDiv: OpDivInt, source.OpRem: OpRemInt,
	source.OpEq: OpEqInt, source.OpNe: OpNeInt, source.OpLt: OpLtInt, source.OpLe: OpLeInt,
}

var binaryFloatOps = map[source.BinaryOp]Op{
	source.OpAdd: OpAddFloat, source.OpSub: OpSubFloat, source.OpMul: OpMulFloat,
	source.OpDiv: OpDivFloat, source.OpRem: OpRemFloat,
	source.OpEq: OpEqFloat, source.OpNe: OpNeFloat, source.OpLt: OpLtFloat, source.OpLe: OpLeFloat,
}

var untypedOps = map[source.BinaryOp]Op{
	source.OpAnd: OpAnd, source.OpOr: OpOr, source.OpXor: OpXor,
	source.OpShl: OpShl, source.OpShr: OpShr, source.OpShrUnsigned: OpShrUnsigned,
}

func generateExpressionCode(expr source.Expression, names map[string]funcMeta, st *state) ([]Instruction, error) {
	switch e := expr.(type) {
	case source.IntLit:
		return []Instruction{{Op: OpLoadInt, Reg1: R1, IntArg: e.Value}, {Op: OpPush, Reg1: R1}}, nil

	case source.FloatLit:
		return []Instruction{{Op: OpLoadFloat, Reg1: R1, FltArg: e.Value}, {Op: OpPush, Reg1: R1}}, nil

	case source.GetLocal:
		return []Instruction{
			{Op: OpGetVar, Reg1: R1, IntArg: int64(e.Index)},
			{Op: OpPush, Reg1: R1},
		}, nil

	case source.GetParam:
		return []Instruction{
			{Op: OpGetParam, Reg1: R1, IntArg: int64(e.Index)},
			{Op: OpPush, Reg1: R1},
		}, nil

	case source.GetIndexed:
		idxCode, err := generateExpressionCode(e.Index, names, st)
		if err != nil {
			return nil, err
		}
		code := append(idxCode, Instruction{Op: OpPop, Reg1: R1})
		code = append(code, Instruction{Op: OpGetVarComputed, Reg1: R1, Reg2: R2})
		code = append(code, Instruction{Op: OpPush, Reg1: R2})
		return code, nil

	case source.ReadByte:
		return []Instruction{
			{Op: OpReadByteFromStdin, Reg1: R1},
			{Op: OpPush, Reg1: R1},
		}, nil

	case source.Call:
		meta, ok := names[e.Func]
		if !ok {
			return nil, codegenErrorf("call to undefined function %s()", e.Func)
		}
		if meta.paramsSize != len(e.Args) {
			return nil, codegenErrorf("function %s() expects %d argument(s), found %d", e.Func, meta.paramsSize, len(e.Args))
		}
		var code []Instruction
		for _, arg := range e.Args {
			argCode, err := generateExpressionCode(arg, names, st)
			if err != nil {
				return nil, err
			}
			code = append(code, argCode...)
		}
		code = append(code, Instruction{Op: OpCallLabel, IntArg: int64(meta.index)})
		code = append(code, Instruction{Op: OpFree, IntArg: int64(len(e.Args))})
		code = append(code, Instruction{Op: OpPush, Reg1: RAX})
		code = append(code, Instruction{Op: OpLoadInt, Reg1: RAX, IntArg: 0})
		return code, nil

	case source.Unary:
		operandCode, err := generateExpressionCode(e.Operand, names, st)
		if err != nil {
			return nil, err
		}
		code := append(operandCode, Instruction{Op: OpPop, Reg1: R1})
		var op Op
		switch e.Op {
		case source.OpLogiNot:
			op = OpLogiNot
		case source.OpBitNot:
			op = OpBitNot
		case source.OpIntToFloat:
			op = OpIntToFloat
		case source.OpFloatToInt:
			op = OpFloatToInt
		case source.OpNeg:
			if e.Type == source.OperandFloat {
				op = OpNegFloat
			} else {
				op = OpNegInt
			}
		default:
			return nil, codegenErrorf("internal error: unhandled unary operator %v", e.Op)
		}
		code = append(code, Instruction{Op: op, Reg1: R1})
		code = append(code, Instruction{Op: OpPush, Reg1: R1})
		return code, nil

	case source.Binary:
		leftCode, err := generateExpressionCode(e.Left, names, st)
		if err != nil {
			return nil, err
		}
		rightCode, err := generateExpressionCode(e.Right, names, st)
		if err != nil {
			return nil, err
		}
		var code []Instruction
		code = append(code, leftCode...)
		code = append(code, rightCode...)
		code = append(code, Instruction{Op: OpPop, Reg1: R2})
		code = append(code, Instruction{Op: OpPop, Reg1: R1})

		if op, ok := untypedOps[e.Op]; ok {
			code = append(code, Instruction{Op: op, Reg1: R1, Reg2: R2})
			code = append(code, Instruction{Op: OpPush, Reg1: R1})
			return code, nil
		}

		table := binaryIntOps
		if e.Type == source.OperandFloat {
			table = binaryFloatOps
		}

		// Gt/Ge reuse Lt/Le with the popped operands swapped: R2 < R1
		// (right < left) is exactly left > right.
		switch e.Op {
		case source.OpGt:
			ltOp := table[source.OpLt]
			code = append(code, Instruction{Op: ltOp, Reg1: R2, Reg2: R1})
			code = append(code, Instruction{Op: OpPush, Reg1: R2})
			return code, nil
		case source.OpGe:
			leOp := table[source.OpLe]
			code = append(code, Instruction{Op: leOp, Reg1: R2, Reg2: R1})
			code = append(code, Instruction{Op: OpPush, Reg1: R2})
			return code, nil
		}

		op, ok := table[e.Op]
		if !ok {
			return nil, codegenErrorf("internal error: unhandled binary operator %v", e.Op)
		}
		code = append(code, Instruction{Op: op, Reg1: R1, Reg2: R2})
		code = append(code, Instruction{Op: OpPush, Reg1: R1})
		return code, nil

	default:
		return nil, codegenErrorf("internal error: unhandled expression type %T", expr)
	}
}

// simplifyFunctionCode runs the peephole pass (collapsing an adjacent
// Push r/Pop s into a Mov, or a double Nop when r == s, skipped
// whenever the Pop carries a label a jump still needs) followed by a
// combined label-migration-and-filter pass that drops now-inert Nop
// and zero-sized Alloc/Free instructions, carrying any labels they
// held forward onto the next surviving instruction (or a final
// placeholder Nop if none follows).
func simplifyFunctionCode(code []Instruction) []Instruction {
	peepholed := make([]Instruction, 0, len(code))
	for i := 0; i < len(code); i++ {
		if i+1 < len(code) &&
			code[i].Op == OpPush && code[i+1].Op == OpPop &&
			len(code[i+1].Labels) == 0 {
			src, dst := code[i].Reg1, code[i+1].Reg1
			if src == dst {
				peepholed = append(peepholed,
					Instruction{Op: OpNop, Labels: code[i].Labels},
					Instruction{Op: OpNop})
			} else {
				peepholed = append(peepholed,
					Instruction{Op: OpMov, Reg1: src, Reg2: dst, Labels: code[i].Labels},
					Instruction{Op: OpNop})
			}
			i++
			continue
		}
		peepholed = append(peepholed, code[i])
	}

	var out []Instruction
	var pending []Label
	for _, in := range peepholed {
		zeroAlloc := in.Op == OpAlloc && in.IntArg == 0
		zeroFree := in.Op == OpFree && in.IntArg == 0
		if in.Op == OpNop || zeroAlloc || zeroFree {
			pending = append(pending, in.Labels...)
			continue
		}
		if len(pending) > 0 {
			in.Labels = append(pending, in.Labels...)
			pending = nil
		}
		out = append(out, in)
	}
	if len(pending) > 0 {
		out = append(out, Instruction{Op: OpNop, Labels: pending})
	}
	return out
}
