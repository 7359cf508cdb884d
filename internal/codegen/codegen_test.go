package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"abyssix/internal/source"
)

func parseSrc(t *testing.T, src string) source.Program {
	t.Helper()
	tokens, err := source.Lex([]byte(src))
	require.NoError(t, err)
	prog, err := source.Parse(tokens)
	require.NoError(t, err)
	return prog
}

func TestGenerateMinimalMainEndsInExit(t *testing.T) {
	prog := parseSrc(t, `
func main {
	params 0;
	alloc 0;
	putc 65;
	return 0;
}
`)
	codes, err := Generate(prog)
	require.NoError(t, err)
	require.NotEmpty(t, codes.Opcodes)
	assert.Equal(t, OpExit, codes.Opcodes[len(codes.Opcodes)-1].Op)
	assert.Equal(t, 0, codes.EntryPoint)
}

func TestGenerateNoSymbolicOpcodesSurviveResolution(t *testing.T) {
	prog := parseSrc(t, `
func main {
	params 0;
	alloc 1;
	while get.0 int.< 3: {
		set.0 = get.0 int.+ 1;
	}
	if get.0 int.== 3: {
		putc 89;
	} else {
		putc 78;
	}
	return 0;
}
`)
	codes, err := Generate(prog)
	require.NoError(t, err)
	for i, in := range codes.Opcodes {
		switch in.Op {
		case OpJmpLabel, OpJmpLabelIfZero, OpCallLabel:
			t.Fatalf("symbolic opcode %v survived resolution at index %d", in.Op, i)
		}
	}
}

func TestGenerateJumpTargetsAreInBounds(t *testing.T) {
	prog := parseSrc(t, `
func main {
	params 0;
	alloc 1;
	while get.0 int.< 3: {
		set.0 = get.0 int.+ 1;
	}
	return 0;
}
`)
	codes, err := Generate(prog)
	require.NoError(t, err)
	for i, in := range codes.Opcodes {
		switch in.Op {
		case OpJmpAddr, OpJmpAddrIfZero, OpFunctionCall:
			assert.GreaterOrEqualf(t, in.IntArg, int64(0), "instruction %d", i)
			assert.Lessf(t, in.IntArg, int64(len(codes.Opcodes)), "instruction %d", i)
		}
	}
}

func TestGenerateCallResolvesToCalleeEntry(t *testing.T) {
	prog := parseSrc(t, `
func add {
	params 2;
	alloc 0;
	return param.0 int.+ param.1;
}
func main {
	params 0;
	alloc 0;
	putc add(1, 2);
	return 0;
}
`)
	codes, err := Generate(prog)
	require.NoError(t, err)

	var sawCall bool
	for _, in := range codes.Opcodes {
		if in.Op == OpFunctionCall {
			sawCall = true
			assert.Equal(t, OpPushRbpAndMovEspToEbp, codes.Opcodes[in.IntArg].Op)
		}
	}
	assert.True(t, sawCall, "expected a resolved FunctionCall opcode")
}

func TestGenerateRejectsUndefinedFunction(t *testing.T) {
	prog := parseSrc(t, `
func main {
	params 0;
	alloc 0;
	putc missing();
	return 0;
}
`)
	_, err := Generate(prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined function")
}

func TestGenerateRejectsArityMismatch(t *testing.T) {
	prog := parseSrc(t, `
func add {
	params 2;
	alloc 0;
	return param.0 int.+ param.1;
}
func main {
	params 0;
	alloc 0;
	putc add(1);
	return 0;
}
`)
	_, err := Generate(prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 2 argument")
}

func TestGenerateGreaterThanSwapsOperands(t *testing.T) {
	prog := parseSrc(t, `
func main {
	params 0;
	alloc 0;
	if 5 int.> 3: {
		putc 1;
	} else {
		putc 0;
	}
	return 0;
}
`)
	codes, err := Generate(prog)
	require.NoError(t, err)
	var found bool
	for _, in := range codes.Opcodes {
		if in.Op == OpLtInt {
			found = true
			assert.Equal(t, R2, in.Reg1)
			assert.Equal(t, R1, in.Reg2)
		}
	}
	assert.True(t, found, "expected Gt to lower via LtInt")
}

func TestGenerateShiftOpsKeepValueInReg1AndAmountInReg2(t *testing.T) {
	cases := []struct {
		name string
		expr string
		op   Op
	}{
		{"Shl", "5 << 65", OpShl},
		{"Shr", "5 >> 65", OpShr},
		{"ShrUnsigned", "5 >>> 65", OpShrUnsigned},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			prog := parseSrc(t, `
func main {
	params 0;
	alloc 0;
	putc `+c.expr+`;
	return 0;
}
`)
			codes, err := Generate(prog)
			require.NoError(t, err)
			var found bool
			for _, in := range codes.Opcodes {
				if in.Op == c.op {
					found = true
					assert.Equal(t, R1, in.Reg1)
					assert.Equal(t, R2, in.Reg2)
				}
			}
			assert.True(t, found, "expected %v to appear in generated code", c.op)
		})
	}
}

func TestSimplifyFunctionCodeCollapsesPushPop(t *testing.T) {
	code := []Instruction{
		{Op: OpPush, Reg1: R1},
		{Op: OpPop, Reg1: R2},
	}
	out := simplifyFunctionCode(code)
	require.Len(t, out, 1)
	assert.Equal(t, OpMov, out[0].Op)
	assert.Equal(t, R1, out[0].Reg1)
	assert.Equal(t, R2, out[0].Reg2)
}

func TestSimplifyFunctionCodePreservesLabelOnSkippedPop(t *testing.T) {
	code := []Instruction{
		{Op: OpPush, Reg1: R1},
		{Op: OpPop, Reg1: R1, Labels: []Label{7}},
	}
	out := simplifyFunctionCode(code)
	require.Len(t, out, 2)
	assert.Equal(t, OpPush, out[0].Op)
	assert.Equal(t, OpPop, out[1].Op)
	assert.Contains(t, out[1].Labels, Label(7))
}
