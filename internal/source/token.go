package source

import "fmt"

type TokenKind int

const (
	TokPlus TokenKind = iota
	TokMinus
	TokAsterisk
	TokSlash
	TokPercent
	TokDoubleEq
	TokEqual
	TokLessThan
	TokDoubleLt
	TokLtEq
	TokGreaterThan
	TokDoubleGt
	TokTripleGt
	TokGtEq
	TokAmpersand
	TokPipe
	TokCircumflex
	TokExclEq
	TokExcl
	TokTilde
	TokSemicolon
	TokDot
	TokComma
	TokColon
	TokOpeningBracket
	TokClosingBracket
	TokOpeningBrace
	TokClosingBrace
	TokOpeningParens
	TokClosingParens
	TokFloatKeyword
	TokIntKeyword
	TokIfKeyword
	TokGetKeyword
	TokSetKeyword
	TokParamKeyword
	TokWhileKeyword
	TokFtoiKeyword
	TokItofKeyword
	TokAllocKeyword
	TokElseKeyword
	TokPutcKeyword
	TokGetcKeyword
	TokParamsKeyword
	TokFuncKeyword
	TokReturnKeyword
	TokInt
	TokFloat
	TokIdent
	TokEOF
)

var keywords = map[string]TokenKind{
	"while":  TokWhileKeyword,
	"if":     TokIfKeyword,
	"else":   TokElseKeyword,
	"set":    TokSetKeyword,
	"get":    TokGetKeyword,
	"int":    TokIntKeyword,
	"float":  TokFloatKeyword,
	"i_to_f": TokItofKeyword,
	"f_to_i": TokFtoiKeyword,
	"alloc":  TokAllocKeyword,
	"getc":   TokGetcKeyword,
	"putc":   TokPutcKeyword,
	"func":   TokFuncKeyword,
	"params": TokParamsKeyword,
	"param":  TokParamKeyword,
	"return": TokReturnKeyword,
}

// Token is one lexical unit, with the byte offset it started at (for
// diagnostics).
type Token struct {
	Kind   TokenKind
	IntVal int64
	FltVal float64
	Ident  string
	Offset int
}

func (t Token) String() string {
	switch t.Kind {
	case TokInt:
		return fmt.Sprintf("int(%d)", t.IntVal)
	case TokFloat:
		return fmt.Sprintf("float(%g)", t.FltVal)
	case TokIdent:
		return fmt.Sprintf("ident(%s)", t.Ident)
	case TokEOF:
		return "<eof>"
	default:
		return tokenNames[t.Kind]
	}
}

var tokenNames = map[TokenKind]string{
	TokPlus:           "+",
	TokMinus:          "-",
	TokAsterisk:       "*",
	TokSlash:          "/",
	TokPercent:        "%",
	TokDoubleEq:       "==",
	TokEqual:          "=",
	TokLessThan:       "<",
	TokDoubleLt:       "<<",
	TokLtEq:           "<=",
	TokGreaterThan:    ">",
	TokDoubleGt:       ">>",
	TokTripleGt:       ">>>",
	TokGtEq:           ">=",
	TokAmpersand:      "&",
	TokPipe:           "|",
	TokCircumflex:     "^",
	TokExclEq:         "!=",
	TokExcl:           "!",
	TokTilde:          "~",
	TokSemicolon:      ";",
	TokDot:            ".",
	TokComma:          ",",
	TokColon:          ":",
	TokOpeningBracket: "[",
	TokClosingBracket: "]",
	TokOpeningBrace:   "{",
	TokClosingBrace:   "}",
	TokOpeningParens:  "(",
	TokClosingParens:  ")",
	TokFloatKeyword:   "float",
	TokIntKeyword:     "int",
	TokIfKeyword:       "if",
	TokGetKeyword:      "get",
	TokSetKeyword:      "set",
	TokParamKeyword:    "param",
	TokWhileKeyword:    "while",
	TokFtoiKeyword:     "f_to_i",
	TokItofKeyword:     "i_to_f",
	TokAllocKeyword:    "alloc",
	TokElseKeyword:     "else",
	TokPutcKeyword:     "putc",
	TokGetcKeyword:     "getc",
	TokParamsKeyword:   "params",
	TokFuncKeyword:     "func",
	TokReturnKeyword:   "return",
}
