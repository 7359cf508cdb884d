// Package machine executes the flat, resolved opcode array produced
// by internal/codegen: a 4-register, stack-based interpreter using a
// caller-allocates calling convention.
package machine

import "math"

// Value is an untyped 64-bit cell, reinterpreted as a two's-complement
// int64 or an IEEE-754 float64 depending on which opcode touches it.
// It carries no runtime type tag; the opcode alone decides.
type Value uint64

func IntValue(v int64) Value { return Value(v) }

func FloatValue(v float64) Value { return Value(math.Float64bits(v)) }

func (v Value) Int() int64 { return int64(v) }

func (v Value) Float() float64 { return math.Float64frombits(uint64(v)) }
