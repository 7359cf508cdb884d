// Command abyssix compiles and runs programs written in the abyssix
// source language: untyped 64-bit values, explicit per-function
// scratch arrays, first-class functions with positional parameters,
// and byte-oriented stdio via putc/getc.
//
// The pipeline has three stages, each its own package:
//
//	internal/source  lexes and parses a .abys file into an AST
//	internal/codegen lowers the AST to a flat, resolved opcode array
//	internal/machine  executes that array on a 4-register stack VM
package main

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"abyssix/internal/codegen"
	"abyssix/internal/config"
	"abyssix/internal/machine"
	"abyssix/internal/source"
	"abyssix/internal/telemetry"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	defaults := config.Load()
	cfg := defaults

	cmd := &cobra.Command{
		Use:   "abyssix",
		Short: "Compile and run an abyssix source file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, os.Stdin, os.Stdout)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Input, "input", "i", defaults.Input, "path to the source file to compile and run")
	flags.BoolVarP(&cfg.Debug, "debug", "d", defaults.Debug, "log at debug level and treat putc/getc I/O errors as fatal")
	flags.BoolVar(&cfg.DumpBytecode, "dump-bytecode", defaults.DumpBytecode, "print the resolved opcode array instead of running it")

	return cmd
}

func run(cfg config.Config, stdin io.Reader, stdout io.Writer) error {
	log := telemetry.New(cfg.Debug)
	defer log.Sync() //nolint:errcheck // best-effort flush on exit

	prevGOGC := debug.SetGCPercent(cfg.GOGC)
	defer debug.SetGCPercent(prevGOGC)

	src, err := os.ReadFile(cfg.Input)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.Input, err)
	}
	log.Debugw("source read", "path", cfg.Input, "bytes", len(src))

	tokens, err := source.Lex(src)
	if err != nil {
		log.Errorw("lex failed", "error", err)
		return err
	}
	log.Debugw("lexed", "tokens", len(tokens))

	prog, err := source.Parse(tokens)
	if err != nil {
		log.Errorw("parse failed", "error", err)
		return err
	}
	log.Debugw("parsed", "functions", len(prog.Funcs))

	codes, err := codegen.Generate(prog)
	if err != nil {
		log.Errorw("codegen failed", "error", err)
		return err
	}
	log.Debugw("generated", "opcodes", len(codes.Opcodes), "entry_point", codes.EntryPoint)

	if cfg.DumpBytecode {
		dumpBytecode(codes)
		return nil
	}

	if err := machine.RunProgram(codes, cfg.Debug, stdin, stdout); err != nil {
		log.Errorw("execution fault", "error", err)
		return err
	}
	return nil
}

func dumpBytecode(codes *codegen.Codes) {
	fmt.Printf("entry_point: %d\n", codes.EntryPoint)
	for i, in := range codes.Opcodes {
		marker := "  "
		if i == codes.EntryPoint {
			marker = "->"
		}
		fmt.Printf("%s %4d: %v\n", marker, i, in.Op)
	}
}
