// Command sievec compiles circuit relations into binary IR files and
// inspects the result.
//
// Exit codes distinguish failure classes: 2 for malformed relation or input
// files, 3 for structural errors and resource-limit violations in the
// relation, 4 for everything else.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rw0x0/swanky"
	"github.com/rw0x0/swanky/circuit"
	"github.com/rw0x0/swanky/compiler"
	"github.com/rw0x0/swanky/ir"
	"github.com/rw0x0/swanky/logger"
)

const (
	exitDecode     = 2
	exitStructural = 3
	exitInternal   = 4
)

var compileFlags struct {
	out             string
	party           string
	instance        string
	witness         string
	workers         int
	window          int
	bucketSize      int
	inlineThreshold int
}

func loadInputs(path string) (circuit.Inputs, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return circuit.ReadInputs(f)
}

func runCompile(cmd *cobra.Command, args []string) error {
	rf, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer rf.Close()
	rel, err := circuit.ReadRelation(rf)
	if err != nil {
		return err
	}

	instance, err := loadInputs(compileFlags.instance)
	if err != nil {
		return err
	}
	witness, err := loadInputs(compileFlags.witness)
	if err != nil {
		return err
	}

	opts := []swanky.Option{
		swanky.WithWorkers(compileFlags.workers),
		swanky.WithWindow(compileFlags.window),
		swanky.WithBucketSize(compileFlags.bucketSize),
		swanky.WithInlineThreshold(compileFlags.inlineThreshold),
		swanky.WithInstance(instance),
		swanky.WithWitness(witness),
	}

	ctx := cmd.Context()
	switch compileFlags.party {
	case "prover":
		_, err = swanky.Compile(ctx, swanky.Prover{}, rel, compileFlags.out, opts...)
	case "verifier":
		_, err = swanky.Compile(ctx, swanky.Verifier{}, rel, compileFlags.out, opts...)
	case "public":
		_, err = swanky.Compile(ctx, swanky.Public{}, rel, compileFlags.out, opts...)
	default:
		err = fmt.Errorf("unknown party %q (want prover, verifier or public)", compileFlags.party)
	}
	return err
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := ir.ReadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("party:     %s\n", f.Header.Party)
	fmt.Printf("fields:    %d\n", len(f.Header.Fields))
	for _, fd := range f.Header.Fields {
		fmt.Printf("  %d bytes/elem, modulus %s\n", fd.ElemLen, fd.Modulus)
	}
	fmt.Printf("functions: %d\n", len(f.Header.Functions))
	for _, fn := range f.Header.Functions {
		kind := "linked"
		if fn.Plugin != nil {
			kind = fmt.Sprintf("plugin %s.%s", fn.Plugin.Plugin, fn.Plugin.Operation)
		}
		fmt.Printf("  #%d %s (%s)\n", fn.ID, fn.Name, kind)
	}
	fmt.Printf("wireBound: %d\n", f.Header.WireBound)
	fmt.Printf("segments:  %d\n", len(f.Segments))
	var total uint64
	for _, seg := range f.Segments {
		total += seg.NumOps
	}
	fmt.Printf("operations: %d\n", total)
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sievec",
		Short:         "Streaming circuit compiler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	compile := &cobra.Command{
		Use:   "compile <relation>",
		Short: "Compile a relation into a binary IR file",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompile,
	}
	compile.Flags().StringVarP(&compileFlags.out, "out", "o", "out.sieve", "output IR path")
	compile.Flags().StringVarP(&compileFlags.party, "party", "p", "prover", "output party: prover, verifier or public")
	compile.Flags().StringVar(&compileFlags.instance, "instance", "", "public input values file")
	compile.Flags().StringVar(&compileFlags.witness, "witness", "", "private input values file")
	compile.Flags().IntVar(&compileFlags.workers, "workers", 0, "worker count, 0 = available parallelism")
	compile.Flags().IntVar(&compileFlags.window, "window", 0, "in-flight unit bound, 0 = 2x workers")
	compile.Flags().IntVar(&compileFlags.bucketSize, "bucket-size", 0, "top-level statements per work unit")
	compile.Flags().IntVar(&compileFlags.inlineThreshold, "inline-threshold", 0, "max expanded ops for inlining")
	root.AddCommand(compile)

	root.AddCommand(&cobra.Command{
		Use:   "inspect <file>",
		Short: "Print a summary of a compiled IR file",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	})
	return root
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, circuit.ErrDecode):
		return exitDecode
	case errors.Is(err, compiler.ErrStructural), errors.Is(err, compiler.ErrResource):
		return exitStructural
	default:
		return exitInternal
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log := logger.Logger()
		log.Error().Err(err).Msg("sievec failed")
		os.Exit(exitCode(err))
	}
}
