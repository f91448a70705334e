// Command coreinterp is a thin debug harness for the core interpreter: it
// decodes a compact AST binary, runs it, and prints the resulting command
// stream as JSON lines. A hardware-facing host wraps this engine with its
// own I/O layer; this binary exists for local inspection and scripting,
// as a root command with flag-bound subcommands.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/codec"
	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/interp"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coreinterp",
		Short: "Hardware-independent interpreter for decoded Arduino/C++ sketches",
	}

	var maxLoopIterations int
	var syncMode bool
	var verbose bool
	var debug bool
	var maxCallDepth int

	runCmd := &cobra.Command{
		Use:   "run <file.actree>",
		Short: "Decode and run a compact AST binary, printing the command stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			program, err := codec.Decode(f)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			opts := interp.NewOptions()
			if maxLoopIterations > 0 {
				opts.MaxLoopIterations = maxLoopIterations
			}
			opts.SyncMode = syncMode
			opts.Verbose = verbose
			opts.Debug = debug
			if maxCallDepth > 0 {
				opts.MaxCallDepth = maxCallDepth
			}

			session := interp.New(program, opts)
			session.SetCommandListener(func(c command.Command) {
				b, err := json.Marshal(c)
				if err != nil {
					fmt.Fprintf(os.Stderr, "coreinterp: marshal command: %v\n", err)
					return
				}
				fmt.Println(string(b))
			})
			if syncMode {
				session.SetResponseHandler(func(kind string, mockArgs []value.Value) value.Value {
					return value.Int32(0)
				})
			}

			if err := session.Start(); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			if err := session.Wait(); err != nil {
				if verbose {
					fmt.Fprintf(os.Stderr, "coreinterp: session ended with error: %v\n", err)
				}
			}
			return nil
		},
	}
	runCmd.Flags().IntVar(&maxLoopIterations, "max-loop-iterations", 0, "bound on loop() invocations (0 = use default)")
	runCmd.Flags().BoolVar(&syncMode, "sync-mode", true, "resolve async requests with deterministic mocks instead of suspending")
	runCmd.Flags().BoolVar(&verbose, "verbose", false, "print progress to stderr")
	runCmd.Flags().BoolVar(&debug, "debug", false, "enable verbose internal diagnostics")
	runCmd.Flags().IntVar(&maxCallDepth, "max-call-depth", 0, "bound on user function call nesting (0 = use default)")

	decodeCmd := &cobra.Command{
		Use:   "decode <file.actree>",
		Short: "Decode a compact AST binary and print its node tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			program, err := codec.Decode(f)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			printTree(program, 0)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the interpreter version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(interp.NewOptions().Version)
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, decodeCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printTree(n *ast.Node, depth int) {
	if n == nil {
		return
	}
	for i := 0; i < depth; i++ {
		fmt.Print("  ")
	}
	label := n.Kind.String()
	switch {
	case n.Operator != "":
		label += " " + n.Operator
	case n.Name != "":
		label += " " + n.Name
	}
	fmt.Println(label)
	for _, c := range n.Children {
		printTree(c, depth+1)
	}
}
