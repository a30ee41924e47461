// Command llsvm-exec runs a bytecode file to completion with no debugger
// attached and reports the final fault, if any.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"llsvm/vm"
)

func main() {
	var stackSize int

	rootCmd := &cobra.Command{
		Use:   "llsvm-exec <bytecode-file>",
		Short: "Run an llscript bytecode file to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], stackSize)
		},
	}
	rootCmd.Flags().IntVar(&stackSize, "stack-size", vm.DefaultStackSize, "stack buffer size in bytes")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, stackSize int) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading bytecode file: %w", err)
	}

	var registers [vm.NumRegisters]uint64
	state := vm.NewState(code, &registers, vm.WithStackSize(stackSize))

	if err := state.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "fault: %v (ip=%#04x)\n", err, state.IP())
		os.Exit(1)
	}

	fmt.Printf("program exited cleanly at ip=%#04x, sp=%d\n", state.IP(), state.SP())
	return nil
}
