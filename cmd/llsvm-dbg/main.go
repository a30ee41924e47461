// Command llsvm-dbg runs a bytecode file under the interactive debugger,
// optionally attaching a debug database for source-level inspection.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"llsvm/debugdb"
	"llsvm/debugger"
	"llsvm/vm"
)

func main() {
	var stackSize int
	var breakAddr string

	rootCmd := &cobra.Command{
		Use:   "llsvm-dbg <bytecode-file> [<debug-db-file>]",
		Short: "Run an llscript bytecode file under the interactive debugger",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := ""
			if len(args) == 2 {
				dbPath = args[1]
			}
			return run(args[0], dbPath, stackSize, breakAddr)
		},
	}
	rootCmd.Flags().IntVar(&stackSize, "stack-size", vm.DefaultStackSize, "stack buffer size in bytes")
	rootCmd.Flags().StringVar(&breakAddr, "break", "", "pre-seed a breakpoint at this instruction address (hex, e.g. 0x10)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(codePath, dbPath string, stackSize int, breakAddr string) error {
	code, err := os.ReadFile(codePath)
	if err != nil {
		return fmt.Errorf("reading bytecode file: %w", err)
	}

	var db *debugdb.Reader
	if dbPath != "" {
		raw, err := os.ReadFile(dbPath)
		if err != nil {
			return fmt.Errorf("reading debug database: %w", err)
		}
		db, err = debugdb.NewReader(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "debug database disabled: %v\n", err)
			db = nil
		}
	}

	var registers [vm.NumRegisters]uint64
	front := debugger.NewTerminalFrontend(os.Stdin, os.Stdout)
	sess := debugger.NewSession(code, &registers, db, front, vm.WithStackSize(stackSize))

	if breakAddr != "" {
		addr, err := strconv.ParseUint(strings.TrimPrefix(breakAddr, "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("bad --break address %q: %w", breakAddr, err)
		}
		sess.SetBreakpoint(addr)
	}

	if err := sess.RunDebug(); err != nil {
		fmt.Fprintf(os.Stderr, "fault: %v (ip=%#04x)\n", err, sess.State().IP())
		os.Exit(1)
	}

	fmt.Printf("program exited cleanly at ip=%#04x, sp=%d\n", sess.State().IP(), sess.State().SP())
	return nil
}
