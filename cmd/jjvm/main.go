package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/daimatz/jjvm/pkg/vm"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "jjvm",
		Short:         "A small Java virtual machine",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDumpCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

// report prints err and returns the process exit status. A program exit
// is not an error and only yields its status.
func report(w *os.File, err error) int {
	var exit *vm.ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}

	msg := err.Error()
	var st *vm.StackTrace
	if errors.As(err, &st) {
		msg = st.Format()
	}
	prefix := "error:"
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		prefix = "\x1b[31merror:\x1b[0m"
	}
	fmt.Fprintln(w, prefix, msg)
	return 1
}
